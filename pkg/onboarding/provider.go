// Package onboarding は登録・ログイン・企業セットアップの
// クライアントフローを実装するSDKを提供する。
//
// IDプロバイダーでの認証、バックエンドとのセッション交換、
// 企業プロビジョニング、画面遷移の決定までを一つの
// ステートマシン（Flow）として扱う。
package onboarding

import (
	"context"
	"errors"
)

// Account はIDプロバイダー側のアカウント情報を表す。
type Account struct {
	UID         string
	Email       string
	DisplayName string
	// IsNewUser はこの認証でアカウントが新規作成されたことを示す。
	IsNewUser bool
}

// Credential はIDプロバイダーでの認証結果を表す。
// IDTokenは短命のIDアサーションで、バックエンドとのセッション交換にのみ使う。
// RefreshTokenは新しいIDアサーションの再取得に使う。
type Credential struct {
	IDToken      string
	RefreshToken string
	Account      Account
}

// IdentityProvider はIDプロバイダーのクライアントインターフェース。
type IdentityProvider interface {
	// SignUp はメール・パスワードでアカウントを新規作成する。
	SignUp(ctx context.Context, email, password, displayName string) (*Credential, error)

	// SignIn はメール・パスワードで認証する。
	SignIn(ctx context.Context, email, password string) (*Credential, error)

	// FederatedSignIn は連携プロバイダー（Google等）で認証する。
	// ポップアップがブロックされた場合はリダイレクトにフォールバックし、
	// ErrRedirectPendingを返す。リダイレクト復帰後はResumeFederatedで
	// 結果を回収する。
	FederatedSignIn(ctx context.Context) (*Credential, error)

	// ResumeFederated はリダイレクト復帰後の認証結果を回収する。
	// 保留中のリダイレクトが無い場合は(nil, false, nil)を返す。
	ResumeFederated(ctx context.Context) (*Credential, bool, error)
}

// プロバイダー操作の失敗種別。
var (
	// ErrEmailInUse はメールアドレスが既に使用されていることを表す。
	ErrEmailInUse = errors.New("email already in use")
	// ErrInvalidCredentials はメール・パスワードの不一致を表す。
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrWeakPassword はパスワードがプロバイダーの最低要件を満たさないことを表す。
	ErrWeakPassword = errors.New("password does not meet minimum requirements")
	// ErrPopupBlocked は認証ポップアップがブロックされたことを表す。
	ErrPopupBlocked = errors.New("authentication popup was blocked")
	// ErrRedirectPending はリダイレクト型認証が開始され、復帰待ちであることを表す。
	ErrRedirectPending = errors.New("federated redirect in progress")
	// ErrProviderUnavailable はIDプロバイダーに到達できないことを表す。
	ErrProviderUnavailable = errors.New("identity provider unavailable")
)
