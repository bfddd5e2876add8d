// Package identity は外部IDプロバイダーとの連携を提供する。
//
// バックエンドはIDプロバイダーが発行した短命のIDアサーションを検証し、
// アプリケーションセッションに引き換える。アサーションの正当性判断は
// 常にプロバイダー側で行い、ローカルでの検証は行わない。
package identity

import (
	"context"
	"errors"
)

// Identity はIDプロバイダーが保証するアカウント情報を表す。
type Identity struct {
	UID   string
	Email string
	Name  string
	// IsNewUser はプロバイダー側で作成直後のアカウントであることを示す。
	// プロフィール作成前にERPへリダイレクトしてしまう競合の防止に使う。
	IsNewUser bool
}

// Provider はIDプロバイダーのインターフェース。
// 本番はRESTProvider、開発はLocalProviderを使用する。
type Provider interface {
	// VerifyAssertion はIDアサーションをプロバイダーで検証し、
	// アカウント情報を返す。検証失敗時はErrAssertionInvalidを返す。
	VerifyAssertion(ctx context.Context, assertion string) (*Identity, error)

	// CreateAccount はプロバイダー側にアカウントを作成し、UIDを返す。
	// 既存メールの場合はErrEmailExistsを返す。
	CreateAccount(ctx context.Context, email, password, displayName string) (string, error)
}

// プロバイダー操作の失敗種別。
var (
	// ErrAssertionInvalid はアサーションが無効・期限切れであることを表す。
	ErrAssertionInvalid = errors.New("identity assertion is invalid")
	// ErrEmailExists はメールアドレスが既にプロバイダーに登録済みであることを表す。
	ErrEmailExists = errors.New("email already exists at identity provider")
	// ErrInvalidCredentials はメール・パスワードの不一致を表す。
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrUnavailable はプロバイダーに到達できないことを表す。
	ErrUnavailable = errors.New("identity provider unavailable")
)
