package onboarding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

const (
	defaultIdentityBaseURL = "https://identitytoolkit.googleapis.com"
	defaultTokenBaseURL    = "https://securetoken.googleapis.com"
)

// FederatedAuthenticator は連携認証のホスト環境インターフェース。
// ポップアップ・リダイレクトの実際の画面制御はホストアプリケーション
// （WebViewラッパーやデスクトップシェル）が実装する。
type FederatedAuthenticator interface {
	// OpenPopup はポップアップで連携認証を行い、IDアサーションを返す。
	// ポップアップがブロックされた場合はErrPopupBlockedを返す。
	OpenPopup(ctx context.Context) (string, error)

	// StartRedirect はリダイレクト型の連携認証を開始する。
	// このメソッドが成功した場合、現在のページは離脱する。
	StartRedirect(ctx context.Context) error

	// ConsumeRedirectResult はリダイレクト復帰後の認証結果を回収する。
	// 保留中のリダイレクトが無い場合は("", false, nil)を返す。
	// 結果は一度回収したら消費される。
	ConsumeRedirectResult(ctx context.Context) (string, bool, error)
}

// RESTProviderConfig はRESTProviderの設定。
type RESTProviderConfig struct {
	APIKey string
	// BaseURL を指定しない場合は本番のIDプロバイダーを使用する。テスト用。
	BaseURL string
	// TokenBaseURL はトークン更新エンドポイントの基底URL。テスト用。
	TokenBaseURL string
}

// RESTProvider はIDプロバイダーのREST APIクライアント。
// IdentityProviderインターフェースを実装する。
type RESTProvider struct {
	apiKey       string
	baseURL      string
	tokenBaseURL string
	client       *http.Client
	federated    FederatedAuthenticator
}

// NewRESTProvider はRESTProviderを生成する。
// federatedがnilの場合、連携認証はErrProviderUnavailableを返す。
func NewRESTProvider(config RESTProviderConfig, client *http.Client, federated FederatedAuthenticator) *RESTProvider {
	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = defaultIdentityBaseURL
	}
	tokenBaseURL := config.TokenBaseURL
	if tokenBaseURL == "" {
		if config.BaseURL != "" {
			tokenBaseURL = config.BaseURL
		} else {
			tokenBaseURL = defaultTokenBaseURL
		}
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &RESTProvider{
		apiKey:       config.APIKey,
		baseURL:      strings.TrimRight(baseURL, "/"),
		tokenBaseURL: strings.TrimRight(tokenBaseURL, "/"),
		client:       client,
		federated:    federated,
	}
}

type identityResponse struct {
	IDToken      string `json:"idToken"`
	RefreshToken string `json:"refreshToken"`
	LocalID      string `json:"localId"`
	Email        string `json:"email"`
	DisplayName  string `json:"displayName"`
}

// SignUp はメール・パスワードでアカウントを新規作成する。
func (p *RESTProvider) SignUp(ctx context.Context, email, password, displayName string) (*Credential, error) {
	body, err := p.post(ctx, "/v1/accounts:signUp", map[string]any{
		"email":             email,
		"password":          password,
		"displayName":       displayName,
		"returnSecureToken": true,
	})
	if err != nil {
		return nil, err
	}

	var resp identityResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode signUp response: %w", err)
	}

	return &Credential{
		IDToken:      resp.IDToken,
		RefreshToken: resp.RefreshToken,
		Account: Account{
			UID:         resp.LocalID,
			Email:       resp.Email,
			DisplayName: resp.DisplayName,
			IsNewUser:   true,
		},
	}, nil
}

// SignIn はメール・パスワードで認証する。
func (p *RESTProvider) SignIn(ctx context.Context, email, password string) (*Credential, error) {
	body, err := p.post(ctx, "/v1/accounts:signInWithPassword", map[string]any{
		"email":             email,
		"password":          password,
		"returnSecureToken": true,
	})
	if err != nil {
		return nil, err
	}

	var resp identityResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode signIn response: %w", err)
	}

	return &Credential{
		IDToken:      resp.IDToken,
		RefreshToken: resp.RefreshToken,
		Account: Account{
			UID:         resp.LocalID,
			Email:       resp.Email,
			DisplayName: resp.DisplayName,
		},
	}, nil
}

// Refresh はリフレッシュトークンで新しいIDアサーションを取得する。
func (p *RESTProvider) Refresh(ctx context.Context, refreshToken string) (*Credential, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)

	endpoint := fmt.Sprintf("%s/v1/token?key=%s", p.tokenBaseURL, p.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, mapIdentityError(body, resp.StatusCode)
	}

	var parsed struct {
		IDToken      string `json:"id_token"`
		RefreshToken string `json:"refresh_token"`
		UserID       string `json:"user_id"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to decode refresh response: %w", err)
	}

	return &Credential{
		IDToken:      parsed.IDToken,
		RefreshToken: parsed.RefreshToken,
		Account:      Account{UID: parsed.UserID},
	}, nil
}

// FederatedSignIn は連携プロバイダーで認証する。
// まずポップアップを試み、ブロックされた場合はリダイレクトに
// フォールバックしてErrRedirectPendingを返す。
func (p *RESTProvider) FederatedSignIn(ctx context.Context) (*Credential, error) {
	if p.federated == nil {
		return nil, ErrProviderUnavailable
	}

	idToken, err := p.federated.OpenPopup(ctx)
	if err != nil {
		if errors.Is(err, ErrPopupBlocked) {
			if redirectErr := p.federated.StartRedirect(ctx); redirectErr != nil {
				return nil, fmt.Errorf("popup blocked and redirect failed: %w", redirectErr)
			}
			return nil, ErrRedirectPending
		}
		return nil, err
	}

	return &Credential{IDToken: idToken}, nil
}

// ResumeFederated はリダイレクト復帰後の認証結果を回収する。
func (p *RESTProvider) ResumeFederated(ctx context.Context) (*Credential, bool, error) {
	if p.federated == nil {
		return nil, false, nil
	}

	idToken, ok, err := p.federated.ConsumeRedirectResult(ctx)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	return &Credential{IDToken: idToken}, true, nil
}

// post はIDプロバイダーへのPOSTリクエストを実行し、
// プロバイダーのエラーコードをSDKのエラー種別に変換する。
func (p *RESTProvider) post(ctx context.Context, path string, payload map[string]any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	url := fmt.Sprintf("%s%s?key=%s", p.baseURL, path, p.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode == http.StatusOK {
		return body, nil
	}

	return nil, mapIdentityError(body, resp.StatusCode)
}

// mapIdentityError はプロバイダーのエラーレスポンスをSDKのエラーに変換する。
func mapIdentityError(body []byte, statusCode int) error {
	var parsed struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	json.Unmarshal(body, &parsed)
	message := parsed.Error.Message

	switch {
	case strings.HasPrefix(message, "EMAIL_EXISTS"):
		return ErrEmailInUse
	case strings.HasPrefix(message, "EMAIL_NOT_FOUND"),
		strings.HasPrefix(message, "INVALID_PASSWORD"),
		strings.HasPrefix(message, "INVALID_LOGIN_CREDENTIALS"),
		strings.HasPrefix(message, "INVALID_REFRESH_TOKEN"),
		strings.HasPrefix(message, "TOKEN_EXPIRED"):
		return ErrInvalidCredentials
	case strings.HasPrefix(message, "WEAK_PASSWORD"):
		return ErrWeakPassword
	case statusCode >= 500:
		return fmt.Errorf("%w: status %d", ErrProviderUnavailable, statusCode)
	default:
		return fmt.Errorf("identity provider error: %s (status %d)", message, statusCode)
	}
}

var _ IdentityProvider = (*RESTProvider)(nil)
