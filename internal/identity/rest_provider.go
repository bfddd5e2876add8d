package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const defaultRESTBaseURL = "https://identitytoolkit.googleapis.com"

// RESTConfig はRESTProviderの設定。
type RESTConfig struct {
	APIKey string

	// テスト用にオーバーライド可能なURL
	BaseURL string
}

// RESTProvider はFirebase互換のREST APIを持つIDプロバイダーへのアダプタ。
type RESTProvider struct {
	config RESTConfig
	client *http.Client
}

// NewRESTProvider はRESTProviderを生成する。
// clientがnilの場合はhttp.DefaultClientを使用する。
func NewRESTProvider(config RESTConfig, client *http.Client) *RESTProvider {
	if config.BaseURL == "" {
		config.BaseURL = defaultRESTBaseURL
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	if client == nil {
		client = http.DefaultClient
	}
	return &RESTProvider{config: config, client: client}
}

// lookupResponse はaccounts:lookupエンドポイントのレスポンス。
type lookupResponse struct {
	Users []struct {
		LocalID     string `json:"localId"`
		Email       string `json:"email"`
		DisplayName string `json:"displayName"`
		CreatedAt   string `json:"createdAt"`
		LastLoginAt string `json:"lastLoginAt"`
	} `json:"users"`
}

// signUpResponse はaccounts:signUpエンドポイントのレスポンス。
type signUpResponse struct {
	LocalID string `json:"localId"`
	IDToken string `json:"idToken"`
}

// providerError はプロバイダーの4xxレスポンスボディ。
type providerError struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// VerifyAssertion はIDアサーションをプロバイダーのlookupエンドポイントで検証する。
func (p *RESTProvider) VerifyAssertion(ctx context.Context, assertion string) (*Identity, error) {
	if assertion == "" {
		return nil, ErrAssertionInvalid
	}

	body, status, err := p.post(ctx, "/v1/accounts:lookup", map[string]any{
		"idToken": assertion,
	})
	if err != nil {
		return nil, err
	}

	if status != http.StatusOK {
		// INVALID_ID_TOKEN / USER_NOT_FOUND 等はすべてアサーション無効として扱う
		return nil, fmt.Errorf("%w: %s", ErrAssertionInvalid, parseProviderMessage(body))
	}

	var resp lookupResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse lookup response: %w", err)
	}
	if len(resp.Users) == 0 {
		return nil, ErrAssertionInvalid
	}

	u := resp.Users[0]
	if u.LocalID == "" {
		return nil, ErrAssertionInvalid
	}

	return &Identity{
		UID:   u.LocalID,
		Email: u.Email,
		Name:  u.DisplayName,
		// 初回ログインではcreatedAtとlastLoginAtが一致する
		IsNewUser: u.CreatedAt != "" && u.CreatedAt == u.LastLoginAt,
	}, nil
}

// CreateAccount はプロバイダーのsignUpエンドポイントでアカウントを作成する。
func (p *RESTProvider) CreateAccount(ctx context.Context, email, password, displayName string) (string, error) {
	body, status, err := p.post(ctx, "/v1/accounts:signUp", map[string]any{
		"email":             email,
		"password":          password,
		"displayName":       displayName,
		"returnSecureToken": true,
	})
	if err != nil {
		return "", err
	}

	if status != http.StatusOK {
		msg := parseProviderMessage(body)
		if strings.HasPrefix(msg, "EMAIL_EXISTS") {
			return "", ErrEmailExists
		}
		return "", fmt.Errorf("account creation failed with status %d: %s", status, msg)
	}

	var resp signUpResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("failed to parse signUp response: %w", err)
	}
	if resp.LocalID == "" {
		return "", fmt.Errorf("empty localId in signUp response")
	}

	return resp.LocalID, nil
}

// post はJSONボディをプロバイダーにPOSTし、レスポンスボディとステータスを返す。
func (p *RESTProvider) post(ctx context.Context, path string, payload map[string]any) ([]byte, int, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := p.config.BaseURL + path + "?key=" + p.config.APIKey
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read response: %w", err)
	}

	return body, resp.StatusCode, nil
}

// parseProviderMessage は4xxボディからエラーメッセージを取り出す。
func parseProviderMessage(body []byte) string {
	var pe providerError
	if err := json.Unmarshal(body, &pe); err != nil || pe.Error.Message == "" {
		return "unknown provider error"
	}
	return pe.Error.Message
}

// compile-time interface check
var _ Provider = (*RESTProvider)(nil)
