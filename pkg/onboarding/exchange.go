package onboarding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// バックエンド操作の失敗種別。
var (
	// ErrProfileNotFound はIDプロバイダーには存在するがバックエンドに
	// プロフィールが無いアカウントを表す。呼び出し側は登録フローへ誘導する。
	ErrProfileNotFound = errors.New("profile not registered at backend")
	// ErrCompanyExists は既に企業が設定済みのアカウントへの再設定を表す。
	ErrCompanyExists = errors.New("company already configured")
	// ErrBackendUnavailable はバックエンドに到達できないことを表す。
	ErrBackendUnavailable = errors.New("backend unavailable")
)

// APIError はバックエンドが返した構造化エラーを表す。
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("backend error %d [%s]: %s", e.StatusCode, e.Code, e.Message)
}

// Profile はバックエンドに保存されたプロフィールを表す。
type Profile struct {
	ID          string  `json:"id"`
	ProviderUID string  `json:"firebase_uid"`
	Email       string  `json:"email"`
	FullName    string  `json:"nombre_completo"`
	CompanyID   *string `json:"empresa_id"`
	HasCompany  bool    `json:"tiene_empresa"`
}

// Session はバックエンドとのセッション交換結果を表す。
type Session struct {
	Token             string
	Profile           Profile
	NeedsCompanySetup bool
}

// BackendClient はバックエンドAPIのHTTPクライアント。
type BackendClient struct {
	baseURL string
	client  *http.Client
}

// NewBackendClient はBackendClientを生成する。
func NewBackendClient(baseURL string, client *http.Client) *BackendClient {
	if client == nil {
		client = http.DefaultClient
	}
	return &BackendClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
	}
}

// ExchangeSession はIDアサーションをアプリケーションセッションに引き換える。
// プロフィール未登録のアカウントはErrProfileNotFoundを返す。
func (c *BackendClient) ExchangeSession(ctx context.Context, idToken string) (*Session, error) {
	var resp struct {
		Token   string  `json:"token"`
		Usuario Profile `json:"usuario"`
	}
	err := c.post(ctx, "/api/auth/login-firebase", "", map[string]any{
		"idToken": idToken,
	}, &resp)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Code == "PROFILE_NOT_FOUND" {
			return nil, ErrProfileNotFound
		}
		return nil, err
	}

	return &Session{
		Token:             resp.Token,
		Profile:           resp.Usuario,
		NeedsCompanySetup: !resp.Usuario.HasCompany,
	}, nil
}

// RegisterResult はアカウント登録の結果を表す。
type RegisterResult struct {
	Profile     Profile
	ProviderUID string
}

// RegisterAccount はバックエンドに新規アカウントを登録する。
// companyが非nilの場合はプロフィールと企業を同時に作成する。
func (c *BackendClient) RegisterAccount(ctx context.Context, form RegisterForm, company *CompanyForm) (*RegisterResult, error) {
	payload := map[string]any{
		"email":           form.Email,
		"password":        form.Password,
		"nombre_completo": form.FullName,
	}
	if company != nil {
		payload["empresa_data"] = map[string]any{
			"nombre":          company.Name,
			"tipo_empresa_id": company.CompanyTypeID,
			"plan_id":         company.PlanID,
		}
	}

	var resp struct {
		Usuario     Profile `json:"usuario"`
		FirebaseUID string  `json:"firebase_uid"`
	}
	if err := c.post(ctx, "/api/auth/register", "", payload, &resp); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Code == "EMAIL_IN_USE" {
			return nil, ErrEmailInUse
		}
		return nil, err
	}

	return &RegisterResult{Profile: resp.Usuario, ProviderUID: resp.FirebaseUID}, nil
}

// FederatedExchange は連携ログインのIDアサーションをセッションに引き換える。
// プロフィールが無ければバックエンド側で暗黙に作成される。
func (c *BackendClient) FederatedExchange(ctx context.Context, idToken string, company *CompanyForm) (*Session, error) {
	payload := map[string]any{
		"idToken": idToken,
	}
	if company != nil {
		payload["empresa_data"] = map[string]any{
			"nombre":          company.Name,
			"tipo_empresa_id": company.CompanyTypeID,
			"plan_id":         company.PlanID,
		}
	}

	var resp struct {
		Token             string  `json:"token"`
		Usuario           Profile `json:"usuario"`
		NeedsCompanySetup bool    `json:"needsCompanySetup"`
	}
	if err := c.post(ctx, "/api/auth/google-auth", "", payload, &resp); err != nil {
		return nil, err
	}

	return &Session{
		Token:             resp.Token,
		Profile:           resp.Usuario,
		NeedsCompanySetup: resp.NeedsCompanySetup,
	}, nil
}

// CurrentProfile はセッショントークンでプロフィールを取得する。
func (c *BackendClient) CurrentProfile(ctx context.Context, token string) (*Profile, error) {
	var resp struct {
		Usuario Profile `json:"usuario"`
	}
	if err := c.get(ctx, "/api/auth/me", token, &resp); err != nil {
		return nil, err
	}
	return &resp.Usuario, nil
}

// post はバックエンドへのPOSTリクエストを実行する。
func (c *BackendClient) post(ctx context.Context, path, token string, payload map[string]any, out any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	return c.do(req, out)
}

// get はバックエンドへのGETリクエストを実行する。
func (c *BackendClient) get(ctx context.Context, path, token string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	return c.do(req, out)
}

func (c *BackendClient) do(req *http.Request, out any) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out != nil {
			if err := json.Unmarshal(body, out); err != nil {
				return fmt.Errorf("failed to decode response: %w", err)
			}
		}
		return nil
	}

	return parseBackendError(body, resp.StatusCode)
}

// parseBackendError はバックエンドのエラーレスポンスをAPIErrorに変換する。
// ログインエンドポイントは"message"キー、それ以外は"error"キーを使うため
// 両方を受け付ける。
func parseBackendError(body []byte, statusCode int) error {
	var parsed struct {
		Error   string `json:"error"`
		Message string `json:"message"`
		Code    string `json:"code"`
	}
	json.Unmarshal(body, &parsed)

	message := parsed.Error
	if message == "" {
		message = parsed.Message
	}

	return &APIError{
		StatusCode: statusCode,
		Code:       parsed.Code,
		Message:    message,
	}
}
