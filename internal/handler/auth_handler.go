// Package handler はHTTP APIハンドラーを提供する。
//
// レスポンスのフィールド名はフロントエンド（スペイン語圏向け製品）との
// 既存契約に従う。usuario、empresa_data、tiene_empresaなどの命名は
// この契約の一部であり変更しない。
package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/hitoshi/negocio/internal/auth"
	"github.com/hitoshi/negocio/internal/metrics"
	"github.com/hitoshi/negocio/internal/middleware"
	"github.com/hitoshi/negocio/internal/model"
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	// ExchangeAssertion はIDアサーションをセッションに引き換える。
	ExchangeAssertion(ctx context.Context, assertion string) (*auth.SessionResult, error)
	// Register は新規アカウントを登録する。
	Register(ctx context.Context, input auth.RegisterInput) (*auth.RegisterResult, error)
	// FederatedAuth は連携ログインを処理し、必要ならプロフィールを作成する。
	FederatedAuth(ctx context.Context, assertion string, payload *model.CompanyPayload) (*auth.SessionResult, error)
	// CurrentUser はセッションの持ち主のプロフィールを返す。
	CurrentUser(ctx context.Context, userID string) (*model.User, error)
}

// AuthHandler は認証エンドポイントのHTTPハンドラー。
type AuthHandler struct {
	service   AuthServiceInterface
	collector metrics.MetricsCollector
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, collector metrics.MetricsCollector) *AuthHandler {
	return &AuthHandler{
		service:   service,
		collector: collector,
	}
}

// companyData は企業作成リクエストのJSON表現。
// プランはplan_id、またはマーケティングサイトが知っている
// スラッグコード（plan_codigo）のどちらでも指定できる。
type companyData struct {
	Nombre        string `json:"nombre"`
	TipoEmpresaID int64  `json:"tipo_empresa_id"`
	PlanID        int64  `json:"plan_id"`
	PlanCodigo    string `json:"plan_codigo"`
}

func (c *companyData) toPayload() *model.CompanyPayload {
	if c == nil {
		return nil
	}
	return &model.CompanyPayload{
		Name:          c.Nombre,
		CompanyTypeID: c.TipoEmpresaID,
		PlanID:        c.PlanID,
		PlanCode:      c.PlanCodigo,
	}
}

// userPayload はプロフィールのJSON表現。
type userPayload struct {
	ID             string  `json:"id"`
	FirebaseUID    string  `json:"firebase_uid"`
	Email          string  `json:"email"`
	NombreCompleto string  `json:"nombre_completo"`
	EmpresaID      *string `json:"empresa_id"`
	TieneEmpresa   bool    `json:"tiene_empresa"`
}

func toUserPayload(user *model.User) userPayload {
	return userPayload{
		ID:             user.ID,
		FirebaseUID:    user.ProviderUID,
		Email:          user.Email,
		NombreCompleto: user.FullName,
		EmpresaID:      user.CompanyID,
		TieneEmpresa:   user.HasCompany(),
	}
}

func writeJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(body)
}

// LoginFirebase はメール・パスワード認証のIDアサーションをセッションに引き換える。
// POST /api/auth/login-firebase
//
// このエンドポイントだけはエラーを"message"キーで返す（既存契約）。
func (h *AuthHandler) LoginFirebase(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IDToken string `json:"idToken"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.IDToken == "" {
		middleware.WriteMessageError(w, http.StatusBadRequest,
			model.NewValidationError("idToken", "El token de identidad es obligatorio."))
		return
	}

	result, err := h.service.ExchangeAssertion(r.Context(), req.IDToken)
	if err != nil {
		h.recordLoginFailure(err)
		middleware.WriteAPIMessageError(w, err)
		return
	}

	if h.collector != nil {
		h.collector.RecordLogin("password")
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"token":   result.Token,
		"usuario": toUserPayload(result.User),
	})
}

// Register は新規アカウントを登録する。
// POST /api/auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email          string       `json:"email"`
		Password       string       `json:"password"`
		NombreCompleto string       `json:"nombre_completo"`
		EmpresaData    *companyData `json:"empresa_data"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest,
			model.NewValidationError("", "El cuerpo de la solicitud no es válido."))
		return
	}

	result, err := h.service.Register(r.Context(), auth.RegisterInput{
		Email:    req.Email,
		Password: req.Password,
		FullName: req.NombreCompleto,
		Company:  req.EmpresaData.toPayload(),
	})
	if err != nil {
		middleware.WriteAPIError(w, err)
		return
	}

	if h.collector != nil {
		h.collector.RecordRegistration("password")
		if result.User.HasCompany() {
			h.collector.RecordCompanyProvisioned()
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"usuario":      toUserPayload(result.User),
		"firebase_uid": result.ProviderUID,
	})
}

// GoogleAuth は連携ログインのIDアサーションを処理する。
// POST /api/auth/google-auth
func (h *AuthHandler) GoogleAuth(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IDToken     string       `json:"idToken"`
		EmpresaData *companyData `json:"empresa_data"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.IDToken == "" {
		middleware.WriteErrorResponse(w, http.StatusBadRequest,
			model.NewValidationError("idToken", "El token de identidad es obligatorio."))
		return
	}

	result, err := h.service.FederatedAuth(r.Context(), req.IDToken, req.EmpresaData.toPayload())
	if err != nil {
		h.recordLoginFailure(err)
		middleware.WriteAPIError(w, err)
		return
	}

	if h.collector != nil {
		h.collector.RecordLogin("federated")
		if req.EmpresaData != nil && result.User.HasCompany() {
			h.collector.RecordCompanyProvisioned()
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"token":             result.Token,
		"usuario":           toUserPayload(result.User),
		"needsCompanySetup": result.NeedsCompanySetup,
	})
}

// Me はセッションの持ち主のプロフィールを返す。
// GET /api/auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	user, err := h.service.CurrentUser(r.Context(), userID)
	if err != nil {
		middleware.WriteAPIError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"usuario": toUserPayload(user),
	})
}

func (h *AuthHandler) recordLoginFailure(err error) {
	if h.collector == nil {
		return
	}
	if apiErr, ok := err.(*model.APIError); ok {
		h.collector.RecordLoginFailure(apiErr.Code)
	} else {
		h.collector.RecordLoginFailure(model.ErrCodeInternal)
	}
}
