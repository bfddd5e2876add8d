package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/hitoshi/negocio/internal/identity"
	"github.com/hitoshi/negocio/internal/middleware"
	"github.com/hitoshi/negocio/internal/model"
)

// LocalIdentityHandler は開発用ローカルIDプロバイダーのサインインエンドポイント。
// 本番のIDプロバイダーはフロントエンドが直接呼ぶためバックエンドには
// 存在しないが、ローカルモードではこのエンドポイントがアサーションを発行する。
// RESTプロバイダー使用時はルーティングに含まれない。
type LocalIdentityHandler struct {
	provider *identity.LocalProvider
}

// NewLocalIdentityHandler はLocalIdentityHandlerを生成する。
func NewLocalIdentityHandler(provider *identity.LocalProvider) *LocalIdentityHandler {
	return &LocalIdentityHandler{
		provider: provider,
	}
}

// SignUp はローカルアカウントを作成し、new_userフラグ付きのIDアサーションを
// 発行する。本番プロバイダーのsignUpが作成と同時にトークンを返すのと
// 同じ形。
// POST /local-identity/signup
func (h *LocalIdentityHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email       string `json:"email"`
		Password    string `json:"password"`
		DisplayName string `json:"displayName"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" || req.Password == "" {
		middleware.WriteMessageError(w, http.StatusBadRequest,
			model.NewValidationError("", "Correo y contraseña son obligatorios."))
		return
	}

	uid, err := h.provider.CreateAccount(r.Context(), req.Email, req.Password, req.DisplayName)
	if err != nil {
		if errors.Is(err, identity.ErrEmailExists) {
			middleware.WriteMessageError(w, http.StatusConflict, model.NewEmailInUseError())
			return
		}
		if errors.Is(err, identity.ErrUnavailable) {
			middleware.WriteMessageError(w, http.StatusServiceUnavailable, model.NewProviderUnavailableError())
			return
		}
		middleware.WriteMessageError(w, http.StatusInternalServerError, model.NewInternalError())
		return
	}

	assertion, err := h.provider.IssueAssertion(r.Context(), uid)
	if err != nil {
		middleware.WriteMessageError(w, http.StatusInternalServerError, model.NewInternalError())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"idToken": assertion,
	})
}

// SignIn はメール・パスワードを検証し、IDアサーションを発行する。
// POST /local-identity/signin
func (h *LocalIdentityHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" || req.Password == "" {
		middleware.WriteMessageError(w, http.StatusBadRequest,
			model.NewValidationError("", "Correo y contraseña son obligatorios."))
		return
	}

	assertion, err := h.provider.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		if identity.IsCredentialError(err) {
			middleware.WriteMessageError(w, http.StatusUnauthorized, model.NewInvalidCredentialsError())
			return
		}
		if errors.Is(err, identity.ErrUnavailable) {
			middleware.WriteMessageError(w, http.StatusServiceUnavailable, model.NewProviderUnavailableError())
			return
		}
		middleware.WriteMessageError(w, http.StatusInternalServerError, model.NewInternalError())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"idToken": assertion,
	})
}
