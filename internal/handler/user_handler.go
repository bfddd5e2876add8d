package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/negocio/internal/metrics"
	"github.com/hitoshi/negocio/internal/middleware"
	"github.com/hitoshi/negocio/internal/model"
)

// CompanyServiceInterface はユーザー・企業ハンドラーが必要とするサービスインターフェース。
type CompanyServiceInterface interface {
	// CompleteSetup はユーザーの企業を作成して紐付ける。二重実行は失敗する。
	CompleteSetup(ctx context.Context, userID string, payload *model.CompanyPayload) (*model.User, error)
	// HasCompany は指定アカウントに企業が紐付いているかを返す。
	HasCompany(ctx context.Context, accountID string) (bool, error)
	// Plans は全ての料金プランを返す。
	Plans(ctx context.Context) ([]*model.Plan, error)
	// CompanyTypes は全ての業種を返す。
	CompanyTypes(ctx context.Context) ([]*model.CompanyType, error)
}

// UserHandler は企業セットアップと照会のHTTPハンドラー。
type UserHandler struct {
	service   CompanyServiceInterface
	collector metrics.MetricsCollector
}

// NewUserHandler はUserHandlerを生成する。
func NewUserHandler(service CompanyServiceInterface, collector metrics.MetricsCollector) *UserHandler {
	return &UserHandler{
		service:   service,
		collector: collector,
	}
}

// CompleteCompanySetup は認証済みユーザーの企業を作成する。
// POST /api/users/complete-company-setup
func (h *UserHandler) CompleteCompanySetup(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	var req companyData
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest,
			model.NewValidationError("", "El cuerpo de la solicitud no es válido."))
		return
	}

	user, err := h.service.CompleteSetup(r.Context(), userID, req.toPayload())
	if err != nil {
		if h.collector != nil {
			if apiErr, ok := err.(*model.APIError); ok {
				h.collector.RecordProvisioningFailure(apiErr.Code)
			}
		}
		middleware.WriteAPIError(w, err)
		return
	}

	if h.collector != nil {
		h.collector.RecordCompanyProvisioned()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"usuario": toUserPayload(user),
	})
}

// CheckCompany は指定アカウントの企業紐付け状態を返す。
// GET /api/users/check-company/{accountId}
func (h *UserHandler) CheckCompany(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountId")
	if accountID == "" {
		middleware.WriteErrorResponse(w, http.StatusBadRequest,
			model.NewValidationError("accountId", "El identificador de cuenta es obligatorio."))
		return
	}

	hasCompany, err := h.service.HasCompany(r.Context(), accountID)
	if err != nil {
		middleware.WriteAPIError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data": map[string]any{
			"tiene_empresa": hasCompany,
		},
	})
}
