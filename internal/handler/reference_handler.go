package handler

import (
	"net/http"

	"github.com/hitoshi/negocio/internal/middleware"
)

// ReferenceHandler はプラン・業種参照データのHTTPハンドラー。
type ReferenceHandler struct {
	service CompanyServiceInterface
}

// NewReferenceHandler はReferenceHandlerを生成する。
func NewReferenceHandler(service CompanyServiceInterface) *ReferenceHandler {
	return &ReferenceHandler{
		service: service,
	}
}

// planPayload は料金プランのJSON表現。
type planPayload struct {
	ID     int64  `json:"id"`
	Codigo string `json:"codigo"`
	Nombre string `json:"nombre"`
	Precio int64  `json:"precio"`
}

// companyTypePayload は業種のJSON表現。
type companyTypePayload struct {
	ID     int64  `json:"id"`
	Codigo string `json:"codigo"`
	Nombre string `json:"nombre"`
}

// ListPlans は全ての料金プランを返す。
// GET /api/plans
func (h *ReferenceHandler) ListPlans(w http.ResponseWriter, r *http.Request) {
	plans, err := h.service.Plans(r.Context())
	if err != nil {
		middleware.WriteAPIError(w, err)
		return
	}

	payload := make([]planPayload, 0, len(plans))
	for _, p := range plans {
		payload = append(payload, planPayload{
			ID:     p.ID,
			Codigo: p.Code,
			Nombre: p.Name,
			Precio: p.Price,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data":    payload,
	})
}

// ListCompanyTypes は全ての業種を返す。
// GET /api/companies/types
func (h *ReferenceHandler) ListCompanyTypes(w http.ResponseWriter, r *http.Request) {
	types, err := h.service.CompanyTypes(r.Context())
	if err != nil {
		middleware.WriteAPIError(w, err)
		return
	}

	payload := make([]companyTypePayload, 0, len(types))
	for _, ct := range types {
		payload = append(payload, companyTypePayload{
			ID:     ct.ID,
			Codigo: ct.Code,
			Nombre: ct.Name,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data":    payload,
	})
}
