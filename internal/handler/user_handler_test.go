package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/negocio/internal/middleware"
	"github.com/hitoshi/negocio/internal/model"
)

type fakeCompanyService struct {
	completeSetupFn func(ctx context.Context, userID string, payload *model.CompanyPayload) (*model.User, error)
	hasCompanyFn    func(ctx context.Context, accountID string) (bool, error)
	plansFn         func(ctx context.Context) ([]*model.Plan, error)
	typesFn         func(ctx context.Context) ([]*model.CompanyType, error)
}

func (f *fakeCompanyService) CompleteSetup(ctx context.Context, userID string, payload *model.CompanyPayload) (*model.User, error) {
	return f.completeSetupFn(ctx, userID, payload)
}

func (f *fakeCompanyService) HasCompany(ctx context.Context, accountID string) (bool, error) {
	return f.hasCompanyFn(ctx, accountID)
}

func (f *fakeCompanyService) Plans(ctx context.Context) ([]*model.Plan, error) {
	return f.plansFn(ctx)
}

func (f *fakeCompanyService) CompanyTypes(ctx context.Context) ([]*model.CompanyType, error) {
	return f.typesFn(ctx)
}

// TestCompleteCompanySetup_Success は企業作成成功時のレスポンスを検証する。
func TestCompleteCompanySetup_Success(t *testing.T) {
	companyID := "comp-1"
	service := &fakeCompanyService{
		completeSetupFn: func(_ context.Context, userID string, payload *model.CompanyPayload) (*model.User, error) {
			if userID != "user-1" {
				t.Errorf("unexpected user ID: %s", userID)
			}
			if payload.Name != "Mi Tienda" || payload.PlanID != 2 {
				t.Errorf("unexpected payload: %+v", payload)
			}
			return &model.User{ID: userID, CompanyID: &companyID, SetupCompleted: true}, nil
		},
	}
	h := NewUserHandler(service, nil)

	reqBody := `{"nombre":"Mi Tienda","tipo_empresa_id":1,"plan_id":2}`
	req := httptest.NewRequest(http.MethodPost, "/api/users/complete-company-setup", strings.NewReader(reqBody))
	req = req.WithContext(middleware.ContextWithUserID(req.Context(), "user-1"))
	w := httptest.NewRecorder()
	h.CompleteCompanySetup(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}
	body := decodeBody(t, w)
	if body["success"] != true {
		t.Errorf("success = %v, want true", body["success"])
	}
	usuario := body["usuario"].(map[string]any)
	if usuario["tiene_empresa"] != true {
		t.Error("expected tiene_empresa true after setup")
	}
}

// TestCompleteCompanySetup_Duplicate は二重実行が409で拒否されることを検証する。
func TestCompleteCompanySetup_Duplicate(t *testing.T) {
	service := &fakeCompanyService{
		completeSetupFn: func(_ context.Context, _ string, _ *model.CompanyPayload) (*model.User, error) {
			return nil, model.NewCompanyAlreadyExistsError()
		},
	}
	h := NewUserHandler(service, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/users/complete-company-setup",
		strings.NewReader(`{"nombre":"Otra","tipo_empresa_id":1,"plan_id":2}`))
	req = req.WithContext(middleware.ContextWithUserID(req.Context(), "user-1"))
	w := httptest.NewRecorder()
	h.CompleteCompanySetup(w, req)

	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", w.Code)
	}
	body := decodeBody(t, w)
	if body["code"] != model.ErrCodeCompanyAlreadyExists {
		t.Errorf("unexpected code: %v", body["code"])
	}
}

// TestCompleteCompanySetup_Unauthenticated は未認証リクエストに401が返ることを検証する。
func TestCompleteCompanySetup_Unauthenticated(t *testing.T) {
	h := NewUserHandler(&fakeCompanyService{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/users/complete-company-setup",
		strings.NewReader(`{"nombre":"Tienda","tipo_empresa_id":1,"plan_id":2}`))
	w := httptest.NewRecorder()
	h.CompleteCompanySetup(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

// TestCheckCompany はアカウントの企業紐付け状態の照会を検証する。
func TestCheckCompany(t *testing.T) {
	service := &fakeCompanyService{
		hasCompanyFn: func(_ context.Context, accountID string) (bool, error) {
			switch accountID {
			case "fb-with-company":
				return true, nil
			case "fb-without":
				return false, nil
			default:
				return false, model.NewUserNotFoundError()
			}
		},
	}
	h := NewUserHandler(service, nil)

	r := chi.NewRouter()
	r.Get("/api/users/check-company/{accountId}", h.CheckCompany)

	tests := []struct {
		accountID  string
		wantStatus int
		wantTiene  bool
	}{
		{"fb-with-company", http.StatusOK, true},
		{"fb-without", http.StatusOK, false},
		{"ghost", http.StatusNotFound, false},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/api/users/check-company/"+tt.accountID, nil)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		if w.Code != tt.wantStatus {
			t.Errorf("%s: status = %d, want %d", tt.accountID, w.Code, tt.wantStatus)
			continue
		}
		if tt.wantStatus == http.StatusOK {
			body := decodeBody(t, w)
			data := body["data"].(map[string]any)
			if data["tiene_empresa"] != tt.wantTiene {
				t.Errorf("%s: tiene_empresa = %v, want %v", tt.accountID, data["tiene_empresa"], tt.wantTiene)
			}
		}
	}
}

// TestListPlans は料金プラン一覧のレスポンス形式を検証する。
func TestListPlans(t *testing.T) {
	service := &fakeCompanyService{
		plansFn: func(_ context.Context) ([]*model.Plan, error) {
			return []*model.Plan{
				{ID: 1, Code: "basico", Name: "Básico", Price: 0},
				{ID: 2, Code: "estandar", Name: "Estándar", Price: 2900},
				{ID: 3, Code: "premium", Name: "Premium", Price: 5900},
			}, nil
		},
	}
	h := NewReferenceHandler(service)

	req := httptest.NewRequest(http.MethodGet, "/api/plans", nil)
	w := httptest.NewRecorder()
	h.ListPlans(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	body := decodeBody(t, w)
	data := body["data"].([]any)
	if len(data) != 3 {
		t.Fatalf("expected 3 plans, got %d", len(data))
	}
	estandar := data[1].(map[string]any)
	if estandar["codigo"] != "estandar" || estandar["id"] != float64(2) {
		t.Errorf("unexpected estandar plan: %v", estandar)
	}
}

// TestListCompanyTypes は業種一覧のレスポンス形式を検証する。
func TestListCompanyTypes(t *testing.T) {
	service := &fakeCompanyService{
		typesFn: func(_ context.Context) ([]*model.CompanyType, error) {
			return []*model.CompanyType{
				{ID: 1, Code: "retail", Name: "Comercio minorista"},
				{ID: 2, Code: "services", Name: "Servicios"},
			}, nil
		},
	}
	h := NewReferenceHandler(service)

	req := httptest.NewRequest(http.MethodGet, "/api/companies/types", nil)
	w := httptest.NewRecorder()
	h.ListCompanyTypes(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	body := decodeBody(t, w)
	data := body["data"].([]any)
	if len(data) != 2 {
		t.Fatalf("expected 2 types, got %d", len(data))
	}
	first := data[0].(map[string]any)
	if first["codigo"] != "retail" {
		t.Errorf("unexpected type: %v", first)
	}
}

// TestMe は認証済みユーザーのプロフィール取得を検証する。
func TestMe(t *testing.T) {
	service := &fakeAuthService{
		currentFn: func(_ context.Context, userID string) (*model.User, error) {
			return &model.User{ID: userID, Email: "maria@example.com", FullName: "María"}, nil
		},
	}
	h := NewAuthHandler(service, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req = req.WithContext(middleware.ContextWithUserID(req.Context(), "user-1"))
	w := httptest.NewRecorder()
	h.Me(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	body := decodeBody(t, w)
	usuario := body["usuario"].(map[string]any)
	if usuario["id"] != "user-1" {
		t.Errorf("unexpected usuario: %v", usuario)
	}
}
