package onboarding

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// ErrUnknownPlan は存在しないプランコードの解決を表す。
var ErrUnknownPlan = errors.New("unknown plan code")

// StandardPlanCode は新規登録のデフォルトプランコード。
const StandardPlanCode = "estandar"

// Plan は契約可能なプランを表す。
type Plan struct {
	ID    int     `json:"id"`
	Code  string  `json:"codigo"`
	Name  string  `json:"nombre"`
	Price float64 `json:"precio"`
}

// CompanyType は企業の業種を表す。
type CompanyType struct {
	ID   int    `json:"id"`
	Name string `json:"nombre"`
}

// PlanCatalog はプランの一覧取得とコード解決を提供する。
// 取得結果はプロセス内にキャッシュされる。
type PlanCatalog struct {
	backend *BackendClient

	mu    sync.Mutex
	plans []Plan
}

// NewPlanCatalog はPlanCatalogを生成する。
func NewPlanCatalog(backend *BackendClient) *PlanCatalog {
	return &PlanCatalog{backend: backend}
}

// Plans は契約可能なプランの一覧を返す。
func (p *PlanCatalog) Plans(ctx context.Context) ([]Plan, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.plans == nil {
		var resp struct {
			Success bool   `json:"success"`
			Data    []Plan `json:"data"`
		}
		if err := p.backend.get(ctx, "/api/plans", "", &resp); err != nil {
			return nil, err
		}
		p.plans = resp.Data
	}

	out := make([]Plan, len(p.plans))
	copy(out, p.plans)
	return out, nil
}

// Resolve はプランコードをプランIDに解決する。
func (p *PlanCatalog) Resolve(ctx context.Context, code string) (int, error) {
	code = strings.ToLower(strings.TrimSpace(code))
	if code == "" {
		return 0, ErrUnknownPlan
	}

	plans, err := p.Plans(ctx)
	if err != nil {
		return 0, err
	}
	for _, plan := range plans {
		if plan.Code == code {
			return plan.ID, nil
		}
	}
	return 0, fmt.Errorf("%w: %s", ErrUnknownPlan, code)
}

// CompanyTypes は選択可能な業種の一覧を返す。
func (p *PlanCatalog) CompanyTypes(ctx context.Context) ([]CompanyType, error) {
	var resp struct {
		Success bool          `json:"success"`
		Data    []CompanyType `json:"data"`
	}
	if err := p.backend.get(ctx, "/api/companies/types", "", &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}
