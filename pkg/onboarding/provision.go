package onboarding

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// 入力検証の失敗。ネットワークに出る前に弾く。
var (
	ErrInvalidEmail      = errors.New("invalid email address")
	ErrPasswordTooShort  = errors.New("password must be at least 6 characters")
	ErrFullNameRequired  = errors.New("full name is required")
	ErrCompanyIncomplete = errors.New("company form is incomplete")
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

const minPasswordLength = 6

// RegisterForm はメール登録の入力を表す。
type RegisterForm struct {
	Email    string
	Password string
	FullName string
}

// Validate は登録入力を検証する。
func (f *RegisterForm) Validate() error {
	f.Email = strings.ToLower(strings.TrimSpace(f.Email))
	f.FullName = strings.TrimSpace(f.FullName)

	if !emailPattern.MatchString(f.Email) {
		return ErrInvalidEmail
	}
	if len(f.Password) < minPasswordLength {
		return ErrPasswordTooShort
	}
	if f.FullName == "" {
		return ErrFullNameRequired
	}
	return nil
}

// CompanyForm は企業設定の入力を表す。
type CompanyForm struct {
	Name          string
	CompanyTypeID int
	PlanID        int
}

// Validate は企業入力を検証する。
func (f *CompanyForm) Validate() error {
	f.Name = strings.TrimSpace(f.Name)

	if f.Name == "" || f.CompanyTypeID <= 0 || f.PlanID <= 0 {
		return ErrCompanyIncomplete
	}
	return nil
}

// CompleteCompanySetup は認証済みアカウントに企業を設定する。
// 設定済みのアカウントはErrCompanyExistsを返す。
func (c *BackendClient) CompleteCompanySetup(ctx context.Context, token string, form CompanyForm) (*Profile, error) {
	if err := form.Validate(); err != nil {
		return nil, err
	}

	payload := map[string]any{
		"nombre":          form.Name,
		"tipo_empresa_id": form.CompanyTypeID,
		"plan_id":         form.PlanID,
	}

	var resp struct {
		Success bool    `json:"success"`
		Usuario Profile `json:"usuario"`
	}
	if err := c.post(ctx, "/api/users/complete-company-setup", token, payload, &resp); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Code == "COMPANY_ALREADY_EXISTS" {
			return nil, ErrCompanyExists
		}
		return nil, err
	}

	return &resp.Usuario, nil
}

// CheckCompany はアカウントに企業が設定済みか問い合わせる。
// accountIDはプロバイダーUIDまたは内部IDのどちらでもよい。
func (c *BackendClient) CheckCompany(ctx context.Context, accountID string) (bool, error) {
	if accountID == "" {
		return false, fmt.Errorf("account id is required")
	}

	var resp struct {
		Success bool `json:"success"`
		Data    struct {
			HasCompany bool `json:"tiene_empresa"`
		} `json:"data"`
	}
	if err := c.get(ctx, "/api/users/check-company/"+accountID, "", &resp); err != nil {
		return false, err
	}
	return resp.Data.HasCompany, nil
}
