// Package model はドメインモデルを定義する。
package model

import "time"

// UserStatus はアカウントの状態を表す。
type UserStatus string

const (
	// UserStatusActive は有効なアカウント。
	UserStatusActive UserStatus = "active"
	// UserStatusSuspended は停止中のアカウント。
	UserStatusSuspended UserStatus = "suspended"
)

// User はバックエンドに保存されるプロフィールレコードを表す。
// IDプロバイダー側のアカウント（ProviderUID）と1対1で紐付く。
// 不変条件: CompanyIDが非nilならSetupCompletedは必ずtrue。
type User struct {
	ID             string
	ProviderUID    string
	Email          string
	FullName       string
	CompanyID      *string
	RoleID         *int64
	Status         UserStatus
	SetupCompleted bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// HasCompany は企業が紐付いているかを返す。
func (u *User) HasCompany() bool {
	return u.CompanyID != nil && *u.CompanyID != ""
}

// Company はテナントとなる企業レコードを表す。
// オーナーのUser.CompanyIDは必ずこのレコードを指す（参照整合性はDB側で担保）。
type Company struct {
	ID            string
	Name          string
	CompanyTypeID int64
	PlanID        int64
	OwnerUserID   string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Plan は料金プランの参照データを表す。読み取り専用。
type Plan struct {
	ID    int64
	Code  string // "basico", "estandar", "premium" 等のスラッグ
	Name  string
	Price int64 // 月額（セント単位）
}

// CompanyType は業種の参照データを表す。読み取り専用。
type CompanyType struct {
	ID   int64
	Code string
	Name string
}

// CompanyPayload は企業作成の入力を表す。
// Validateを通過したものだけがリポジトリ層に渡される。
// プランはID（PlanID）またはスラッグコード（PlanCode）のどちらかで
// 指定する。コード指定はサービス層でIDに解決される。
type CompanyPayload struct {
	Name          string
	CompanyTypeID int64
	PlanID        int64
	PlanCode      string
}

// Validate は必須フィールドを検証する。
// ネットワークやDBに触れる前のフェイルファスト検証であり、
// 参照ID（プラン・業種）の存在確認はサービス層で行う。
func (p *CompanyPayload) Validate() *APIError {
	if p.Name == "" {
		return NewValidationError("nombre", "El nombre de la empresa es obligatorio.")
	}
	if p.CompanyTypeID <= 0 {
		return NewValidationError("tipo_empresa_id", "Selecciona el tipo de empresa.")
	}
	if p.PlanID <= 0 && p.PlanCode == "" {
		return NewValidationError("plan_id", "Selecciona un plan.")
	}
	return nil
}
