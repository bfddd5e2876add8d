// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"

	"github.com/hitoshi/negocio/internal/model"
)

// ErrDuplicateEmail はメールアドレスの一意制約違反を表す。
var ErrDuplicateEmail = errors.New("email already registered")

// ErrCompanyAttached は既に企業が紐付いているユーザーへの再紐付けを表す。
var ErrCompanyAttached = errors.New("user already has a company")

// UserRepository はプロフィール（ユーザー）データの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByProviderUID はIDプロバイダーのUIDでユーザーを検索する。
	// 見つからない場合はnilを返す。
	FindByProviderUID(ctx context.Context, providerUID string) (*model.User, error)

	// FindByEmail はメールアドレスでユーザーを検索する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// Create は企業なしのユーザーを作成する。
	// メール重複時はErrDuplicateEmailを返す。
	Create(ctx context.Context, user *model.User) error

	// CreateWithCompany はユーザーと企業を同一トランザクションで作成する。
	// ユーザー挿入 → 企業挿入 → ユーザーへの企業紐付けの順で実行し、
	// いずれかが失敗した場合は全てロールバックする（部分作成は観測されない）。
	CreateWithCompany(ctx context.Context, user *model.User, company *model.Company) error

	// AttachCompany は既存ユーザーに企業を作成して紐付け、更新後のユーザーを返す。
	// 既に企業が紐付いている場合はErrCompanyAttachedを返す。
	AttachCompany(ctx context.Context, userID string, company *model.Company) (*model.User, error)
}

// PlanRepository は料金プラン参照データの読み取りインターフェース。
type PlanRepository interface {
	// List は全プランをID昇順で返す。
	List(ctx context.Context) ([]*model.Plan, error)
	// FindByID は指定IDのプランを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id int64) (*model.Plan, error)
	// FindByCode はスラッグコードでプランを検索する。見つからない場合はnilを返す。
	FindByCode(ctx context.Context, code string) (*model.Plan, error)
}

// CompanyTypeRepository は業種参照データの読み取りインターフェース。
type CompanyTypeRepository interface {
	// List は全業種をID昇順で返す。
	List(ctx context.Context) ([]*model.CompanyType, error)
	// FindByID は指定IDの業種を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id int64) (*model.CompanyType, error)
}
