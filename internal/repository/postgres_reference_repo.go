package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/negocio/internal/model"
)

// PostgresPlanRepo はPostgreSQLを使用した料金プランリポジトリ。
type PostgresPlanRepo struct {
	db *sql.DB
}

// NewPostgresPlanRepo はPostgresPlanRepoを生成する。
func NewPostgresPlanRepo(db *sql.DB) *PostgresPlanRepo {
	return &PostgresPlanRepo{db: db}
}

// List は全プランをID昇順で返す。
func (r *PostgresPlanRepo) List(ctx context.Context) ([]*model.Plan, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, code, name, price FROM plans ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list plans: %w", err)
	}
	defer rows.Close()

	var plans []*model.Plan
	for rows.Next() {
		p := &model.Plan{}
		if err := rows.Scan(&p.ID, &p.Code, &p.Name, &p.Price); err != nil {
			return nil, fmt.Errorf("failed to scan plan: %w", err)
		}
		plans = append(plans, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate plans: %w", err)
	}

	return plans, nil
}

// FindByID は指定IDのプランを取得する。見つからない場合はnilを返す。
func (r *PostgresPlanRepo) FindByID(ctx context.Context, id int64) (*model.Plan, error) {
	p := &model.Plan{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, code, name, price FROM plans WHERE id = $1`, id,
	).Scan(&p.ID, &p.Code, &p.Name, &p.Price)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find plan by ID: %w", err)
	}
	return p, nil
}

// FindByCode はスラッグコードでプランを検索する。見つからない場合はnilを返す。
func (r *PostgresPlanRepo) FindByCode(ctx context.Context, code string) (*model.Plan, error) {
	p := &model.Plan{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, code, name, price FROM plans WHERE code = $1`, code,
	).Scan(&p.ID, &p.Code, &p.Name, &p.Price)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find plan by code: %w", err)
	}
	return p, nil
}

// PostgresCompanyTypeRepo はPostgreSQLを使用した業種リポジトリ。
type PostgresCompanyTypeRepo struct {
	db *sql.DB
}

// NewPostgresCompanyTypeRepo はPostgresCompanyTypeRepoを生成する。
func NewPostgresCompanyTypeRepo(db *sql.DB) *PostgresCompanyTypeRepo {
	return &PostgresCompanyTypeRepo{db: db}
}

// List は全業種をID昇順で返す。
func (r *PostgresCompanyTypeRepo) List(ctx context.Context) ([]*model.CompanyType, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, code, name FROM company_types ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list company types: %w", err)
	}
	defer rows.Close()

	var types []*model.CompanyType
	for rows.Next() {
		ct := &model.CompanyType{}
		if err := rows.Scan(&ct.ID, &ct.Code, &ct.Name); err != nil {
			return nil, fmt.Errorf("failed to scan company type: %w", err)
		}
		types = append(types, ct)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate company types: %w", err)
	}

	return types, nil
}

// FindByID は指定IDの業種を取得する。見つからない場合はnilを返す。
func (r *PostgresCompanyTypeRepo) FindByID(ctx context.Context, id int64) (*model.CompanyType, error) {
	ct := &model.CompanyType{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, code, name FROM company_types WHERE id = $1`, id,
	).Scan(&ct.ID, &ct.Code, &ct.Name)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find company type by ID: %w", err)
	}
	return ct, nil
}

// compile-time interface checks
var (
	_ PlanRepository        = (*PostgresPlanRepo)(nil)
	_ CompanyTypeRepository = (*PostgresCompanyTypeRepo)(nil)
)
