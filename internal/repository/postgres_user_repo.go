package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/hitoshi/negocio/internal/model"
)

// uniqueViolation はPostgreSQLの一意制約違反のSQLSTATE。
const uniqueViolation = "23505"

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
type PostgresUserRepo struct {
	db *sql.DB
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

const userColumns = `id, provider_uid, email, full_name, company_id, role_id, status, setup_completed, created_at, updated_at`

// scanUser は1行をmodel.Userにスキャンする。
func scanUser(row *sql.Row) (*model.User, error) {
	user := &model.User{}
	var companyID sql.NullString
	var roleID sql.NullInt64

	err := row.Scan(
		&user.ID, &user.ProviderUID, &user.Email, &user.FullName,
		&companyID, &roleID, &user.Status, &user.SetupCompleted,
		&user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if companyID.Valid {
		user.CompanyID = &companyID.String
	}
	if roleID.Valid {
		user.RoleID = &roleID.Int64
	}

	return user, nil
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id)

	user, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by ID: %w", err)
	}
	return user, nil
}

// FindByProviderUID はIDプロバイダーのUIDでユーザーを検索する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByProviderUID(ctx context.Context, providerUID string) (*model.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE provider_uid = $1`, providerUID)

	user, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by provider UID: %w", err)
	}
	return user, nil
}

// FindByEmail はメールアドレスでユーザーを検索する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = $1`, email)

	user, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by email: %w", err)
	}
	return user, nil
}

// Create は企業なしのユーザーを作成する。
func (r *PostgresUserRepo) Create(ctx context.Context, user *model.User) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, provider_uid, email, full_name, status, setup_completed, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		user.ID, user.ProviderUID, user.Email, user.FullName,
		user.Status, user.SetupCompleted, user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateEmail
		}
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

// CreateWithCompany はユーザーと企業を同一トランザクションで作成する。
// 挿入順序はユーザー → 企業 → 紐付け更新。部分作成は観測されない。
func (r *PostgresUserRepo) CreateWithCompany(ctx context.Context, user *model.User, company *model.Company) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// ユーザーを作成（企業紐付けは後段の更新で行う）
	_, err = tx.ExecContext(ctx,
		`INSERT INTO users (id, provider_uid, email, full_name, status, setup_completed, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		user.ID, user.ProviderUID, user.Email, user.FullName,
		user.Status, false, user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateEmail
		}
		return fmt.Errorf("failed to insert user: %w", err)
	}

	// 企業を作成
	_, err = tx.ExecContext(ctx,
		`INSERT INTO companies (id, name, company_type_id, plan_id, owner_user_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		company.ID, company.Name, company.CompanyTypeID, company.PlanID,
		company.OwnerUserID, company.CreatedAt, company.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert company: %w", err)
	}

	// ユーザーに企業を紐付け、セットアップ完了にする
	_, err = tx.ExecContext(ctx,
		`UPDATE users SET company_id = $1, setup_completed = TRUE, updated_at = $2 WHERE id = $3`,
		company.ID, user.UpdatedAt, user.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to link company to user: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	user.CompanyID = &company.ID
	user.SetupCompleted = true
	return nil
}

// AttachCompany は既存ユーザーに企業を作成して紐付け、更新後のユーザーを返す。
func (r *PostgresUserRepo) AttachCompany(ctx context.Context, userID string, company *model.Company) (*model.User, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// 行ロックを取り、二重セットアップの競合を遮断する
	var companyID sql.NullString
	err = tx.QueryRowContext(ctx,
		`SELECT company_id FROM users WHERE id = $1 FOR UPDATE`,
		userID,
	).Scan(&companyID)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("user not found: %s", userID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock user for company attach: %w", err)
	}
	if companyID.Valid {
		return nil, ErrCompanyAttached
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO companies (id, name, company_type_id, plan_id, owner_user_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		company.ID, company.Name, company.CompanyTypeID, company.PlanID,
		company.OwnerUserID, company.CreatedAt, company.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			// owner_user_idの一意制約: 既にこのユーザーが所有する企業が存在する
			return nil, ErrCompanyAttached
		}
		return nil, fmt.Errorf("failed to insert company: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE users SET company_id = $1, setup_completed = TRUE, updated_at = now() WHERE id = $2`,
		company.ID, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to link company to user: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return r.FindByID(ctx, userID)
}

// isUniqueViolation はlib/pqの一意制約違反エラーかを判定する。
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation
}

// compile-time interface check
var _ UserRepository = (*PostgresUserRepo)(nil)
