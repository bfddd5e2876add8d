package repository

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestPostgresPlanRepo_List(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("SELECT id, code, name, price FROM plans ORDER BY id").
		WillReturnRows(sqlmock.NewRows([]string{"id", "code", "name", "price"}).
			AddRow(1, "basico", "Plan Básico", 0).
			AddRow(2, "estandar", "Plan Estándar", 2900).
			AddRow(3, "premium", "Plan Premium", 5900))

	repo := NewPostgresPlanRepo(db)
	plans, err := repo.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(plans) != 3 {
		t.Fatalf("len(plans) = %d, want 3", len(plans))
	}
	if plans[1].Code != "estandar" || plans[1].ID != 2 {
		t.Errorf("plans[1] = %+v, want estandar/2", plans[1])
	}
}

func TestPostgresPlanRepo_FindByCode_Found(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("SELECT id, code, name, price FROM plans WHERE code").
		WithArgs("estandar").
		WillReturnRows(sqlmock.NewRows([]string{"id", "code", "name", "price"}).
			AddRow(2, "estandar", "Plan Estándar", 2900))

	repo := NewPostgresPlanRepo(db)
	plan, err := repo.FindByCode(context.Background(), "estandar")
	if err != nil {
		t.Fatalf("FindByCode: %v", err)
	}
	if plan == nil || plan.ID != 2 {
		t.Fatalf("plan = %+v, want id 2", plan)
	}
}

func TestPostgresPlanRepo_FindByID_NotFound_ReturnsNil(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("SELECT id, code, name, price FROM plans WHERE id").
		WithArgs(int64(99)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	repo := NewPostgresPlanRepo(db)
	plan, err := repo.FindByID(context.Background(), 99)
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if plan != nil {
		t.Errorf("expected nil plan, got %+v", plan)
	}
}

func TestPostgresCompanyTypeRepo_List(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("SELECT id, code, name FROM company_types ORDER BY id").
		WillReturnRows(sqlmock.NewRows([]string{"id", "code", "name"}).
			AddRow(1, "servicios", "Servicios").
			AddRow(2, "comercio", "Comercio"))

	repo := NewPostgresCompanyTypeRepo(db)
	types, err := repo.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(types) != 2 {
		t.Fatalf("len(types) = %d, want 2", len(types))
	}
	if types[1].Code != "comercio" {
		t.Errorf("types[1].Code = %q, want %q", types[1].Code, "comercio")
	}
}

func TestPostgresCompanyTypeRepo_FindByID_NotFound_ReturnsNil(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("SELECT id, code, name FROM company_types WHERE id").
		WithArgs(int64(42)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	repo := NewPostgresCompanyTypeRepo(db)
	ct, err := repo.FindByID(context.Background(), 42)
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if ct != nil {
		t.Errorf("expected nil company type, got %+v", ct)
	}
}

func TestPostgresReferenceRepos_ImplementInterfaces(t *testing.T) {
	var _ PlanRepository = (*PostgresPlanRepo)(nil)
	var _ CompanyTypeRepository = (*PostgresCompanyTypeRepo)(nil)
}
