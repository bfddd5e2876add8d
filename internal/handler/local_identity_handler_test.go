package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/hitoshi/negocio/internal/identity"
)

func newLocalIdentityHandler(t *testing.T) (*LocalIdentityHandler, *identity.LocalProvider, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	provider := identity.NewLocalProvider(db, "local-secret-for-tests")
	return NewLocalIdentityHandler(provider), provider, mock
}

// TestLocalSignUp_IssuesNewUserAssertion はサインアップ成功時に
// new_user付きアサーションが返ることを検証する。
func TestLocalSignUp_IssuesNewUserAssertion(t *testing.T) {
	h, provider, mock := newLocalIdentityHandler(t)

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("ana@tienda.mx").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectExec("INSERT INTO local_credentials").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT email, display_name FROM local_credentials").
		WillReturnRows(sqlmock.NewRows([]string{"email", "display_name"}).
			AddRow("ana@tienda.mx", "Ana"))

	req := httptest.NewRequest(http.MethodPost, "/local-identity/signup",
		strings.NewReader(`{"email":"ana@tienda.mx","password":"secreto1","displayName":"Ana"}`))
	w := httptest.NewRecorder()
	h.SignUp(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}
	body := decodeBody(t, w)
	assertion, _ := body["idToken"].(string)
	if assertion == "" {
		t.Fatal("expected idToken in response")
	}

	ident, err := provider.VerifyAssertion(context.Background(), assertion)
	if err != nil {
		t.Fatalf("VerifyAssertion: %v", err)
	}
	if ident.Email != "ana@tienda.mx" || !ident.IsNewUser {
		t.Errorf("identity = %+v, want new user ana@tienda.mx", ident)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestLocalSignUp_DuplicateEmail(t *testing.T) {
	h, _, mock := newLocalIdentityHandler(t)

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("ana@tienda.mx").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	req := httptest.NewRequest(http.MethodPost, "/local-identity/signup",
		strings.NewReader(`{"email":"ana@tienda.mx","password":"secreto1"}`))
	w := httptest.NewRecorder()
	h.SignUp(w, req)

	if w.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409: %s", w.Code, w.Body.String())
	}
	body := decodeBody(t, w)
	if body["code"] != "EMAIL_IN_USE" {
		t.Errorf("unexpected code: %v", body["code"])
	}
}

func TestLocalSignUp_MissingFields(t *testing.T) {
	h, _, _ := newLocalIdentityHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/local-identity/signup",
		strings.NewReader(`{"email":"ana@tienda.mx"}`))
	w := httptest.NewRecorder()
	h.SignUp(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400: %s", w.Code, w.Body.String())
	}
}
