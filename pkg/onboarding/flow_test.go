package onboarding

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"
)

// fakeIdentityProvider はIdentityProviderのテスト実装。
type fakeIdentityProvider struct {
	signUpFn    func(ctx context.Context, email, password, displayName string) (*Credential, error)
	signInFn    func(ctx context.Context, email, password string) (*Credential, error)
	federatedFn func(ctx context.Context) (*Credential, error)
	resumeFn    func(ctx context.Context) (*Credential, bool, error)
}

func (f *fakeIdentityProvider) SignUp(ctx context.Context, email, password, displayName string) (*Credential, error) {
	return f.signUpFn(ctx, email, password, displayName)
}

func (f *fakeIdentityProvider) SignIn(ctx context.Context, email, password string) (*Credential, error) {
	return f.signInFn(ctx, email, password)
}

func (f *fakeIdentityProvider) FederatedSignIn(ctx context.Context) (*Credential, error) {
	return f.federatedFn(ctx)
}

func (f *fakeIdentityProvider) ResumeFederated(ctx context.Context) (*Credential, bool, error) {
	return f.resumeFn(ctx)
}

var _ IdentityProvider = (*fakeIdentityProvider)(nil)

func passwordSignIn(idToken string) func(ctx context.Context, email, password string) (*Credential, error) {
	return func(ctx context.Context, email, password string) (*Credential, error) {
		return &Credential{
			IDToken: idToken,
			Account: Account{UID: "uid-1", Email: email},
		}, nil
	}
}

// flowBackend はフローが叩くバックエンドのハンドラを組み立てる。
func flowBackend(t *testing.T, hasCompany bool) *BackendClient {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/login-firebase", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"token":   "session-token",
			"usuario": profileBody(hasCompany),
		})
	})
	mux.HandleFunc("POST /api/auth/register", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"usuario":      profileBody(hasCompany),
			"firebase_uid": "uid-1",
		})
	})
	mux.HandleFunc("POST /api/auth/google-auth", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"token":             "session-token",
			"usuario":           profileBody(hasCompany),
			"needsCompanySetup": !hasCompany,
		})
	})
	mux.HandleFunc("POST /api/users/complete-company-setup", func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]any
		json.NewDecoder(r.Body).Decode(&payload)
		if payload["plan_id"] == float64(0) {
			t.Error("plan_id must be resolved before reaching the backend")
		}
		json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"usuario": profileBody(true),
		})
	})
	mux.HandleFunc("GET /api/plans", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(planListBody())
	})
	return newBackendServer(t, mux)
}

func newTestFlow(provider IdentityProvider, backend *BackendClient) (*Flow, *SessionStore) {
	sessions := NewSessionStore(NewMemoryStorage())
	return NewFlow(provider, backend, sessions, NewPlanCatalog(backend)), sessions
}

func TestLoginWithoutPlanStaysOnMarketingHome(t *testing.T) {
	provider := &fakeIdentityProvider{signInFn: passwordSignIn("assertion-1")}
	flow, sessions := newTestFlow(provider, flowBackend(t, false))

	result, err := flow.LoginWithEmail(context.Background(), "maria@tienda.mx", "secreto123")
	if err != nil {
		t.Fatalf("LoginWithEmail failed: %v", err)
	}
	if result.Destination != DestinationMarketingHome {
		t.Errorf("login without plan selection must stay on marketing home, got %v", result.Destination)
	}
	if sessions.ConsumeERPRedirect() {
		t.Error("exploration mode must not mark the ERP redirect")
	}
	if token, ok := sessions.Token(); !ok || token != "session-token" {
		t.Error("session not persisted after login")
	}
}

func TestLoginWithCompanyMarksRedirectEvenWithoutPlan(t *testing.T) {
	provider := &fakeIdentityProvider{signInFn: passwordSignIn("assertion-1")}
	flow, sessions := newTestFlow(provider, flowBackend(t, true))

	result, err := flow.LoginWithEmail(context.Background(), "maria@tienda.mx", "secreto123")
	if err != nil {
		t.Fatalf("LoginWithEmail failed: %v", err)
	}
	// フロー上の行き先はプラン未選択のためマーケティングホームのまま。
	if result.Destination != DestinationMarketingHome {
		t.Errorf("unexpected destination: %v", result.Destination)
	}
	// ただしセッション側は企業なし→ありの遷移としてERP転送を予約する。
	if !sessions.ConsumeERPRedirect() {
		t.Error("session with company must mark the ERP redirect on first save")
	}
	if sessions.ConsumeERPRedirect() {
		t.Error("redirect mark must be one-shot")
	}
}

func TestRegisterWithoutPlanStaysOnMarketingHome(t *testing.T) {
	provider := &fakeIdentityProvider{signInFn: passwordSignIn("assertion-1")}
	flow, _ := newTestFlow(provider, flowBackend(t, false))

	result, err := flow.RegisterWithEmail(context.Background(), RegisterForm{
		Email:    "maria@tienda.mx",
		Password: "secreto123",
		FullName: "María López",
	}, nil)
	if err != nil {
		t.Fatalf("RegisterWithEmail failed: %v", err)
	}
	if result.Destination != DestinationMarketingHome {
		t.Errorf("registration without plan must stay on marketing home, got %v", result.Destination)
	}
}

func TestLoginWithPlanAndCompanyGoesToERP(t *testing.T) {
	provider := &fakeIdentityProvider{signInFn: passwordSignIn("assertion-1")}
	flow, sessions := newTestFlow(provider, flowBackend(t, true))
	flow.SelectPlan("estandar")

	result, err := flow.LoginWithEmail(context.Background(), "maria@tienda.mx", "secreto123")
	if err != nil {
		t.Fatalf("LoginWithEmail failed: %v", err)
	}
	if result.Step != StepComplete || result.Destination != DestinationERP {
		t.Errorf("expected complete/ERP, got %v/%v", result.Step, result.Destination)
	}

	// 転送予約はワンショット。
	if !sessions.ConsumeERPRedirect() {
		t.Error("ERP redirect not marked")
	}
	if sessions.ConsumeERPRedirect() {
		t.Error("ERP redirect mark must be one-shot")
	}
}

func TestLoginWithPlanWithoutCompanyGoesToSetup(t *testing.T) {
	provider := &fakeIdentityProvider{signInFn: passwordSignIn("assertion-1")}
	flow, sessions := newTestFlow(provider, flowBackend(t, false))
	flow.SelectPlan("estandar")

	result, err := flow.LoginWithEmail(context.Background(), "maria@tienda.mx", "secreto123")
	if err != nil {
		t.Fatalf("LoginWithEmail failed: %v", err)
	}
	if result.Step != StepCompany || result.Destination != DestinationCompanySetup {
		t.Errorf("expected company/setup, got %v/%v", result.Step, result.Destination)
	}
	if sessions.ConsumeERPRedirect() {
		t.Error("redirect must not be marked before company setup")
	}
}

func TestLoginUnregisteredKeepsStep(t *testing.T) {
	provider := &fakeIdentityProvider{signInFn: passwordSignIn("assertion-1")}
	backend := newBackendServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{
			"message": "Usuario no registrado",
			"code":    "PROFILE_NOT_FOUND",
		})
	}))
	flow, sessions := newTestFlow(provider, backend)

	_, err := flow.LoginWithEmail(context.Background(), "maria@tienda.mx", "secreto123")
	if !errors.Is(err, ErrProfileNotFound) {
		t.Fatalf("expected ErrProfileNotFound, got %v", err)
	}
	if flow.Step() != StepIdentity {
		t.Errorf("failed login must not advance the step, got %v", flow.Step())
	}
	if _, ok := sessions.Token(); ok {
		t.Error("failed login must not persist a session")
	}
}

func TestLoginInvalidCredentialsKeepsStep(t *testing.T) {
	provider := &fakeIdentityProvider{
		signInFn: func(ctx context.Context, email, password string) (*Credential, error) {
			return nil, ErrInvalidCredentials
		},
	}
	flow, _ := newTestFlow(provider, flowBackend(t, true))

	if _, err := flow.LoginWithEmail(context.Background(), "maria@tienda.mx", "mala"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if flow.Step() != StepIdentity {
		t.Errorf("failed login must not advance the step, got %v", flow.Step())
	}
}

func TestRegisterWithPlanGoesToSetup(t *testing.T) {
	provider := &fakeIdentityProvider{signInFn: passwordSignIn("assertion-1")}
	flow, _ := newTestFlow(provider, flowBackend(t, false))
	flow.SelectPlan("estandar")

	result, err := flow.RegisterWithEmail(context.Background(), RegisterForm{
		Email:    "maria@tienda.mx",
		Password: "secreto123",
		FullName: "María López",
	}, nil)
	if err != nil {
		t.Fatalf("RegisterWithEmail failed: %v", err)
	}
	if result.Step != StepCompany || result.Destination != DestinationCompanySetup {
		t.Errorf("expected company/setup, got %v/%v", result.Step, result.Destination)
	}
}

func TestRegisterWithInlineCompanyGoesToERP(t *testing.T) {
	provider := &fakeIdentityProvider{signInFn: passwordSignIn("assertion-1")}
	flow, _ := newTestFlow(provider, flowBackend(t, true))

	result, err := flow.RegisterWithEmail(context.Background(), RegisterForm{
		Email:    "maria@tienda.mx",
		Password: "secreto123",
		FullName: "María López",
	}, &CompanyForm{Name: "Mi Tienda", CompanyTypeID: 1, PlanID: 2})
	if err != nil {
		t.Fatalf("RegisterWithEmail failed: %v", err)
	}
	if result.Step != StepComplete || result.Destination != DestinationERP {
		t.Errorf("expected complete/ERP, got %v/%v", result.Step, result.Destination)
	}
}

func TestRegisterValidatesBeforeNetwork(t *testing.T) {
	provider := &fakeIdentityProvider{
		signInFn: func(ctx context.Context, email, password string) (*Credential, error) {
			t.Error("provider must not be reached with invalid input")
			return nil, nil
		},
	}
	flow, _ := newTestFlow(provider, flowBackend(t, false))

	_, err := flow.RegisterWithEmail(context.Background(), RegisterForm{
		Email:    "maria@tienda.mx",
		Password: "corta",
		FullName: "María",
	}, nil)
	if !errors.Is(err, ErrPasswordTooShort) {
		t.Fatalf("expected ErrPasswordTooShort, got %v", err)
	}
	if flow.Step() != StepIdentity {
		t.Errorf("validation failure must not advance the step, got %v", flow.Step())
	}
}

func TestFederatedFirstLoginForcesCompanyStep(t *testing.T) {
	provider := &fakeIdentityProvider{
		federatedFn: func(ctx context.Context) (*Credential, error) {
			return &Credential{
				IDToken: "assertion-1",
				Account: Account{UID: "uid-1", IsNewUser: true},
			}, nil
		},
	}
	// バックエンドが古い照会結果で企業ありと答えても新規アカウントは
	// 必ず企業設定を通す。
	flow, _ := newTestFlow(provider, flowBackend(t, true))
	flow.SelectPlan("estandar")

	result, err := flow.LoginFederated(context.Background(), nil)
	if err != nil {
		t.Fatalf("LoginFederated failed: %v", err)
	}
	if result.Step != StepCompany || result.Destination != DestinationCompanySetup {
		t.Errorf("first federated login must go through company setup, got %v/%v", result.Step, result.Destination)
	}
}

func TestFederatedReturningUserGoesToERP(t *testing.T) {
	provider := &fakeIdentityProvider{
		federatedFn: func(ctx context.Context) (*Credential, error) {
			return &Credential{IDToken: "assertion-1", Account: Account{UID: "uid-1"}}, nil
		},
	}
	flow, _ := newTestFlow(provider, flowBackend(t, true))
	flow.SelectPlan("estandar")

	result, err := flow.LoginFederated(context.Background(), nil)
	if err != nil {
		t.Fatalf("LoginFederated failed: %v", err)
	}
	if result.Step != StepComplete || result.Destination != DestinationERP {
		t.Errorf("expected complete/ERP, got %v/%v", result.Step, result.Destination)
	}
}

func TestFederatedRedirectPending(t *testing.T) {
	provider := &fakeIdentityProvider{
		federatedFn: func(ctx context.Context) (*Credential, error) {
			return nil, ErrRedirectPending
		},
	}
	flow, _ := newTestFlow(provider, flowBackend(t, false))

	if _, err := flow.LoginFederated(context.Background(), nil); !errors.Is(err, ErrRedirectPending) {
		t.Fatalf("expected ErrRedirectPending, got %v", err)
	}
	if flow.Step() != StepIdentity {
		t.Errorf("pending redirect must not advance the step, got %v", flow.Step())
	}
}

func TestResumeRedirect(t *testing.T) {
	pending := true
	provider := &fakeIdentityProvider{
		resumeFn: func(ctx context.Context) (*Credential, bool, error) {
			if !pending {
				return nil, false, nil
			}
			pending = false
			return &Credential{IDToken: "assertion-1", Account: Account{UID: "uid-1"}}, true, nil
		},
	}
	flow, _ := newTestFlow(provider, flowBackend(t, true))
	flow.SelectPlan("estandar")

	result, ok, err := flow.ResumeRedirect(context.Background())
	if err != nil || !ok {
		t.Fatalf("ResumeRedirect failed: ok=%v err=%v", ok, err)
	}
	if result.Destination != DestinationERP {
		t.Errorf("expected ERP destination, got %v", result.Destination)
	}

	_, ok, err = flow.ResumeRedirect(context.Background())
	if err != nil {
		t.Fatalf("second ResumeRedirect failed: %v", err)
	}
	if ok {
		t.Error("consumed redirect must not resume again")
	}
}

func TestCompleteCompanyAdvancesToComplete(t *testing.T) {
	provider := &fakeIdentityProvider{signInFn: passwordSignIn("assertion-1")}
	flow, sessions := newTestFlow(provider, flowBackend(t, false))
	flow.SelectPlan("estandar")

	if _, err := flow.LoginWithEmail(context.Background(), "maria@tienda.mx", "secreto123"); err != nil {
		t.Fatalf("LoginWithEmail failed: %v", err)
	}

	result, err := flow.CompleteCompany(context.Background(), CompanyForm{
		Name:          "Mi Tienda",
		CompanyTypeID: 1,
		PlanID:        2,
	})
	if err != nil {
		t.Fatalf("CompleteCompany failed: %v", err)
	}
	if result.Step != StepComplete || result.Destination != DestinationERP {
		t.Errorf("expected complete/ERP, got %v/%v", result.Step, result.Destination)
	}

	profile, ok := sessions.Profile()
	if !ok || !profile.HasCompany {
		t.Error("stored profile not updated after company setup")
	}
	if profile.FullName != "María López" {
		t.Errorf("display fields lost after setup: %+v", profile)
	}
	if !sessions.ConsumeERPRedirect() {
		t.Error("ERP redirect not marked after setup")
	}
}

func TestCompleteCompanyResolvesSelectedPlan(t *testing.T) {
	provider := &fakeIdentityProvider{signInFn: passwordSignIn("assertion-1")}
	flow, _ := newTestFlow(provider, flowBackend(t, false))
	flow.SelectPlan("premium")

	if _, err := flow.LoginWithEmail(context.Background(), "maria@tienda.mx", "secreto123"); err != nil {
		t.Fatalf("LoginWithEmail failed: %v", err)
	}

	// PlanID未指定は事前選択のプランコードから解決される。
	if _, err := flow.CompleteCompany(context.Background(), CompanyForm{
		Name:          "Mi Tienda",
		CompanyTypeID: 1,
	}); err != nil {
		t.Fatalf("CompleteCompany failed: %v", err)
	}
}

func TestCompleteCompanyWithoutSession(t *testing.T) {
	provider := &fakeIdentityProvider{}
	flow, _ := newTestFlow(provider, flowBackend(t, false))

	if _, err := flow.CompleteCompany(context.Background(), CompanyForm{
		Name:          "Mi Tienda",
		CompanyTypeID: 1,
		PlanID:        2,
	}); err == nil {
		t.Error("expected error without an active session")
	}
	if flow.Step() != StepIdentity {
		t.Errorf("step advanced without a session, got %v", flow.Step())
	}
}

func TestFlowRejectsConcurrentOperations(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	provider := &fakeIdentityProvider{
		signInFn: func(ctx context.Context, email, password string) (*Credential, error) {
			once.Do(func() {
				close(started)
				<-release
			})
			return &Credential{IDToken: "assertion-1"}, nil
		},
	}
	flow, _ := newTestFlow(provider, flowBackend(t, true))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		flow.LoginWithEmail(context.Background(), "maria@tienda.mx", "secreto123")
	}()

	<-started
	if _, err := flow.CompleteCompany(context.Background(), CompanyForm{
		Name:          "Mi Tienda",
		CompanyTypeID: 1,
		PlanID:        2,
	}); !errors.Is(err, ErrFlowBusy) {
		t.Errorf("expected ErrFlowBusy, got %v", err)
	}

	close(release)
	wg.Wait()

	// 操作完了後は再び受け付ける。
	deadline := time.After(time.Second)
	for {
		if _, err := flow.LoginWithEmail(context.Background(), "maria@tienda.mx", "secreto123"); !errors.Is(err, ErrFlowBusy) {
			if err != nil {
				t.Fatalf("login after release failed: %v", err)
			}
			break
		}
		select {
		case <-deadline:
			t.Fatal("flow stayed busy after operation finished")
		default:
		}
	}
}
