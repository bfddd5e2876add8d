package onboarding

import (
	"context"
	"errors"
	"strings"
	"sync"
)

// Step は登録フローの現在地を表す。
type Step int

const (
	// StepIdentity は認証情報の入力段階。
	StepIdentity Step = iota
	// StepCompany は企業設定の入力段階。プラン選択済みの場合のみ通る。
	StepCompany
	// StepComplete はフロー完了。
	StepComplete
)

// String はステップ名を返す。
func (s Step) String() string {
	switch s {
	case StepIdentity:
		return "identity"
	case StepCompany:
		return "company"
	case StepComplete:
		return "complete"
	default:
		return "unknown"
	}
}

// Destination はフロー完了後の遷移先を表す。
type Destination int

const (
	// DestinationNone は遷移なし。フロー継続中。
	DestinationNone Destination = iota
	// DestinationMarketingHome はマーケティングサイトのトップ。探索モード。
	DestinationMarketingHome
	// DestinationCompanySetup は企業設定画面。
	DestinationCompanySetup
	// DestinationERP はERP本体。
	DestinationERP
)

// ErrFlowBusy は進行中の操作がある間の再入を表す。
var ErrFlowBusy = errors.New("another flow operation is in progress")

// FlowResult はフロー操作の結果を表す。
type FlowResult struct {
	Step        Step
	Destination Destination
	Session     *Session
}

// Flow は登録とログインの進行を管理する状態機械。
// 操作は一度に一つだけ許可され、失敗した操作はステップを進めない。
//
// 認証成功後の遷移先は次の表で決まる。
//
//	プラン未選択                    : マーケティングサイトに留まる
//	プラン選択済み・企業未設定       : 企業設定画面
//	プラン選択済み・企業設定済み     : ERP本体
type Flow struct {
	provider IdentityProvider
	backend  *BackendClient
	sessions *SessionStore
	plans    *PlanCatalog

	mu           sync.Mutex
	step         Step
	inFlight     bool
	selectedPlan string
}

// NewFlow はFlowを生成する。
func NewFlow(provider IdentityProvider, backend *BackendClient, sessions *SessionStore, plans *PlanCatalog) *Flow {
	return &Flow{
		provider: provider,
		backend:  backend,
		sessions: sessions,
		plans:    plans,
		step:     StepIdentity,
	}
}

// Step は現在のステップを返す。
func (f *Flow) Step() Step {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.step
}

// SelectPlan は契約プランの事前選択を記録する。空文字列で選択を解除する。
func (f *Flow) SelectPlan(code string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.selectedPlan = strings.ToLower(strings.TrimSpace(code))
}

// SelectedPlan は事前選択されたプランコードを返す。
func (f *Flow) SelectedPlan() (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.selectedPlan, f.selectedPlan != ""
}

// begin は操作の排他を取る。進行中の操作があればErrFlowBusy。
func (f *Flow) begin() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.inFlight {
		return ErrFlowBusy
	}
	f.inFlight = true
	return nil
}

func (f *Flow) finish(step Step, ok bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inFlight = false
	if ok {
		f.step = step
	}
}

// RegisterWithEmail はメールとパスワードで新規登録する。
// companyが非nilなら登録と同時に企業を作成する。
func (f *Flow) RegisterWithEmail(ctx context.Context, form RegisterForm, company *CompanyForm) (*FlowResult, error) {
	if err := f.begin(); err != nil {
		return nil, err
	}

	if err := form.Validate(); err != nil {
		f.finish(0, false)
		return nil, err
	}
	if company != nil {
		if err := company.Validate(); err != nil {
			f.finish(0, false)
			return nil, err
		}
	}

	if _, err := f.backend.RegisterAccount(ctx, form, company); err != nil {
		f.finish(0, false)
		return nil, err
	}

	cred, err := f.provider.SignIn(ctx, form.Email, form.Password)
	if err != nil {
		f.finish(0, false)
		return nil, err
	}

	session, err := f.backend.ExchangeSession(ctx, cred.IDToken)
	if err != nil {
		f.finish(0, false)
		return nil, err
	}
	f.sessions.SaveSession(session)

	return f.settle(session, f.planChosen() || company != nil), nil
}

// LoginWithEmail はメールとパスワードでログインする。
// プロフィール未登録のアカウントはErrProfileNotFoundを返し、呼び出し側は
// 登録画面へ誘導する。
func (f *Flow) LoginWithEmail(ctx context.Context, email, password string) (*FlowResult, error) {
	if err := f.begin(); err != nil {
		return nil, err
	}

	cred, err := f.provider.SignIn(ctx, email, password)
	if err != nil {
		f.finish(0, false)
		return nil, err
	}

	session, err := f.backend.ExchangeSession(ctx, cred.IDToken)
	if err != nil {
		f.finish(0, false)
		return nil, err
	}
	f.sessions.SaveSession(session)

	return f.settle(session, f.planChosen()), nil
}

// LoginFederated は連携IDプロバイダーでログインする。初回ログイン時は
// バックエンドにプロフィールが暗黙に作成される。ポップアップが開けない
// 環境ではErrRedirectPendingを返し、復帰後にResumeRedirectを呼ぶ。
func (f *Flow) LoginFederated(ctx context.Context, company *CompanyForm) (*FlowResult, error) {
	if err := f.begin(); err != nil {
		return nil, err
	}

	cred, err := f.provider.FederatedSignIn(ctx)
	if err != nil {
		f.finish(0, false)
		return nil, err
	}

	return f.federatedExchange(ctx, cred, company)
}

// ResumeRedirect はリダイレクト方式の連携ログインから復帰する。
// 復帰すべき結果が無ければ(nil, false, nil)を返す。
func (f *Flow) ResumeRedirect(ctx context.Context) (*FlowResult, bool, error) {
	if err := f.begin(); err != nil {
		return nil, false, err
	}

	cred, ok, err := f.provider.ResumeFederated(ctx)
	if err != nil {
		f.finish(0, false)
		return nil, false, err
	}
	if !ok {
		f.finish(0, false)
		return nil, false, nil
	}

	result, err := f.federatedExchange(ctx, cred, nil)
	if err != nil {
		return nil, false, err
	}
	return result, true, nil
}

func (f *Flow) federatedExchange(ctx context.Context, cred *Credential, company *CompanyForm) (*FlowResult, error) {
	if company != nil {
		if err := company.Validate(); err != nil {
			f.finish(0, false)
			return nil, err
		}
	}

	session, err := f.backend.FederatedExchange(ctx, cred.IDToken, company)
	if err != nil {
		f.finish(0, false)
		return nil, err
	}

	// 連携の初回ログインはプロフィール作成の遅延に関わらず企業未設定として
	// 扱う。古い照会結果でERPへ転送してしまうことを防ぐ。
	if cred.Account.IsNewUser && company == nil {
		session.NeedsCompanySetup = true
		session.Profile.HasCompany = false
	}
	f.sessions.SaveSession(session)

	return f.settle(session, f.planChosen() || company != nil), nil
}

// CompleteCompany は企業設定ステップを完了する。form.PlanIDが未指定の
// 場合は事前選択されたプランコードを参照データで解決する。
func (f *Flow) CompleteCompany(ctx context.Context, form CompanyForm) (*FlowResult, error) {
	if err := f.begin(); err != nil {
		return nil, err
	}

	token, ok := f.sessions.Token()
	if !ok {
		f.finish(0, false)
		return nil, errors.New("no active session")
	}

	if form.PlanID == 0 {
		code, ok := f.SelectedPlan()
		if !ok {
			code = StandardPlanCode
		}
		planID, err := f.plans.Resolve(ctx, code)
		if err != nil {
			f.finish(0, false)
			return nil, err
		}
		form.PlanID = planID
	}

	profile, err := f.backend.CompleteCompanySetup(ctx, token, form)
	if err != nil {
		f.finish(0, false)
		return nil, err
	}
	f.sessions.UpdateProfile(*profile)
	f.sessions.MarkERPRedirect()

	f.finish(StepComplete, true)
	return &FlowResult{Step: StepComplete, Destination: DestinationERP}, nil
}

func (f *Flow) planChosen() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.selectedPlan != ""
}

// settle はセッション確立後のステップと遷移先を決定する。
func (f *Flow) settle(session *Session, planChosen bool) *FlowResult {
	if !planChosen {
		f.finish(StepComplete, true)
		return &FlowResult{
			Step:        StepComplete,
			Destination: DestinationMarketingHome,
			Session:     session,
		}
	}

	if session.NeedsCompanySetup {
		f.finish(StepCompany, true)
		return &FlowResult{
			Step:        StepCompany,
			Destination: DestinationCompanySetup,
			Session:     session,
		}
	}

	f.sessions.MarkERPRedirect()
	f.finish(StepComplete, true)
	return &FlowResult{
		Step:        StepComplete,
		Destination: DestinationERP,
		Session:     session,
	}
}
