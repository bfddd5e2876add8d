package auth

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/negocio/internal/identity"
	"github.com/hitoshi/negocio/internal/model"
	"github.com/hitoshi/negocio/internal/repository"
	"github.com/hitoshi/negocio/internal/security"
)

// メールアドレスの形式チェック。厳密なRFC準拠ではなく、
// 明らかな入力ミスを弾くことが目的（真の検証はプロバイダー側）。
var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

const minPasswordLength = 6

// Service は認証フローのオーケストレーションを担う。
// アサーション検証、プロフィールの検索・作成、セッション発行を行い、
// HTTPハンドラーからはこのサービスだけを呼び出す。
type Service struct {
	provider  identity.Provider
	users     repository.UserRepository
	plans     repository.PlanRepository
	types     repository.CompanyTypeRepository
	tokens    *TokenManager
	sanitizer security.TextSanitizerService
	logger    *slog.Logger
}

// NewService はServiceを生成する。
func NewService(
	provider identity.Provider,
	users repository.UserRepository,
	plans repository.PlanRepository,
	types repository.CompanyTypeRepository,
	tokens *TokenManager,
	sanitizer security.TextSanitizerService,
	logger *slog.Logger,
) *Service {
	return &Service{
		provider:  provider,
		users:     users,
		plans:     plans,
		types:     types,
		tokens:    tokens,
		sanitizer: sanitizer,
		logger:    logger,
	}
}

// SessionResult はセッション交換の結果を表す。
type SessionResult struct {
	Token string
	User  *model.User
	// NeedsCompanySetup は企業セットアップ画面への誘導が必要かを示す。
	// プロバイダー側で新規作成されたアカウント、または企業未紐付けの
	// プロフィールの場合にtrueになる。
	NeedsCompanySetup bool
}

// ExchangeAssertion はメール・パスワード認証のIDアサーションを
// アプリケーションセッションに引き換える。
//
// プロフィールが存在しない場合はPROFILE_NOT_FOUNDを返す。
// このパスでは暗黙のプロフィール作成は行わない。プロバイダーにだけ
// アカウントがある状態は登録フローの中断を意味し、呼び出し側は
// ユーザーを登録画面へ誘導する。
func (s *Service) ExchangeAssertion(ctx context.Context, assertion string) (*SessionResult, error) {
	info, err := s.provider.VerifyAssertion(ctx, assertion)
	if err != nil {
		return nil, s.mapProviderError(err)
	}

	user, err := s.users.FindByProviderUID(ctx, info.UID)
	if err != nil {
		s.logger.Error("failed to look up profile", "provider_uid", info.UID, "error", err)
		return nil, model.NewInternalError()
	}
	if user == nil {
		s.logger.Warn("session exchange for unregistered account", "provider_uid", info.UID)
		return nil, model.NewProfileNotFoundError()
	}

	token, err := s.tokens.Issue(user.ID)
	if err != nil {
		s.logger.Error("failed to issue session token", "user_id", user.ID, "error", err)
		return nil, model.NewInternalError()
	}

	s.logger.Info("session exchanged", "user_id", user.ID, "has_company", user.HasCompany())
	return &SessionResult{
		Token:             token,
		User:              user,
		NeedsCompanySetup: !user.HasCompany(),
	}, nil
}

// RegisterInput は登録操作の入力を表す。
type RegisterInput struct {
	Email    string
	Password string
	FullName string
	// Company が非nilの場合、プロフィールと企業を同時に作成する。
	Company *model.CompanyPayload
}

// RegisterResult は登録操作の結果を表す。
type RegisterResult struct {
	User        *model.User
	ProviderUID string
}

// Register は新規アカウントを登録する。
// プロバイダー側のアカウント作成とプロフィール作成（企業指定時は
// 企業作成も含む）を順に実行する。DB側の作成は単一トランザクションで
// 行い、部分的なプロフィールが観測されることはない。
func (s *Service) Register(ctx context.Context, input RegisterInput) (*RegisterResult, error) {
	if apiErr := s.validateRegisterInput(&input); apiErr != nil {
		return nil, apiErr
	}

	if input.Company != nil {
		if apiErr := s.verifyCompanyReferences(ctx, input.Company); apiErr != nil {
			return nil, apiErr
		}
	}

	// DB上の重複を先に確認してプロバイダー側の孤児アカウントを減らす。
	// 競合時の最終防衛線はリポジトリの一意制約。
	existing, err := s.users.FindByEmail(ctx, input.Email)
	if err != nil {
		s.logger.Error("failed to check existing email", "error", err)
		return nil, model.NewInternalError()
	}
	if existing != nil {
		return nil, model.NewEmailInUseError()
	}

	providerUID, err := s.provider.CreateAccount(ctx, input.Email, input.Password, input.FullName)
	if err != nil {
		return nil, s.mapProviderError(err)
	}

	now := time.Now()
	user := &model.User{
		ID:          uuid.New().String(),
		ProviderUID: providerUID,
		Email:       input.Email,
		FullName:    input.FullName,
		Status:      model.UserStatusActive,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if input.Company != nil {
		company := s.buildCompany(input.Company, user.ID)
		err = s.users.CreateWithCompany(ctx, user, company)
	} else {
		err = s.users.Create(ctx, user)
	}
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, model.NewEmailInUseError()
		}
		// プロバイダー側のアカウントは残る。次回ログイン時に
		// PROFILE_NOT_FOUND経由で登録のやり直しを促す。
		s.logger.Error("failed to create profile after provider account",
			"provider_uid", providerUID, "error", err)
		return nil, model.NewInternalError()
	}

	s.logger.Info("account registered",
		"user_id", user.ID, "with_company", input.Company != nil)
	return &RegisterResult{User: user, ProviderUID: providerUID}, nil
}

// FederatedAuth は連携ログイン（Google等）のIDアサーションを処理する。
// プロフィールが存在しない場合は暗黙に作成する。Companyが指定され、
// かつユーザーに企業が未紐付けの場合はその場で企業も作成する。
func (s *Service) FederatedAuth(ctx context.Context, assertion string, payload *model.CompanyPayload) (*SessionResult, error) {
	info, err := s.provider.VerifyAssertion(ctx, assertion)
	if err != nil {
		return nil, s.mapProviderError(err)
	}
	if info.Email == "" {
		s.logger.Warn("federated assertion without email", "provider_uid", info.UID)
		return nil, model.NewInvalidAssertionError()
	}

	if payload != nil {
		if apiErr := payload.Validate(); apiErr != nil {
			return nil, apiErr
		}
		if apiErr := s.verifyCompanyReferences(ctx, payload); apiErr != nil {
			return nil, apiErr
		}
	}

	user, err := s.users.FindByProviderUID(ctx, info.UID)
	if err != nil {
		s.logger.Error("failed to look up profile", "provider_uid", info.UID, "error", err)
		return nil, model.NewInternalError()
	}

	if user == nil {
		user, err = s.createFederatedProfile(ctx, info, payload)
		if err != nil {
			return nil, err
		}
	} else if payload != nil && !user.HasCompany() {
		company := s.buildCompany(payload, user.ID)
		user, err = s.users.AttachCompany(ctx, user.ID, company)
		if err != nil {
			if errors.Is(err, repository.ErrCompanyAttached) {
				return nil, model.NewCompanyAlreadyExistsError()
			}
			s.logger.Error("failed to attach company on federated login",
				"error", err)
			return nil, model.NewInternalError()
		}
	}

	token, err := s.tokens.Issue(user.ID)
	if err != nil {
		s.logger.Error("failed to issue session token", "user_id", user.ID, "error", err)
		return nil, model.NewInternalError()
	}

	// 企業の紐付けが完了するまではセットアップ画面へ誘導する。
	// 新規作成直後かどうかに関わらず、判定は保存済みプロフィールが基準。
	needsSetup := !user.HasCompany()

	s.logger.Info("federated session issued",
		"user_id", user.ID, "new_user", info.IsNewUser, "needs_setup", needsSetup)
	return &SessionResult{Token: token, User: user, NeedsCompanySetup: needsSetup}, nil
}

// CurrentUser はセッションの持ち主のプロフィールを返す。
func (s *Service) CurrentUser(ctx context.Context, userID string) (*model.User, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		s.logger.Error("failed to load current user", "user_id", userID, "error", err)
		return nil, model.NewInternalError()
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}
	return user, nil
}

// Tokens はセッショントークンマネージャーを返す。ミドルウェアが使用する。
func (s *Service) Tokens() *TokenManager {
	return s.tokens
}

func (s *Service) validateRegisterInput(input *RegisterInput) *model.APIError {
	input.Email = strings.TrimSpace(strings.ToLower(input.Email))
	input.FullName = s.sanitizer.SanitizeName(input.FullName)

	if !emailPattern.MatchString(input.Email) {
		return model.NewValidationError("email", "El correo electrónico no es válido.")
	}
	if len(input.Password) < minPasswordLength {
		return model.NewValidationError("password", "La contraseña debe tener al menos 6 caracteres.")
	}
	if input.FullName == "" {
		return model.NewValidationError("nombre_completo", "El nombre completo es obligatorio.")
	}
	if input.Company != nil {
		input.Company.Name = s.sanitizer.SanitizeName(input.Company.Name)
		if apiErr := input.Company.Validate(); apiErr != nil {
			return apiErr
		}
	}
	return nil
}

// verifyCompanyReferences はプランと業種の参照が実在することを確認する。
// プランはID指定とスラッグコード指定（plan_codigo）のどちらも受け付け、
// コード指定の場合は解決したIDをpayloadに書き戻す。
func (s *Service) verifyCompanyReferences(ctx context.Context, payload *model.CompanyPayload) *model.APIError {
	var plan *model.Plan
	var err error
	if payload.PlanID > 0 {
		plan, err = s.plans.FindByID(ctx, payload.PlanID)
	} else {
		plan, err = s.plans.FindByCode(ctx, payload.PlanCode)
	}
	if err != nil {
		s.logger.Error("failed to look up plan",
			"plan_id", payload.PlanID, "plan_code", payload.PlanCode, "error", err)
		return model.NewInternalError()
	}
	if plan == nil {
		if payload.PlanID > 0 {
			return model.NewPlanNotFoundError(payload.PlanID)
		}
		return model.NewPlanCodeNotFoundError(payload.PlanCode)
	}
	payload.PlanID = plan.ID

	companyType, err := s.types.FindByID(ctx, payload.CompanyTypeID)
	if err != nil {
		s.logger.Error("failed to look up company type", "type_id", payload.CompanyTypeID, "error", err)
		return model.NewInternalError()
	}
	if companyType == nil {
		return model.NewCompanyTypeNotFoundError(payload.CompanyTypeID)
	}
	return nil
}

func (s *Service) buildCompany(payload *model.CompanyPayload, ownerID string) *model.Company {
	now := time.Now()
	return &model.Company{
		ID:            uuid.New().String(),
		Name:          s.sanitizer.SanitizeName(payload.Name),
		CompanyTypeID: payload.CompanyTypeID,
		PlanID:        payload.PlanID,
		OwnerUserID:   ownerID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func (s *Service) createFederatedProfile(ctx context.Context, info *identity.Identity, payload *model.CompanyPayload) (*model.User, error) {
	name := s.sanitizer.SanitizeName(info.Name)
	if name == "" {
		name = info.Email
	}
	now := time.Now()
	user := &model.User{
		ID:          uuid.New().String(),
		ProviderUID: info.UID,
		Email:       strings.ToLower(info.Email),
		FullName:    name,
		Status:      model.UserStatusActive,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	var err error
	if payload != nil {
		err = s.users.CreateWithCompany(ctx, user, s.buildCompany(payload, user.ID))
	} else {
		err = s.users.Create(ctx, user)
	}
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, model.NewEmailInUseError()
		}
		s.logger.Error("failed to create federated profile",
			"provider_uid", info.UID, "error", err)
		return nil, model.NewInternalError()
	}

	s.logger.Info("federated profile created",
		"user_id", user.ID, "with_company", payload != nil)
	return user, nil
}

// mapProviderError はプロバイダー層のエラーをAPIエラーに変換する。
func (s *Service) mapProviderError(err error) *model.APIError {
	switch {
	case errors.Is(err, identity.ErrAssertionInvalid):
		return model.NewInvalidAssertionError()
	case errors.Is(err, identity.ErrEmailExists):
		return model.NewEmailInUseError()
	case errors.Is(err, identity.ErrInvalidCredentials):
		return model.NewInvalidCredentialsError()
	case errors.Is(err, identity.ErrUnavailable):
		s.logger.Error("identity provider unavailable", "error", err)
		return model.NewProviderUnavailableError()
	default:
		s.logger.Error("unexpected identity provider error", "error", err)
		return model.NewInternalError()
	}
}
