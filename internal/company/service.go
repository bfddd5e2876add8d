// Package company は企業プロビジョニングと参照データの提供を担う。
package company

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/negocio/internal/model"
	"github.com/hitoshi/negocio/internal/repository"
	"github.com/hitoshi/negocio/internal/security"
)

// Service は企業セットアップ操作を提供する。
type Service struct {
	users     repository.UserRepository
	plans     repository.PlanRepository
	types     repository.CompanyTypeRepository
	sanitizer security.TextSanitizerService
	logger    *slog.Logger
}

// NewService はServiceを生成する。
func NewService(
	users repository.UserRepository,
	plans repository.PlanRepository,
	types repository.CompanyTypeRepository,
	sanitizer security.TextSanitizerService,
	logger *slog.Logger,
) *Service {
	return &Service{
		users:     users,
		plans:     plans,
		types:     types,
		sanitizer: sanitizer,
		logger:    logger,
	}
}

// CompleteSetup は認証済みユーザーの企業を作成して紐付ける。
// この操作は冪等ではない。既に企業が紐付いているユーザーへの
// 再実行はCOMPANY_ALREADY_EXISTSで明示的に失敗する。
func (s *Service) CompleteSetup(ctx context.Context, userID string, payload *model.CompanyPayload) (*model.User, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		s.logger.Error("failed to load user for company setup", "user_id", userID, "error", err)
		return nil, model.NewInternalError()
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}
	if user.HasCompany() {
		return nil, model.NewCompanyAlreadyExistsError()
	}

	payload.Name = s.sanitizer.SanitizeName(payload.Name)
	if apiErr := payload.Validate(); apiErr != nil {
		return nil, apiErr
	}

	// プランはID指定とスラッグコード指定のどちらも受け付ける
	var plan *model.Plan
	if payload.PlanID > 0 {
		plan, err = s.plans.FindByID(ctx, payload.PlanID)
	} else {
		plan, err = s.plans.FindByCode(ctx, payload.PlanCode)
	}
	if err != nil {
		s.logger.Error("failed to look up plan",
			"plan_id", payload.PlanID, "plan_code", payload.PlanCode, "error", err)
		return nil, model.NewInternalError()
	}
	if plan == nil {
		if payload.PlanID > 0 {
			return nil, model.NewPlanNotFoundError(payload.PlanID)
		}
		return nil, model.NewPlanCodeNotFoundError(payload.PlanCode)
	}
	payload.PlanID = plan.ID

	companyType, err := s.types.FindByID(ctx, payload.CompanyTypeID)
	if err != nil {
		s.logger.Error("failed to look up company type", "type_id", payload.CompanyTypeID, "error", err)
		return nil, model.NewInternalError()
	}
	if companyType == nil {
		return nil, model.NewCompanyTypeNotFoundError(payload.CompanyTypeID)
	}

	now := time.Now()
	company := &model.Company{
		ID:            uuid.New().String(),
		Name:          payload.Name,
		CompanyTypeID: payload.CompanyTypeID,
		PlanID:        payload.PlanID,
		OwnerUserID:   user.ID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	updated, err := s.users.AttachCompany(ctx, user.ID, company)
	if err != nil {
		// FindByIDの後に並行リクエストが先に企業を作成したケース。
		// 行ロックで直列化されるため、後着はここに到達する。
		if errors.Is(err, repository.ErrCompanyAttached) {
			return nil, model.NewCompanyAlreadyExistsError()
		}
		s.logger.Error("failed to attach company", "user_id", user.ID, "error", err)
		return nil, model.NewInternalError()
	}

	s.logger.Info("company setup completed",
		"user_id", updated.ID, "company_id", company.ID, "plan_id", company.PlanID)
	return updated, nil
}

// HasCompany は指定アカウントに企業が紐付いているかを返す。
// accountIDはIDプロバイダーのUID、または内部ユーザーIDのどちらでもよい。
func (s *Service) HasCompany(ctx context.Context, accountID string) (bool, error) {
	user, err := s.users.FindByProviderUID(ctx, accountID)
	if err != nil {
		s.logger.Error("failed to check company", "account_id", accountID, "error", err)
		return false, model.NewInternalError()
	}
	if user == nil {
		// 内部IDはUUID列。形式外の文字列をそのまま問い合わせると
		// DB側で型エラーになるため、未登録アカウントとして扱う。
		if _, parseErr := uuid.Parse(accountID); parseErr != nil {
			return false, model.NewUserNotFoundError()
		}
		user, err = s.users.FindByID(ctx, accountID)
		if err != nil {
			s.logger.Error("failed to check company", "account_id", accountID, "error", err)
			return false, model.NewInternalError()
		}
	}
	if user == nil {
		return false, model.NewUserNotFoundError()
	}
	return user.HasCompany(), nil
}

// Plans は全ての料金プランを返す。
func (s *Service) Plans(ctx context.Context) ([]*model.Plan, error) {
	plans, err := s.plans.List(ctx)
	if err != nil {
		s.logger.Error("failed to list plans", "error", err)
		return nil, model.NewInternalError()
	}
	return plans, nil
}

// CompanyTypes は全ての業種を返す。
func (s *Service) CompanyTypes(ctx context.Context) ([]*model.CompanyType, error) {
	types, err := s.types.List(ctx)
	if err != nil {
		s.logger.Error("failed to list company types", "error", err)
		return nil, model.NewInternalError()
	}
	return types, nil
}
