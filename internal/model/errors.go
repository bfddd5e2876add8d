// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// Messageはフロントエンド（スペイン語UI）にそのまま表示されるため、
// ユーザー向け文言はスペイン語で保持する。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ（UI表示用）
	Category string // カテゴリ: auth, validation, provisioning, system
	Field    string // バリデーションエラーの対象フィールド（任意）
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeValidation           = "VALIDATION_ERROR"
	ErrCodeEmailInUse           = "EMAIL_IN_USE"
	ErrCodeInvalidCredentials   = "INVALID_CREDENTIALS"
	ErrCodeInvalidAssertion     = "INVALID_ASSERTION"
	ErrCodeProfileNotFound      = "PROFILE_NOT_FOUND"
	ErrCodeUserNotFound         = "USER_NOT_FOUND"
	ErrCodeCompanyAlreadyExists = "COMPANY_ALREADY_EXISTS"
	ErrCodePlanNotFound         = "PLAN_NOT_FOUND"
	ErrCodeCompanyTypeNotFound  = "COMPANY_TYPE_NOT_FOUND"
	ErrCodeProviderUnavailable  = "PROVIDER_UNAVAILABLE"
	ErrCodeUnauthorized         = "UNAUTHORIZED"
	ErrCodeInternal             = "INTERNAL_ERROR"
)

// NewValidationError はフィールド単位のバリデーションエラーを生成する。
func NewValidationError(field, message string) *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  message,
		Category: "validation",
		Field:    field,
	}
}

// NewEmailInUseError は登録済みメールアドレスの再登録エラーを生成する。
func NewEmailInUseError() *APIError {
	return &APIError{
		Code:     ErrCodeEmailInUse,
		Message:  "El correo electrónico ya está registrado.",
		Category: "auth",
	}
}

// NewInvalidCredentialsError は認証情報不一致エラーを生成する。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "Correo o contraseña incorrectos.",
		Category: "auth",
	}
}

// NewInvalidAssertionError はIDアサーション検証失敗エラーを生成する。
func NewInvalidAssertionError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidAssertion,
		Message:  "La sesión de identidad no es válida. Vuelve a iniciar sesión.",
		Category: "auth",
	}
}

// NewProfileNotFoundError はプロフィール未登録エラーを生成する。
// IDプロバイダーには存在するがバックエンド登録が未完了のアカウントを示す。
func NewProfileNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeProfileNotFound,
		Message:  "La cuenta no está registrada. Completa el registro primero.",
		Category: "auth",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "Usuario no encontrado.",
		Category: "auth",
	}
}

// NewCompanyAlreadyExistsError は企業の二重作成エラーを生成する。
// complete-company-setupは冪等ではなく、2回目の呼び出しは明示的に失敗させる。
func NewCompanyAlreadyExistsError() *APIError {
	return &APIError{
		Code:     ErrCodeCompanyAlreadyExists,
		Message:  "La cuenta ya tiene una empresa configurada.",
		Category: "provisioning",
	}
}

// NewPlanNotFoundError は存在しないプランが指定された場合のエラーを生成する。
func NewPlanNotFoundError(planID int64) *APIError {
	return &APIError{
		Code:     ErrCodePlanNotFound,
		Message:  fmt.Sprintf("El plan seleccionado no existe: %d", planID),
		Category: "validation",
		Field:    "plan_id",
	}
}

// NewPlanCodeNotFoundError は存在しないプランコードが指定された場合のエラーを生成する。
func NewPlanCodeNotFoundError(code string) *APIError {
	return &APIError{
		Code:     ErrCodePlanNotFound,
		Message:  fmt.Sprintf("El plan seleccionado no existe: %s", code),
		Category: "validation",
		Field:    "plan_codigo",
	}
}

// NewCompanyTypeNotFoundError は存在しない業種が指定された場合のエラーを生成する。
func NewCompanyTypeNotFoundError(typeID int64) *APIError {
	return &APIError{
		Code:     ErrCodeCompanyTypeNotFound,
		Message:  fmt.Sprintf("El tipo de empresa seleccionado no existe: %d", typeID),
		Category: "validation",
		Field:    "tipo_empresa_id",
	}
}

// NewProviderUnavailableError はIDプロバイダー到達不能エラーを生成する。
func NewProviderUnavailableError() *APIError {
	return &APIError{
		Code:     ErrCodeProviderUnavailable,
		Message:  "El servicio de identidad no está disponible. Inténtalo de nuevo más tarde.",
		Category: "system",
	}
}

// NewUnauthorizedError は未認証エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "No autorizado. Inicia sesión de nuevo.",
		Category: "auth",
	}
}

// NewInternalError は内部エラーを生成する。詳細はログにのみ残す。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "Ocurrió un error interno. Inténtalo de nuevo más tarde.",
		Category: "system",
	}
}
