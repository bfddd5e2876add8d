package middleware

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/hitoshi/negocio/internal/model"
)

// ErrorResponseBody はAPIエラーレスポンスの標準フォーマット。
// 歴史的経緯でログインエンドポイントだけは"message"キーを使うため、
// そちらはWriteMessageErrorを使用する。
type ErrorResponseBody struct {
	Error    string `json:"error"`
	Code     string `json:"code"`
	Category string `json:"category"`
	Field    string `json:"field,omitempty"`
}

// MessageErrorBody はログインエンドポイント用のエラーフォーマット。
type MessageErrorBody struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

// StatusForError はAPIエラーコードに対応するHTTPステータスを返す。
func StatusForError(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeValidation, model.ErrCodePlanNotFound, model.ErrCodeCompanyTypeNotFound:
		return http.StatusBadRequest
	case model.ErrCodeInvalidCredentials, model.ErrCodeInvalidAssertion, model.ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case model.ErrCodeProfileNotFound, model.ErrCodeUserNotFound:
		return http.StatusNotFound
	case model.ErrCodeEmailInUse, model.ErrCodeCompanyAlreadyExists:
		return http.StatusConflict
	case model.ErrCodeProviderUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// WriteErrorResponse は標準フォーマット（"error"キー）でエラーレスポンスを書き込む。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponseBody{
		Error:    apiErr.Message,
		Code:     apiErr.Code,
		Category: apiErr.Category,
		Field:    apiErr.Field,
	})
}

// WriteMessageError はログイン用フォーマット（"message"キー）でエラーレスポンスを書き込む。
func WriteMessageError(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(MessageErrorBody{
		Message: apiErr.Message,
		Code:    apiErr.Code,
	})
}

// WriteAPIError はエラーからAPIErrorを取り出し、標準フォーマットで書き込む。
// APIError以外のエラーはINTERNAL_ERRORとして扱う。
func WriteAPIError(w http.ResponseWriter, err error) {
	apiErr := asAPIError(err)
	WriteErrorResponse(w, StatusForError(apiErr), apiErr)
}

// WriteAPIMessageError はエラーをログイン用フォーマットで書き込む。
func WriteAPIMessageError(w http.ResponseWriter, err error) {
	apiErr := asAPIError(err)
	WriteMessageError(w, StatusForError(apiErr), apiErr)
}

func asAPIError(err error) *model.APIError {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return model.NewInternalError()
}
