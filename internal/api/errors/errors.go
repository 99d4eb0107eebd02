// Пакет errors — конструкторы стандартных ошибок API портала.
// Единый формат: {"error": {"code": "...", "message": "...", "details": {...}}}.
// Все HTTP-ответы с ошибками должны использовать WriteError или WriteErrorWithDetails.
package errors

import (
	"encoding/json"
	"net/http"
)

// Коды ошибок, определённые в OpenAPI контракте.
const (
	CodeValidationError   = "VALIDATION_ERROR"
	CodeNotFound          = "NOT_FOUND"
	CodeUnauthorized      = "UNAUTHORIZED"
	CodeForbidden         = "FORBIDDEN"
	CodeConflict          = "CONFLICT"
	CodeInvalidTransition = "INVALID_TRANSITION"
	CodePartialSync       = "PARTIAL_SYNC"
	CodeIDPUnavailable    = "IDP_UNAVAILABLE"
	CodeTooManyRequests   = "TOO_MANY_REQUESTS"
	CodeInternalError     = "INTERNAL_ERROR"
)

// errorBody — структура тела ответа ошибки.
type errorBody struct {
	Error errorDetail `json:"error"`
}

// errorDetail — детали ошибки.
type errorDetail struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}

// WriteError записывает ответ ошибки в стандартном формате.
// statusCode — HTTP статус-код, code — машиночитаемый код, message — описание.
func WriteError(w http.ResponseWriter, statusCode int, code, message string) {
	WriteErrorWithDetails(w, statusCode, code, message, nil)
}

// WriteErrorWithDetails — WriteError с дополнительными полями в details.
func WriteErrorWithDetails(w http.ResponseWriter, statusCode int, code, message string, details map[string]string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(errorBody{
		Error: errorDetail{
			Code:    code,
			Message: message,
			Details: details,
		},
	})
}

// --- Конструкторы для типичных ошибок ---

// ValidationError — 400 некорректные входные данные.
func ValidationError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, CodeValidationError, message)
}

// ValidationFields — 400 с ошибками по полям.
func ValidationFields(w http.ResponseWriter, message string, fields map[string]string) {
	WriteErrorWithDetails(w, http.StatusBadRequest, CodeValidationError, message, fields)
}

// NotFound — 404 ресурс не найден.
func NotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, CodeNotFound, message)
}

// Unauthorized — 401 требуется аутентификация.
func Unauthorized(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnauthorized, CodeUnauthorized, message)
}

// Forbidden — 403 недостаточно прав.
func Forbidden(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusForbidden, CodeForbidden, message)
}

// Conflict — 409 конфликт (дублирующийся ресурс).
func Conflict(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusConflict, CodeConflict, message)
}

// InvalidTransition — 409 недопустимая смена статуса.
func InvalidTransition(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusConflict, CodeInvalidTransition, message)
}

// PartialSync — 502 роль записана не во все хранилища.
// relational и identity — статусы записи ("ok", "failed", "skipped").
func PartialSync(w http.ResponseWriter, message, relational, identity string) {
	WriteErrorWithDetails(w, http.StatusBadGateway, CodePartialSync, message, map[string]string{
		"relational": relational,
		"identity":   identity,
	})
}

// IDPUnavailable — 502 Identity Provider (Keycloak) недоступен.
func IDPUnavailable(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadGateway, CodeIDPUnavailable, message)
}

// TooManyRequests — 429 превышен лимит запросов.
func TooManyRequests(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusTooManyRequests, CodeTooManyRequests, message)
}

// InternalError — 500 внутренняя ошибка.
func InternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, CodeInternalError, message)
}
