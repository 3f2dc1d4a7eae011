package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/TimurManjosov/mockflow/internal/rules"
	"github.com/TimurManjosov/mockflow/internal/store"
)

// ErrorCode represents machine-readable error codes
type ErrorCode string

const (
	// General error codes
	ErrCodeInternal        ErrorCode = "INTERNAL_ERROR"
	ErrCodeBadRequest      ErrorCode = "BAD_REQUEST"
	ErrCodeUnauthorized    ErrorCode = "UNAUTHORIZED"
	ErrCodeForbidden       ErrorCode = "FORBIDDEN"
	ErrCodeNotFound        ErrorCode = "NOT_FOUND"
	ErrCodeConflict        ErrorCode = "CONFLICT"
	ErrCodeRateLimited     ErrorCode = "RATE_LIMITED"
	ErrCodeRequestTooLarge ErrorCode = "REQUEST_TOO_LARGE"

	// Validation error codes
	ErrCodeValidation        ErrorCode = "VALIDATION_ERROR"
	ErrCodeInvalidJSON       ErrorCode = "INVALID_JSON"
	ErrCodeInvalidScenarioID ErrorCode = "INVALID_SCENARIO_ID"
	ErrCodeInvalidRoute      ErrorCode = "INVALID_ROUTE"
	ErrCodeInvalidCondition  ErrorCode = "INVALID_CONDITION"
	ErrCodeInvalidEffect     ErrorCode = "INVALID_EFFECT"
	ErrCodeInvalidResponse   ErrorCode = "INVALID_RESPONSE"
	ErrCodeInvalidCatalog    ErrorCode = "INVALID_CATALOG"
)

// ErrorResponse is the JSON body of every management API error.
type ErrorResponse struct {
	Error     string            `json:"error"`
	Message   string            `json:"message"`
	Code      ErrorCode         `json:"code"`
	Fields    map[string]string `json:"fields,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
}

// writeError writes an ErrorResponse tagged with the chi request id.
func writeError(w http.ResponseWriter, r *http.Request, status int, code ErrorCode, message string, fields map[string]string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Error:     http.StatusText(status),
		Message:   message,
		Code:      code,
		Fields:    fields,
		RequestID: middleware.GetReqID(r.Context()),
	})
}

// ValidationError reports field-level problems with a 400.
func ValidationError(w http.ResponseWriter, r *http.Request, message string, fields map[string]string) {
	writeError(w, r, http.StatusBadRequest, ErrCodeValidation, message, fields)
}

func BadRequestError(w http.ResponseWriter, r *http.Request, code ErrorCode, message string) {
	writeError(w, r, http.StatusBadRequest, code, message, nil)
}

func UnauthorizedError(w http.ResponseWriter, r *http.Request, message string) {
	writeError(w, r, http.StatusUnauthorized, ErrCodeUnauthorized, message, nil)
}

func ForbiddenError(w http.ResponseWriter, r *http.Request, message string) {
	writeError(w, r, http.StatusForbidden, ErrCodeForbidden, message, nil)
}

func InternalError(w http.ResponseWriter, r *http.Request, message string) {
	writeError(w, r, http.StatusInternalServerError, ErrCodeInternal, message, nil)
}

func NotFoundError(w http.ResponseWriter, r *http.Request, message string) {
	writeError(w, r, http.StatusNotFound, ErrCodeNotFound, message, nil)
}

func ConflictError(w http.ResponseWriter, r *http.Request, message string) {
	writeError(w, r, http.StatusConflict, ErrCodeConflict, message, nil)
}

func RequestTooLargeError(w http.ResponseWriter, r *http.Request, message string) {
	writeError(w, r, http.StatusRequestEntityTooLarge, ErrCodeRequestTooLarge, message, nil)
}

func RateLimitedError(w http.ResponseWriter, r *http.Request, message string) {
	writeError(w, r, http.StatusTooManyRequests, ErrCodeRateLimited, message, nil)
}

// definitionError reports a rejected scenario or transition definition with
// the code matching the validator that failed.
func definitionError(w http.ResponseWriter, r *http.Request, err error) {
	code, field := ErrCodeValidation, "transition"
	switch {
	case errors.Is(err, store.ErrInvalidScenarioID):
		code, field = ErrCodeInvalidScenarioID, "id"
	case errors.Is(err, rules.ErrInvalidRoute):
		code, field = ErrCodeInvalidRoute, "path"
	case errors.Is(err, rules.ErrInvalidOperator), errors.Is(err, rules.ErrInvalidCondition):
		code, field = ErrCodeInvalidCondition, "conditions"
	case errors.Is(err, rules.ErrInvalidEffect):
		code, field = ErrCodeInvalidEffect, "effects"
	case errors.Is(err, rules.ErrInvalidResponse):
		code, field = ErrCodeInvalidResponse, "response"
	}
	writeError(w, r, http.StatusBadRequest, code, err.Error(), map[string]string{field: err.Error()})
}
