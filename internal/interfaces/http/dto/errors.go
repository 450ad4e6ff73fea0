package dto

import (
	"net/http"

	"github.com/invest/backend/internal/domain/shared"
)

// Additional error codes surfaced only at the HTTP boundary
const (
	ErrCodeBadRequest   = "BAD_REQUEST"
	ErrCodeUnauthorized = "UNAUTHORIZED"
	ErrCodeInternal     = "INTERNAL_ERROR"
)

// ErrorCodeHTTPStatus maps domain error codes to HTTP status codes.
// TRANSIENT_WRITE_CONFLICT maps to 409: the executor already exhausted its
// retries, so the client decides whether to resubmit with the same key.
var ErrorCodeHTTPStatus = map[string]int{
	shared.CodeConflict:               http.StatusConflict,
	shared.CodeInvalidTransition:      http.StatusConflict,
	shared.CodePreconditionFailed:     http.StatusUnprocessableEntity,
	shared.CodeTransientWriteConflict: http.StatusConflict,
	shared.CodeNotFound:               http.StatusNotFound,
	shared.CodeInvalidInput:           http.StatusBadRequest,
	"ALREADY_EXISTS":                  http.StatusConflict,
	"CONCURRENCY_CONFLICT":            http.StatusConflict,

	ErrCodeBadRequest:   http.StatusBadRequest,
	ErrCodeUnauthorized: http.StatusUnauthorized,
	ErrCodeInternal:     http.StatusInternalServerError,
}

// GetHTTPStatus returns the HTTP status code for an error code.
// Unknown codes map to 500.
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}
