package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinels matched by GetStatusCode when an error is not an AppError.
var (
	ErrNotFound     = errors.New("resource not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrBadRequest   = errors.New("bad request")
	ErrConflict     = errors.New("resource conflict")
	ErrUnavailable  = errors.New("service unavailable")
)

var sentinelStatus = []struct {
	err    error
	status int
}{
	{ErrNotFound, http.StatusNotFound},
	{ErrUnauthorized, http.StatusUnauthorized},
	{ErrBadRequest, http.StatusBadRequest},
	{ErrConflict, http.StatusConflict},
	{ErrUnavailable, http.StatusServiceUnavailable},
}

// AppError is an ops API error with an HTTP status and a stable code.
type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"-"`
	Err        error  `json:"-"`
}

func newAppError(code string, status int, message string, cause error) *AppError {
	return &AppError{Code: code, Message: message, StatusCode: status, Err: cause}
}

func (e *AppError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

func (e *AppError) Unwrap() error { return e.Err }

// ErrorResponse is the JSON body written for an AppError.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail carries the code and message of an ErrorResponse.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NotFound reports a missing resource, e.g. NotFound("dead letter").
func NotFound(resource string) *AppError {
	return newAppError("NOT_FOUND", http.StatusNotFound, resource+" not found", ErrNotFound)
}

// Unauthorized rejects a request without valid operator credentials.
func Unauthorized(code, message string) *AppError {
	return newAppError(code, http.StatusUnauthorized, message, ErrUnauthorized)
}

func BadRequest(message string) *AppError {
	return newAppError("BAD_REQUEST", http.StatusBadRequest, message, ErrBadRequest)
}

func Conflict(message string) *AppError {
	return newAppError("CONFLICT", http.StatusConflict, message, ErrConflict)
}

func Unavailable(message string) *AppError {
	return newAppError("UNAVAILABLE", http.StatusServiceUnavailable, message, ErrUnavailable)
}

// Internal wraps cause; only message reaches the client.
func Internal(message string, cause error) *AppError {
	return newAppError("INTERNAL_ERROR", http.StatusInternalServerError, message, cause)
}

// ToResponse converts e to its JSON body.
func (e *AppError) ToResponse() ErrorResponse {
	return ErrorResponse{Error: ErrorDetail{Code: e.Code, Message: e.Message}}
}

// GetStatusCode returns the HTTP status for err. Unrecognized errors are 500.
func GetStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}
	for _, s := range sentinelStatus {
		if errors.Is(err, s.err) {
			return s.status
		}
	}
	return http.StatusInternalServerError
}
