// Package errors provides structured error handling for the Solvio core
package errors

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

// ErrorCode represents an application error code
type ErrorCode string

const (
	// General errors
	ErrInternal   ErrorCode = "INTERNAL_ERROR"
	ErrNotFound   ErrorCode = "NOT_FOUND"
	ErrBadRequest ErrorCode = "BAD_REQUEST"
	ErrValidation ErrorCode = "VALIDATION_ERROR"

	// Authentication errors
	ErrInvalidCredentials ErrorCode = "INVALID_CREDENTIALS"
	ErrAccountInactive    ErrorCode = "ACCOUNT_INACTIVE"
	ErrSessionNotFound    ErrorCode = "SESSION_NOT_FOUND"
	ErrInvalidToken       ErrorCode = "INVALID_TOKEN"

	// Authorization errors
	ErrPermissionDenied ErrorCode = "PERMISSION_DENIED"
	ErrPolicyViolation  ErrorCode = "POLICY_VIOLATION"

	// Role change workflow errors
	ErrRequestNotFound         ErrorCode = "REQUEST_NOT_FOUND"
	ErrRequestAlreadyProcessed ErrorCode = "REQUEST_ALREADY_PROCESSED"

	// Lifecycle errors
	ErrNetworkUnavailable   ErrorCode = "NETWORK_UNAVAILABLE"
	ErrInitializationFailed ErrorCode = "INITIALIZATION_FAILED"

	// Resource errors
	ErrUserNotFound   ErrorCode = "USER_NOT_FOUND"
	ErrElevatedExists ErrorCode = "ELEVATED_ACCOUNT_EXISTS"
)

// AppError represents a structured application error
type AppError struct {
	Code       ErrorCode              `json:"code"`
	Message    string                 `json:"message"`
	Details    string                 `json:"details,omitempty"`
	StatusCode int                    `json:"-"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
	Err        error                  `json:"-"` // Original error for logging
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the original error
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithMetadata adds metadata to the error
func (e *AppError) WithMetadata(key string, value interface{}) *AppError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

// WithDetails adds details to the error
func (e *AppError) WithDetails(details string) *AppError {
	e.Details = details
	return e
}

// New creates a new AppError
func New(code ErrorCode, message string, statusCode int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// Wrap wraps an existing error into an AppError
func Wrap(err error, code ErrorCode, message string, statusCode int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
		Err:        err,
	}
}

// Internal creates an internal server error
func Internal(message string, err error) *AppError {
	return &AppError{
		Code:       ErrInternal,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Err:        err,
	}
}

// BadRequest creates a bad request error
func BadRequest(message string) *AppError {
	return &AppError{
		Code:       ErrBadRequest,
		Message:    message,
		StatusCode: http.StatusBadRequest,
	}
}

// ValidationError creates a validation error
func ValidationError(message string) *AppError {
	return &AppError{
		Code:       ErrValidation,
		Message:    message,
		StatusCode: http.StatusBadRequest,
	}
}

// InvalidCredentials creates an invalid credentials error
func InvalidCredentials() *AppError {
	return &AppError{
		Code:       ErrInvalidCredentials,
		Message:    "Invalid email or password",
		StatusCode: http.StatusUnauthorized,
	}
}

// AccountInactive creates an inactive account error
func AccountInactive(userID string) *AppError {
	return (&AppError{
		Code:       ErrAccountInactive,
		Message:    "Account is inactive",
		StatusCode: http.StatusForbidden,
	}).WithMetadata("user_id", userID)
}

// InvalidToken creates an invalid token error
func InvalidToken(details string) *AppError {
	return &AppError{
		Code:       ErrInvalidToken,
		Message:    "Invalid authentication token",
		Details:    details,
		StatusCode: http.StatusUnauthorized,
	}
}

// PermissionDenied creates a permission denied error for an assignment-matrix
// violation or any other privilege failure
func PermissionDenied(action string) *AppError {
	return (&AppError{
		Code:       ErrPermissionDenied,
		Message:    "Insufficient privileges to perform this action",
		StatusCode: http.StatusForbidden,
	}).WithMetadata("action", action)
}

// PolicyViolation creates a policy violation error, e.g. an attempt to promote
// a user to the elevated role or to demote an elevated account
func PolicyViolation(reason string) *AppError {
	return &AppError{
		Code:       ErrPolicyViolation,
		Message:    "Operation violates role policy",
		Details:    reason,
		StatusCode: http.StatusForbidden,
	}
}

// RequestNotFound creates a role change request not found error
func RequestNotFound(requestID string) *AppError {
	return (&AppError{
		Code:       ErrRequestNotFound,
		Message:    "Role change request not found",
		StatusCode: http.StatusNotFound,
	}).WithMetadata("request_id", requestID)
}

// RequestAlreadyProcessed creates an error for transitions on a terminal request
func RequestAlreadyProcessed(requestID, status string) *AppError {
	return (&AppError{
		Code:       ErrRequestAlreadyProcessed,
		Message:    "Role change request has already been processed",
		StatusCode: http.StatusConflict,
	}).WithMetadata("request_id", requestID).WithMetadata("status", status)
}

// NetworkUnavailable creates a transient network error. Background revalidation
// swallows it; user-initiated calls surface it.
func NetworkUnavailable(operation string, err error) *AppError {
	return &AppError{
		Code:       ErrNetworkUnavailable,
		Message:    "Upstream service unavailable",
		Details:    operation,
		StatusCode: http.StatusServiceUnavailable,
		Err:        err,
	}
}

// InitializationFailed creates a fatal boot error
func InitializationFailed(err error) *AppError {
	return &AppError{
		Code:       ErrInitializationFailed,
		Message:    "Session core initialization failed",
		StatusCode: http.StatusInternalServerError,
		Err:        err,
	}
}

// UserNotFound creates a user not found error
func UserNotFound(userID string) *AppError {
	return (&AppError{
		Code:       ErrUserNotFound,
		Message:    "User not found",
		StatusCode: http.StatusNotFound,
	}).WithMetadata("user_id", userID)
}

// ElevatedExists creates an error for a second bootstrap attempt
func ElevatedExists() *AppError {
	return &AppError{
		Code:       ErrElevatedExists,
		Message:    "An elevated account already exists",
		StatusCode: http.StatusConflict,
	}
}

// ErrorResponse is the JSON response structure for errors
type ErrorResponse struct {
	Error     ErrorCode              `json:"error"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	RequestID string                 `json:"request_id,omitempty"`
}

// HandleError sends an error response to the client
func HandleError(c *gin.Context, err error) {
	var appErr *AppError
	var ok bool

	if appErr, ok = err.(*AppError); !ok {
		appErr = Internal("An unexpected error occurred", err)
	}

	requestID, _ := c.Get("request_id")
	reqIDStr, _ := requestID.(string)

	response := ErrorResponse{
		Error:     appErr.Code,
		Message:   appErr.Message,
		Details:   appErr.Details,
		Metadata:  appErr.Metadata,
		RequestID: reqIDStr,
	}

	c.JSON(appErr.StatusCode, response)
}

// IsErrorCode checks if an error has a specific error code
func IsErrorCode(err error, code ErrorCode) bool {
	if appErr, ok := err.(*AppError); ok {
		return appErr.Code == code
	}
	return false
}

// GetStatusCode returns the HTTP status code for an error
func GetStatusCode(err error) int {
	if appErr, ok := err.(*AppError); ok {
		return appErr.StatusCode
	}
	return http.StatusInternalServerError
}
