package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// AppError represents an application error
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Err.Error())
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError creates a new application error
func NewAppError(code, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Common error codes
const (
	ErrCodeValidation       = "VALIDATION_ERROR"
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeUnauthorized     = "UNAUTHORIZED"
	ErrCodeInternal         = "INTERNAL_ERROR"
	ErrCodeDatabase         = "DATABASE_ERROR"
	ErrCodeConfiguration    = "CONFIGURATION_ERROR"
	ErrCodeStoreUnavailable = "STORE_UNAVAILABLE"
	ErrCodeConflict         = "CONFLICT"
)

// Sync engine error codes
const (
	ErrCodeInvalidURL             = "INVALID_URL"
	ErrCodeAlreadySubscribed      = "ALREADY_SUBSCRIBED"
	ErrCodePermissionDenied       = "PERMISSION_DENIED"
	ErrCodeFetchFailed            = "FETCH_FAILED"
	ErrCodeBroadcastFailed        = "BROADCAST_FAILED"
	ErrCodeFolderNotFound         = "FOLDER_NOT_FOUND"
	ErrCodeDefaultFolderProtected = "DEFAULT_FOLDER_PROTECTED"
)

// Common error constructors
func NewValidationError(message string, err error) *AppError {
	return NewAppError(ErrCodeValidation, message, err)
}

func NewNotFoundError(message string, err error) *AppError {
	return NewAppError(ErrCodeNotFound, message, err)
}

func NewUnauthorizedError(message string, err error) *AppError {
	return NewAppError(ErrCodeUnauthorized, message, err)
}

func NewInternalError(message string, err error) *AppError {
	return NewAppError(ErrCodeInternal, message, err)
}

func NewDatabaseError(message string, err error) *AppError {
	return NewAppError(ErrCodeDatabase, message, err)
}

func NewConfigurationError(message string, err error) *AppError {
	return NewAppError(ErrCodeConfiguration, message, err)
}

func NewStoreUnavailableError(message string, err error) *AppError {
	return NewAppError(ErrCodeStoreUnavailable, message, err)
}

func NewConflictError(message string, err error) *AppError {
	return NewAppError(ErrCodeConflict, message, err)
}

func NewInvalidURLError(message string, err error) *AppError {
	return NewAppError(ErrCodeInvalidURL, message, err)
}

func NewAlreadySubscribedError(message string, err error) *AppError {
	return NewAppError(ErrCodeAlreadySubscribed, message, err)
}

func NewPermissionDeniedError(message string, err error) *AppError {
	return NewAppError(ErrCodePermissionDenied, message, err)
}

func NewFetchFailedError(message string, err error) *AppError {
	return NewAppError(ErrCodeFetchFailed, message, err)
}

func NewBroadcastFailedError(message string, err error) *AppError {
	return NewAppError(ErrCodeBroadcastFailed, message, err)
}

func NewFolderNotFoundError(message string, err error) *AppError {
	return NewAppError(ErrCodeFolderNotFound, message, err)
}

func NewDefaultFolderProtectedError(message string, err error) *AppError {
	return NewAppError(ErrCodeDefaultFolderProtected, message, err)
}

// IsCode reports whether any AppError in err's chain carries the given code
func IsCode(err error, code string) bool {
	var appErr *AppError
	for err != nil {
		if !errors.As(err, &appErr) {
			return false
		}
		if appErr.Code == code {
			return true
		}
		err = appErr.Err
	}
	return false
}

// ErrorResponse represents an error response for API endpoints
type ErrorResponse struct {
	Error   *AppError `json:"error"`
	Success bool      `json:"success"`
}

// NewErrorResponse creates a new error response
func NewErrorResponse(err *AppError) *ErrorResponse {
	return &ErrorResponse{
		Error:   err,
		Success: false,
	}
}

// WriteErrorResponse writes an error response to an HTTP response writer
func WriteErrorResponse(w http.ResponseWriter, statusCode int, err *AppError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := NewErrorResponse(err)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

// GetHTTPStatusCode returns the appropriate HTTP status code for an error
func GetHTTPStatusCode(err *AppError) int {
	switch err.Code {
	case ErrCodeValidation, ErrCodeInvalidURL:
		return http.StatusBadRequest
	case ErrCodeNotFound, ErrCodeFolderNotFound:
		return http.StatusNotFound
	case ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case ErrCodePermissionDenied, ErrCodeDefaultFolderProtected:
		return http.StatusForbidden
	case ErrCodeAlreadySubscribed, ErrCodeConflict:
		return http.StatusConflict
	case ErrCodeFetchFailed:
		return http.StatusBadGateway
	case ErrCodeStoreUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// HandleError handles an error and writes an appropriate HTTP response
func HandleError(w http.ResponseWriter, err error) {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		appErr = NewInternalError("An unexpected error occurred", err)
	}

	statusCode := GetHTTPStatusCode(appErr)
	WriteErrorResponse(w, statusCode, appErr)
}
