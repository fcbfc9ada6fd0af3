package errors

import (
	"net/http"
	"time"
)

// ErrorCode represents a standardized error code
type ErrorCode string

const (
	// Request errors (400xx)
	ErrInvalidRequest   ErrorCode = "40001"
	ErrValidationFailed ErrorCode = "40002"
	ErrMissingSender    ErrorCode = "40003"

	// Authorization errors (403xx)
	ErrInvalidSignature ErrorCode = "40301"

	// Resource errors (404xx)
	ErrNotFound ErrorCode = "40401"

	// Throttling errors (429xx)
	ErrRateLimited ErrorCode = "42901"

	// Server errors (500xx)
	ErrInternalServer ErrorCode = "50001"
	ErrDatabaseError  ErrorCode = "50002"
	ErrSessionStore   ErrorCode = "50003"

	// Availability errors (503xx)
	ErrServiceUnavailable ErrorCode = "50301"
)

// APIError represents a standardized API error
type APIError struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	Details    any       `json:"details,omitempty"`
	Timestamp  string    `json:"timestamp,omitempty"`
	Path       string    `json:"path,omitempty"`
	Method     string    `json:"method,omitempty"`
	HTTPStatus int       `json:"-"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	return e.Message
}

// ErrorResponse represents the error response format
type ErrorResponse struct {
	Error         APIError `json:"error"`
	RequestID     string   `json:"request_id"`
	CorrelationID string   `json:"correlation_id,omitempty"`
}

// Common errors
var (
	ErrMissingSenderError = &APIError{
		Code:       ErrMissingSender,
		Message:    "Missing 'From' in webhook payload",
		HTTPStatus: http.StatusBadRequest,
	}

	ErrInvalidSignatureError = &APIError{
		Code:       ErrInvalidSignature,
		Message:    "Invalid Twilio signature",
		HTTPStatus: http.StatusForbidden,
	}

	ErrNotFoundError = &APIError{
		Code:       ErrNotFound,
		Message:    "Resource not found",
		HTTPStatus: http.StatusNotFound,
	}

	ErrRateLimitedError = &APIError{
		Code:       ErrRateLimited,
		Message:    "Too many messages, please slow down",
		HTTPStatus: http.StatusTooManyRequests,
	}

	ErrInternalServerError = &APIError{
		Code:       ErrInternalServer,
		Message:    "Internal server error",
		HTTPStatus: http.StatusInternalServerError,
	}

	ErrDatabaseErrorError = &APIError{
		Code:       ErrDatabaseError,
		Message:    "Database error",
		HTTPStatus: http.StatusInternalServerError,
	}

	ErrSessionStoreError = &APIError{
		Code:       ErrSessionStore,
		Message:    "Conversation state unavailable",
		HTTPStatus: http.StatusInternalServerError,
	}

	ErrServiceUnavailableError = &APIError{
		Code:       ErrServiceUnavailable,
		Message:    "Service unavailable",
		HTTPStatus: http.StatusServiceUnavailable,
	}
)

// NewValidationError creates a validation error with details
func NewValidationError(details any) *APIError {
	return &APIError{
		Code:       ErrValidationFailed,
		Message:    "Validation failed",
		Details:    details,
		HTTPStatus: http.StatusBadRequest,
	}
}

// NewInvalidRequestError creates an invalid request error
func NewInvalidRequestError(message string) *APIError {
	return &APIError{
		Code:       ErrInvalidRequest,
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
	}
}

// NewErrorResponse stamps a copy of err with request metadata.
// The shared error values above are never mutated.
func NewErrorResponse(err *APIError, requestID, correlationID, path, method string) ErrorResponse {
	e := *err
	e.Timestamp = time.Now().UTC().Format(time.RFC3339)
	e.Path = path
	e.Method = method
	if e.HTTPStatus == 0 {
		e.HTTPStatus = GetHTTPStatusFromCode(e.Code)
	}
	if correlationID == "" {
		correlationID = requestID
	}
	return ErrorResponse{
		Error:         e,
		RequestID:     requestID,
		CorrelationID: correlationID,
	}
}

// GetHTTPStatusFromCode maps an error code to its HTTP status by category
func GetHTTPStatusFromCode(code ErrorCode) int {
	switch {
	case len(code) < 3:
		return http.StatusInternalServerError
	case code[:3] == "400":
		return http.StatusBadRequest
	case code[:3] == "403":
		return http.StatusForbidden
	case code[:3] == "404":
		return http.StatusNotFound
	case code[:3] == "429":
		return http.StatusTooManyRequests
	case code[:3] == "503":
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
