package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"

	"github.com/koinlytics-backend/internal/types"
)

// Sentinel errors for errors.Is checks across package boundaries
var (
	// ErrUpstreamUnavailable marks a market-data provider failure or timeout
	ErrUpstreamUnavailable = stderrors.New("market data upstream unavailable")
	// ErrSourceUnavailable marks an exchange or chain balance source failure
	ErrSourceUnavailable = stderrors.New("balance source unavailable")
	// ErrMetadataUnavailable marks a failed token metadata lookup
	ErrMetadataUnavailable = stderrors.New("token metadata unavailable")
	// ErrCircuitOpen is returned when a circuit breaker rejects a call
	ErrCircuitOpen = stderrors.New("circuit breaker is open")
)

// ErrorCategory represents the category of an error
type ErrorCategory string

const (
	// CategoryUserInput represents user input errors (4xx)
	CategoryUserInput ErrorCategory = "user_input"
	// CategorySystem represents system errors (5xx)
	CategorySystem ErrorCategory = "system"
	// CategoryProvider represents upstream data provider errors
	CategoryProvider ErrorCategory = "provider"
	// CategorySource represents balance source errors
	CategorySource ErrorCategory = "source"
	// CategoryDatabase represents database errors
	CategoryDatabase ErrorCategory = "database"
	// CategoryAuthorization represents authorization errors
	CategoryAuthorization ErrorCategory = "authorization"
	// CategoryNotFound represents not found errors
	CategoryNotFound ErrorCategory = "not_found"
	// CategoryRateLimit represents rate limit errors
	CategoryRateLimit ErrorCategory = "rate_limit"
)

// Error codes carried on the wire
const (
	CodeInvalidRequest      = "INVALID_REQUEST"
	CodeUnauthorized        = "UNAUTHORIZED"
	CodeNotFound            = "NOT_FOUND"
	CodeRateLimitExceeded   = "RATE_LIMIT_EXCEEDED"
	CodeUpstreamUnavailable = "UPSTREAM_UNAVAILABLE"
	CodeSourceUnavailable   = "SOURCE_UNAVAILABLE"
	CodeMetadataUnavailable = "METADATA_UNAVAILABLE"
	CodeDatabaseError       = "DATABASE_ERROR"
	CodeInternalError       = "INTERNAL_ERROR"
)

// CategorizedError represents an error with category and HTTP status code
type CategorizedError struct {
	Category   ErrorCategory
	StatusCode int
	Code       string
	Message    string
	Details    map[string]interface{}
	Cause      error
}

// Error implements the error interface
func (e *CategorizedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause
func (e *CategorizedError) Unwrap() error {
	return e.Cause
}

// Is matches the sentinel that corresponds to the error code
func (e *CategorizedError) Is(target error) bool {
	switch e.Code {
	case CodeUpstreamUnavailable:
		return target == ErrUpstreamUnavailable
	case CodeSourceUnavailable:
		return target == ErrSourceUnavailable
	case CodeMetadataUnavailable:
		return target == ErrMetadataUnavailable
	}
	return false
}

// ToServiceError converts to a ServiceError
func (e *CategorizedError) ToServiceError() *types.ServiceError {
	return &types.ServiceError{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
	}
}

// NewInvalidRequestError creates an error for malformed caller input
func NewInvalidRequestError(message string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryUserInput,
		StatusCode: http.StatusBadRequest,
		Code:       CodeInvalidRequest,
		Message:    message,
	}
}

// NewUnauthorizedError creates an unauthorized error
func NewUnauthorizedError(message string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryAuthorization,
		StatusCode: http.StatusUnauthorized,
		Code:       CodeUnauthorized,
		Message:    message,
	}
}

// NewNotFoundError creates a not found error
func NewNotFoundError(resource string, id string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryNotFound,
		StatusCode: http.StatusNotFound,
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found: %s", resource, id),
		Details: map[string]interface{}{
			"resource": resource,
			"id":       id,
		},
	}
}

// NewRateLimitError creates a rate limit error
func NewRateLimitError(retryAfter int) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryRateLimit,
		StatusCode: http.StatusTooManyRequests,
		Code:       CodeRateLimitExceeded,
		Message:    "rate limit exceeded",
		Details: map[string]interface{}{
			"retryAfter": retryAfter,
		},
	}
}

// NewUpstreamUnavailableError wraps a market-data provider failure
func NewUpstreamUnavailableError(provider string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryProvider,
		StatusCode: http.StatusServiceUnavailable,
		Code:       CodeUpstreamUnavailable,
		Message:    fmt.Sprintf("market data provider unavailable: %s", provider),
		Cause:      cause,
		Details: map[string]interface{}{
			"provider": provider,
		},
	}
}

// NewSourceUnavailableError wraps an exchange or chain balance source failure
func NewSourceUnavailableError(source string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategorySource,
		StatusCode: http.StatusBadGateway,
		Code:       CodeSourceUnavailable,
		Message:    fmt.Sprintf("balance source unavailable: %s", source),
		Cause:      cause,
		Details: map[string]interface{}{
			"source": source,
		},
	}
}

// NewMetadataUnavailableError wraps a failed token metadata lookup
func NewMetadataUnavailableError(contract string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategorySource,
		StatusCode: http.StatusBadGateway,
		Code:       CodeMetadataUnavailable,
		Message:    fmt.Sprintf("token metadata unavailable: %s", contract),
		Cause:      cause,
		Details: map[string]interface{}{
			"contract": contract,
		},
	}
}

// NewInternalError creates an internal server error
func NewInternalError(message string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategorySystem,
		StatusCode: http.StatusInternalServerError,
		Code:       CodeInternalError,
		Message:    message,
		Cause:      cause,
	}
}

// NewDatabaseError creates a database error
func NewDatabaseError(operation string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryDatabase,
		StatusCode: http.StatusInternalServerError,
		Code:       CodeDatabaseError,
		Message:    fmt.Sprintf("database error during %s", operation),
		Cause:      cause,
		Details: map[string]interface{}{
			"operation": operation,
		},
	}
}

// Categorize categorizes an existing error, unwrapping as needed
func Categorize(err error) *CategorizedError {
	if err == nil {
		return nil
	}

	var catErr *CategorizedError
	if stderrors.As(err, &catErr) {
		return catErr
	}

	var svcErr *types.ServiceError
	if stderrors.As(err, &svcErr) {
		return categorizeServiceError(svcErr)
	}

	switch {
	case stderrors.Is(err, ErrUpstreamUnavailable), stderrors.Is(err, ErrCircuitOpen):
		return NewUpstreamUnavailableError("market", err)
	case stderrors.Is(err, ErrSourceUnavailable):
		return NewSourceUnavailableError("unknown", err)
	case stderrors.Is(err, ErrMetadataUnavailable):
		return NewMetadataUnavailableError("unknown", err)
	}

	return NewInternalError("unexpected error", err)
}

func categorizeServiceError(err *types.ServiceError) *CategorizedError {
	category, status := CategorySystem, http.StatusInternalServerError
	switch err.Code {
	case CodeInvalidRequest:
		category, status = CategoryUserInput, http.StatusBadRequest
	case CodeNotFound:
		category, status = CategoryNotFound, http.StatusNotFound
	case CodeUnauthorized:
		category, status = CategoryAuthorization, http.StatusUnauthorized
	case CodeRateLimitExceeded:
		category, status = CategoryRateLimit, http.StatusTooManyRequests
	case CodeUpstreamUnavailable:
		category, status = CategoryProvider, http.StatusServiceUnavailable
	}
	return &CategorizedError{
		Category:   category,
		StatusCode: status,
		Code:       err.Code,
		Message:    err.Message,
		Details:    err.Details,
	}
}

// GetHTTPStatusCode returns the HTTP status code for an error
func GetHTTPStatusCode(err error) int {
	if catErr := Categorize(err); catErr != nil {
		return catErr.StatusCode
	}
	return http.StatusInternalServerError
}

// IsUserError determines if an error is a user error (4xx)
func IsUserError(err error) bool {
	catErr := Categorize(err)
	if catErr == nil {
		return false
	}
	return catErr.StatusCode >= 400 && catErr.StatusCode < 500
}
