package types

import (
	"errors"
	"fmt"
)

var (
	ErrConfigNotFound       = errors.New("config not found")
	ErrConfigParseFailed    = errors.New("config parse failed")
	ErrConfigValidateFailed = errors.New("config validate failed")
	ErrPolicyPatternInvalid = errors.New("policy pattern invalid")
)

var (
	ErrCacheKeyEmpty         = errors.New("cache key empty")
	ErrCacheTypeUnknown      = errors.New("cache type unknown")
	ErrCacheConnectionFailed = errors.New("cache connection failed")
	ErrCacheOperationFailed  = errors.New("cache operation failed")
)

var (
	ErrClientNotRunning      = errors.New("client not running")
	ErrClientRequestFailed   = errors.New("client request failed")
	ErrClientResponseInvalid = errors.New("client response invalid")
	ErrClientTimeout         = errors.New("client timeout")
	ErrCircuitBreakerOpen    = errors.New("circuit breaker open")
)

var (
	ErrManifestInvalid  = errors.New("manifest invalid")
	ErrManifestNotFound = errors.New("manifest not found")
)

var (
	ErrServiceAlreadyRunning = errors.New("service already running")
	ErrServiceNotRunning     = errors.New("service not running")
	ErrLoggerTypeUnknown     = errors.New("logger type unknown")
	ErrLogFileIsEmpty        = errors.New("log file is empty")
	ErrLogFileWrongFormat    = errors.New("log file wrong format")
	ErrMetricsTypeUnknown    = errors.New("metrics type unknown")
)

func Errorf(baseErr error, format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", baseErr, fmt.Sprintf(format, args...))
}

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

func NewErrorf(format string, args ...interface{}) error {
	return fmt.Errorf(format, args...)
}

func IsError(err, target error) bool {
	return errors.Is(err, target)
}

// APIError is a structured error reported by the platform API in a non-2xx
// response body. Fields mirror the wire format; Message falls back through
// message, error and detail body fields during parsing.
type APIError struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Detail  string `json:"detail"`
	Path    string `json:"path"`
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error %d (%s): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
}

// AsAPIError unwraps err to an *APIError when the failure originated from a
// structured API response.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}
