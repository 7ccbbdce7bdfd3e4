package completion

import (
	"errors"
	"fmt"
)

// CompletionError is the base error type for all completion errors.
type CompletionError struct {
	Message string
	Cause   error
}

func (e *CompletionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *CompletionError) Unwrap() error {
	return e.Cause
}

// ProviderError represents an error returned by a model provider.
type ProviderError struct {
	CompletionError
	Provider   string
	StatusCode int
	Retryable  bool
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("[%s] %s (status=%d, retryable=%v)", e.Provider, e.Message, e.StatusCode, e.Retryable)
}

// Concrete provider error types.

type AuthenticationError struct{ ProviderError }
type AccessDeniedError struct{ ProviderError }
type InvalidRequestError struct{ ProviderError }
type RateLimitError struct{ ProviderError }
type ServerError struct{ ProviderError }
type ContextLengthError struct{ ProviderError }

// Non-provider errors.

type RequestTimeoutError struct{ CompletionError }
type ConfigurationError struct{ CompletionError }

// IsRetryable reports whether err is worth retrying. Rate limits, server
// errors, and timeouts are transient; authentication and request shape
// problems are not.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var rateLimit *RateLimitError
	var server *ServerError
	var timeout *RequestTimeoutError
	if errors.As(err, &rateLimit) || errors.As(err, &server) || errors.As(err, &timeout) {
		return true
	}

	var auth *AuthenticationError
	var denied *AccessDeniedError
	var invalid *InvalidRequestError
	var ctxLen *ContextLengthError
	var config *ConfigurationError
	if errors.As(err, &auth) || errors.As(err, &denied) || errors.As(err, &invalid) ||
		errors.As(err, &ctxLen) || errors.As(err, &config) {
		return false
	}

	var provider *ProviderError
	if errors.As(err, &provider) {
		return provider.Retryable
	}
	return false
}
