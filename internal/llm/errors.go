package llm

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorType categorizes provider errors for logging and metrics.
type ErrorType string

const (
	ErrorTypeUnknown         ErrorType = "unknown"
	ErrorTypeContextOverflow ErrorType = "context_overflow"
	ErrorTypeRateLimit       ErrorType = "rate_limit"
	ErrorTypeOverloaded      ErrorType = "overloaded"
	ErrorTypeAuth            ErrorType = "auth"
	ErrorTypeBilling         ErrorType = "billing"
	ErrorTypeTimeout         ErrorType = "timeout"
	ErrorTypeFormat          ErrorType = "format"
	ErrorTypeNoChoices       ErrorType = "no_choices"
)

// ErrNoChoices is wrapped in a ProviderError when a provider answers with
// zero candidates or only empty content.
var ErrNoChoices = errors.New("provider returned no choices")

// ProviderError is a failed remote chat or image call.
type ProviderError struct {
	Provider string
	Status   int // HTTP status, 0 when the request never got a response
	Type     ErrorType
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s: %s (status %d): %v", e.Provider, e.Type, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Provider, e.Type, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// NewProviderError classifies err and wraps it. Returns nil for a nil err.
func NewProviderError(provider string, status int, err error) *ProviderError {
	if err == nil {
		return nil
	}
	t := ClassifyStatus(status)
	if errors.Is(err, ErrNoChoices) {
		t = ErrorTypeNoChoices
	} else if t == ErrorTypeUnknown {
		t = ClassifyError(err.Error())
	}
	return &ProviderError{Provider: provider, Status: status, Type: t, Err: err}
}

// IsRetryable reports whether a caller may reasonably try the same call
// again later.
func IsRetryable(err error) bool {
	var pe *ProviderError
	if !errors.As(err, &pe) {
		return false
	}
	switch pe.Type {
	case ErrorTypeRateLimit, ErrorTypeOverloaded, ErrorTypeTimeout:
		return true
	default:
		return false
	}
}

// ClassifyStatus maps an HTTP status to an ErrorType.
func ClassifyStatus(status int) ErrorType {
	switch {
	case status == http.StatusTooManyRequests:
		return ErrorTypeRateLimit
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ErrorTypeAuth
	case status == http.StatusPaymentRequired:
		return ErrorTypeBilling
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return ErrorTypeTimeout
	case status == http.StatusRequestEntityTooLarge:
		return ErrorTypeContextOverflow
	case status == 529 || status == http.StatusServiceUnavailable || status == http.StatusBadGateway:
		return ErrorTypeOverloaded
	default:
		return ErrorTypeUnknown
	}
}

// Checked in order; more specific patterns first so a 400 carrying
// "context_length_exceeded" is not reported as a format error.
var messagePatterns = []struct {
	typ      ErrorType
	patterns []string
}{
	{ErrorTypeContextOverflow, []string{
		"context_length_exceeded", "context length exceeded", "maximum context length",
		"prompt is too long", "request_too_large", "exceeds model context window",
	}},
	{ErrorTypeRateLimit, []string{
		"429", "rate_limit", "rate limit", "too many requests", "quota exceeded",
		"exceeded your current quota", "resource_exhausted", "resource has been exhausted",
	}},
	{ErrorTypeOverloaded, []string{
		"overloaded", "529", "503", "service unavailable", "server is busy", "capacity",
	}},
	{ErrorTypeBilling, []string{
		"billing", "insufficient_quota", "payment required", "credit balance", "402",
	}},
	{ErrorTypeAuth, []string{
		"401", "403", "unauthorized", "invalid api key", "invalid_api_key",
		"authentication", "permission denied", "api key not valid",
	}},
	{ErrorTypeTimeout, []string{
		"timeout", "timed out", "deadline exceeded", "context deadline",
	}},
	{ErrorTypeFormat, []string{
		"invalid_request_error", "invalid request", "bad request", "400", "malformed",
	}},
}

// ClassifyError determines the error type from an error message.
// Returns ErrorTypeUnknown if the message doesn't match any known pattern.
func ClassifyError(msg string) ErrorType {
	if msg == "" {
		return ErrorTypeUnknown
	}
	lower := strings.ToLower(msg)
	for _, p := range messagePatterns {
		for _, s := range p.patterns {
			if strings.Contains(lower, s) {
				return p.typ
			}
		}
	}
	return ErrorTypeUnknown
}
