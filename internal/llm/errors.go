package llm

import (
	"errors"
	"fmt"
	"time"
)

// ErrorKind classifies provider failures into the small taxonomy the
// coordinator reasons about.
type ErrorKind string

const (
	ErrKindTimeout     ErrorKind = "timeout"
	ErrKindAuth        ErrorKind = "auth"
	ErrKindRateLimited ErrorKind = "rate_limited"
	ErrKindUnknown     ErrorKind = "unknown"
)

// ProviderError is the typed failure returned by every adapter. RetryAfter is
// set for rate-limit errors so callers can retry later instead of
// immediately.
type ProviderError struct {
	Provider   string
	Kind       ErrorKind
	RetryAfter time.Duration
	Err        error
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("provider %s: %s: %v", e.Provider, e.Kind, e.Err)
	}
	return fmt.Sprintf("provider %s: %s", e.Provider, e.Kind)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// NewTimeoutError builds a ProviderError for a deadline expiry.
func NewTimeoutError(provider string, err error) *ProviderError {
	return &ProviderError{Provider: provider, Kind: ErrKindTimeout, Err: err}
}

// NewAuthError builds a ProviderError for rejected credentials.
func NewAuthError(provider string, err error) *ProviderError {
	return &ProviderError{Provider: provider, Kind: ErrKindAuth, Err: err}
}

// NewRateLimitedError builds a ProviderError for throttling. retryAfter may be
// zero when the vendor gave no hint.
func NewRateLimitedError(provider string, retryAfter time.Duration, err error) *ProviderError {
	return &ProviderError{Provider: provider, Kind: ErrKindRateLimited, RetryAfter: retryAfter, Err: err}
}

// NewUnknownError builds a ProviderError for anything unclassified.
func NewUnknownError(provider string, err error) *ProviderError {
	return &ProviderError{Provider: provider, Kind: ErrKindUnknown, Err: err}
}

// KindOf extracts the error kind from err, or ErrKindUnknown when err is not
// a ProviderError.
func KindOf(err error) ErrorKind {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ErrKindUnknown
}

// IsTimeout reports whether err is a provider timeout.
func IsTimeout(err error) bool {
	return KindOf(err) == ErrKindTimeout
}

// IsRateLimited reports whether err is a provider rate limit.
func IsRateLimited(err error) bool {
	return KindOf(err) == ErrKindRateLimited
}
