// Package failure defines the error taxonomy shared by every provider
// adapter and the fallback chain engine.
//
// Every raw transport, HTTP or parse error is classified into exactly one
// Category. Retryability is a fixed property of the category, never of the
// individual error, so retry and fallback decisions stay uniform across
// providers.
package failure

import (
	"errors"
	"fmt"
	"time"
)

// Category identifies one of the fixed failure classes.
type Category string

const (
	CategoryConfiguration Category = "configuration"
	CategoryRateLimit     Category = "rate_limit"
	CategoryNetwork       Category = "network"
	CategoryValidation    Category = "validation"
	CategoryNotFound      Category = "not_found"
	CategoryUnknown       Category = "unknown"
)

// Retryable reports whether failures of this category may be retried by the
// adapter. Unknown defaults to retryable: an unclassified error is more
// likely transient noise than a permanent condition.
func (c Category) Retryable() bool {
	switch c {
	case CategoryRateLimit, CategoryNetwork, CategoryUnknown:
		return true
	default:
		return false
	}
}

// Code returns the stable cross-provider code for this category.
func (c Category) Code() string {
	switch c {
	case CategoryConfiguration:
		return "ERR_CONFIGURATION"
	case CategoryRateLimit:
		return "ERR_RATE_LIMIT"
	case CategoryNetwork:
		return "ERR_NETWORK"
	case CategoryValidation:
		return "ERR_VALIDATION"
	case CategoryNotFound:
		return "ERR_NOT_FOUND"
	default:
		return "ERR_UNKNOWN"
	}
}

// Failure is a classified provider error. It is created at the point a raw
// error is classified and never mutated afterwards.
type Failure struct {
	Message   string
	Category  Category
	Provider  string
	Retryable bool

	// RetryAfter is the provider-suggested wait. Only meaningful for
	// CategoryRateLimit; zero otherwise.
	RetryAfter time.Duration

	// Cause is the wrapped lower-level error, if any.
	Cause error
}

func (f *Failure) Error() string {
	if f.Provider == "" {
		return fmt.Sprintf("[%s] %s", f.Category.Code(), f.Message)
	}
	return fmt.Sprintf("%s: [%s] %s", f.Provider, f.Category.Code(), f.Message)
}

func (f *Failure) Unwrap() error { return f.Cause }

func newFailure(category Category, provider, message string, cause error) *Failure {
	return &Failure{
		Message:   message,
		Category:  category,
		Provider:  provider,
		Retryable: category.Retryable(),
		Cause:     cause,
	}
}

// Configuration reports a bad or missing credential. Never retried; the
// adapter refuses to initialize on it.
func Configuration(provider, message string) *Failure {
	return newFailure(CategoryConfiguration, provider, message, nil)
}

// RateLimit reports an exhausted provider quota. retryAfter may be zero when
// the provider gave no hint.
func RateLimit(provider, message string, retryAfter time.Duration) *Failure {
	f := newFailure(CategoryRateLimit, provider, message, nil)
	f.RetryAfter = retryAfter
	return f
}

// Network reports a transport or HTTP-level error.
func Network(provider, message string, cause error) *Failure {
	return newFailure(CategoryNetwork, provider, message, cause)
}

// Validation reports a malformed or unparseable provider response.
func Validation(provider, message string) *Failure {
	return newFailure(CategoryValidation, provider, message, nil)
}

// NotFound reports that the provider affirmatively has no data.
func NotFound(provider, message string) *Failure {
	return newFailure(CategoryNotFound, provider, message, nil)
}

// Unknown reports an unclassified error. Treated as retryable.
func Unknown(provider, message string, cause error) *Failure {
	return newFailure(CategoryUnknown, provider, message, cause)
}

// Exhausted wraps the last classified failure after the adapter has used up
// all its attempts. The category and retryability of the last failure are
// preserved so chain-level decisions still see what went wrong.
func Exhausted(attempts int, last *Failure) *Failure {
	f := newFailure(last.Category, last.Provider,
		fmt.Sprintf("failed after %d attempts: %s", attempts, last.Message), last)
	f.RetryAfter = last.RetryAfter
	return f
}

// As extracts a *Failure from err, classifying it under provider if it is
// not already one.
func As(err error, provider string) *Failure {
	var f *Failure
	if errors.As(err, &f) {
		return f
	}
	return Classify(err, provider)
}

// CategoryOf returns the category of a classified error, or CategoryUnknown
// for anything else.
func CategoryOf(err error) Category {
	var f *Failure
	if errors.As(err, &f) {
		return f.Category
	}
	return CategoryUnknown
}

// IsRetryable reports whether the adapter may retry after err.
func IsRetryable(err error) bool {
	var f *Failure
	if errors.As(err, &f) {
		return f.Retryable
	}
	return CategoryUnknown.Retryable()
}
