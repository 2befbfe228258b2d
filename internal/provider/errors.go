package provider

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind classifies a vendor error so callers branch on a typed value
// instead of matching substrings of the response body.
type ErrorKind int

const (
	// KindOther covers everything the taxonomy does not name.
	KindOther ErrorKind = iota
	// KindNotFound is the vendor's 404-equivalent. Lookups treat it as
	// "absent"; deletes treat it as success.
	KindNotFound
	// KindConflict means the resource already exists; converge via update.
	KindConflict
	// KindRateLimited covers 429 and retry-after style responses.
	KindRateLimited
	// KindUnauthorized covers bad or expired credentials.
	KindUnauthorized
	// KindTransient covers 5xx and timeouts.
	KindTransient
)

func (k ErrorKind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindRateLimited:
		return "rate_limited"
	case KindUnauthorized:
		return "unauthorized"
	case KindTransient:
		return "transient"
	default:
		return "other"
	}
}

// Error is a structured vendor error.
type Error struct {
	Kind     ErrorKind
	Provider string
	Op       string
	Status   int
	Message  string
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: %s: %s (status %d): %s", e.Provider, e.Op, e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s: %s", e.Provider, e.Op, e.Kind, e.Message)
}

// KindFromStatus maps an HTTP status code onto the error taxonomy.
func KindFromStatus(status int) ErrorKind {
	switch {
	case status == http.StatusNotFound || status == http.StatusGone:
		return KindNotFound
	case status == http.StatusConflict || status == http.StatusUnprocessableEntity:
		return KindConflict
	case status == http.StatusTooManyRequests:
		return KindRateLimited
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return KindUnauthorized
	case status >= 500:
		return KindTransient
	default:
		return KindOther
	}
}

// IsNotFound reports whether err is a vendor 404-equivalent.
func IsNotFound(err error) bool {
	return kindOf(err) == KindNotFound
}

// IsConflict reports whether err is an already-exists conflict.
func IsConflict(err error) bool {
	return kindOf(err) == KindConflict
}

// IsRetryable reports whether a read operation should be retried.
func IsRetryable(err error) bool {
	k := kindOf(err)
	return k == KindRateLimited || k == KindTransient
}

func kindOf(err error) ErrorKind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindOther
}

// ConfigError marks a provider that cannot run at all this pass (missing
// credentials or client setup). The driver skips the whole provider and
// logs once, instead of failing every user unit.
type ConfigError struct {
	Provider string
	Err      error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s: provider not configured: %v", e.Provider, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }
