package providers

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind is the closed taxonomy every adapter classifies its failures into.
// The Manager never sees a raw transport or vendor error, only one of these.
type ErrorKind int

const (
	// KindNone is the zero value; never attached to a returned error.
	KindNone ErrorKind = iota
	// KindInvalidAuth means the vendor rejected the credential outright.
	KindInvalidAuth
	// KindQuotaExceeded means the account's quota/credits are exhausted.
	KindQuotaExceeded
	// KindRateLimited means the vendor is throttling this credential.
	KindRateLimited
	// KindTransport means the request never got a vendor response (network,
	// DNS, TLS, or timeout).
	KindTransport
	// KindBadResponse means a non-2xx not covered above, or a 2xx with an
	// unparseable or empty body.
	KindBadResponse
	// KindFatal means a 4xx that signals misconfiguration, not a transient
	// condition; the provider should be disabled for the session.
	KindFatal
)

func (k ErrorKind) String() string {
	switch k {
	case KindInvalidAuth:
		return "invalid_auth"
	case KindQuotaExceeded:
		return "quota_exceeded"
	case KindRateLimited:
		return "rate_limited"
	case KindTransport:
		return "transport"
	case KindBadResponse:
		return "bad_response"
	case KindFatal:
		return "fatal"
	default:
		return "none"
	}
}

// TypedError is the single escape hatch an adapter uses to report failure.
type TypedError struct {
	Kind       ErrorKind
	Provider   string
	Message    string
	RetryAfter float64 // seconds; only meaningful for KindRateLimited
	Cause      error
}

func (e *TypedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %s: %v", e.Provider, e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s: %s", e.Provider, e.Kind, e.Message)
}

func (e *TypedError) Unwrap() error {
	return e.Cause
}

// AsTypedError extracts a *TypedError from an error chain, if present.
func AsTypedError(err error) (*TypedError, bool) {
	var te *TypedError
	if errors.As(err, &te) {
		return te, true
	}
	return nil, false
}

func newTypedError(provider string, kind ErrorKind, msg string, cause error) *TypedError {
	return &TypedError{Provider: provider, Kind: kind, Message: msg, Cause: cause}
}

// classifyHTTPStatus turns an HTTP status code plus response body into the
// closed error taxonomy, following the shared rule in §4.1: 401 is auth,
// 429 is rate limiting, 403 is split on body keywords between quota and
// rate limiting, and any other non-2xx 4xx is fatal.
func classifyHTTPStatus(provider string, status int, body []byte) *TypedError {
	lower := strings.ToLower(string(body))

	switch {
	case status == 401:
		return newTypedError(provider, KindInvalidAuth, "invalid or rejected credential", nil)
	case status == 429:
		return newTypedError(provider, KindRateLimited, "rate limit exceeded", nil)
	case status == 403:
		if containsAny(lower, "quota", "credits", "exhausted", "daily limit reached") {
			return newTypedError(provider, KindQuotaExceeded, "quota or credits exhausted", nil)
		}
		if strings.Contains(lower, "rate") {
			return newTypedError(provider, KindRateLimited, "rate limited", nil)
		}
		return newTypedError(provider, KindFatal, fmt.Sprintf("HTTP 403: %s", firstLine(string(body))), nil)
	case status >= 400 && status < 500:
		return newTypedError(provider, KindFatal, fmt.Sprintf("HTTP %d: %s", status, firstLine(string(body))), nil)
	default:
		return newTypedError(provider, KindBadResponse, fmt.Sprintf("HTTP %d: %s", status, firstLine(string(body))), nil)
	}
}

func containsAny(haystack string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		s = s[:idx]
	}
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}
