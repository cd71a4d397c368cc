package types

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"
	"unicode/utf8"
)

// DefaultRetryAfter is used when a provider rate limits without a usable Retry-After header
const DefaultRetryAfter = 60 * time.Second

const maxRawLen = 500

// InvalidImageError reports an image that cannot be encoded. Not retryable.
type InvalidImageError struct {
	Reason string
	Err    error
}

func (e *InvalidImageError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid image: %s: %v", e.Reason, e.Err)
	}
	return "invalid image: " + e.Reason
}

func (e *InvalidImageError) Unwrap() error {
	return e.Err
}

// NewInvalidImageError creates an InvalidImageError
func NewInvalidImageError(reason string, err error) *InvalidImageError {
	return &InvalidImageError{Reason: reason, Err: err}
}

// ServiceError reports a transport or remote failure of the reasoning service
type ServiceError struct {
	Provider   string
	StatusCode int
	RetryAfter time.Duration
	Err        error
}

func (e *ServiceError) Error() string {
	switch {
	case e.RetryAfter > 0:
		return fmt.Sprintf("%s rate limited (retry after %s): %v", e.Provider, e.RetryAfter, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s service error (status %d): %v", e.Provider, e.StatusCode, e.Err)
	default:
		return fmt.Sprintf("%s service error: %v", e.Provider, e.Err)
	}
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// NewServiceError creates a ServiceError for a failed call
func NewServiceError(provider string, statusCode int, err error) *ServiceError {
	return &ServiceError{Provider: provider, StatusCode: statusCode, Err: err}
}

// NewRateLimitError creates a ServiceError for HTTP 429. If retryAfterSecs is 0, DefaultRetryAfter is used.
func NewRateLimitError(provider string, err error, retryAfterSecs int) *ServiceError {
	retryAfter := DefaultRetryAfter
	if retryAfterSecs > 0 {
		retryAfter = time.Duration(retryAfterSecs) * time.Second
	}
	return &ServiceError{
		Provider:   provider,
		StatusCode: 429,
		RetryAfter: retryAfter,
		Err:        err,
	}
}

// ParseRetryAfterHeader parses a Retry-After header value into seconds.
// Returns 0 if the value is empty or not a valid integer.
func ParseRetryAfterHeader(val string) int {
	if val == "" {
		return 0
	}
	secs, err := strconv.Atoi(val)
	if err != nil {
		return 0
	}
	return secs
}

// MalformedResponseError reports response text that does not satisfy the response schema.
// Fingerprint identifies the exact text so repeated identical failures can be told apart.
type MalformedResponseError struct {
	Reason      string
	Raw         string
	Fingerprint string
	Err         error
}

func (e *MalformedResponseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed response: %s: %v", e.Reason, e.Err)
	}
	return "malformed response: " + e.Reason
}

func (e *MalformedResponseError) Unwrap() error {
	return e.Err
}

// NewMalformedResponseError creates a MalformedResponseError for raw response text
func NewMalformedResponseError(raw, reason string, err error) *MalformedResponseError {
	sum := sha256.Sum256([]byte(raw))
	return &MalformedResponseError{
		Reason:      reason,
		Raw:         Truncate(raw, maxRawLen),
		Fingerprint: hex.EncodeToString(sum[:]),
		Err:         err,
	}
}

// IsRetryable reports whether a caller may reasonably try the analysis again
func IsRetryable(err error) bool {
	var svcErr *ServiceError
	var malErr *MalformedResponseError
	return errors.As(err, &svcErr) || errors.As(err, &malErr)
}

// Error kinds reported by Kind
const (
	KindInvalidImage      = "invalid_image"
	KindServiceError      = "service_error"
	KindMalformedResponse = "malformed_response"
)

// Kind names the typed error in err's chain, or returns "" for untyped errors
func Kind(err error) string {
	var (
		invalid   *InvalidImageError
		malformed *MalformedResponseError
		svcErr    *ServiceError
	)

	switch {
	case errors.As(err, &invalid):
		return KindInvalidImage
	case errors.As(err, &malformed):
		return KindMalformedResponse
	case errors.As(err, &svcErr):
		return KindServiceError
	default:
		return ""
	}
}

// Truncate shortens s to at most maxLen bytes plus an ellipsis, never splitting a UTF-8 sequence
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
