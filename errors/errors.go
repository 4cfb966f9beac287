// Package errors provides standardized error handling patterns for FetchKit.
// It includes failure classification for HTTP fetch operations, standard error
// variables, and helper functions for consistent error wrapping across the
// client, cache, and limiter packages.
package errors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/c360/fetchkit/pkg/retry"
)

// Category classifies a fetch failure for retry and reporting decisions.
type Category int

const (
	// CategoryNetwork represents connection-level failures (dial, reset, DNS).
	CategoryNetwork Category = iota
	// CategoryTimeout represents requests cancelled by the per-request deadline.
	CategoryTimeout
	// CategoryServerError represents HTTP 5xx responses.
	CategoryServerError
	// CategoryClientError represents HTTP 4xx responses.
	CategoryClientError
	// CategoryParseError represents response bodies that are not valid JSON.
	CategoryParseError
)

// String returns the wire representation of the category.
func (c Category) String() string {
	switch c {
	case CategoryNetwork:
		return "network"
	case CategoryTimeout:
		return "timeout"
	case CategoryServerError:
		return "server_error"
	case CategoryClientError:
		return "client_error"
	case CategoryParseError:
		return "parse_error"
	default:
		return "unknown"
	}
}

// Retryable reports whether failures of this category are eligible for
// automatic re-attempt. Only network, timeout and 5xx failures retry;
// 4xx and parse failures propagate immediately.
func (c Category) Retryable() bool {
	switch c {
	case CategoryNetwork, CategoryTimeout, CategoryServerError:
		return true
	default:
		return false
	}
}

// Standard error variables for common conditions
var (
	// Client lifecycle errors
	ErrClientClosed   = errors.New("client closed")
	ErrAlreadyStarted = errors.New("already started")
	ErrNotStarted     = errors.New("not started")

	// Request validation errors
	ErrEmptyEndpoint = errors.New("endpoint cannot be empty")
	ErrInvalidData   = errors.New("invalid data format")

	// Configuration errors
	ErrInvalidConfig = errors.New("invalid configuration")
	ErrMissingConfig = errors.New("missing required configuration")

	// Queue and limiter errors
	ErrQueueClosed        = errors.New("request queue closed")
	ErrMaxRetriesExceeded = errors.New("maximum retries exceeded")
)

// RequestError wraps a fetch failure with its classification and enough
// request context for the caller to decide how to surface it.
type RequestError struct {
	Category   Category
	Err        error
	Message    string
	Endpoint   string
	StatusCode int           // 0 when no HTTP response was received
	Duration   time.Duration // Wall time from first attempt to final failure
	Attempts   int           // Total network attempts made
}

// Error implements the error interface
func (re *RequestError) Error() string {
	if re.Message != "" {
		return re.Message
	}
	return re.Err.Error()
}

// Unwrap returns the underlying error
func (re *RequestError) Unwrap() error {
	return re.Err
}

// newRequest creates a new classified request error.
// This is an internal helper - use the Wrap* constructors instead.
func newRequest(category Category, err error, endpoint, message string) *RequestError {
	return &RequestError{
		Category: category,
		Err:      err,
		Message:  message,
		Endpoint: endpoint,
	}
}

// WrapNetwork wraps a connection-level failure with request context.
func WrapNetwork(err error, endpoint string) error {
	if err == nil {
		return nil
	}
	return newRequest(CategoryNetwork, err, endpoint,
		fmt.Sprintf("%s: network failure: %v", endpoint, err))
}

// WrapTimeout wraps a deadline failure with request context.
func WrapTimeout(err error, endpoint string) error {
	if err == nil {
		return nil
	}
	return newRequest(CategoryTimeout, err, endpoint,
		fmt.Sprintf("%s: request timed out: %v", endpoint, err))
}

// WrapStatus classifies a non-2xx HTTP response. 5xx become server_error
// (retryable), everything else client_error.
func WrapStatus(endpoint string, statusCode int, status string) error {
	category := CategoryClientError
	if statusCode >= 500 {
		category = CategoryServerError
	}
	re := newRequest(category, fmt.Errorf("HTTP %d: %s", statusCode, status), endpoint,
		fmt.Sprintf("%s: HTTP %d: %s", endpoint, statusCode, status))
	re.StatusCode = statusCode
	return re
}

// WrapParse wraps a JSON decode failure with request context.
func WrapParse(err error, endpoint string) error {
	if err == nil {
		return nil
	}
	return newRequest(CategoryParseError, err, endpoint,
		fmt.Sprintf("%s: invalid JSON response: %v", endpoint, err))
}

// IsRetryable checks whether an error is eligible for automatic re-attempt.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	// Check for classified request error
	var re *RequestError
	if errors.As(err, &re) {
		return re.Category.Retryable()
	}

	// Per-attempt deadlines surface as retryable timeouts; the retry loop
	// itself stops separately when the caller's context is cancelled.
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	// Check error message for common transient patterns
	errStr := strings.ToLower(err.Error())
	transientPatterns := []string{
		"timeout",
		"connection",
		"network",
		"temporary",
		"unavailable",
		"busy",
	}
	for _, pattern := range transientPatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	return false
}

// CategoryOf returns the classification of an error. Unclassified errors
// default to network so that unknown transport failures stay retryable.
func CategoryOf(err error) Category {
	var re *RequestError
	if errors.As(err, &re) {
		return re.Category
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return CategoryTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return CategoryTimeout
	}
	return CategoryNetwork
}

// AsRequestError extracts the classified request error, if any.
func AsRequestError(err error) (*RequestError, bool) {
	var re *RequestError
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}

// Wrap creates a standardized error with context following the pattern:
// "component.method: action failed: %w"
func Wrap(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s.%s: %s failed: %w", component, method, action, err)
}

// WrapInvalid wraps an error for invalid input or configuration with context.
// These are marked non-retryable for the retry framework.
func WrapInvalid(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	return retry.NonRetryable(Wrap(err, component, method, action))
}

// RetryPolicy defines configuration for retry operations on fetch failures.
type RetryPolicy struct {
	MaxRetries int           // Additional attempts beyond the first
	Delay      time.Duration // Base delay; grows linearly with attempt number
	MaxDelay   time.Duration
}

// DefaultRetryPolicy returns the client's default retry behavior:
// 2 extra attempts with a linearly increasing 1s base delay.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 2,
		Delay:      time.Second,
		MaxDelay:   30 * time.Second,
	}
}

// ToRetryConfig converts the policy to the retry framework's Config type.
// The conversion adds 1 to MaxRetries (converting "additional attempts" to
// "total attempts") and selects linear backoff to match the client contract.
func (rp RetryPolicy) ToRetryConfig() retry.Config {
	return retry.Config{
		MaxAttempts:  rp.MaxRetries + 1,
		InitialDelay: rp.Delay,
		MaxDelay:     rp.MaxDelay,
		Backoff:      retry.BackoffLinear,
	}
}

// ShouldRetry determines if an error should be retried at the given attempt.
func (rp RetryPolicy) ShouldRetry(err error, attempt int) bool {
	if err == nil || attempt >= rp.MaxRetries {
		return false
	}
	return IsRetryable(err)
}
