// Package retry provides bounded backoff retry logic for transient failures.
//
// # Overview
//
// This package offers a minimal retry mechanism with linear or exponential
// backoff, designed to handle transient failures in HTTP fetches and resource
// initialization. Linear backoff (delay * attemptNumber) is the default and
// matches the client's retry contract; exponential backoff is available for
// startup and infrastructure paths.
//
// # Core Functions
//
//   - Do: Execute function with retry and backoff
//   - DoWithResult: Execute function with retry, returns both result and error
//
// # Configuration Presets
//
//   - DefaultConfig(): 3 attempts, linear 1s base delay (fetch operations)
//   - Quick(): 10 attempts, exponential 50ms-1s delay (startup)
//   - Persistent(): 30 attempts, exponential 200ms-10s delay (critical resources)
//
// # Usage Examples
//
// Basic retry with defaults:
//
//	err := retry.Do(ctx, retry.DefaultConfig(), func() error {
//	    return doFetch()
//	})
//
// Retry with result:
//
//	payload, err := retry.DoWithResult(ctx, retry.DefaultConfig(), func() (json.RawMessage, error) {
//	    return fetchOnce(ctx)
//	})
//
// Custom configuration:
//
//	cfg := retry.Config{
//	    MaxAttempts:  5,
//	    InitialDelay: 200 * time.Millisecond,
//	    MaxDelay:     10 * time.Second,
//	    Backoff:      retry.BackoffExponential,
//	    Multiplier:   2.0,
//	    AddJitter:    true,
//	}
//	err := retry.Do(ctx, cfg, operation)
//
// # Non-Retryable Errors
//
// Wrap an error with NonRetryable to stop the loop immediately; the caller
// decides which failures are eligible for re-attempt (the errors package maps
// HTTP 4xx and JSON parse failures to non-retryable).
//
// # Context Cancellation
//
// All retry operations respect context cancellation and will immediately stop
// retrying when the context is cancelled, either during operation execution or
// during backoff delay.
//
// # Thread Safety
//
// All functions are safe for concurrent use. The jitter mechanism uses a
// thread-safe random source to avoid contention.
package retry
