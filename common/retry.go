package common

import (
	"fmt"
	"math/rand"
	"strings"
	"time"
)

// RetryStrategy defines different backoff strategies for retries
type RetryStrategy string

const (
	// ExponentialBackoff uses exponential backoff: initialDelay * 2^attempt
	ExponentialBackoff RetryStrategy = "exponential"
	// LinearBackoff uses linear backoff with jitter: initialDelay * (attempt + 1) + jitter
	LinearBackoff RetryStrategy = "linear"
	// FixedDelay uses a fixed delay between retries
	FixedDelay RetryStrategy = "fixed"
)

// RetryConfig contains configuration for retry behavior. Retries are opt-in:
// the dispatcher only consults this when EnableRetries was called on the
// service.
type RetryConfig struct {
	// MaxRetries is the maximum number of attempts (default: 3)
	MaxRetries int
	// InitialDelay is the initial delay between retries (default: 1 second)
	InitialDelay time.Duration
	// MaxDelay caps the delay between retries (default: 30 seconds)
	MaxDelay time.Duration
	// Strategy defines the backoff strategy (default: ExponentialBackoff)
	Strategy RetryStrategy
	// Jitter adds randomness to delays to avoid thundering herd (default: true)
	Jitter bool
	// RetryableErrorChecker determines if an error should be retried.
	// When nil every error is retried.
	RetryableErrorChecker func(error) bool
	// OperationName is used in error messages to identify the operation
	OperationName string
}

// DefaultRetryConfig returns a retry configuration suitable for outbound
// API requests.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:            3,
		InitialDelay:          1 * time.Second,
		MaxDelay:              30 * time.Second,
		Strategy:              ExponentialBackoff,
		Jitter:                true,
		RetryableErrorChecker: IsRetryableError,
		OperationName:         "request",
	}
}

// RetryWithConfig executes a function with retry logic based on the provided
// configuration.
func RetryWithConfig[T any](config RetryConfig, operation func() (T, error)) (T, error) {
	var lastErr error
	var zeroValue T

	if config.MaxRetries < 1 {
		config.MaxRetries = 1
	}

	for attempt := 0; attempt < config.MaxRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(calculateDelay(config, attempt))
		}

		result, err := operation()
		if err == nil {
			return result, nil
		}

		if config.RetryableErrorChecker != nil && !config.RetryableErrorChecker(err) {
			return zeroValue, err
		}

		lastErr = err
	}

	return zeroValue, fmt.Errorf("%s failed after %d attempts: %w", config.OperationName, config.MaxRetries, lastErr)
}

// calculateDelay calculates the delay for the next retry attempt
func calculateDelay(config RetryConfig, attempt int) time.Duration {
	var delay time.Duration

	switch config.Strategy {
	case LinearBackoff:
		delay = time.Duration(attempt+1) * config.InitialDelay
	case FixedDelay:
		delay = config.InitialDelay
	default:
		// 2^attempt * initialDelay
		delay = time.Duration(1<<uint(attempt)) * config.InitialDelay
	}

	if delay > config.MaxDelay {
		delay = config.MaxDelay
	}

	if config.Jitter && config.Strategy != FixedDelay {
		jitterRange := float64(delay) * 0.30 // ±30% jitter
		delay += time.Duration(jitterRange * (rand.Float64()*2 - 1))
		if delay < 0 {
			delay = config.InitialDelay / 2
		}
	}

	return delay
}

// IsRetryableError determines if an error should be retried based on common
// transport failure patterns and throttling/server status codes.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	retryablePatterns := []string{
		"timeout",
		"connection refused",
		"connection reset",
		"network is unreachable",
		"temporary failure",
		"rate limit",
		"too many requests",
		"service unavailable",
		"bad gateway",
		"gateway timeout",
		"deadline exceeded",
		"429",
		"500",
		"502",
		"503",
		"504",
	}

	errStr := strings.ToLower(err.Error())
	for _, pattern := range retryablePatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}
	return false
}
