package client

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const (
	// DefaultMaxRetries is the default number of retry attempts
	DefaultMaxRetries = 3
	// BaseDelay is the base delay for exponential backoff (500ms)
	BaseDelay = 500 * time.Millisecond
	// MaxDelay is the maximum delay between retries (30s)
	MaxDelay = 30 * time.Second
)

// RetryConfig holds retry configuration
type RetryConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// DefaultRetryConfig returns default retry configuration
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxRetries: DefaultMaxRetries,
		BaseDelay:  BaseDelay,
		MaxDelay:   MaxDelay,
	}
}

// RetryableOperation is a function that can be retried
type RetryableOperation func() error

// IsRetryable determines if an error should trigger a retry
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}

	switch ClassifyError(err) {
	case ErrorCategoryNetwork, ErrorCategoryTimeout, ErrorCategoryServer, ErrorCategoryRateLimit:
		return true
	default:
		return false
	}
}

// RetryWithBackoff executes an operation with exponential backoff retry logic.
// Non-retryable errors are returned unwrapped so callers can inspect them.
func RetryWithBackoff(ctx context.Context, config *RetryConfig, operation RetryableOperation) error {
	if config == nil {
		config = DefaultRetryConfig()
	}

	var lastErr error

	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		err := operation()
		if err == nil {
			return nil
		}

		lastErr = err

		if !IsRetryable(err) {
			return err
		}

		// Don't sleep on last attempt
		if attempt == config.MaxRetries {
			break
		}

		delay := config.BaseDelay * time.Duration(1<<attempt)
		if delay > config.MaxDelay {
			delay = config.MaxDelay
		}

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return fmt.Errorf("retry cancelled: %w", ctx.Err())
		}
	}

	return fmt.Errorf("max retries (%d) exceeded: %w", config.MaxRetries, lastErr)
}
