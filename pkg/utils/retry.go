package utils

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryOptions contains configuration for retry behavior.
type RetryOptions struct {
	MaxElapsedTime  time.Duration
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxRetries      uint64
}

// GetPlatformRetryOptions returns retry options for platform API calls:
// a single retry with a short backoff.
func GetPlatformRetryOptions() RetryOptions {
	return RetryOptions{
		MaxElapsedTime:  30 * time.Second,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     10 * time.Second,
		MaxRetries:      1,
	}
}

// GetUploadRetryOptions returns retry options for image host uploads.
func GetUploadRetryOptions() RetryOptions {
	return RetryOptions{
		MaxElapsedTime:  45 * time.Second,
		InitialInterval: time.Second,
		MaxInterval:     15 * time.Second,
		MaxRetries:      1,
	}
}

// WithRetry executes the given operation with exponential backoff using provided options.
func WithRetry[T any](ctx context.Context, operation func() (T, error), opts RetryOptions) (T, error) {
	var result T

	b := backoff.WithMaxRetries(backoff.NewExponentialBackOff(
		backoff.WithMaxElapsedTime(opts.MaxElapsedTime),
		backoff.WithInitialInterval(opts.InitialInterval),
		backoff.WithMaxInterval(opts.MaxInterval),
	), opts.MaxRetries)

	backoffOperation := func() error {
		var err error
		result, err = operation()

		return err
	}

	err := backoff.Retry(backoffOperation, backoff.WithContext(b, ctx))

	return result, err
}

// Permanent marks an error as non-retryable for WithRetry.
func Permanent(err error) error {
	return backoff.Permanent(err)
}
