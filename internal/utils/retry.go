package utils

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/neurondb/NeuronQuery/api/internal/logging"
)

// RetryConfig defines retry behavior
type RetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// DefaultRetryConfig is three attempts starting at one second, doubling
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 1 * time.Second,
		MaxDelay:     10 * time.Second,
		Multiplier:   2.0,
	}
}

// RetryableFunc is a function that can be retried
type RetryableFunc func(ctx context.Context) error

// permanentError stops the retry loop
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Retry executes fn until it succeeds, returns a Permanent error, the
// attempts run out or ctx is done.
func Retry(ctx context.Context, logger *logging.Logger, config RetryConfig, operation string, fn RetryableFunc) error {
	if config.MaxAttempts < 1 {
		config.MaxAttempts = 1
	}
	if config.Multiplier < 1 {
		config.Multiplier = 1
	}

	var lastErr error
	delay := config.InitialDelay

	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		logger.Debug(fmt.Sprintf("Attempting %s (attempt %d/%d)", operation, attempt, config.MaxAttempts), nil)

		attemptErr := fn(ctx)
		if attemptErr == nil {
			if attempt > 1 {
				logger.Info(fmt.Sprintf("%s succeeded after %d attempts", operation, attempt), nil)
			}
			return nil
		}

		var perm *permanentError
		if errors.As(attemptErr, &perm) {
			return perm.err
		}

		lastErr = attemptErr
		logger.Warn(fmt.Sprintf("%s failed (attempt %d/%d)", operation, attempt, config.MaxAttempts), map[string]interface{}{
			"error": attemptErr.Error(),
		})

		// Don't wait after the last attempt
		if attempt < config.MaxAttempts {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
				delay = time.Duration(float64(delay) * config.Multiplier)
				if config.MaxDelay > 0 && delay > config.MaxDelay {
					delay = config.MaxDelay
				}
			}
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operation, config.MaxAttempts, lastErr)
}
