package resilience

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"audiocorpus/internal/logging"
	"audiocorpus/internal/services"
)

// RetryPolicy configures Retry.
type RetryPolicy struct {
	Attempts int
	Backoff  time.Duration
	Logger   *slog.Logger
	// Sleep waits between attempts; tests replace it.
	Sleep func(context.Context, time.Duration) error
}

// Retry calls fn until it succeeds, the attempt budget is spent, ctx ends, or
// fn returns a systemic error. Attempt n (1-based) that fails waits
// n × Backoff before the next one. Exhausted budgets return the last error
// tagged with services.ErrTransient.
func Retry(ctx context.Context, policy RetryPolicy, operation string, fn func(context.Context) error) error {
	attempts := max(1, policy.Attempts)
	sleep := policy.Sleep
	if sleep == nil {
		sleep = Sleep
	}
	logger := logging.NewComponentLogger(policy.Logger, "retry")

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		if services.IsSystemic(err) || errors.Is(err, context.Canceled) {
			return err
		}
		if attempt == attempts {
			break
		}
		delay := time.Duration(attempt) * policy.Backoff
		logger.Warn("retrying after failure",
			logging.String("operation", operation),
			logging.Int("attempt", attempt),
			logging.Int("attempts", attempts),
			logging.Duration("backoff", delay),
			logging.Error(err),
			logging.String(logging.FieldEventType, "retry"),
			logging.String(logging.FieldErrorHint, services.Hint(err)),
			logging.String(logging.FieldImpact, "operation will be retried"),
		)
		if err := sleep(ctx, delay); err != nil {
			return err
		}
	}
	if errors.Is(lastErr, services.ErrTransient) {
		return lastErr
	}
	return services.Wrap(services.ErrTransient, "", operation, "retries exhausted", lastErr)
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
