package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/raphaelgruber/omnimemory/internal/models"
)

// RetryPolicy configures RunWithRetry. MaxRetries counts total attempts.
type RetryPolicy struct {
	Timeout     time.Duration
	MaxRetries  int
	Delay       time.Duration
	Exponential bool
}

// RetryResult reports the outcome of RunWithRetry instead of a bare error.
type RetryResult struct {
	Success      bool
	AttemptCount int
	Duration     time.Duration
	Err          error
}

// DefaultPolicies are the retry policies for background tasks per kind.
var DefaultPolicies = map[models.TaskKind]RetryPolicy{
	models.TaskSearch:  {Timeout: 30 * time.Second, MaxRetries: 2, Delay: 500 * time.Millisecond, Exponential: true},
	models.TaskAgent:   {Timeout: 60 * time.Second, MaxRetries: 1, Delay: time.Second},
	models.TaskChat:    {Timeout: 30 * time.Second, MaxRetries: 2, Delay: 500 * time.Millisecond, Exponential: true},
	models.TaskSummary: {Timeout: 90 * time.Second, MaxRetries: 3, Delay: 2 * time.Second, Exponential: true},
}

// PolicyFor returns the default policy of kind, falling back to chat.
func PolicyFor(kind models.TaskKind) RetryPolicy {
	if p, ok := DefaultPolicies[kind]; ok {
		return p
	}
	return DefaultPolicies[models.TaskChat]
}

func (p RetryPolicy) backOff() backoff.BackOff {
	if p.Exponential {
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = p.Delay
		b.Multiplier = 2
		b.RandomizationFactor = 0
		b.MaxElapsedTime = 0
		b.Reset()
		return b
	}
	return backoff.NewConstantBackOff(p.Delay)
}

// RunWithRetry calls fn until it succeeds or the policy is exhausted. Each
// attempt gets its own timeout; an expired attempt fails with ErrTimeout and
// may be retried. Cancellation and validation errors are never retried.
func RunWithRetry(ctx context.Context, policy RetryPolicy, fn func(ctx context.Context) error) RetryResult {
	if policy.MaxRetries < 1 {
		policy.MaxRetries = 1
	}
	start := time.Now()
	attempts := 0

	op := func() error {
		attempts++
		actx, cancel := ctx, context.CancelFunc(func() {})
		if policy.Timeout > 0 {
			actx, cancel = context.WithTimeoutCause(ctx, policy.Timeout, models.ErrTimeout)
		}
		err := fn(actx)
		timedOut := errors.Is(context.Cause(actx), models.ErrTimeout)
		cancel()

		switch {
		case err == nil:
			return nil
		case ctx.Err() != nil:
			return backoff.Permanent(cancelledError(ctx.Err()))
		case timedOut:
			// The attempt context expired; whatever fn reported, this is a timeout.
			return fmt.Errorf("%w: attempt exceeded %s", models.ErrTimeout, policy.Timeout)
		case errors.Is(err, models.ErrCancelled), errors.Is(err, models.ErrValidation):
			return backoff.Permanent(err)
		}
		return err
	}

	b := backoff.WithContext(backoff.WithMaxRetries(policy.backOff(), uint64(policy.MaxRetries-1)), ctx)
	err := backoff.RetryNotify(op, b, func(err error, wait time.Duration) {
		slog.Debug("task attempt failed, retrying", "attempt", attempts, "wait_ms", wait.Milliseconds(), "error", err)
	})
	if err != nil && ctx.Err() != nil && !errors.Is(err, models.ErrCancelled) {
		err = cancelledError(ctx.Err())
	}

	return RetryResult{
		Success:      err == nil,
		AttemptCount: attempts,
		Duration:     time.Since(start),
		Err:          err,
	}
}

func cancelledError(cause error) error {
	if errors.Is(cause, models.ErrCancelled) {
		return cause
	}
	return fmt.Errorf("%w: %w", models.ErrCancelled, cause)
}
