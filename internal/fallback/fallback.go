// Package fallback implements ordered "first success wins" iteration over
// interchangeable providers.
package fallback

import (
	"context"
	"errors"
	"fmt"

	"github.com/raphaelgruber/omnimemory/internal/models"
)

// Attempt records the failure of one provider in a chain.
type Attempt struct {
	Index int
	Err   error
}

// Error aggregates every failed attempt of an exhausted chain.
// It matches models.ErrAllProvidersFailed via errors.Is.
type Error struct {
	Attempts []Attempt
}

func (e *Error) Error() string {
	if len(e.Attempts) == 0 {
		return models.ErrAllProvidersFailed.Error() + ": no providers configured"
	}
	return fmt.Sprintf("%s: %v", models.ErrAllProvidersFailed, errors.Join(e.Errs()...))
}

// Errs returns the individual provider errors in chain order.
func (e *Error) Errs() []error {
	errs := make([]error, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		errs = append(errs, a.Err)
	}
	return errs
}

func (e *Error) Is(target error) bool {
	return target == models.ErrAllProvidersFailed || target == models.ErrProvider
}

// First calls fn for each provider in order and returns the first successful
// result together with the index of the provider that produced it.
// Context cancellation stops the iteration immediately and is returned as is.
func First[P, T any](ctx context.Context, providers []P, fn func(context.Context, P) (T, error)) (T, int, error) {
	var zero T
	agg := &Error{}
	for i, p := range providers {
		if err := ctx.Err(); err != nil {
			return zero, -1, err
		}
		out, err := fn(ctx, p)
		if err == nil {
			return out, i, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return zero, -1, ctxErr
		}
		agg.Attempts = append(agg.Attempts, Attempt{Index: i, Err: err})
	}
	return zero, -1, agg
}
