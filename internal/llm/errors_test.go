package llm

import (
	"errors"
	"fmt"
	"testing"

	"github.com/raphaelgruber/omnimemory/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestIsFatalAPIError(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		fatal bool
	}{
		{"nil error", nil, false},
		{"generic error", errors.New("connection reset"), false},
		{"credit balance", errors.New("insufficient credit balance"), true},
		{"rate limit", errors.New("rate limit exceeded"), true},
		{"quota exceeded", errors.New("quota exceeded for model"), true},
		{"billing issue", errors.New("billing account inactive"), true},
		{"invalid api key", errors.New("Invalid API Key"), true},
		{"anthropic key header", errors.New("invalid x-api-key"), true},
		{"authentication failed", errors.New("authentication failed"), true},
		{"unauthorized", errors.New("unauthorized request"), true},
		{"401 status", errors.New("HTTP 401: not allowed"), true},
		{"403 status", errors.New("HTTP 403: forbidden"), true},
		{"wrapped error", fmt.Errorf("complete: %w", errors.New("credit balance too low")), true},
		{"404 not fatal", errors.New("HTTP 404: not found"), false},
		{"timeout not fatal", errors.New("context deadline exceeded"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.fatal, isFatalAPIError(tt.err))
		})
	}
}

func TestWrapFatalError(t *testing.T) {
	t.Run("wraps fatal error", func(t *testing.T) {
		wrapped := wrapFatalError(errors.New("invalid api key provided"))
		assert.ErrorIs(t, wrapped, ErrFatalAPI)
		assert.ErrorIs(t, wrapped, models.ErrProvider)
	})

	t.Run("does not wrap twice", func(t *testing.T) {
		once := wrapFatalError(errors.New("quota exceeded"))
		assert.Same(t, once, wrapFatalError(once))
	})

	t.Run("passes through non-fatal error", func(t *testing.T) {
		err := errors.New("network timeout")
		result := wrapFatalError(err)
		assert.NotErrorIs(t, result, ErrFatalAPI)
		assert.Equal(t, err, result)
	})

	t.Run("nil error", func(t *testing.T) {
		assert.NoError(t, wrapFatalError(nil))
	})
}
