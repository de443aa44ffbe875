package models

import (
	"errors"
	"fmt"
)

// Sentinel errors shared across packages.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrValidation indicates a malformed request. Never retried.
	ErrValidation = errors.New("validation error")

	// ErrProvider indicates an embedding or completion provider failure.
	ErrProvider = errors.New("provider error")

	// ErrAllProvidersFailed is returned when every provider in a chain failed.
	ErrAllProvidersFailed = fmt.Errorf("%w: all providers failed", ErrProvider)

	// ErrStorage indicates a durable read or write failure.
	ErrStorage = errors.New("storage error")

	// ErrTimeout indicates a task ran past its deadline.
	ErrTimeout = errors.New("timeout")

	// ErrCancelled indicates a caller or tab-close abort. Never retried.
	ErrCancelled = errors.New("cancelled")

	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("not found")
)
