// Package db provides error types for database operations.
package db

import (
	"errors"
	"fmt"
	"strings"

	"github.com/raphaelgruber/omnimemory/internal/models"
	"github.com/surrealdb/surrealdb.go"
)

// Sentinel errors for database operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrRecordAlreadyExists indicates a record with the same ID already exists.
	ErrRecordAlreadyExists = errors.New("record already exists")

	// ErrTransactionConflict indicates a SurrealDB transaction conflict.
	// This occurs when multiple concurrent operations attempt to modify the same records.
	// Callers should typically retry or skip the operation.
	ErrTransactionConflict = errors.New("transaction conflict")

	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = models.ErrNotFound
)

// wrapQueryError inspects a SurrealDB error and wraps it with the appropriate
// sentinel error. Every non-nil result also matches models.ErrStorage.
func wrapQueryError(op string, err error) error {
	if err == nil {
		return nil
	}

	var queryErr *surrealdb.QueryError
	if errors.As(err, &queryErr) {
		msg := queryErr.Message
		if strings.Contains(msg, "already exists") {
			return fmt.Errorf("%s: %w: %w: %s", op, models.ErrStorage, ErrRecordAlreadyExists, msg)
		}
		if strings.Contains(msg, "Transaction conflict") {
			return fmt.Errorf("%s: %w: %w: %s", op, models.ErrStorage, ErrTransactionConflict, msg)
		}
	}

	return fmt.Errorf("%s: %w: %w", op, models.ErrStorage, err)
}
