package llm

import (
	"errors"
	"fmt"
	"strings"

	"github.com/raphaelgruber/omnimemory/internal/models"
)

// ErrFatalAPI marks provider errors that retrying will not fix, such as a
// bad key or exhausted quota. It wraps models.ErrProvider.
var ErrFatalAPI = fmt.Errorf("%w: fatal api error", models.ErrProvider)

// fatalMarkers are lowercase fragments of error messages that indicate the
// provider cannot serve requests until someone intervenes.
var fatalMarkers = []string{
	"credit balance",
	"rate limit",
	"quota",
	"billing",
	"invalid api key",
	"invalid x-api-key",
	"authentication",
	"unauthorized",
	"401",
	"403",
}

// isFatalAPIError reports whether err looks like an auth, quota or billing failure.
func isFatalAPIError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, m := range fatalMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

// wrapFatalError tags fatal errors with ErrFatalAPI and returns others as is.
func wrapFatalError(err error) error {
	if !isFatalAPIError(err) {
		return err
	}
	if errors.Is(err, ErrFatalAPI) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrFatalAPI, err)
}
