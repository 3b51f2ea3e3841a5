package stockimport

import (
	"errors"
	"strings"
)

// Sentinel errors for common failure scenarios.
// These enable callers to distinguish error types using errors.Is().
//
// Example usage:
//
//	report, err := svc.Run(ctx, src, cfg)
//	if errors.Is(err, stockimport.ErrConnectionFailed) {
//	    // the run stopped early, report holds the chunks seen so far
//	}
var (
	// ErrInvalidConfig indicates the provided configuration is invalid.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrSourceUnavailable indicates the source file could not be opened or read.
	ErrSourceUnavailable = errors.New("source unavailable")

	// ErrPartialFailure indicates at least one chunk did not commit.
	ErrPartialFailure = errors.New("import partially failed")

	// ErrUnsupportedAuthMethod indicates the requested authentication method is not supported.
	ErrUnsupportedAuthMethod = errors.New("unsupported authentication method")

	// ErrConnectionFailed indicates the database connection failed or was lost.
	ErrConnectionFailed = errors.New("connection failed")
)

var usageErrorPatterns = []string{
	"unknown flag",
	"unknown shorthand flag",
	"unknown command",
	"accepts ",
	"requires at least",
	"required flag",
	"invalid argument",
}

// ExitCodeForError returns the appropriate exit code for an error.
// Returns ExitSuccess (0) for nil errors, semantic codes for known errors,
// and ExitGeneralError (1) for unclassified errors.
func ExitCodeForError(err error) int {
	if err == nil {
		return ExitSuccess
	}

	switch {
	case errors.Is(err, ErrInvalidConfig):
		return ExitConfigError
	case errors.Is(err, ErrUnsupportedAuthMethod):
		return ExitConfigError
	case errors.Is(err, ErrConnectionFailed):
		return ExitConnectionError
	case errors.Is(err, ErrSourceUnavailable):
		return ExitSourceUnavailable
	case errors.Is(err, ErrPartialFailure):
		return ExitPartialFailure
	}

	errStr := err.Error()
	for _, p := range usageErrorPatterns {
		if strings.HasPrefix(errStr, p) {
			return ExitUsageError
		}
	}

	if strings.Contains(errStr, "failed to connect") ||
		strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "no such host") {
		return ExitConnectionError
	}

	return ExitGeneralError
}
