package stockimport

import "time"

// Exit codes for semantic error classification.
// These follow Unix/GNU conventions:
//   - 0: Success
//   - 1: General error
//   - 2: CLI usage error (misuse of command line)
//   - 3+: Application-specific errors
const (
	ExitSuccess           = 0  // Import completed and every chunk committed
	ExitGeneralError      = 1  // Unknown or unclassified error
	ExitUsageError        = 2  // CLI usage error (missing args, invalid flags)
	ExitPanic             = 3  // Internal panic (unexpected crash)
	ExitConfigError       = 10 // Invalid configuration or parameters
	ExitConnectionError   = 11 // Failed to connect to database
	ExitPartialFailure    = 13 // At least one chunk was rolled back or skipped
	ExitSourceUnavailable = 14 // Source file could not be opened or read
)

const (
	// DefaultChunkSize is the number of records written per staging/merge cycle.
	DefaultChunkSize = 5000

	// DefaultChunkRetries is how many times a chunk that failed with a
	// transient, non-connection error is re-run in a fresh transaction.
	DefaultChunkRetries = 2

	// DefaultTable is the permanent table records are merged into.
	DefaultTable = "stock_prices"

	// DefaultRetryInitialDelay is the default initial delay before the first retry attempt.
	DefaultRetryInitialDelay = 100 * time.Millisecond

	// DefaultRetryMaxDelay is the default maximum delay between retry attempts.
	DefaultRetryMaxDelay = 1 * time.Minute

	// DefaultRetryMaxAttempts is the default maximum number of connection retry attempts.
	DefaultRetryMaxAttempts = 3

	// DefaultTimeout bounds a whole import run.
	DefaultTimeout = 30 * time.Minute

	// DefaultSFTPPort is the port used when the file storage host omits one.
	DefaultSFTPPort = 22

	// MaxErrorPreviewLength is the maximum number of characters of a raw
	// value echoed back in row diagnostics.
	MaxErrorPreviewLength = 64
)
