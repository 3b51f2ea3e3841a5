package retry

import (
	"errors"
	"net"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgconn"
)

// PostgreSQL error codes for transient conditions
// See: https://www.postgresql.org/docs/current/errcodes-appendix.html
const (
	// Class 40 - Transaction Rollback
	pgCodeSerializationFailure = "40001"
	pgCodeDeadlockDetected     = "40P01"

	// Class 55 - Object Not In Prerequisite State
	pgCodeLockNotAvailable = "55P03"

	// Class 57 - Operator Intervention
	pgCodeQueryCanceled = "57014"
)

// Error classes that mean the session is gone or unusable.
var connectionClasses = []string{
	"08", // Connection Exception
	"57", // Operator Intervention (admin shutdown, crash shutdown, cannot connect now)
}

// Error classes worth retrying at connect time: the server is up but busy.
var resourceClasses = []string{
	"53", // Insufficient Resources
}

// Codes that abort one transaction but leave the session usable.
var transactionCodes = map[string]bool{
	pgCodeSerializationFailure: true,
	pgCodeDeadlockDetected:     true,
	pgCodeLockNotAvailable:     true,
}

var connectionPatterns = []string{
	"connection refused",
	"connection reset",
	"connection timeout",
	"connection failure",
	"failed to connect",
	"no such host",
	"network is unreachable",
	"i/o timeout",
	"broken pipe",
	"too many connections",
	"server closed the connection",
	"unexpected eof",
	"conn closed",
	"closed pool",
	"connection pool exhausted",
}

// PostgreSQLErrorClassifier implements ErrorClassifier for PostgreSQL-specific errors.
// It answers two questions: is the error worth retrying at connect time
// (IsTransient) and did the session itself go away (IsConnectionError).
type PostgreSQLErrorClassifier struct{}

// NewPostgreSQLErrorClassifier creates a new PostgreSQL error classifier.
func NewPostgreSQLErrorClassifier() *PostgreSQLErrorClassifier {
	return &PostgreSQLErrorClassifier{}
}

// IsTransient determines if an error is temporary and retryable.
func (c *PostgreSQLErrorClassifier) IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return hasClass(pgErr.Code, connectionClasses) ||
			hasClass(pgErr.Code, resourceClasses) ||
			transactionCodes[pgErr.Code]
	}

	if c.IsConnectionError(err) {
		return true
	}

	// May be transient if the deadline came from an outer timeout.
	return strings.Contains(strings.ToLower(err.Error()), "context deadline exceeded")
}

// IsConnectionError reports whether err means the database session was lost
// or could not be established. Such errors are fatal for an import run.
func (c *PostgreSQLErrorClassifier) IsConnectionError(err error) bool {
	if err == nil {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code != pgCodeQueryCanceled && hasClass(pgErr.Code, connectionClasses)
	}

	if isNetworkError(err) {
		return true
	}

	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return true
	}

	errMsg := strings.ToLower(err.Error())
	for _, pattern := range connectionPatterns {
		if strings.Contains(errMsg, pattern) {
			return true
		}
	}
	return false
}

// IsTransactionConflict reports whether err aborted only the current
// transaction (serialization failure, deadlock, lock timeout).
func (c *PostgreSQLErrorClassifier) IsTransactionConflict(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && transactionCodes[pgErr.Code]
}

// ChunkClassifier marks transaction conflicts as retryable and everything
// else, connection losses included, as fatal for the chunk.
type ChunkClassifier struct {
	pg *PostgreSQLErrorClassifier
}

// NewChunkClassifier creates a classifier for re-running chunk transactions.
func NewChunkClassifier() *ChunkClassifier {
	return &ChunkClassifier{pg: NewPostgreSQLErrorClassifier()}
}

// IsTransient implements stockimport.ErrorClassifier.
func (c *ChunkClassifier) IsTransient(err error) bool {
	return c.pg.IsTransactionConflict(err) && !c.pg.IsConnectionError(err)
}

func hasClass(code string, classes []string) bool {
	for _, class := range classes {
		if strings.HasPrefix(code, class) {
			return true
		}
	}
	return false
}

// isNetworkError checks for network-level errors.
func isNetworkError(err error) bool {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.Temporary() || dnsErr.Timeout()
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		if opErr.Timeout() {
			return true
		}
		for _, errno := range []syscall.Errno{syscall.ECONNREFUSED, syscall.ECONNRESET, syscall.ENETUNREACH, syscall.EHOSTUNREACH, syscall.EPIPE} {
			if errors.Is(opErr.Err, errno) {
				return true
			}
		}
	}

	return false
}
