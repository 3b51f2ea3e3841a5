package stockimport

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Store opens the transactions each chunk is written in.
// *pgxpool.Pool satisfies it through db.PoolAdapter.
type Store interface {
	// Begin starts a transaction. A failure here means the store is
	// unreachable and is treated as fatal for the whole run.
	Begin(ctx context.Context) (Tx, error)
}

// Tx is the set of operations the import pipeline issues inside one chunk
// transaction. pgx.Tx satisfies it directly.
//
// Thread-Safety: a Tx is used by a single goroutine at a time.
type Tx interface {
	// Exec executes a statement without returning rows (DDL and set-based DML).
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)

	// CopyFrom bulk-writes rows with the COPY protocol and returns the row count.
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)

	// Commit makes the transaction's changes durable.
	Commit(ctx context.Context) error

	// Rollback discards the transaction's changes. Calling it after Commit
	// is harmless and returns pgx.ErrTxClosed.
	Rollback(ctx context.Context) error
}
