package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vvka-141/stockimport/pkg/stockimport"
)

// PoolAdapter adapts *pgxpool.Pool to stockimport.Store so the importer
// never sees pgx pool types. A pgx.Tx already satisfies stockimport.Tx.
//
// Thread-Safety: Safe for concurrent use (pgxpool.Pool is thread-safe).
type PoolAdapter struct {
	pool *pgxpool.Pool
}

// NewPoolAdapter creates a new PoolAdapter wrapping the given pool.
func NewPoolAdapter(pool *pgxpool.Pool) *PoolAdapter {
	return &PoolAdapter{pool: pool}
}

// Begin starts a read-committed transaction on a pooled connection. The
// connection returns to the pool when the transaction ends.
func (p *PoolAdapter) Begin(ctx context.Context) (stockimport.Tx, error) {
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return nil, err
	}
	return tx, nil
}

// Close closes the underlying pool.
func (p *PoolAdapter) Close() {
	p.pool.Close()
}

var _ stockimport.Store = (*PoolAdapter)(nil)
