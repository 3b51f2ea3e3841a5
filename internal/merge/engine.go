// Package merge moves staged records into the permanent table without
// duplicating rows that are already there.
package merge

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/vvka-141/stockimport/internal/staging"
	"github.com/vvka-141/stockimport/pkg/stockimport"
)

const lockSQL = `SELECT pg_advisory_xact_lock(hashtext($1))`

// Engine runs the insert-if-absent statement for one staging area.
type Engine struct {
	table  pgx.Identifier
	lock   bool
	logger stockimport.Logger
}

// NewEngine creates an engine merging into table ("name" or "schema.name").
// With lock set, merges into the same table are serialized across sessions.
func NewEngine(table string, lock bool, logger stockimport.Logger) (*Engine, error) {
	if logger == nil {
		panic("logger cannot be nil")
	}
	parts, err := stockimport.SplitTableName(table)
	if err != nil {
		return nil, err
	}
	return &Engine{table: pgx.Identifier(parts), lock: lock, logger: logger}, nil
}

// Table returns the quoted permanent table name.
func (e *Engine) Table() string {
	return e.table.Sanitize()
}

// Merge inserts every staged record whose natural key is not yet in the
// permanent table and returns how many were inserted. Existing rows are left
// untouched.
func (e *Engine) Merge(ctx context.Context, tx stockimport.Tx, area staging.Area) (int64, error) {
	if e.lock {
		if _, err := tx.Exec(ctx, lockSQL, e.Table()); err != nil {
			return 0, fmt.Errorf("failed to lock %s for merge: %w", e.Table(), err)
		}
	}

	tag, err := tx.Exec(ctx, e.statement(area))
	if err != nil {
		return 0, fmt.Errorf("failed to merge %s into %s: %w", area, e.Table(), err)
	}

	inserted := tag.RowsAffected()
	e.logger.Verbose("Merged %s into %s: %d inserted, %d already present",
		area, e.Table(), inserted, area.Rows-inserted)
	return inserted, nil
}

func (e *Engine) statement(area staging.Area) string {
	cols := strings.Join(staging.Columns, ", ")
	selected := make([]string, len(staging.Columns))
	for i, c := range staging.Columns {
		selected[i] = "s." + c
	}

	return fmt.Sprintf(`INSERT INTO %[1]s (%[2]s)
SELECT %[3]s
FROM %[4]s AS s
LEFT OUTER JOIN %[1]s AS p
	ON p.securities_code = s.securities_code
	AND p.recorded_date = s.recorded_date
WHERE p.securities_code IS NULL`,
		e.Table(), cols, strings.Join(selected, ", "), area)
}
