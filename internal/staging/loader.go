package staging

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/vvka-141/stockimport/pkg/stockimport"
)

// Columns is the column order shared by staging and permanent tables.
var Columns = []string{
	"securities_code",
	"recorded_date",
	"close_price",
	"adjusted_close_price",
	"adjusted_close_price_including_ex_dividend",
}

const createTableSQL = `CREATE TEMPORARY TABLE %s (
	securities_code integer NOT NULL,
	recorded_date date NOT NULL,
	close_price numeric,
	adjusted_close_price numeric,
	adjusted_close_price_including_ex_dividend numeric,
	PRIMARY KEY (securities_code, recorded_date)
) ON COMMIT DROP`

const dropTableSQL = `DROP TABLE IF EXISTS %s`

// maxPrefixLen keeps generated names within PostgreSQL's 63 byte identifier limit.
const maxPrefixLen = 24

// Area is a loaded staging table.
type Area struct {
	Name pgx.Identifier
	Rows int64
}

func (a Area) String() string {
	return a.Name.Sanitize()
}

// NameFunc returns a fresh, unique staging table name.
type NameFunc func() string

// UUIDNames returns a NameFunc producing "<prefix>_stage_<32 hex>" names.
func UUIDNames(prefix string) NameFunc {
	if len(prefix) > maxPrefixLen {
		prefix = prefix[:maxPrefixLen]
	}
	return func() string {
		return prefix + "_stage_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	}
}

// Option configures a Loader.
type Option func(*Loader)

// WithNameFunc overrides staging table naming.
func WithNameFunc(fn NameFunc) Option {
	return func(l *Loader) {
		l.newName = fn
	}
}

// Loader creates staging tables and copies chunks into them.
type Loader struct {
	newName NameFunc
	logger  stockimport.Logger
}

// NewLoader creates a loader whose staging tables are named after table,
// the permanent table's unqualified name.
func NewLoader(table string, logger stockimport.Logger, opts ...Option) *Loader {
	if logger == nil {
		panic("logger cannot be nil")
	}
	l := &Loader{
		newName: UUIDNames(table),
		logger:  logger,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load creates a fresh staging table inside tx and bulk-copies chunk into it.
// On error the caller must roll tx back; the table goes with it.
func (l *Loader) Load(ctx context.Context, tx stockimport.Tx, chunk []stockimport.StockPrice) (Area, error) {
	area := Area{Name: pgx.Identifier{l.newName()}}

	if _, err := tx.Exec(ctx, fmt.Sprintf(createTableSQL, area)); err != nil {
		return Area{}, fmt.Errorf("failed to create staging table %s: %w", area, err)
	}
	l.logger.Verbose("Created staging table %s", area)

	n, err := tx.CopyFrom(ctx, area.Name, Columns, pgx.CopyFromSlice(len(chunk), func(i int) ([]any, error) {
		return Values(chunk[i]), nil
	}))
	if err != nil {
		return area, fmt.Errorf("failed to copy %d rows into %s: %w", len(chunk), area, err)
	}
	if n != int64(len(chunk)) {
		return area, fmt.Errorf("copied %d of %d rows into %s", n, len(chunk), area)
	}

	area.Rows = n
	l.logger.Verbose("Copied %d rows into %s", n, area)
	return area, nil
}

// Drop removes the staging table before the transaction ends.
func (l *Loader) Drop(ctx context.Context, tx stockimport.Tx, area Area) error {
	if _, err := tx.Exec(ctx, fmt.Sprintf(dropTableSQL, area)); err != nil {
		return fmt.Errorf("failed to drop staging table %s: %w", area, err)
	}
	return nil
}

// Values encodes a record in Columns order for the COPY protocol.
func Values(p stockimport.StockPrice) []any {
	return []any{
		p.SecuritiesCode,
		pgtype.Date{Time: p.RecordedDate, Valid: true},
		Numeric(p.ClosePrice),
		Numeric(p.AdjustedClosePrice),
		Numeric(p.AdjustedClosePriceIncludingExDividend),
	}
}

// Numeric converts an optional decimal to its PostgreSQL form.
// An absent value becomes SQL NULL.
func Numeric(d decimal.NullDecimal) pgtype.Numeric {
	if !d.Valid {
		return pgtype.Numeric{}
	}
	return pgtype.Numeric{
		Int:   d.Decimal.Coefficient(),
		Exp:   d.Decimal.Exponent(),
		Valid: true,
	}
}
