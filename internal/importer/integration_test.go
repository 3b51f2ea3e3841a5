package importer

import (
	"context"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vvka-141/stockimport/internal/db"
	"github.com/vvka-141/stockimport/internal/logging"
	"github.com/vvka-141/stockimport/internal/source"
	testhelpers "github.com/vvka-141/stockimport/internal/testing"
	"github.com/vvka-141/stockimport/pkg/stockimport"
)

const sampleCSV = `RowId,Date,SecuritiesCode,RecordedDate,Close,AdjustedClose,AdjustedCloseIncludingExDividend
20240301_1301,2024-03-01,1301,2024-03-01,3550,3550,3550.0
20240301_1332,2024-03-01,1332,2024-03-01,782.5,782.5,
20240301_1333,2024-03-01,1333,2024-03-01,n/a,2741,2741
20240301_1375,2024-03-01,oops,2024-03-01,1400,1400,1400
20240304_1301,2024-03-04,1301,2024-03-04,3560,3560,3560
`

func csvSource(t *testing.T, content string) stockimport.RowSource {
	t.Helper()
	r, err := source.NewCSVReader(strings.NewReader(content), source.DefaultOptions())
	require.NoError(t, err)
	return r
}

func TestIntegration_ImportIsIdempotent(t *testing.T) {
	pool := testhelpers.NewTestDB(t)
	testhelpers.CreateStockPricesTable(t, pool, "stock_prices")

	svc := NewService(db.NewPoolAdapter(pool), logging.NewNullLogger())
	cfg := config(2, stockimport.FailurePolicyContinue)
	cfg.MergeLock = true
	ctx := context.Background()

	first, err := svc.Run(ctx, csvSource(t, sampleCSV), cfg)
	require.NoError(t, err)
	require.NoError(t, first.Err())
	assert.Equal(t, int64(4), first.Totals().Inserted)
	require.Len(t, first.Warnings, 1)
	assert.Equal(t, 5, first.Warnings[0].Line)
	assert.Equal(t, int64(4), testhelpers.CountRows(t, pool, "stock_prices"))

	second, err := svc.Run(ctx, csvSource(t, sampleCSV), cfg)
	require.NoError(t, err)
	require.NoError(t, second.Err())
	assert.Zero(t, second.Totals().Inserted)
	assert.Equal(t, int64(4), second.Totals().Existing)
	assert.Equal(t, int64(4), testhelpers.CountRows(t, pool, "stock_prices"))

	var leftovers int
	require.NoError(t, pool.QueryRow(ctx,
		`SELECT count(*) FROM pg_class WHERE relname LIKE 'stock_prices_stage_%'`).Scan(&leftovers))
	assert.Zero(t, leftovers, "staging tables must not outlive their transaction")
}

func TestIntegration_UnparsablePriceIsNull(t *testing.T) {
	pool := testhelpers.NewTestDB(t)
	testhelpers.CreateStockPricesTable(t, pool, "market.stock_prices")

	svc := NewService(db.NewPoolAdapter(pool), logging.NewNullLogger())
	cfg := config(100, stockimport.FailurePolicyContinue)
	cfg.Table = "market.stock_prices"

	_, err := svc.Run(context.Background(), csvSource(t, sampleCSV), cfg)
	require.NoError(t, err)

	var closePrice, adjusted, exDividend decimal.NullDecimal
	err = pool.QueryRow(context.Background(), `
		SELECT close_price::text, adjusted_close_price::text, adjusted_close_price_including_ex_dividend::text
		FROM market.stock_prices WHERE securities_code = 1333 AND recorded_date = '2024-03-01'`,
	).Scan(&closePrice, &adjusted, &exDividend)
	require.NoError(t, err)

	assert.False(t, closePrice.Valid)
	require.True(t, adjusted.Valid)
	assert.True(t, adjusted.Decimal.Equal(decimal.RequireFromString("2741")))
	require.True(t, exDividend.Valid)

	var missing decimal.NullDecimal
	err = pool.QueryRow(context.Background(), `
		SELECT adjusted_close_price_including_ex_dividend::text
		FROM market.stock_prices WHERE securities_code = 1332`).Scan(&missing)
	require.NoError(t, err)
	assert.False(t, missing.Valid)
}

func TestIntegration_DuplicateKeyInChunkLeavesStoreUntouched(t *testing.T) {
	pool := testhelpers.NewTestDB(t)
	testhelpers.CreateStockPricesTable(t, pool, "stock_prices")

	content := `h1,h2,h3,h4,h5,h6,h7
a,b,1301,2024-03-01,1,1,1
a,b,1301,2024-03-01,2,2,2
a,b,1332,2024-03-01,3,3,3
a,b,1333,2024-03-01,4,4,4
`
	svc := NewService(db.NewPoolAdapter(pool), logging.NewNullLogger())
	report, err := svc.Run(context.Background(), csvSource(t, content), config(3, stockimport.FailurePolicyContinue))
	require.NoError(t, err)

	require.Len(t, report.Chunks, 2)
	assert.Equal(t, stockimport.ChunkRolledBack, report.Chunks[0].State)
	assert.Equal(t, stockimport.StageStaging, report.Chunks[0].Stage)
	assert.Equal(t, stockimport.ChunkCommitted, report.Chunks[1].State)
	assert.ErrorIs(t, report.Err(), stockimport.ErrPartialFailure)

	assert.Equal(t, int64(1), testhelpers.CountRows(t, pool, "stock_prices"))
}

func TestIntegration_MissingTableRollsBackEveryChunk(t *testing.T) {
	pool := testhelpers.NewTestDB(t)

	svc := NewService(db.NewPoolAdapter(pool), logging.NewNullLogger())
	report, err := svc.Run(context.Background(), csvSource(t, sampleCSV), config(2, stockimport.FailurePolicyHalt))
	require.NoError(t, err)

	assert.Equal(t, []stockimport.ChunkState{stockimport.ChunkRolledBack, stockimport.ChunkNotAttempted}, states(report))
	assert.Equal(t, stockimport.StageMerging, report.Chunks[0].Stage)
}
