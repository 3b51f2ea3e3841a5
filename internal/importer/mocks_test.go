package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	testhelpers "github.com/vvka-141/stockimport/internal/testing"
	"github.com/vvka-141/stockimport/pkg/stockimport"
)

// sliceSource serves rows from memory. errs maps a 0-based position to an
// error returned instead of the row at that position.
type sliceSource struct {
	rows [][]string
	errs map[int]error
	pos  int
}

func (s *sliceSource) Next(ctx context.Context) (stockimport.Row, error) {
	if err := ctx.Err(); err != nil {
		return stockimport.Row{}, err
	}
	if s.pos >= len(s.rows) {
		return stockimport.Row{}, io.EOF
	}
	i := s.pos
	s.pos++
	if err, ok := s.errs[i]; ok {
		return stockimport.Row{}, err
	}
	return stockimport.Row{Line: i + 2, Fields: s.rows[i]}, nil
}

// cancelAtEOFSource cancels the run when the rows run out.
type cancelAtEOFSource struct {
	sliceSource
	cancel context.CancelFunc
}

func (s *cancelAtEOFSource) Next(ctx context.Context) (stockimport.Row, error) {
	row, err := s.sliceSource.Next(ctx)
	if errors.Is(err, io.EOF) {
		s.cancel()
	}
	return row, err
}

// priceRows builds n valid rows with distinct natural keys.
func priceRows(n int) [][]string {
	rows := make([][]string, n)
	start := time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range rows {
		code := 1000 + i%500
		day := start.AddDate(0, 0, i/500).Format(stockimport.DateLayout)
		rows[i] = []string{"20240301", "name", fmt.Sprint(code), day, "100.5", "100.5", ""}
	}
	return rows
}

// mergingTx reports every copied row as inserted by the merge statement.
func mergingTx() *testhelpers.FakeTx {
	tx := &testhelpers.FakeTx{}
	tx.ExecHook = func(sql string, _ []any) (pgconn.CommandTag, error) {
		if strings.HasPrefix(sql, "INSERT") {
			return pgconn.NewCommandTag(fmt.Sprintf("INSERT 0 %d", len(tx.CopiedRows))), nil
		}
		return pgconn.NewCommandTag("OK"), nil
	}
	return tx
}

// failingMergeTx fails the merge statement with err.
func failingMergeTx(err error) *testhelpers.FakeTx {
	tx := &testhelpers.FakeTx{}
	tx.ExecHook = func(sql string, _ []any) (pgconn.CommandTag, error) {
		if strings.HasPrefix(sql, "INSERT") {
			return pgconn.CommandTag{}, err
		}
		return pgconn.NewCommandTag("OK"), nil
	}
	return tx
}

// eventRecorder collects progress events.
type eventRecorder struct {
	mu     sync.Mutex
	events []stockimport.ChunkEvent
}

func (e *eventRecorder) record(ev stockimport.ChunkEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, ev)
}

func (e *eventRecorder) states(index int) []stockimport.ChunkState {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []stockimport.ChunkState
	for _, ev := range e.events {
		if ev.Index == index {
			out = append(out, ev.State)
		}
	}
	return out
}
