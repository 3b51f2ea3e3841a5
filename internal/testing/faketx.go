package testing

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vvka-141/stockimport/pkg/stockimport"
)

// FakeTx is an in-memory stockimport.Tx that records every call.
// Hooks, when set, decide the outcome of the matching call.
type FakeTx struct {
	mu sync.Mutex

	Statements []string
	Args       [][]any
	CopyTables []pgx.Identifier
	CopyCols   [][]string
	CopiedRows [][]any

	Committed  bool
	RolledBack bool

	ExecHook   func(sql string, args []any) (pgconn.CommandTag, error)
	CopyHook   func(table pgx.Identifier, rows [][]any) (int64, error)
	CommitHook func() error
}

func (f *FakeTx) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed() {
		return pgconn.CommandTag{}, pgx.ErrTxClosed
	}
	f.Statements = append(f.Statements, sql)
	f.Args = append(f.Args, args)
	if f.ExecHook != nil {
		return f.ExecHook(sql, args)
	}
	return pgconn.NewCommandTag(commandTagFor(sql)), nil
}

func (f *FakeTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed() {
		return 0, pgx.ErrTxClosed
	}

	var rows [][]any
	for rowSrc.Next() {
		vals, err := rowSrc.Values()
		if err != nil {
			return 0, err
		}
		rows = append(rows, vals)
	}
	if err := rowSrc.Err(); err != nil {
		return 0, err
	}

	f.CopyTables = append(f.CopyTables, tableName)
	f.CopyCols = append(f.CopyCols, columnNames)
	if f.CopyHook != nil {
		n, err := f.CopyHook(tableName, rows)
		if err == nil {
			f.CopiedRows = append(f.CopiedRows, rows...)
		}
		return n, err
	}
	f.CopiedRows = append(f.CopiedRows, rows...)
	return int64(len(rows)), nil
}

func (f *FakeTx) Commit(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed() {
		return pgx.ErrTxClosed
	}
	if f.CommitHook != nil {
		if err := f.CommitHook(); err != nil {
			f.RolledBack = true
			return err
		}
	}
	f.Committed = true
	return nil
}

func (f *FakeTx) Rollback(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed() {
		return pgx.ErrTxClosed
	}
	f.RolledBack = true
	return nil
}

// Executed reports whether a statement containing fragment was run.
func (f *FakeTx) Executed(fragment string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.Statements {
		if strings.Contains(s, fragment) {
			return true
		}
	}
	return false
}

func (f *FakeTx) closed() bool {
	return f.Committed || f.RolledBack
}

func commandTagFor(sql string) string {
	fields := strings.Fields(sql)
	if len(fields) == 0 {
		return ""
	}
	switch strings.ToUpper(fields[0]) {
	case "INSERT":
		return "INSERT 0 0"
	case "SELECT":
		return "SELECT 1"
	default:
		return strings.ToUpper(fields[0]) + " " + strings.ToUpper(fields[1%len(fields)])
	}
}

// ErrFakeBegin is returned by FakeStore when BeginErr is set without a cause.
var ErrFakeBegin = errors.New("fake store: begin failed")

// FakeStore hands out FakeTx values, one per Begin call.
type FakeStore struct {
	mu sync.Mutex

	// NewTx builds the transaction for the n-th Begin call (1-based).
	// When nil, a plain FakeTx is returned.
	NewTx func(n int) *FakeTx

	// BeginErr, when non-nil, is returned from the n-th Begin call.
	BeginErr func(n int) error

	Txs []*FakeTx
}

func (s *FakeStore) Begin(ctx context.Context) (stockimport.Tx, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.Txs) + 1
	if s.BeginErr != nil {
		if err := s.BeginErr(n); err != nil {
			return nil, err
		}
	}
	tx := &FakeTx{}
	if s.NewTx != nil {
		tx = s.NewTx(n)
	}
	s.Txs = append(s.Txs, tx)
	return tx, nil
}

// Committed returns how many transactions committed.
func (s *FakeStore) Committed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, tx := range s.Txs {
		if tx.Committed {
			n++
		}
	}
	return n
}
