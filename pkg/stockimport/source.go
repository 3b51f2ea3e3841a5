package stockimport

import (
	"context"
	"fmt"
)

// Row is one raw line of the source file split into cells.
type Row struct {
	// Line is the 1-based line number in the source, header included.
	Line   int
	Fields []string
}

// RowSource yields raw rows in file order. Next returns io.EOF after the last
// row. A *RowReadError reports a single unreadable line and the source stays
// usable; any other error ends the stream.
type RowSource interface {
	Next(ctx context.Context) (Row, error)
}

// RowReadError is a recoverable failure to split one line into cells.
type RowReadError struct {
	Line int
	Err  error
}

func (e *RowReadError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e *RowReadError) Unwrap() error {
	return e.Err
}
