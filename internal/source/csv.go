package source

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/transform"

	"github.com/vvka-141/stockimport/pkg/stockimport"
)

const utf8BOM = "\ufeff"

// Options controls how rows are split.
type Options struct {
	Delimiter  rune
	HasHeader  bool
	LazyQuotes bool
	// Encoding is a WHATWG label ("utf-8", "shift_jis", "euc-jp") or one of
	// the aliases "sjis" and "cp932". Empty means UTF-8.
	Encoding string
}

// DefaultOptions matches the exchange's files: comma separated, one header line, UTF-8.
func DefaultOptions() Options {
	return Options{Delimiter: ',', HasHeader: true}
}

// CSVReader implements stockimport.RowSource over a CSV stream.
type CSVReader struct {
	r         *csv.Reader
	skipFirst bool
	started   bool
}

// NewCSVReader wraps r. It fails only for an unknown encoding.
func NewCSVReader(r io.Reader, opts Options) (*CSVReader, error) {
	enc, err := LookupEncoding(opts.Encoding)
	if err != nil {
		return nil, err
	}
	if enc != nil {
		r = transform.NewReader(r, enc.NewDecoder())
	}

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = opts.LazyQuotes
	if opts.Delimiter != 0 {
		cr.Comma = opts.Delimiter
	}

	return &CSVReader{r: cr, skipFirst: opts.HasHeader}, nil
}

// Next returns the next data row, io.EOF at the end of input, or a
// *stockimport.RowReadError for a line that is not valid CSV.
func (c *CSVReader) Next(ctx context.Context) (stockimport.Row, error) {
	for {
		if err := ctx.Err(); err != nil {
			return stockimport.Row{}, err
		}

		fields, err := c.r.Read()
		first := !c.started
		c.started = true

		if err != nil {
			if errors.Is(err, io.EOF) {
				return stockimport.Row{}, io.EOF
			}
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				if first && c.skipFirst {
					continue
				}
				return stockimport.Row{}, &stockimport.RowReadError{Line: parseErr.StartLine, Err: parseErr.Err}
			}
			return stockimport.Row{}, fmt.Errorf("read source: %w: %w", stockimport.ErrSourceUnavailable, err)
		}

		if first {
			if len(fields) > 0 {
				fields[0] = strings.TrimPrefix(fields[0], utf8BOM)
			}
			if c.skipFirst {
				continue
			}
		}

		line, _ := c.r.FieldPos(0)
		return stockimport.Row{Line: line, Fields: fields}, nil
	}
}

var encodingAliases = map[string]encoding.Encoding{
	"sjis":  japanese.ShiftJIS,
	"cp932": japanese.ShiftJIS,
	"eucjp": japanese.EUCJP,
}

// LookupEncoding resolves an encoding label. UTF-8 and the empty label
// return a nil encoding, meaning no decoding is needed.
func LookupEncoding(label string) (encoding.Encoding, error) {
	name := strings.ToLower(strings.TrimSpace(label))
	switch name {
	case "", "utf-8", "utf8":
		return nil, nil
	}
	if enc, ok := encodingAliases[name]; ok {
		return enc, nil
	}
	enc, err := htmlindex.Get(name)
	if err != nil {
		return nil, fmt.Errorf("unknown source encoding %q: %w", label, stockimport.ErrInvalidConfig)
	}
	return enc, nil
}
