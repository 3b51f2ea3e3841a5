package record

import (
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"github.com/vvka-141/stockimport/pkg/stockimport"
)

// Field names used in diagnostics. They match the permanent store's columns.
const (
	FieldSecuritiesCode                        = "securities_code"
	FieldRecordedDate                          = "recorded_date"
	FieldClosePrice                            = "close_price"
	FieldAdjustedClosePrice                    = "adjusted_close_price"
	FieldAdjustedClosePriceIncludingExDividend = "adjusted_close_price_including_ex_dividend"
)

// Kind classifies why a row was rejected.
type Kind string

const (
	KindMissing    Kind = "missing"
	KindUnparsable Kind = "unparsable"
	KindMalformed  Kind = "malformed line"
)

// RowError describes a rejected row.
type RowError struct {
	Line  int
	Field string
	Kind  Kind
	Value string
	Err   error
}

func (e *RowError) Error() string {
	switch e.Kind {
	case KindMalformed:
		return fmt.Sprintf("line %d: malformed line: %v", e.Line, e.Err)
	case KindUnparsable:
		return fmt.Sprintf("line %d: %s: field unparsable: %q", e.Line, e.Field, preview(e.Value))
	default:
		return fmt.Sprintf("line %d: %s: field %s", e.Line, e.Field, e.Kind)
	}
}

func (e *RowError) Unwrap() error {
	return e.Err
}

// Warning converts the error into its report form.
func (e *RowError) Warning() stockimport.RowWarning {
	return stockimport.RowWarning{
		Line:    e.Line,
		Field:   e.Field,
		Kind:    string(e.Kind),
		Value:   preview(e.Value),
		Message: e.Error(),
	}
}

// Layout holds the zero-based cell index of each field.
type Layout struct {
	SecuritiesCode                        int
	RecordedDate                          int
	ClosePrice                            int
	AdjustedClosePrice                    int
	AdjustedClosePriceIncludingExDividend int
}

// DefaultLayout is the column layout of the exchange's daily price files.
// Cells 0 and 1 carry data the store does not keep.
func DefaultLayout() Layout {
	return Layout{
		SecuritiesCode:                        2,
		RecordedDate:                          3,
		ClosePrice:                            4,
		AdjustedClosePrice:                    5,
		AdjustedClosePriceIncludingExDividend: 6,
	}
}

// Parser converts rows laid out according to its Layout.
type Parser struct {
	layout Layout
}

// NewParser creates a parser for the given layout.
func NewParser(layout Layout) *Parser {
	return &Parser{layout: layout}
}

// Parse converts one row. The returned *RowError is nil on success.
func (p *Parser) Parse(row stockimport.Row) (stockimport.StockPrice, *RowError) {
	var rec stockimport.StockPrice

	raw, ok := cell(row.Fields, p.layout.SecuritiesCode)
	if !ok {
		return rec, &RowError{Line: row.Line, Field: FieldSecuritiesCode, Kind: KindMissing}
	}
	code, err := strconv.ParseInt(raw, 10, 32)
	if err != nil {
		return rec, &RowError{Line: row.Line, Field: FieldSecuritiesCode, Kind: KindUnparsable, Value: raw, Err: err}
	}

	raw, ok = cell(row.Fields, p.layout.RecordedDate)
	if !ok {
		return rec, &RowError{Line: row.Line, Field: FieldRecordedDate, Kind: KindMissing}
	}
	date, err := time.Parse(stockimport.DateLayout, raw)
	if err != nil {
		return rec, &RowError{Line: row.Line, Field: FieldRecordedDate, Kind: KindUnparsable, Value: raw, Err: err}
	}

	rec.SecuritiesCode = int32(code)
	rec.RecordedDate = date
	rec.ClosePrice = price(row.Fields, p.layout.ClosePrice)
	rec.AdjustedClosePrice = price(row.Fields, p.layout.AdjustedClosePrice)
	rec.AdjustedClosePriceIncludingExDividend = price(row.Fields, p.layout.AdjustedClosePriceIncludingExDividend)
	return rec, nil
}

// MalformedLine wraps a source read failure for a single line.
func MalformedLine(err *stockimport.RowReadError) *RowError {
	return &RowError{Line: err.Line, Kind: KindMalformed, Err: err.Err}
}

// AsRowError extracts a *RowError from err, converting a
// *stockimport.RowReadError when needed.
func AsRowError(err error) (*RowError, bool) {
	var rowErr *RowError
	if errors.As(err, &rowErr) {
		return rowErr, true
	}
	var readErr *stockimport.RowReadError
	if errors.As(err, &readErr) {
		return MalformedLine(readErr), true
	}
	return nil, false
}

func cell(fields []string, idx int) (string, bool) {
	if idx < 0 || idx >= len(fields) {
		return "", false
	}
	v := strings.TrimSpace(fields[idx])
	return v, v != ""
}

// Limits of PostgreSQL's numeric type.
const (
	maxNumericIntegerDigits  = 131072
	maxNumericFractionDigits = 16383
)

func price(fields []string, idx int) decimal.NullDecimal {
	raw, ok := cell(fields, idx)
	if !ok {
		return decimal.NullDecimal{}
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.NullDecimal{}
	}
	d, ok = storable(d)
	if !ok {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(d)
}

// storable returns d in a form a numeric column accepts, or false when the
// value lies outside numeric's range.
func storable(d decimal.Decimal) (decimal.Decimal, bool) {
	if d.IsZero() {
		if -d.Exponent() > maxNumericFractionDigits || d.Exponent() > 0 {
			return decimal.Zero, true
		}
		return d, true
	}

	coef, exp := d.Coefficient(), d.Exponent()
	if -int64(exp) > maxNumericFractionDigits {
		// "1.000…0" is storable once its trailing zeros are gone.
		ten := big.NewInt(10)
		for exp < 0 {
			q, m := new(big.Int).QuoRem(coef, ten, new(big.Int))
			if m.Sign() != 0 {
				break
			}
			coef = q
			exp++
		}
		if -int64(exp) > maxNumericFractionDigits {
			return decimal.Decimal{}, false
		}
	}

	digits := int64(len(new(big.Int).Abs(coef).String()))
	if digits+int64(exp) > maxNumericIntegerDigits {
		return decimal.Decimal{}, false
	}
	return decimal.NewFromBigInt(coef, exp), true
}

// preview shortens s to MaxErrorPreviewLength characters.
func preview(s string) string {
	if utf8.RuneCountInString(s) <= stockimport.MaxErrorPreviewLength {
		return s
	}
	n := 0
	for i := range s {
		if n == stockimport.MaxErrorPreviewLength {
			return s[:i] + "..."
		}
		n++
	}
	return s
}
