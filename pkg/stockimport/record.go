package stockimport

import (
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the textual form of recorded_date in source files.
const DateLayout = "2006-01-02"

// StockPrice is one security's prices for one trading day.
//
// The natural key (SecuritiesCode, RecordedDate) is always present. Each price
// is optional: Valid == false means the source did not report it, which is
// distinct from a reported zero.
type StockPrice struct {
	SecuritiesCode int32
	RecordedDate   time.Time

	ClosePrice                            decimal.NullDecimal
	AdjustedClosePrice                    decimal.NullDecimal
	AdjustedClosePriceIncludingExDividend decimal.NullDecimal
}

// NaturalKey identifies a StockPrice in the permanent store.
type NaturalKey struct {
	SecuritiesCode int32  `json:"securities_code"`
	RecordedDate   string `json:"recorded_date"`
}

func (k NaturalKey) String() string {
	return formatInt32(k.SecuritiesCode) + "@" + k.RecordedDate
}

// Key returns the record's natural key.
func (p StockPrice) Key() NaturalKey {
	return NaturalKey{
		SecuritiesCode: p.SecuritiesCode,
		RecordedDate:   p.RecordedDate.Format(DateLayout),
	}
}

// Fields renders the five logical fields back to text in column order.
// Absent prices render as empty strings.
func (p StockPrice) Fields() []string {
	return []string{
		formatInt32(p.SecuritiesCode),
		p.RecordedDate.Format(DateLayout),
		formatPrice(p.ClosePrice),
		formatPrice(p.AdjustedClosePrice),
		formatPrice(p.AdjustedClosePriceIncludingExDividend),
	}
}

func formatPrice(d decimal.NullDecimal) string {
	if !d.Valid {
		return ""
	}
	return d.Decimal.String()
}

func formatInt32(v int32) string {
	return strconv.FormatInt(int64(v), 10)
}
