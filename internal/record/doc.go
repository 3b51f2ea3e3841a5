// Package record turns raw source rows into stock price records.
//
// Parsing is positional and pure: no I/O, no logging. Key fields
// (securities code and recorded date) must be present and well formed or
// the row is rejected with a *RowError. Price fields are best effort: an
// empty or unparsable price becomes an absent value, never a failure.
package record
