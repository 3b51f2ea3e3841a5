// Package logging provides concrete implementations of the stockimport.Logger interface.
//
// Available implementations:
//   - ConsoleLogger: Writes prefixed, human-readable lines to stderr
//   - JSONLogger: Writes one JSON object per event through logrus, for log shippers
//   - NullLogger: Discards all messages (useful for testing)
//
// All logger implementations are safe for concurrent use by multiple goroutines.
package logging
