// Package importer drives a staged bulk import of stock prices.
//
// Records flow from a stockimport.RowSource through the record parser and
// the batcher into chunks. Each chunk is written in its own transaction:
// a staging table is created and bulk-loaded, the merge engine inserts the
// records whose natural key is not yet stored, and the transaction commits.
// A failing chunk rolls back alone. Whether later chunks are still written
// is decided by stockimport.ImportConfig.OnChunkFailure.
//
// Reading and parsing run on a separate goroutine so file I/O overlaps
// database work, but chunks are written strictly one at a time.
package importer
