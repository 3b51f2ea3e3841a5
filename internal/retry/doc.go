// Package retry re-runs database operations that failed for transient
// reasons, waiting with exponential backoff between attempts.
//
// Two classifiers cover the two places retries happen:
//
//   - PostgreSQLErrorClassifier decides whether establishing a connection
//     is worth another try (server starting, too many connections, network
//     blips). It also tells the importer when a session was lost.
//   - ChunkClassifier decides whether a chunk transaction that hit a
//     serialization failure, deadlock or lock timeout may be re-run in a
//     fresh transaction. Connection losses are never retried there.
//
// # Example Usage
//
//	executor := retry.NewExecutor(
//	    retry.NewChunkClassifier(),
//	    retry.NewExponentialBackoff(cfg.ChunkRetries),
//	)
//	err := executor.Execute(ctx, func(ctx context.Context) error {
//	    return importChunk(ctx, chunk)
//	})
package retry
