package importer

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/vvka-141/stockimport/internal/merge"
	"github.com/vvka-141/stockimport/internal/retry"
	"github.com/vvka-141/stockimport/internal/staging"
	"github.com/vvka-141/stockimport/pkg/stockimport"
)

// rollbackTimeout bounds the rollback issued after a failed or cancelled chunk.
const rollbackTimeout = 10 * time.Second

// run holds the state of one Run or Scan call.
type run struct {
	*Service
	cfg      stockimport.ImportConfig
	dryRun   bool
	loader   *staging.Loader
	engine   *merge.Engine
	executor *retry.Executor
	report   *stockimport.Report
	halted   bool
}

func newEngine(cfg stockimport.ImportConfig, logger stockimport.Logger) (*merge.Engine, error) {
	return merge.NewEngine(cfg.Table, cfg.MergeLock, logger)
}

// importChunk writes one chunk and records its result. It returns an error
// only when the whole run has to stop.
func (r *run) importChunk(ctx context.Context, index int, chunk []stockimport.StockPrice) error {
	res := chunkResult(index, chunk)
	r.emit(stockimport.ChunkEvent{Index: index, State: stockimport.ChunkPending, Rows: len(chunk)})

	if r.dryRun || r.halted {
		r.skipChunk(index, chunk)
		if r.halted {
			r.logger.Verbose("Chunk %d (%d rows) not attempted", index, len(chunk))
		}
		return nil
	}

	executor := r.executor.WithOnRetry(func(attempt int, err error, delay time.Duration) {
		r.logger.Warn("Chunk %d: %v; retrying in %v (retry %d of %d)", index, err, delay, attempt+1, r.cfg.ChunkRetries)
	})
	err := executor.Execute(ctx, func(ctx context.Context) error {
		res.Attempts++
		inserted, err := r.writeChunk(ctx, index, chunk)
		res.Inserted = inserted
		return err
	})

	if err == nil {
		res.State = stockimport.ChunkCommitted
		r.finish(res)
		r.logger.Info("✓ Chunk %d committed: %d rows, %d inserted, %d already present",
			index, res.Rows, res.Inserted, res.Skipped())
		return nil
	}

	res.State = stockimport.ChunkRolledBack
	res.Inserted = 0
	res.Err = err
	res.Message = err.Error()
	var chunkErr *stockimport.ChunkError
	if errors.As(err, &chunkErr) {
		res.Stage = chunkErr.Stage
	}
	r.finish(res)

	switch {
	case ctx.Err() != nil:
		r.logger.Error("Chunk %d rolled back: run cancelled", index)
		return ctx.Err()
	case res.Stage == stockimport.StageBegin:
		r.logger.Error("Chunk %d not started, database unavailable: %v", index, err)
		return fatal(err)
	case r.classifier.IsConnectionError(err):
		// The pool hands the next chunk a fresh connection; if the server is
		// really gone, that chunk's Begin fails and ends the run.
		r.logger.Error("Chunk %d rolled back, connection lost during %s (%d rows, %s to %s): %v",
			index, res.Stage, res.Rows, res.FirstKey, res.LastKey, err)
	default:
		r.logger.Error("Chunk %d rolled back (%d rows, %s to %s): %v", index, res.Rows, res.FirstKey, res.LastKey, err)
	}

	if r.cfg.OnChunkFailure == stockimport.FailurePolicyHalt {
		r.halted = true
		r.logger.Warn("Halting after chunk %d; remaining chunks will not be written", index)
	}
	return nil
}

func chunkResult(index int, chunk []stockimport.StockPrice) stockimport.ChunkResult {
	return stockimport.ChunkResult{
		Index:    index,
		Rows:     len(chunk),
		FirstKey: chunk[0].Key(),
		LastKey:  chunk[len(chunk)-1].Key(),
	}
}

// skipChunk records a formed chunk that will not be written.
func (r *run) skipChunk(index int, chunk []stockimport.StockPrice) {
	res := chunkResult(index, chunk)
	res.State = stockimport.ChunkNotAttempted
	r.finish(res)
}

// writeChunk runs one transaction: stage, merge, commit. The transaction is
// rolled back on every path that does not commit, including cancellation.
func (r *run) writeChunk(ctx context.Context, index int, chunk []stockimport.StockPrice) (int64, error) {
	tx, err := r.store.Begin(ctx)
	if err != nil {
		return 0, &stockimport.ChunkError{Chunk: index, Stage: stockimport.StageBegin, Err: err}
	}
	defer func() {
		rbCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), rollbackTimeout)
		defer cancel()
		if err := tx.Rollback(rbCtx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			r.logger.Verbose("Chunk %d: rollback: %v", index, err)
		}
	}()

	r.emit(stockimport.ChunkEvent{Index: index, State: stockimport.ChunkStaging, Rows: len(chunk)})
	area, err := r.loader.Load(ctx, tx, chunk)
	if err != nil {
		return 0, &stockimport.ChunkError{Chunk: index, Stage: stockimport.StageStaging, Err: err}
	}

	r.emit(stockimport.ChunkEvent{Index: index, State: stockimport.ChunkMerging, Rows: len(chunk)})
	inserted, err := r.engine.Merge(ctx, tx, area)
	if err != nil {
		return 0, &stockimport.ChunkError{Chunk: index, Stage: stockimport.StageMerging, Err: err}
	}
	if err := r.loader.Drop(ctx, tx, area); err != nil {
		return 0, &stockimport.ChunkError{Chunk: index, Stage: stockimport.StageMerging, Err: err}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, &stockimport.ChunkError{Chunk: index, Stage: stockimport.StageCommit, Err: err}
	}
	return inserted, nil
}
