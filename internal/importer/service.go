package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vvka-141/stockimport/internal/batch"
	"github.com/vvka-141/stockimport/internal/record"
	"github.com/vvka-141/stockimport/internal/retry"
	"github.com/vvka-141/stockimport/internal/staging"
	"github.com/vvka-141/stockimport/pkg/stockimport"
)

const maxQueuedRecords = 1024

// Option configures a Service.
type Option func(*Service)

// WithProgress registers a callback for chunk state transitions.
func WithProgress(fn stockimport.ProgressFunc) Option {
	return func(s *Service) {
		s.progress = fn
	}
}

// WithStagingNames overrides how staging tables are named.
func WithStagingNames(fn staging.NameFunc) Option {
	return func(s *Service) {
		s.stagingNames = fn
	}
}

// WithLayout overrides the source column layout.
func WithLayout(layout record.Layout) Option {
	return func(s *Service) {
		s.parser = record.NewParser(layout)
	}
}

// WithRetryBackoff tunes the delay between chunk retries.
func WithRetryBackoff(opts ...retry.BackoffOption) Option {
	return func(s *Service) {
		s.backoff = opts
	}
}

// Service imports price files into a Store.
type Service struct {
	store        stockimport.Store
	logger       stockimport.Logger
	parser       *record.Parser
	classifier   *retry.PostgreSQLErrorClassifier
	progress     stockimport.ProgressFunc
	stagingNames staging.NameFunc
	backoff      []retry.BackoffOption
}

// NewService creates an import service.
// Panics if store or logger is nil.
func NewService(store stockimport.Store, logger stockimport.Logger, opts ...Option) *Service {
	if store == nil {
		panic("store cannot be nil")
	}
	if logger == nil {
		panic("logger cannot be nil")
	}
	s := &Service{
		store:      store,
		logger:     logger,
		parser:     record.NewParser(record.DefaultLayout()),
		classifier: retry.NewPostgreSQLErrorClassifier(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run imports every row of src. The returned report is never nil once the
// configuration is valid, even when Run also returns an error: a database
// that refuses new transactions, cancellation or an unreadable source stops
// the run early and the report lists what happened up to that point.
//
// Chunk failures alone do not make Run return an error; check
// Report.Err() for the overall outcome.
func (s *Service) Run(ctx context.Context, src stockimport.RowSource, cfg stockimport.ImportConfig) (*stockimport.Report, error) {
	r, err := s.newRun(cfg, false)
	if err != nil {
		return nil, err
	}
	return r.execute(ctx, src)
}

// Scan parses and batches src without touching the store. Every chunk is
// reported as not attempted; row warnings are reported as in Run.
func (s *Service) Scan(ctx context.Context, src stockimport.RowSource, cfg stockimport.ImportConfig) (*stockimport.Report, error) {
	r, err := s.newRun(cfg, true)
	if err != nil {
		return nil, err
	}
	return r.execute(ctx, src)
}

func (s *Service) newRun(cfg stockimport.ImportConfig, dryRun bool) (*run, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	parts, err := stockimport.SplitTableName(cfg.Table)
	if err != nil {
		return nil, err
	}

	var loaderOpts []staging.Option
	if s.stagingNames != nil {
		loaderOpts = append(loaderOpts, staging.WithNameFunc(s.stagingNames))
	}
	engine, err := newEngine(cfg, s.logger)
	if err != nil {
		return nil, err
	}

	return &run{
		Service: s,
		cfg:     cfg,
		dryRun:  dryRun,
		loader:  staging.NewLoader(parts[len(parts)-1], s.logger, loaderOpts...),
		engine:  engine,
		executor: retry.NewExecutor(
			retry.NewChunkClassifier(),
			retry.NewExponentialBackoff(cfg.ChunkRetries, s.backoff...),
		),
		report: &stockimport.Report{
			Table:     cfg.Table,
			ChunkSize: cfg.ChunkSize,
			Policy:    cfg.OnChunkFailure.String(),
			DryRun:    dryRun,
			Warnings:  []stockimport.RowWarning{},
			Chunks:    []stockimport.ChunkResult{},
		},
	}, nil
}

// item is one parsed source row, or the reason it was dropped.
type item struct {
	rec    stockimport.StockPrice
	rowErr *record.RowError
}

func (r *run) execute(ctx context.Context, src stockimport.RowSource) (*stockimport.Report, error) {
	r.report.StartedAt = time.Now()
	mode := "Importing"
	if r.dryRun {
		mode = "Scanning"
	}
	r.logger.Info("%s into %s (chunk size %d, on chunk failure: %s)", mode, r.cfg.Table, r.cfg.ChunkSize, r.cfg.OnChunkFailure)

	g, gctx := errgroup.WithContext(ctx)
	items := make(chan item, min(r.cfg.ChunkSize, maxQueuedRecords))

	g.Go(func() error {
		defer close(items)
		return r.produce(gctx, src, items)
	})

	g.Go(func() error {
		return r.consume(ctx, items)
	})

	err := g.Wait()
	r.report.FinishedAt = time.Now()

	if err != nil {
		r.report.Aborted = true
		r.logger.Error("Import aborted: %v", err)
		return r.report, err
	}

	t := r.report.Totals()
	r.logger.Info("Finished %s in %v: %d rows read, %d inserted, %d already present, %d dropped, %d chunks (%s)",
		r.cfg.Table, r.report.Duration().Round(time.Millisecond), r.report.RowsRead, t.Inserted, t.Existing, t.Dropped,
		len(r.report.Chunks), r.report.Outcome())
	return r.report, nil
}

// produce reads and parses rows until the source is exhausted.
func (r *run) produce(ctx context.Context, src stockimport.RowSource, out chan<- item) error {
	for {
		row, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			return nil
		}

		var it item
		if err != nil {
			rowErr, ok := record.AsRowError(err)
			if !ok {
				return err
			}
			it.rowErr = rowErr
		} else {
			it.rec, it.rowErr = r.parser.Parse(row)
		}

		select {
		case out <- it:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// consume batches parsed records and writes each chunk. It is the only
// goroutine that touches the report.
func (r *run) consume(ctx context.Context, in <-chan item) error {
	records := func(yield func(stockimport.StockPrice) bool) {
		for it := range in {
			r.report.RowsRead++
			if it.rowErr != nil {
				r.report.Warnings = append(r.report.Warnings, it.rowErr.Warning())
				r.logger.Warn("Dropped %v", it.rowErr)
				continue
			}
			if !yield(it.rec) {
				return
			}
		}
	}

	index := 0
	for chunk := range batch.Chunks(records, r.cfg.ChunkSize) {
		index++
		if err := ctx.Err(); err != nil {
			r.skipChunk(index, chunk)
			r.logger.Verbose("Chunk %d (%d rows) not attempted: run cancelled", index, len(chunk))
			return err
		}
		if err := r.importChunk(ctx, index, chunk); err != nil {
			return err
		}
	}
	return nil
}

func (r *run) emit(ev stockimport.ChunkEvent) {
	if r.progress != nil {
		r.progress(ev)
	}
}

func (r *run) finish(res stockimport.ChunkResult) {
	r.report.Chunks = append(r.report.Chunks, res)
	r.emit(stockimport.ChunkEvent{Index: res.Index, State: res.State, Rows: res.Rows, Inserted: res.Inserted, Err: res.Err})
}

// fatal marks a chunk error as the end of the run.
func fatal(err error) error {
	return fmt.Errorf("%w: %w", stockimport.ErrConnectionFailed, err)
}
