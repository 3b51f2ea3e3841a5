package stockimport

import (
	"errors"
	"fmt"
	"time"
)

// ChunkState is a chunk's position in its transaction lifecycle. There is no
// partially committed state: a chunk ends either Committed or RolledBack, or
// is never attempted.
type ChunkState int

const (
	ChunkPending ChunkState = iota
	ChunkStaging
	ChunkMerging
	ChunkCommitted
	ChunkRolledBack
	ChunkNotAttempted
)

func (s ChunkState) String() string {
	switch s {
	case ChunkPending:
		return "pending"
	case ChunkStaging:
		return "staging"
	case ChunkMerging:
		return "merging"
	case ChunkCommitted:
		return "committed"
	case ChunkRolledBack:
		return "rolled back"
	case ChunkNotAttempted:
		return "not attempted"
	default:
		return fmt.Sprintf("Unknown(%d)", s)
	}
}

// MarshalText renders the state by name in JSON reports.
func (s ChunkState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Terminal reports whether the chunk has reached a final state.
func (s ChunkState) Terminal() bool {
	return s == ChunkCommitted || s == ChunkRolledBack || s == ChunkNotAttempted
}

// Stage names the step of a chunk transaction that failed.
type Stage string

const (
	StageBegin   Stage = "begin"
	StageStaging Stage = "staging"
	StageMerging Stage = "merging"
	StageCommit  Stage = "commit"
)

// ChunkError is a failure of one chunk's transaction.
type ChunkError struct {
	Chunk int
	Stage Stage
	Err   error
}

func (e *ChunkError) Error() string {
	return fmt.Sprintf("chunk %d failed at %s: %v", e.Chunk, e.Stage, e.Err)
}

func (e *ChunkError) Unwrap() error {
	return e.Err
}

// ChunkResult is the final status of one chunk.
type ChunkResult struct {
	Index    int        `json:"index"`
	State    ChunkState `json:"state"`
	Rows     int        `json:"rows"`
	Inserted int64      `json:"inserted"`
	Attempts int        `json:"attempts,omitempty"`
	Stage    Stage      `json:"failed_stage,omitempty"`
	Err      error      `json:"-"`
	Message  string     `json:"error,omitempty"`
	FirstKey NaturalKey `json:"first_key"`
	LastKey  NaturalKey `json:"last_key"`
}

// Skipped returns the number of records in a committed chunk that were
// already present in the permanent store.
func (r ChunkResult) Skipped() int64 {
	if r.State != ChunkCommitted {
		return 0
	}
	return int64(r.Rows) - r.Inserted
}

// RowWarning describes an input row that was dropped.
type RowWarning struct {
	Line    int    `json:"line"`
	Field   string `json:"field,omitempty"`
	Kind    string `json:"kind"`
	Value   string `json:"value,omitempty"`
	Message string `json:"message"`
}

// ChunkEvent is emitted on every chunk state transition.
type ChunkEvent struct {
	Index    int
	State    ChunkState
	Rows     int
	Inserted int64
	Err      error
}

// ProgressFunc observes chunk transitions. It is called synchronously from
// the importing goroutine and must not block for long.
type ProgressFunc func(ChunkEvent)

// Outcome is the overall result of a run.
type Outcome string

const (
	OutcomeSucceeded       Outcome = "succeeded"
	OutcomePartiallyFailed Outcome = "partially_failed"
	// OutcomeDryRun marks a scan that never wrote to the store.
	OutcomeDryRun Outcome = "dry_run"
)

// SourceInfo identifies the input that was imported.
type SourceInfo struct {
	Name   string `json:"name"`
	SHA256 string `json:"sha256,omitempty"`
	Bytes  int64  `json:"bytes"`
}

// Report summarizes an import run. Every dropped row and every chunk that
// did not commit is listed.
type Report struct {
	Source     SourceInfo    `json:"source"`
	Table      string        `json:"table"`
	ChunkSize  int           `json:"chunk_size"`
	Policy     string        `json:"on_chunk_failure"`
	DryRun     bool          `json:"dry_run,omitempty"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	RowsRead   int           `json:"rows_read"`
	Warnings   []RowWarning  `json:"warnings"`
	Chunks     []ChunkResult `json:"chunks"`
	Aborted    bool          `json:"aborted,omitempty"`
}

// Outcome is OutcomeSucceeded when every observed chunk committed, whatever
// the number of row warnings.
func (r *Report) Outcome() Outcome {
	if r.DryRun && !r.Aborted {
		return OutcomeDryRun
	}
	if r.Aborted {
		return OutcomePartiallyFailed
	}
	for _, c := range r.Chunks {
		if c.State != ChunkCommitted {
			return OutcomePartiallyFailed
		}
	}
	return OutcomeSucceeded
}

// Err returns nil for a successful run and an error wrapping
// ErrPartialFailure otherwise.
func (r *Report) Err() error {
	if outcome := r.Outcome(); outcome == OutcomeSucceeded || outcome == OutcomeDryRun {
		return nil
	}
	failed := r.FailedChunks()
	if len(failed) == 0 || r.DryRun {
		return fmt.Errorf("run aborted before completion: %w", ErrPartialFailure)
	}
	errs := make([]error, 0, len(failed)+1)
	errs = append(errs, fmt.Errorf("%d of %d chunks did not commit: %w", len(failed), len(r.Chunks), ErrPartialFailure))
	for _, c := range failed {
		if c.Err != nil {
			errs = append(errs, c.Err)
		}
	}
	return errors.Join(errs...)
}

// FailedChunks returns every chunk that did not commit.
func (r *Report) FailedChunks() []ChunkResult {
	var failed []ChunkResult
	for _, c := range r.Chunks {
		if c.State != ChunkCommitted {
			failed = append(failed, c)
		}
	}
	return failed
}

// Totals aggregates row counts across chunks.
type Totals struct {
	Parsed     int   `json:"parsed"`
	Dropped    int   `json:"dropped"`
	Inserted   int64 `json:"inserted"`
	Existing   int64 `json:"existing"`
	RolledBack int   `json:"rolled_back"`
	Unwritten  int   `json:"not_attempted"`
}

// Totals computes per-state row counts.
func (r *Report) Totals() Totals {
	t := Totals{Dropped: len(r.Warnings)}
	for _, c := range r.Chunks {
		t.Parsed += c.Rows
		switch c.State {
		case ChunkCommitted:
			t.Inserted += c.Inserted
			t.Existing += c.Skipped()
		case ChunkRolledBack:
			t.RolledBack += c.Rows
		case ChunkNotAttempted:
			t.Unwritten += c.Rows
		}
	}
	return t
}

// Duration is the wall time of the run.
func (r *Report) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
