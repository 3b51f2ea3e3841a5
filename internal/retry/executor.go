package retry

import (
	"context"
	"time"

	"github.com/vvka-141/stockimport/pkg/stockimport"
)

// Executor orchestrates retry attempts with backoff and error classification.
//
// Execute is safe for concurrent use. WithOnRetry returns a copy, so each
// caller can attach its own callback without shared state.
type Executor struct {
	classifier stockimport.ErrorClassifier
	strategy   stockimport.BackoffStrategy
	onRetry    func(attempt int, err error, delay time.Duration)
}

// NewExecutor creates a new retry executor.
// Panics if classifier or strategy is nil.
func NewExecutor(classifier stockimport.ErrorClassifier, strategy stockimport.BackoffStrategy) *Executor {
	if classifier == nil {
		panic("classifier cannot be nil")
	}
	if strategy == nil {
		panic("strategy cannot be nil")
	}
	return &Executor{
		classifier: classifier,
		strategy:   strategy,
	}
}

// WithOnRetry returns a new Executor that calls callback before each retry.
func (e *Executor) WithOnRetry(callback func(attempt int, err error, delay time.Duration)) *Executor {
	clone := *e
	clone.onRetry = callback
	return &clone
}

// Execute runs operation until it succeeds, fails with a non-transient
// error, the context ends, or the strategy's attempts are used up.
// The last operation error is returned.
func (e *Executor) Execute(ctx context.Context, operation func(ctx context.Context) error) error {
	err := operation(ctx)
	maxAttempts := e.strategy.MaxAttempts()

	for attempt := 0; err != nil && e.classifier.IsTransient(err); attempt++ {
		if maxAttempts >= 0 && attempt >= maxAttempts {
			break
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		delay := e.strategy.NextDelay(attempt)
		if e.onRetry != nil {
			e.onRetry(attempt, err, delay)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		err = operation(ctx)
	}

	return err
}
