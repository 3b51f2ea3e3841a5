package retry

import (
	"math"
	"math/rand"
	"time"

	"github.com/vvka-141/stockimport/pkg/stockimport"
)

// ExponentialBackoff implements exponential backoff with jitter.
type ExponentialBackoff struct {
	initialDelay time.Duration
	maxDelay     time.Duration
	multiplier   float64

	// maxAttempts is the maximum number of retry attempts (-1 = unlimited, 0 = no retries)
	maxAttempts int

	// jitter of 0.1 means +/- 10% randomness
	jitter     float64
	jitterFunc func() float64
}

// BackoffOption is a functional option for configuring ExponentialBackoff.
type BackoffOption func(*ExponentialBackoff)

// WithInitialDelay sets the initial delay for the first retry attempt.
func WithInitialDelay(d time.Duration) BackoffOption {
	return func(b *ExponentialBackoff) {
		b.initialDelay = d
	}
}

// WithMaxDelay sets the maximum delay between retry attempts.
func WithMaxDelay(d time.Duration) BackoffOption {
	return func(b *ExponentialBackoff) {
		b.maxDelay = d
	}
}

// WithMultiplier sets the factor by which delay increases between attempts.
func WithMultiplier(m float64) BackoffOption {
	return func(b *ExponentialBackoff) {
		b.multiplier = m
	}
}

// WithJitter sets the jitter factor (0.0-1.0). Zero makes delays deterministic.
func WithJitter(j float64) BackoffOption {
	return func(b *ExponentialBackoff) {
		b.jitter = j
	}
}

// WithJitterFunc sets the source of random values in [0, 1).
func WithJitterFunc(f func() float64) BackoffOption {
	return func(b *ExponentialBackoff) {
		b.jitterFunc = f
	}
}

// NewExponentialBackoff creates a backoff strategy starting at
// stockimport.DefaultRetryInitialDelay and capped at
// stockimport.DefaultRetryMaxDelay.
//
// Example:
//
//	backoff := retry.NewExponentialBackoff(3,
//	    retry.WithInitialDelay(200 * time.Millisecond),
//	    retry.WithJitter(0.2),
//	)
func NewExponentialBackoff(maxAttempts int, opts ...BackoffOption) *ExponentialBackoff {
	b := &ExponentialBackoff{
		initialDelay: stockimport.DefaultRetryInitialDelay,
		maxDelay:     stockimport.DefaultRetryMaxDelay,
		multiplier:   2.0,
		maxAttempts:  maxAttempts,
		jitter:       0.1,
		jitterFunc:   rand.Float64,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// NextDelay calculates the delay for the given zero-based retry attempt.
func (b *ExponentialBackoff) NextDelay(attempt int) time.Duration {
	delay := float64(b.initialDelay) * math.Pow(b.multiplier, float64(attempt))
	if ceiling := float64(b.maxDelay); delay > ceiling {
		delay = ceiling
	}

	if b.jitter > 0 && b.jitterFunc != nil {
		// Map [0,1) to [-1,1) so jitter spreads both ways.
		offset := (b.jitterFunc() - 0.5) * 2.0
		delay *= 1.0 + b.jitter*offset
	}

	return time.Duration(delay).Round(time.Millisecond)
}

// MaxAttempts returns the maximum number of retry attempts.
func (b *ExponentialBackoff) MaxAttempts() int {
	return b.maxAttempts
}
