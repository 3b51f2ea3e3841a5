// Package batch groups a lazy sequence into bounded, ordered chunks.
package batch

import "iter"

// Chunks yields consecutive slices of at most size elements from seq,
// preserving order. Only the chunk being built is held in memory; the final
// chunk may be shorter. Each yielded slice is freshly allocated and may be
// retained by the caller.
//
// size must be at least 1.
func Chunks[T any](seq iter.Seq[T], size int) iter.Seq[[]T] {
	if size < 1 {
		panic("batch: chunk size must be at least 1")
	}
	return func(yield func([]T) bool) {
		chunk := make([]T, 0, size)
		for v := range seq {
			chunk = append(chunk, v)
			if len(chunk) == size {
				if !yield(chunk) {
					return
				}
				chunk = make([]T, 0, size)
			}
		}
		if len(chunk) > 0 {
			yield(chunk)
		}
	}
}
