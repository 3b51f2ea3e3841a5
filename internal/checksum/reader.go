package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"io"
	"sync"
)

// Reader hashes everything read through it.
// Sum and Bytes may be called from another goroutine while reads continue.
type Reader struct {
	r io.Reader

	mu sync.Mutex
	h  hash.Hash
	n  int64
}

// NewReader wraps r.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: r, h: sha256.New()}
}

func (c *Reader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	if n > 0 {
		c.mu.Lock()
		c.h.Write(p[:n])
		c.n += int64(n)
		c.mu.Unlock()
	}
	return n, err
}

// Sum returns the hex SHA-256 of the bytes read so far.
func (c *Reader) Sum() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return hex.EncodeToString(c.h.Sum(nil))
}

// Bytes returns how many bytes have been read.
func (c *Reader) Bytes() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

// Of computes the hex SHA-256 of content.
func Of(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}
