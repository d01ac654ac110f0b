// Package codec provides gzip compression/decompression with hard
// size caps, and content hashing, for the archive store. Compression
// concurrency is bounded by a process-wide counting semaphore, the
// same buffered-channel-of-tokens idiom luci-go's dispatcher package
// uses for its own bounded concurrency gates.
package codec

import (
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"github.com/primal-host/crashkeep/internal/apperr"
)

// Semaphore bounds the number of concurrent compressions. Ingest
// acquires a permit only when it must compress (the client did not
// send the payload pre-gzipped); permits are released on every exit
// path, including error, via defer.
type Semaphore struct {
	tokens chan struct{}
}

// NewSemaphore creates a semaphore with n permits.
func NewSemaphore(n int) *Semaphore {
	if n <= 0 {
		n = 1
	}
	return &Semaphore{tokens: make(chan struct{}, n)}
}

// Acquire blocks until a permit is available or ctx is done.
func (s *Semaphore) Acquire(ctx context.Context) error {
	select {
	case s.tokens <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release returns a permit to the pool.
func (s *Semaphore) Release() {
	<-s.tokens
}

// Compress gzip-compresses data, failing with apperr.ErrPayloadOversize
// if the compressed output would exceed maxCompressed bytes.
func Compress(data []byte, maxCompressed int64) ([]byte, error) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)

	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("codec: compress write: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("codec: compress close: %w", err)
	}

	if int64(buf.Len()) > maxCompressed {
		return nil, fmt.Errorf("%w: compressed payload is %d bytes, cap is %d", apperr.ErrPayloadOversize, buf.Len(), maxCompressed)
	}
	return buf.Bytes(), nil
}

// limitedWriter counts bytes written and errors as soon as the count
// exceeds a cap, without buffering the full output first.
type limitedWriter struct {
	limit   int64
	written int64
}

func (w *limitedWriter) Write(p []byte) (int, error) {
	w.written += int64(len(p))
	if w.written > w.limit {
		return 0, fmt.Errorf("%w: uncompressed payload exceeds %d bytes", apperr.ErrPayloadOversize, w.limit)
	}
	return len(p), nil
}

// Decompress gzip-decompresses data, streaming the output and failing
// with apperr.ErrPayloadOversize as soon as the running output length
// exceeds maxUncompressed — it never buffers the full output before
// checking the cap.
func Decompress(data []byte, maxUncompressed int64) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrBadCompression, err)
	}
	defer r.Close()

	var out bytes.Buffer
	lw := &limitedWriter{limit: maxUncompressed}
	if _, err := io.Copy(io.MultiWriter(&out, lw), r); err != nil {
		if errors.Is(err, apperr.ErrPayloadOversize) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", apperr.ErrBadCompression, err)
	}
	return out.Bytes(), nil
}

// Hash returns the lowercase hex SHA-256 digest of data.
func Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
