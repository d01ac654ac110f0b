package codec

import (
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"testing"

	"github.com/primal-host/crashkeep/internal/apperr"
)

func TestCompressDecompressRoundTrip(t *testing.T) {
	data := make([]byte, 4096)
	if _, err := rand.Read(data); err != nil {
		t.Fatal(err)
	}

	compressed, err := Compress(data, 1<<20)
	if err != nil {
		t.Fatalf("compress: %v", err)
	}

	out, err := Decompress(compressed, 1<<20)
	if err != nil {
		t.Fatalf("decompress: %v", err)
	}

	if !bytes.Equal(data, out) {
		t.Fatal("round trip mismatch")
	}
}

func TestHashIsStable(t *testing.T) {
	data := []byte("hello crash report")
	h1 := Hash(data)
	h2 := Hash(data)
	if h1 != h2 {
		t.Fatalf("hash not stable: %s != %s", h1, h2)
	}
	if len(h1) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(h1))
	}
}

func TestCompressOversize(t *testing.T) {
	data := bytes.Repeat([]byte("a"), 1<<20)
	_, err := Compress(data, 8)
	if !errors.Is(err, apperr.ErrPayloadOversize) {
		t.Fatalf("expected ErrPayloadOversize, got %v", err)
	}
}

func TestDecompressOversizeStreaming(t *testing.T) {
	data := bytes.Repeat([]byte("b"), 1<<16)
	compressed, err := Compress(data, 1<<20)
	if err != nil {
		t.Fatal(err)
	}

	_, err = Decompress(compressed, 100)
	if !errors.Is(err, apperr.ErrPayloadOversize) {
		t.Fatalf("expected ErrPayloadOversize, got %v", err)
	}
}

func TestSemaphoreBoundsConcurrency(t *testing.T) {
	sem := NewSemaphore(1)
	ctx := context.Background()

	if err := sem.Acquire(ctx); err != nil {
		t.Fatal(err)
	}

	done := make(chan struct{})
	go func() {
		_ = sem.Acquire(ctx)
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("second acquire should not have completed before release")
	default:
	}

	sem.Release()
	<-done
}
