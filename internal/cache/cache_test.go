package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestResolveCachesPositiveResult(t *testing.T) {
	var calls int32
	c := New(time.Minute, func(ctx context.Context, key string) (int64, bool, error) {
		atomic.AddInt32(&calls, 1)
		return 42, true, nil
	})

	for i := 0; i < 5; i++ {
		id, found, err := c.Resolve(context.Background(), "k1")
		if err != nil || !found || id != 42 {
			t.Fatalf("unexpected result: %d %v %v", id, found, err)
		}
	}
	if calls != 1 {
		t.Fatalf("expected 1 backing call, got %d", calls)
	}
}

func TestResolveCachesNegativeResult(t *testing.T) {
	var calls int32
	c := New(time.Minute, func(ctx context.Context, key string) (int64, bool, error) {
		atomic.AddInt32(&calls, 1)
		return 0, false, nil
	})

	for i := 0; i < 3; i++ {
		_, found, _ := c.Resolve(context.Background(), "missing")
		if found {
			t.Fatal("expected negative cache result")
		}
	}
	if calls != 1 {
		t.Fatalf("expected 1 backing call for negative cache, got %d", calls)
	}
}

func TestResolveExpiresAfterTTL(t *testing.T) {
	var calls int32
	c := New(time.Millisecond, func(ctx context.Context, key string) (int64, bool, error) {
		atomic.AddInt32(&calls, 1)
		return 1, true, nil
	})

	c.Resolve(context.Background(), "k")
	time.Sleep(5 * time.Millisecond)
	c.Resolve(context.Background(), "k")

	if calls != 2 {
		t.Fatalf("expected re-resolve after ttl, got %d calls", calls)
	}
}

func TestResolveCoalescesConcurrentMisses(t *testing.T) {
	var calls int32
	block := make(chan struct{})
	c := New(time.Minute, func(ctx context.Context, key string) (int64, bool, error) {
		atomic.AddInt32(&calls, 1)
		<-block
		return 7, true, nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Resolve(context.Background(), "shared")
		}()
	}
	close(block)
	wg.Wait()

	if calls != 1 {
		t.Fatalf("expected concurrent misses to coalesce into 1 call, got %d", calls)
	}
}
