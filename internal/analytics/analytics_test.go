package analytics

import "testing"

func TestBatchAddAggregatesLatency(t *testing.T) {
	b := newBatch()
	b.add(Event{Kind: EventRequestLatency, Endpoint: "/api/1/store/", Millis: 10})
	b.add(Event{Kind: EventRequestLatency, Endpoint: "/api/1/store/", Millis: 30})

	agg := b.latency["/api/1/store/"]
	if agg == nil {
		t.Fatal("expected latency aggregate")
	}
	if agg.count != 2 || agg.total != 40 || agg.min != 10 || agg.max != 30 {
		t.Fatalf("unexpected aggregate: %+v", agg)
	}
}

func TestBatchEmpty(t *testing.T) {
	b := newBatch()
	if !b.empty() {
		t.Fatal("expected fresh batch to be empty")
	}
	b.add(Event{Kind: EventRateLimitGlobal})
	if b.empty() {
		t.Fatal("expected non-empty batch after add")
	}
}

func TestSinkSendDropsWhenFull(t *testing.T) {
	s := &Sink{events: make(chan Event, 1)}
	s.Send(Event{Kind: EventRateLimitGlobal})
	s.Send(Event{Kind: EventRateLimitGlobal}) // should drop, not block
	if len(s.events) != 1 {
		t.Fatalf("expected channel to stay at capacity 1, got %d", len(s.events))
	}
}
