// Package analytics implements the lossy, batched aggregation of
// request/limit counters into time buckets. The bounded
// channel-with-select-default-drop pattern is the teacher's own
// events.Manager.broadcast idiom (internal/events/events.go), carried
// over unchanged in spirit: a full channel drops the event rather than
// blocking the sender.
package analytics

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/primal-host/crashkeep/internal/database"
	"github.com/primal-host/crashkeep/internal/metrics"
)

// EventKind tags an AnalyticsEvent's payload.
type EventKind int

const (
	EventRateLimitGlobal EventKind = iota
	EventRateLimitSubnet
	EventRateLimitProject
	EventRequestLatency
)

// Event is the tagged-union value sent through the sink's channel.
type Event struct {
	Kind      EventKind
	Subnet    string
	ProjectID int64
	Endpoint  string
	Millis    float64
}

// Sink is the bounded, non-blocking channel of analytics events plus
// the dedicated flusher that batches them into one-minute buckets.
type Sink struct {
	events chan Event
	store  *database.Store
	log    *zap.Logger

	flushInterval time.Duration
	retention     time.Duration
}

// New creates a Sink with the given buffer capacity.
func New(bufferSize int, flushInterval, retention time.Duration, store *database.Store, log *zap.Logger) *Sink {
	if bufferSize <= 0 {
		bufferSize = 20_000
	}
	return &Sink{
		events:        make(chan Event, bufferSize),
		store:         store,
		log:           log,
		flushInterval: flushInterval,
		retention:     retention,
	}
}

// Send enqueues an event without blocking. If the channel is full, the
// event is dropped.
func (s *Sink) Send(ev Event) {
	select {
	case s.events <- ev:
	default:
		metrics.AnalyticsDroppedTotal.Inc()
	}
}

// Run drives the flush loop until ctx is cancelled. It should be
// started once per process as a background goroutine.
func (s *Sink) Run(ctx context.Context) {
	ticker := time.NewTicker(s.flushInterval)
	defer ticker.Stop()

	retentionTicker := time.NewTicker(24 * time.Hour)
	defer retentionTicker.Stop()

	batch := newBatch()

	for {
		select {
		case <-ctx.Done():
			s.flush(context.Background(), batch)
			return
		case ev := <-s.events:
			batch.add(ev)
		case <-ticker.C:
			s.flush(ctx, batch)
			batch = newBatch()
		case <-retentionTicker.C:
			cutoff := time.Now().Add(-s.retention)
			if err := s.store.SweepAnalyticsRetention(ctx, cutoff); err != nil {
				s.log.Warn("analytics retention sweep failed", zap.Error(err))
			}
		}
	}
}

func (s *Sink) flush(ctx context.Context, b *batch) {
	if b.empty() {
		return
	}

	now := time.Now().UTC().Truncate(time.Minute)

	if b.global > 0 {
		if err := s.store.BumpRateLimitGlobal(ctx, now, b.global); err != nil {
			s.log.Warn("flush global rate-limit bucket failed", zap.Error(err))
		}
	}
	for subnet, n := range b.subnets {
		if err := s.store.BumpRateLimitSubnet(ctx, subnet, now, n); err != nil {
			s.log.Warn("flush subnet rate-limit bucket failed", zap.Error(err))
		}
	}
	for projectID, n := range b.projects {
		if err := s.store.BumpRateLimitProject(ctx, projectID, now, n); err != nil {
			s.log.Warn("flush project rate-limit bucket failed", zap.Error(err))
		}
	}
	for endpoint, lat := range b.latency {
		if err := s.store.BumpRequestLatency(ctx, endpoint, now, lat.count, lat.total, lat.min, lat.max); err != nil {
			s.log.Warn("flush request-latency bucket failed", zap.Error(err))
		}
	}
}
