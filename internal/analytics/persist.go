package analytics

// batch accumulates one flush interval's worth of events in memory
// before a single round of upserts, mirroring the teacher's Persister
// boundary (events.go talks to the channel, persist.go talks to the
// database) without carrying over any of its CBOR/firehose framing.
type batch struct {
	global   int64
	subnets  map[string]int64
	projects map[int64]int64
	latency  map[string]*latencyAgg
}

type latencyAgg struct {
	count int64
	total float64
	min   float64
	max   float64
}

func newBatch() *batch {
	return &batch{
		subnets:  make(map[string]int64),
		projects: make(map[int64]int64),
		latency:  make(map[string]*latencyAgg),
	}
}

func (b *batch) empty() bool {
	return b.global == 0 && len(b.subnets) == 0 && len(b.projects) == 0 && len(b.latency) == 0
}

func (b *batch) add(ev Event) {
	switch ev.Kind {
	case EventRateLimitGlobal:
		b.global++
	case EventRateLimitSubnet:
		b.subnets[ev.Subnet]++
	case EventRateLimitProject:
		b.projects[ev.ProjectID]++
	case EventRequestLatency:
		agg, ok := b.latency[ev.Endpoint]
		if !ok {
			agg = &latencyAgg{min: ev.Millis, max: ev.Millis}
			b.latency[ev.Endpoint] = agg
		}
		agg.count++
		agg.total += ev.Millis
		if ev.Millis < agg.min {
			agg.min = ev.Millis
		}
		if ev.Millis > agg.max {
			agg.max = ev.Millis
		}
	}
}
