// Package ratelimit implements the three-tier token-bucket limiter:
// global, per-subnet, per-project. Each bucket is a
// golang.org/x/time/rate.Limiter, the same primitive luci-go's batch
// dispatcher threads through its own throttling options
// (common/sync/dispatcher/options.go). The subnet/project maps are
// bounded with manual FIFO-ish eviction styled on the teacher's
// PoolManager (internal/database/database.go), since no pack example
// imports a dedicated LRU library.
package ratelimit

import (
	"math"
	"net"
	"sync"

	"golang.org/x/time/rate"
)

// maxBucketEntries bounds the subnet/project maps, per spec's
// recommended cap.
const maxBucketEntries = 100_000

// Limiter checks the three tiers in order: global, subnet, project.
// A rate of 0 disables that tier entirely.
type Limiter struct {
	global *rate.Limiter

	rPerIP      float64
	rPerProject float64
	burstMult   float64

	mu      sync.Mutex
	subnets map[string]*entry
	order   []string // insertion order, oldest first, for eviction

	projectsMu sync.Mutex
	projects   map[int64]*entry
	projOrder  []int64
}

type entry struct {
	limiter *rate.Limiter
}

// New builds a Limiter from the four configured rates. globalPerSec,
// perIPPerSec, and perProjectPerSec of 0 disable that tier.
func New(globalPerSec, perIPPerSec, perProjectPerSec, burstMultiplier float64) *Limiter {
	l := &Limiter{
		rPerIP:      perIPPerSec,
		rPerProject: perProjectPerSec,
		burstMult:   burstMultiplier,
		subnets:     make(map[string]*entry),
		projects:    make(map[int64]*entry),
	}
	if globalPerSec > 0 {
		l.global = rate.NewLimiter(rate.Limit(globalPerSec), burst(globalPerSec, burstMultiplier))
	}
	return l
}

func burst(r, mult float64) int {
	b := int(math.Ceil(r * mult))
	if b < 1 {
		b = 1
	}
	return b
}

// Tier identifies which bucket rejected a request.
type Tier int

const (
	TierNone Tier = iota
	TierGlobal
	TierSubnet
	TierProject
)

// Allow checks global, then subnet (derived from remoteAddr), then
// project, in that order. It returns the first tier that rejects, or
// TierNone if all tiers admit the request. No tokens are consumed from
// later tiers once an earlier one rejects.
func (l *Limiter) Allow(remoteAddr string, projectID int64) Tier {
	if l.global != nil && !l.global.Allow() {
		return TierGlobal
	}

	if l.rPerIP > 0 {
		subnet := subnetKey(remoteAddr)
		if subnet != "" && !l.subnetLimiter(subnet).Allow() {
			return TierSubnet
		}
	}

	if l.rPerProject > 0 {
		if !l.projectLimiter(projectID).Allow() {
			return TierProject
		}
	}

	return TierNone
}

func (l *Limiter) subnetLimiter(subnet string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if e, ok := l.subnets[subnet]; ok {
		return e.limiter
	}

	if len(l.subnets) >= maxBucketEntries {
		evict := l.order[0]
		l.order = l.order[1:]
		delete(l.subnets, evict)
	}

	lim := rate.NewLimiter(rate.Limit(l.rPerIP), burst(l.rPerIP, l.burstMult))
	l.subnets[subnet] = &entry{limiter: lim}
	l.order = append(l.order, subnet)
	return lim
}

func (l *Limiter) projectLimiter(projectID int64) *rate.Limiter {
	l.projectsMu.Lock()
	defer l.projectsMu.Unlock()

	if e, ok := l.projects[projectID]; ok {
		return e.limiter
	}

	if len(l.projects) >= maxBucketEntries {
		evict := l.projOrder[0]
		l.projOrder = l.projOrder[1:]
		delete(l.projects, evict)
	}

	lim := rate.NewLimiter(rate.Limit(l.rPerProject), burst(l.rPerProject, l.burstMult))
	l.projects[projectID] = &entry{limiter: lim}
	l.projOrder = append(l.projOrder, projectID)
	return lim
}

// SubnetKey reduces remoteAddr to its /24 (IPv4) or /48 (IPv6) prefix.
// Exported so callers can label the same subnet bucket Allow used when
// reporting a rejection.
func SubnetKey(remoteAddr string) string {
	return subnetKey(remoteAddr)
}

// subnetKey reduces remoteAddr to its /24 (IPv4) or /48 (IPv6) prefix.
func subnetKey(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return ""
	}
	if v4 := ip.To4(); v4 != nil {
		return v4.Mask(net.CIDRMask(24, 32)).String()
	}
	return ip.Mask(net.CIDRMask(48, 128)).String()
}
