// Package ratelimit implements keyed token-bucket stores.
package ratelimit

import (
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/stephnangue/edgegate/clock"
	"golang.org/x/time/rate"
)

const (
	DefaultEvictionIdle = time.Hour
	DefaultSweepEvery   = 1024
	DefaultSweepSample  = 16
)

// Decision is the outcome of a Consume call.
type Decision struct {
	Consumed  bool
	Remaining int
	// WaitNanos is how long until the bucket holds the requested tokens.
	// Zero when Consumed is true.
	WaitNanos int64
}

// RetryAfter returns WaitNanos rounded up to whole seconds, at least one.
func (d Decision) RetryAfter() time.Duration {
	secs := int64(math.Ceil(float64(d.WaitNanos) / float64(time.Second)))
	if secs < 1 {
		secs = 1
	}
	return time.Duration(secs) * time.Second
}

// Config configures a Store.
type Config struct {
	Capacity     int
	RefillPerSec float64
	// EvictionIdle is how long a full bucket must sit unused before it may
	// be dropped.
	EvictionIdle time.Duration
	// SweepEvery triggers a passive sweep every N consumes; SweepSample
	// buckets are inspected per passive sweep.
	SweepEvery  int
	SweepSample int
	Clock       clock.Clock
}

type bucket struct {
	mu       sync.Mutex
	lim      *rate.Limiter
	lastUsed time.Time
	// evicted is set under mu once the bucket has left the map; a consumer
	// that observes it retries on a fresh bucket.
	evicted bool
}

// Store maps keys to token buckets sharing one capacity and refill rate.
// Lookups go through a concurrent map; each bucket has its own short
// critical section covering refill and decrement.
type Store struct {
	capacity    int
	limit       rate.Limit
	idle        time.Duration
	sweepEvery  uint64
	sweepSample int
	clock       clock.Clock

	buckets  sync.Map // string -> *bucket
	size     atomic.Int64
	consumes atomic.Uint64
}

// NewStore builds a Store. Zero eviction and sweep settings take defaults.
func NewStore(cfg Config) *Store {
	if cfg.Capacity <= 0 {
		cfg.Capacity = 1
	}
	if cfg.EvictionIdle <= 0 {
		cfg.EvictionIdle = DefaultEvictionIdle
	}
	if cfg.SweepEvery <= 0 {
		cfg.SweepEvery = DefaultSweepEvery
	}
	if cfg.SweepSample <= 0 {
		cfg.SweepSample = DefaultSweepSample
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	return &Store{
		capacity:    cfg.Capacity,
		limit:       rate.Limit(cfg.RefillPerSec),
		idle:        cfg.EvictionIdle,
		sweepEvery:  uint64(cfg.SweepEvery),
		sweepSample: cfg.SweepSample,
		clock:       cfg.Clock,
	}
}

// Capacity returns the bucket capacity of the store.
func (s *Store) Capacity() int { return s.capacity }

// Consume takes n tokens from the bucket for key, creating a full bucket on
// first use.
func (s *Store) Consume(key string, n int) Decision {
	if s.consumes.Add(1)%s.sweepEvery == 0 {
		s.sweep(s.clock.Now(), s.sweepSample)
	}

	for {
		b := s.bucket(key)
		b.mu.Lock()
		if b.evicted {
			b.mu.Unlock()
			continue
		}
		d := s.take(b, n, s.clock.Now())
		b.mu.Unlock()
		return d
	}
}

// take runs with b.mu held.
func (s *Store) take(b *bucket, n int, now time.Time) Decision {
	b.lastUsed = now
	if b.lim.AllowN(now, n) {
		return Decision{Consumed: true, Remaining: remaining(b.lim.TokensAt(now))}
	}

	tokens := b.lim.TokensAt(now)
	var wait int64 = math.MaxInt64
	if s.limit > 0 {
		wait = int64(math.Ceil((float64(n) - tokens) * float64(time.Second) / float64(s.limit)))
	}
	return Decision{Consumed: false, Remaining: remaining(tokens), WaitNanos: wait}
}

func remaining(tokens float64) int {
	if tokens <= 0 {
		return 0
	}
	return int(math.Floor(tokens))
}

func (s *Store) bucket(key string) *bucket {
	if v, ok := s.buckets.Load(key); ok {
		return v.(*bucket)
	}
	fresh := &bucket{lim: rate.NewLimiter(s.limit, s.capacity)}
	v, loaded := s.buckets.LoadOrStore(key, fresh)
	if !loaded {
		s.size.Add(1)
	}
	return v.(*bucket)
}

// Sweep drops every bucket that is full and has been idle for at least the
// eviction period. It returns the number of buckets dropped.
func (s *Store) Sweep(now time.Time) int {
	return s.sweep(now, 0)
}

// sweep inspects up to limit buckets (all when limit is 0). Map iteration
// order is unspecified, which makes a bounded walk a random sample.
func (s *Store) sweep(now time.Time, limit int) int {
	evicted, seen := 0, 0
	s.buckets.Range(func(k, v any) bool {
		if s.tryEvict(k.(string), v.(*bucket), now) {
			evicted++
		}
		seen++
		return limit == 0 || seen < limit
	})
	return evicted
}

func (s *Store) tryEvict(key string, b *bucket, now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.evicted || now.Sub(b.lastUsed) < s.idle {
		return false
	}
	if b.lim.TokensAt(now) < float64(s.capacity) {
		return false
	}
	if !s.buckets.CompareAndDelete(key, b) {
		return false
	}
	b.evicted = true
	s.size.Add(-1)
	return true
}

// Len returns the number of live buckets.
func (s *Store) Len() int {
	return int(s.size.Load())
}
