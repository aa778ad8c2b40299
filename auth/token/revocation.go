package token

import (
	"container/heap"
	"sync"
	"time"

	"github.com/stephnangue/edgegate/clock"
)

const DefaultMaxRevocations = 100_000

// RevocationCache is a bounded set of revoked token ids. An entry is kept
// until the natural expiry of its token; after that the token is rejected
// on expiry alone. Lookups do not take a lock.
type RevocationCache struct {
	entries sync.Map // token id -> time.Time

	mu    sync.Mutex
	queue expiryQueue
	index map[string]*revocation
	max   int
	clock clock.Clock
}

type revocation struct {
	id        string
	expiresAt time.Time
	pos       int
}

// NewRevocationCache creates a cache holding at most maxEntries ids. When
// full, the entries closest to expiry are evicted first.
func NewRevocationCache(maxEntries int, clk clock.Clock) *RevocationCache {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxRevocations
	}
	if clk == nil {
		clk = clock.Real()
	}
	return &RevocationCache{
		index: make(map[string]*revocation),
		max:   maxEntries,
		clock: clk,
	}
}

// Add revokes tokenID until expiresAt. Adding an id twice keeps the later
// expiry. Ids that are already past expiry are ignored.
func (c *RevocationCache) Add(tokenID string, expiresAt time.Time) {
	if tokenID == "" || c.clock.Now().After(expiresAt) {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if r, ok := c.index[tokenID]; ok {
		if expiresAt.After(r.expiresAt) {
			r.expiresAt = expiresAt
			heap.Fix(&c.queue, r.pos)
			c.entries.Store(tokenID, expiresAt)
		}
		return
	}

	r := &revocation{id: tokenID, expiresAt: expiresAt}
	heap.Push(&c.queue, r)
	c.index[tokenID] = r
	c.entries.Store(tokenID, expiresAt)

	for len(c.queue) > c.max {
		c.removeLocked(heap.Pop(&c.queue).(*revocation))
	}
}

// Contains reports whether tokenID is revoked. Entries past expiry read as
// absent even before Prune removes them.
func (c *RevocationCache) Contains(tokenID string) bool {
	v, ok := c.entries.Load(tokenID)
	if !ok {
		return false
	}
	return !c.clock.Now().After(v.(time.Time))
}

// Prune removes entries that expired before now and returns how many were
// removed.
func (c *RevocationCache) Prune(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for len(c.queue) > 0 && now.After(c.queue[0].expiresAt) {
		c.removeLocked(heap.Pop(&c.queue).(*revocation))
		removed++
	}
	return removed
}

// Len returns the number of tracked ids, including expired ones not yet
// pruned.
func (c *RevocationCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

func (c *RevocationCache) removeLocked(r *revocation) {
	delete(c.index, r.id)
	c.entries.Delete(r.id)
}

// expiryQueue is a min-heap on expiresAt.
type expiryQueue []*revocation

func (q expiryQueue) Len() int           { return len(q) }
func (q expiryQueue) Less(i, j int) bool { return q[i].expiresAt.Before(q[j].expiresAt) }

func (q expiryQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].pos = i
	q[j].pos = j
}

func (q *expiryQueue) Push(x any) {
	r := x.(*revocation)
	r.pos = len(*q)
	*q = append(*q, r)
}

func (q *expiryQueue) Pop() any {
	old := *q
	n := len(old)
	r := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	r.pos = -1
	return r
}
