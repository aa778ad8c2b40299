// Package guest tracks anonymous guest sessions.
package guest

import (
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/stephnangue/edgegate/clock"
	"github.com/stephnangue/edgegate/helper"
)

const (
	DefaultTTL         = 2 * time.Hour
	DefaultMaxSessions = 100_000

	shardCount = 16
)

var ErrEmptySessionID = errors.New("empty session id")

// Session is a snapshot of a guest session.
type Session struct {
	ID             string
	CreatedAt      time.Time
	LastActivityAt time.Time
	ExpiresAt      time.Time
}

type entry struct {
	mu      sync.Mutex
	session Session
	removed bool
}

// Config configures a Store.
type Config struct {
	TTL time.Duration
	// MaxSessions bounds the store; the least recently active sessions are
	// evicted first.
	MaxSessions int
	Clock       clock.Clock
}

// Store holds guest sessions in LRU shards. Each session has its own mutex
// so validation can check and extend atomically without blocking other
// sessions.
type Store struct {
	shards [shardCount]*lru.Cache[string, *entry]
	ttl    time.Duration
	clock  clock.Clock
}

// NewStore creates a Store.
func NewStore(cfg Config) (*Store, error) {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = DefaultMaxSessions
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}

	perShard := (cfg.MaxSessions + shardCount - 1) / shardCount
	s := &Store{ttl: cfg.TTL, clock: cfg.Clock}
	for i := range s.shards {
		c, err := lru.New[string, *entry](perShard)
		if err != nil {
			return nil, fmt.Errorf("failed to create session shard: %w", err)
		}
		s.shards[i] = c
	}
	return s, nil
}

// TTL returns the inactivity timeout of a session.
func (s *Store) TTL() time.Duration { return s.ttl }

func (s *Store) shard(id string) *lru.Cache[string, *entry] {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return s.shards[h.Sum32()%shardCount]
}

// Create allocates a new session with a 128-bit random id.
func (s *Store) Create() (Session, error) {
	id, err := helper.GenerateSessionID()
	if err != nil {
		return Session{}, err
	}
	now := s.clock.Now()
	e := &entry{session: Session{
		ID:             id,
		CreatedAt:      now,
		LastActivityAt: now,
		ExpiresAt:      now.Add(s.ttl),
	}}
	s.shard(id).Add(id, e)
	return e.session, nil
}

// IsValid reports whether the session exists and has not expired. A valid
// session is extended to now+TTL in the same critical section.
func (s *Store) IsValid(id string) bool {
	_, ok := s.Touch(id)
	return ok
}

// Touch is IsValid returning the extended session.
func (s *Store) Touch(id string) (Session, bool) {
	if id == "" {
		return Session{}, false
	}
	shard := s.shard(id)
	e, ok := shard.Get(id)
	if !ok {
		return Session{}, false
	}

	e.mu.Lock()
	now := s.clock.Now()
	if e.removed || !now.Before(e.session.ExpiresAt) {
		e.removed = true
		e.mu.Unlock()
		s.removeEntry(shard, id, e)
		return Session{}, false
	}
	e.session.LastActivityAt = now
	e.session.ExpiresAt = now.Add(s.ttl)
	snapshot := e.session
	e.mu.Unlock()

	return snapshot, true
}

// Info returns a snapshot of the session without extending it.
func (s *Store) Info(id string) (Session, bool) {
	if id == "" {
		return Session{}, false
	}
	e, ok := s.shard(id).Peek(id)
	if !ok {
		return Session{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removed || !s.clock.Now().Before(e.session.ExpiresAt) {
		return Session{}, false
	}
	return e.session, true
}

// Remove deletes the session. Removing an unknown id is a no-op.
func (s *Store) Remove(id string) {
	if id == "" {
		return
	}
	shard := s.shard(id)
	e, ok := shard.Peek(id)
	if !ok {
		return
	}
	e.mu.Lock()
	e.removed = true
	e.mu.Unlock()
	s.removeEntry(shard, id, e)
}

// removeEntry drops id only if it still maps to e.
func (s *Store) removeEntry(shard *lru.Cache[string, *entry], id string, e *entry) {
	if cur, ok := shard.Peek(id); ok && cur == e {
		shard.Remove(id)
	}
}

// Sweep removes every session that expired at or before now and returns
// the number removed.
func (s *Store) Sweep(now time.Time) int {
	removed := 0
	for _, shard := range s.shards {
		for _, id := range shard.Keys() {
			e, ok := shard.Peek(id)
			if !ok {
				continue
			}
			e.mu.Lock()
			expired := e.removed || !now.Before(e.session.ExpiresAt)
			if expired {
				e.removed = true
			}
			e.mu.Unlock()
			if expired {
				s.removeEntry(shard, id, e)
				removed++
			}
		}
	}
	return removed
}

// Len returns the number of sessions held, including expired ones not yet
// swept.
func (s *Store) Len() int {
	n := 0
	for _, shard := range s.shards {
		n += shard.Len()
	}
	return n
}
