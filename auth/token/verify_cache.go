package token

import (
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/stephnangue/edgegate/helper"
)

// verifyCache remembers the claims of tokens whose signature already
// verified, keyed by the SHA-256 of the raw token. Entries live until the
// token expires. Losing an entry only costs a signature check, so the cache
// is free to drop items under pressure.
type verifyCache struct {
	cache *ristretto.Cache[string, *Claims]
}

func newVerifyCache(maxEntries int64) (*verifyCache, error) {
	cache, err := ristretto.NewCache(&ristretto.Config[string, *Claims]{
		NumCounters: maxEntries * 10,
		MaxCost:     maxEntries,
		BufferItems: 64,
		// Every entry costs 1, so MaxCost is an entry count.
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize verify cache: %w", err)
	}
	return &verifyCache{cache: cache}, nil
}

func cacheKey(raw string) string {
	return helper.GetHash(raw)
}

func (v *verifyCache) get(raw string) (*Claims, bool) {
	return v.cache.Get(cacheKey(raw))
}

func (v *verifyCache) set(raw string, claims *Claims, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	v.cache.SetWithTTL(cacheKey(raw), claims, 1, ttl)
}

func (v *verifyCache) close() {
	v.cache.Close()
}
