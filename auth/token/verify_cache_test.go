package token

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifyCache_HoldsConfiguredEntryCount(t *testing.T) {
	cache, err := newVerifyCache(1000)
	require.NoError(t, err)
	t.Cleanup(cache.close)

	claims := userClaims()
	for i := 0; i < 500; i++ {
		cache.set(fmt.Sprintf("token-%d", i), claims, time.Hour)
	}
	cache.cache.Wait()

	hits := 0
	for i := 0; i < 500; i++ {
		if _, ok := cache.get(fmt.Sprintf("token-%d", i)); ok {
			hits++
		}
	}
	assert.Equal(t, 500, hits)
}

func TestVerifyCache_SkipsExpiredTTL(t *testing.T) {
	cache, err := newVerifyCache(10)
	require.NoError(t, err)
	t.Cleanup(cache.close)

	cache.set("expired", userClaims(), 0)
	cache.cache.Wait()

	_, ok := cache.get("expired")
	assert.False(t, ok)
}

func TestCodec_VerifyPopulatesCache(t *testing.T) {
	c, _ := newTestCodec(t)

	raws := make([]string, 0, 200)
	for i := 0; i < 200; i++ {
		raw, err := c.Issue(userClaims(), time.Hour)
		require.NoError(t, err)
		_, err = c.Verify(raw)
		require.NoError(t, err)
		raws = append(raws, raw)
	}
	c.cache.cache.Wait()

	for _, raw := range raws {
		_, ok := c.cache.get(raw)
		assert.True(t, ok)
	}
}
