package core

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticResolver(t *testing.T) {
	r, err := NewStaticResolver(map[string][]string{
		"usersv":  {"127.0.0.1:8081", "https://users.internal/ignored/path"},
		"emptysv": {},
	})
	require.NoError(t, err)

	got, err := r.Resolve(context.Background(), "usersv")
	require.NoError(t, err)
	assert.Equal(t, []string{"http://127.0.0.1:8081", "https://users.internal"}, got)

	_, err = r.Resolve(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrUnknownService)

	assert.Equal(t, []string{"usersv"}, r.Services(), "services with no instances are not recorded")
}

func TestNewStaticResolver_InvalidInstance(t *testing.T) {
	_, err := NewStaticResolver(map[string][]string{"usersv": {"ftp://files"}})
	assert.Error(t, err)

	_, err = NewStaticResolver(map[string][]string{"usersv": {"http://"}})
	assert.Error(t, err)
}

func TestBalancer_RoundRobin(t *testing.T) {
	var b Balancer
	instances := []string{"http://a", "http://b", "http://c"}

	var got []string
	for i := 0; i < 6; i++ {
		got = append(got, b.Pick("usersv", instances))
	}
	assert.Equal(t, []string{"http://a", "http://b", "http://c", "http://a", "http://b", "http://c"}, got)

	assert.Equal(t, "http://a", b.Pick("ordersv", instances), "counters are per service")
	assert.Equal(t, "http://only", b.Pick("cartsv", []string{"http://only"}))
}

func TestBalancer_Concurrent(t *testing.T) {
	var b Balancer
	instances := []string{"http://a", "http://b"}

	var (
		mu     sync.Mutex
		counts = map[string]int{}
		wg     sync.WaitGroup
	)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			inst := b.Pick("usersv", instances)
			mu.Lock()
			counts[inst]++
			mu.Unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, counts["http://a"])
	assert.Equal(t, 50, counts["http://b"])
}
