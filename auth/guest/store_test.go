package guest

import (
	"sync"
	"testing"
	"time"

	"github.com/stephnangue/edgegate/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T, maxSessions int) (*Store, *clock.Fake) {
	t.Helper()
	clk := clock.NewFake(epoch)
	s, err := NewStore(Config{MaxSessions: maxSessions, Clock: clk})
	require.NoError(t, err)
	return s, clk
}

func TestStore_Create(t *testing.T) {
	s, _ := newTestStore(t, 0)

	sess, err := s.Create()
	require.NoError(t, err)
	assert.Len(t, sess.ID, 22)
	assert.Equal(t, epoch, sess.CreatedAt)
	assert.Equal(t, epoch, sess.LastActivityAt)
	assert.Equal(t, epoch.Add(DefaultTTL), sess.ExpiresAt)
	assert.Equal(t, 1, s.Len())
}

func TestStore_IsValidExtends(t *testing.T) {
	s, clk := newTestStore(t, 0)
	sess, err := s.Create()
	require.NoError(t, err)

	clk.Advance(90 * time.Minute)
	got, ok := s.Touch(sess.ID)
	require.True(t, ok)
	assert.Equal(t, clk.Now(), got.LastActivityAt)
	assert.Equal(t, clk.Now().Add(DefaultTTL), got.ExpiresAt)

	clk.Advance(90 * time.Minute)
	assert.True(t, s.IsValid(sess.ID), "activity keeps the session alive past the original expiry")
}

func TestStore_ExpiresAfterInactivity(t *testing.T) {
	s, clk := newTestStore(t, 0)
	sess, err := s.Create()
	require.NoError(t, err)

	clk.Advance(DefaultTTL)
	assert.False(t, s.IsValid(sess.ID))
	assert.Zero(t, s.Len(), "an expired session is dropped on validation")
}

func TestStore_InfoHasNoSideEffect(t *testing.T) {
	s, clk := newTestStore(t, 0)
	sess, err := s.Create()
	require.NoError(t, err)

	clk.Advance(time.Hour)
	info, ok := s.Info(sess.ID)
	require.True(t, ok)
	assert.Equal(t, sess.ExpiresAt, info.ExpiresAt)

	clk.Advance(time.Hour)
	_, ok = s.Info(sess.ID)
	assert.False(t, ok)
}

func TestStore_RemoveIsIdempotent(t *testing.T) {
	s, _ := newTestStore(t, 0)
	sess, err := s.Create()
	require.NoError(t, err)

	s.Remove(sess.ID)
	s.Remove(sess.ID)
	s.Remove("unknown")
	s.Remove("")

	assert.False(t, s.IsValid(sess.ID))
	assert.Zero(t, s.Len())
}

func TestStore_Sweep(t *testing.T) {
	s, clk := newTestStore(t, 0)

	stale, err := s.Create()
	require.NoError(t, err)
	clk.Advance(time.Hour)
	fresh, err := s.Create()
	require.NoError(t, err)

	clk.Advance(time.Hour)
	assert.Equal(t, 1, s.Sweep(clk.Now()))
	assert.False(t, s.IsValid(stale.ID))
	assert.True(t, s.IsValid(fresh.ID))
}

func TestStore_Bounded(t *testing.T) {
	s, _ := newTestStore(t, 32)

	for i := 0; i < 500; i++ {
		_, err := s.Create()
		require.NoError(t, err)
	}
	assert.LessOrEqual(t, s.Len(), 32)
}

func TestStore_ConcurrentValidation(t *testing.T) {
	s, clk := newTestStore(t, 0)
	sess, err := s.Create()
	require.NoError(t, err)

	var wg sync.WaitGroup
	for g := 0; g < 16; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				clk.Advance(time.Second)
				if !s.IsValid(sess.ID) {
					t.Error("session should stay valid under steady activity")
					return
				}
			}
		}()
	}
	wg.Wait()

	info, ok := s.Info(sess.ID)
	require.True(t, ok)
	assert.False(t, info.ExpiresAt.Before(clk.Now().Add(DefaultTTL-time.Duration(16*100)*time.Second)))
}

func TestStore_EmptyID(t *testing.T) {
	s, _ := newTestStore(t, 0)
	assert.False(t, s.IsValid(""))
	_, ok := s.Info("")
	assert.False(t, ok)
}
