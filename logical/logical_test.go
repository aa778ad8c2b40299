package logical

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func int64Ptr(v int64) *int64 { return &v }

func TestPrincipal_IsGuest(t *testing.T) {
	assert.True(t, (&Principal{SessionID: "s1"}).IsGuest())
	assert.False(t, (&Principal{UserID: int64Ptr(42), Username: "alice"}).IsGuest())
}

func TestPrincipal_HasRole(t *testing.T) {
	p := &Principal{Roles: []string{"ROLE_ADMIN", "customer"}}

	tests := []struct {
		role string
		want bool
	}{
		{"ADMIN", true},
		{"ROLE_ADMIN", true},
		{"customer", true},
		{"ROLE_customer", true},
		{"seller", false},
	}
	for _, tt := range tests {
		t.Run(tt.role, func(t *testing.T) {
			assert.Equal(t, tt.want, p.HasRole(tt.role))
		})
	}
}

func TestAsCodedError(t *testing.T) {
	coded := ErrBadGateway("upstream unreachable").Wrap(errors.New("dial tcp: refused"))
	wrapped := fmt.Errorf("proxy: %w", coded)

	got := AsCodedError(wrapped)
	assert.Equal(t, http.StatusBadGateway, got.Status)
	assert.Equal(t, CodeBadGateway, got.Code)
	assert.Equal(t, http.StatusBadGateway, GetErrorCode(wrapped))

	internal := AsCodedError(errors.New("nil pointer"))
	assert.Equal(t, CodeInternal, internal.Code)
	assert.Equal(t, "internal error", internal.Message)
	assert.Equal(t, http.StatusOK, GetErrorCode(nil))
}

func TestCodedError_WrapKeepsOriginal(t *testing.T) {
	base := ErrUpstreamTimeout("upstream timed out")
	w := base.Wrap(context.DeadlineExceeded)

	assert.Nil(t, base.Err)
	assert.ErrorIs(t, w, context.DeadlineExceeded)
	assert.Contains(t, w.Error(), "upstream timed out")
}

func TestNewErrorEnvelope(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r := httptest.NewRequest(http.MethodGet, "/api/v1/ordersv/orders", nil)
	rc := NewRequestContext(r, "10.0.0.5", now)
	rc.TraceID = "00000000000000ab"

	env := NewErrorEnvelope(ErrNotFound("no route"), rc, now)
	assert.False(t, env.Success)
	assert.Equal(t, CodeNotFound, env.Code)
	assert.Equal(t, "00000000000000ab", env.TraceID)
	assert.Equal(t, "/api/v1/ordersv/orders", env.Path)
	assert.Equal(t, http.MethodGet, env.Method)
	assert.Equal(t, "2026-03-01T12:00:00Z", env.Timestamp)
}

func TestRequestContext_RoundTrip(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/guest/session", nil)
	r.Header.Set("X-User-Id", "7")
	rc := NewRequestContext(r, "10.0.0.5", time.Now())

	rc.Outbound.Del("X-User-Id")
	assert.Equal(t, "7", r.Header.Get("X-User-Id"), "outbound headers are a copy")

	ctx := WithRequestContext(context.Background(), rc)
	got, ok := FromContext(ctx)
	require.True(t, ok)
	assert.Same(t, rc, got)

	_, ok = FromContext(context.Background())
	assert.False(t, ok)
}
