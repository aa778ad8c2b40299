package http

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stephnangue/edgegate/auth/token"
	"github.com/stephnangue/edgegate/clock"
	"github.com/stephnangue/edgegate/config"
	"github.com/stephnangue/edgegate/core"
	"github.com/stephnangue/edgegate/logical"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testStart = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type recordedRequest struct {
	Method      string
	Path        string
	EscapedPath string
	Query       string
	Header      http.Header
	Body        string
}

// testUpstream is a downstream service recording what the gateway sent.
type testUpstream struct {
	*httptest.Server

	mu       sync.Mutex
	requests []recordedRequest
}

func okResponder(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"ok":true}`))
}

func newTestUpstream(t *testing.T, respond http.HandlerFunc) *testUpstream {
	t.Helper()
	if respond == nil {
		respond = okResponder
	}
	u := &testUpstream{}
	u.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		u.mu.Lock()
		u.requests = append(u.requests, recordedRequest{
			Method:      r.Method,
			Path:        r.URL.Path,
			EscapedPath: r.URL.EscapedPath(),
			Query:       r.URL.RawQuery,
			Header:      r.Header.Clone(),
			Body:        string(body),
		})
		u.mu.Unlock()
		respond(w, r)
	}))
	t.Cleanup(u.Close)
	return u
}

func (u *testUpstream) count() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.requests)
}

func (u *testUpstream) last(t *testing.T) recordedRequest {
	t.Helper()
	u.mu.Lock()
	defer u.mu.Unlock()
	require.NotEmpty(t, u.requests, "upstream received no request")
	return u.requests[len(u.requests)-1]
}

func newTestGateway(t *testing.T, cfg *config.Config) (http.Handler, *core.Core, *clock.Fake) {
	t.Helper()
	clk := clock.NewFake(testStart)
	c := core.TestCore(t, cfg, clk)
	return Handler(&HandlerProperties{Core: c, CORS: cfg.CORS}), c, clk
}

func serve(h http.Handler, method, target string, body string, mutate func(r *http.Request)) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	r := httptest.NewRequest(method, target, reader)
	if body != "" {
		r.Header.Set("Content-Type", "application/json")
	}
	if mutate != nil {
		mutate(r)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func withBearer(raw string) func(r *http.Request) {
	return func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+raw)
	}
}

func issueUserToken(t *testing.T, c *core.Core, userID int64, username string, roles ...string) (string, *token.Claims) {
	t.Helper()
	uid := token.NumericID(userID)
	claims := &token.Claims{UserID: &uid, Username: username, Roles: roles}
	raw, err := c.Codec().Issue(claims, 0)
	require.NoError(t, err)
	return raw, claims
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) logical.ErrorEnvelope {
	t.Helper()
	assert.Equal(t, "application/json; charset=utf-8", w.Header().Get("Content-Type"))
	var env logical.ErrorEnvelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env
}

func assertNoIdentityHeaders(t *testing.T, h http.Header) {
	t.Helper()
	for _, name := range logical.IdentityHeaders {
		assert.Empty(t, h.Values(name), name)
	}
}

// Unauthenticated GET to infrastructure: forwarded verbatim, no identity
// headers, no bucket consumed.
func TestScenario_InfrastructurePathBypass(t *testing.T) {
	monitor := newTestUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/vnd.spring-boot.actuator.v3+json")
		_, _ = w.Write([]byte(`{"status":"UP","components":{"db":{"status":"UP"}}}`))
	})
	src := `
token {
  signing_secret = "` + core.TestSigningSecret + `"
}

route "/actuator" {
  service = "monitorsv"
  rewrite = "keep"
}

service_resolver "static" {
  service "monitorsv" {
    instances = ["` + monitor.URL + `"]
  }
}
`
	cfg, err := config.ParseConfig("test.hcl", []byte(src))
	require.NoError(t, err)
	h, c, _ := newTestGateway(t, cfg)
	raw, _ := issueUserToken(t, c, 42, "alice")

	w := serve(h, http.MethodGet, "/actuator/health", "", func(r *http.Request) {
		r.RemoteAddr = "10.0.0.5:40000"
		r.Header.Set("Authorization", "Bearer "+raw)
		r.Header.Set(logical.HeaderUserID, "7")
	})

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"UP","components":{"db":{"status":"UP"}}}`, w.Body.String())
	assert.Equal(t, "application/vnd.spring-boot.actuator.v3+json", w.Header().Get("Content-Type"))
	assert.Empty(t, w.Header().Get(HeaderRateLimitRemaining))

	out := monitor.last(t)
	assert.Equal(t, "/actuator/health", out.Path)
	assertNoIdentityHeaders(t, out.Header)
	assert.Equal(t, "Bearer "+raw, out.Header.Get("Authorization"))
	assert.Equal(t, 0, c.IPLimiter().Len(), "no bucket consumed")
}

// Address flood: exactly capacity requests pass within one instant.
func TestScenario_AddressFlood(t *testing.T) {
	products := newTestUpstream(t, nil)
	cfg := core.TestConfig(t, map[string]string{"productsv": products.URL}, "")
	h, _, _ := newTestGateway(t, cfg)

	var ok, limited int
	for i := 0; i < 200; i++ {
		w := serve(h, http.MethodGet, "/api/v1/productsv/products", "", func(r *http.Request) {
			r.RemoteAddr = "10.0.0.5:40000"
		})
		switch w.Code {
		case http.StatusOK:
			ok++
			assert.Equal(t, strconv.Itoa(100-ok), w.Header().Get(HeaderRateLimitRemaining))
		case http.StatusTooManyRequests:
			limited++
			env := decodeEnvelope(t, w)
			assert.Equal(t, logical.CodeRateLimitExceeded, env.Code)
			retryAfter, err := strconv.Atoi(w.Header().Get(HeaderRetryAfter))
			require.NoError(t, err)
			assert.GreaterOrEqual(t, retryAfter, 1)
			assert.Equal(t, "0", w.Header().Get(HeaderRateLimitRemaining))
			assert.Equal(t, strconv.FormatInt(testStart.Add(time.Second).Unix(), 10), w.Header().Get(HeaderRateLimitReset))
		default:
			t.Fatalf("unexpected status %d", w.Code)
		}
	}
	assert.Equal(t, 100, ok)
	assert.Equal(t, 100, limited)
	assert.Equal(t, 100, products.count())
}

// Valid token forwards identity and never the Authorization header.
func TestScenario_ValidTokenForwardsIdentity(t *testing.T) {
	users := newTestUpstream(t, nil)
	h, c, _ := newTestGateway(t, core.TestConfig(t, map[string]string{"usersv": users.URL}, ""))
	raw, _ := issueUserToken(t, c, 42, "alice", "ROLE_ADMIN")

	w := serve(h, http.MethodGet, "/api/v1/usersv/profile", "", withBearer(raw))
	require.Equal(t, http.StatusOK, w.Code)

	out := users.last(t)
	assert.Equal(t, "/profile", out.Path)
	assert.Equal(t, "42", out.Header.Get(logical.HeaderUserID))
	assert.Equal(t, "alice", out.Header.Get(logical.HeaderUserUsername))
	assert.Equal(t, "ROLE_ADMIN", out.Header.Get(logical.HeaderUserRoles))
	assert.Empty(t, out.Header.Get("Authorization"))

	traceID := w.Header().Get(logical.HeaderTraceID)
	assert.Len(t, traceID, 16)
	assert.Equal(t, traceID, out.Header.Get(logical.HeaderTraceID))
}

// Spoofed identity headers never reach downstream.
func TestScenario_SpoofedIdentityStripped(t *testing.T) {
	orders := newTestUpstream(t, nil)
	h, _, _ := newTestGateway(t, core.TestConfig(t, map[string]string{"ordersv": orders.URL}, ""))

	w := serve(h, http.MethodGet, "/api/v1/ordersv/orders", "", func(r *http.Request) {
		r.Header.Set(logical.HeaderUserID, "7")
		r.Header.Set(logical.HeaderUserRoles, "ROLE_ADMIN")
		r.Header.Set(logical.HeaderGuestSessionID, "stolen")
	})
	require.Equal(t, http.StatusOK, w.Code)
	assertNoIdentityHeaders(t, orders.last(t).Header)
}

// A revoked token is an absent principal; the downstream answer passes
// through unchanged.
func TestScenario_RevokedTokenIsAnonymous(t *testing.T) {
	users := newTestUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(logical.HeaderUserID) == "" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"login required"}`))
			return
		}
		okResponder(w, r)
	})
	h, c, clk := newTestGateway(t, core.TestConfig(t, map[string]string{"usersv": users.URL}, ""))
	raw, claims := issueUserToken(t, c, 42, "alice")

	w := serve(h, http.MethodGet, "/api/v1/usersv/profile", "", withBearer(raw))
	require.Equal(t, http.StatusOK, w.Code)

	c.Revocations().Add(claims.ID, clk.Now().Add(time.Hour))

	w = serve(h, http.MethodGet, "/api/v1/usersv/profile", "", withBearer(raw))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.JSONEq(t, `{"error":"login required"}`, w.Body.String())
	assertNoIdentityHeaders(t, users.last(t).Header)
}

// Guest session handshake: create, validate while active, expire after
// inactivity.
func TestScenario_GuestSessionHandshake(t *testing.T) {
	h, _, clk := newTestGateway(t, core.TestConfig(t, map[string]string{"cartsv": "127.0.0.1:1"}, ""))

	w := serve(h, http.MethodPost, "/guest/session", "", nil)
	require.Equal(t, http.StatusCreated, w.Code)

	var created logical.GuestSessionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.NotEmpty(t, created.Token)
	assert.Len(t, created.SessionID, 22)
	assert.Equal(t, "Bearer", created.TokenType)
	assert.True(t, created.ExpiresAt.Equal(testStart.Add(2*time.Hour)))

	clk.Advance(30 * time.Minute)
	w = serve(h, http.MethodPost, "/guest/token/validate", `{"token":"`+created.Token+`"}`, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var valid logical.TokenValidationResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &valid))
	assert.True(t, valid.Valid)
	assert.Equal(t, created.SessionID, valid.SessionID)
	require.NotNil(t, valid.ExpiresAt)
	assert.True(t, valid.ExpiresAt.After(created.ExpiresAt))

	clk.Advance(2*time.Hour + time.Second)
	w = serve(h, http.MethodPost, "/guest/token/validate", `{"token":"`+created.Token+`"}`, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"valid":false}`, w.Body.String())
}
