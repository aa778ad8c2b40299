package token

import (
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stephnangue/edgegate/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func newTestCodec(t *testing.T) (*Codec, *clock.Fake) {
	t.Helper()
	clk := clock.NewFake(epoch)
	c, err := NewCodec(CodecConfig{
		Secret:      testSecret,
		Revocations: NewRevocationCache(100, clk),
		Clock:       clk,
	})
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c, clk
}

func userClaims() *Claims {
	uid := NumericID(42)
	return &Claims{
		UserID:   &uid,
		Username: "alice",
		Roles:    []string{"ROLE_ADMIN", "ROLE_USER"},
		RegisteredClaims: jwt.RegisteredClaims{
			Subject: "alice",
		},
	}
}

func signWith(t *testing.T, method jwt.SigningMethod, key any, claims jwt.Claims) string {
	t.Helper()
	raw, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return raw
}

func TestNewCodec_RejectsShortSecret(t *testing.T) {
	_, err := NewCodec(CodecConfig{Secret: []byte("short")})
	assert.ErrorIs(t, err, ErrWeakSecret)
}

func TestCodec_IssueAndAuthenticate(t *testing.T) {
	c, _ := newTestCodec(t)

	raw, err := c.Issue(userClaims(), 0)
	require.NoError(t, err)

	claims, p, err := c.Authenticate(raw)
	require.NoError(t, err)
	assert.NotEmpty(t, claims.ID)
	assert.True(t, epoch.Add(DefaultTTL).Equal(claims.ExpiresAt.Time))

	require.NotNil(t, p.UserID)
	assert.Equal(t, int64(42), *p.UserID)
	assert.Equal(t, "alice", p.Username)
	assert.Equal(t, []string{"ROLE_ADMIN", "ROLE_USER"}, p.Roles)
	assert.Equal(t, "alice", p.SessionID)
	assert.Empty(t, p.Email)
	assert.False(t, p.IsGuest())
}

func TestCodec_VerifyErrors(t *testing.T) {
	c, clk := newTestCodec(t)
	now := clk.Now()

	valid := func() jwt.Claims {
		cl := userClaims()
		cl.ID = "t1"
		cl.IssuedAt = jwt.NewNumericDate(now)
		cl.ExpiresAt = jwt.NewNumericDate(now.Add(time.Hour))
		return cl
	}

	expired := userClaims()
	expired.IssuedAt = jwt.NewNumericDate(now.Add(-2 * time.Hour))
	expired.ExpiresAt = jwt.NewNumericDate(now.Add(-time.Hour))

	future := userClaims()
	future.IssuedAt = jwt.NewNumericDate(now.Add(time.Hour))
	future.ExpiresAt = jwt.NewNumericDate(now.Add(2 * time.Hour))

	noExp := userClaims()
	noExp.IssuedAt = jwt.NewNumericDate(now)

	tests := []struct {
		name string
		raw  string
		want error
	}{
		{"empty", "", ErrMalformed},
		{"garbage", "not.a.token", ErrMalformed},
		{"hs512", signWith(t, jwt.SigningMethodHS512, testSecret, valid()), ErrUnsupportedAlg},
		{"none", signWith(t, jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType, valid()), ErrUnsupportedAlg},
		{"wrong key", signWith(t, jwt.SigningMethodHS256, []byte("ffffffffffffffffffffffffffffffff"), valid()), ErrSignature},
		{"expired", signWith(t, jwt.SigningMethodHS256, testSecret, expired), ErrExpired},
		{"issued in future", signWith(t, jwt.SigningMethodHS256, testSecret, future), ErrNotYetValid},
		{"missing exp", signWith(t, jwt.SigningMethodHS256, testSecret, noExp), ErrMalformed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Verify(tt.raw)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestCodec_AlgorithmCheckedBeforeExpiry(t *testing.T) {
	c, clk := newTestCodec(t)

	cl := userClaims()
	cl.ExpiresAt = jwt.NewNumericDate(clk.Now().Add(-time.Hour))
	raw := signWith(t, jwt.SigningMethodHS384, testSecret, cl)

	_, err := c.Verify(raw)
	assert.ErrorIs(t, err, ErrUnsupportedAlg)
}

func TestCodec_SignatureCheckedBeforeExpiry(t *testing.T) {
	c, clk := newTestCodec(t)

	cl := userClaims()
	cl.ExpiresAt = jwt.NewNumericDate(clk.Now().Add(-time.Hour))
	raw := signWith(t, jwt.SigningMethodHS256, []byte("ffffffffffffffffffffffffffffffff"), cl)

	_, err := c.Verify(raw)
	assert.ErrorIs(t, err, ErrSignature)
}

func TestCodec_TamperedPayload(t *testing.T) {
	c, _ := newTestCodec(t)

	raw, err := c.Issue(userClaims(), time.Hour)
	require.NoError(t, err)

	parts := strings.Split(raw, ".")
	payload := base64.RawURLEncoding.EncodeToString(
		[]byte(`{"user_id":1,"username":"mallory","exp":9999999999,"iat":1}`))
	forged := parts[0] + "." + payload + "." + parts[2]

	_, err = c.Verify(forged)
	assert.ErrorIs(t, err, ErrSignature)
}

func TestCodec_RevokedAfterCachedVerify(t *testing.T) {
	c, _ := newTestCodec(t)

	raw, err := c.Issue(userClaims(), time.Hour)
	require.NoError(t, err)

	_, err = c.Verify(raw)
	require.NoError(t, err)
	_, err = c.Verify(raw)
	require.NoError(t, err)

	claims, err := c.Revoke(raw)
	require.NoError(t, err)
	assert.True(t, c.Revocations().Contains(claims.ID))

	_, err = c.Verify(raw)
	assert.ErrorIs(t, err, ErrRevoked)
}

func TestCodec_CachedTokenStillExpires(t *testing.T) {
	c, clk := newTestCodec(t)

	raw, err := c.Issue(userClaims(), time.Minute)
	require.NoError(t, err)
	_, err = c.Verify(raw)
	require.NoError(t, err)

	clk.Advance(time.Minute)
	_, err = c.Verify(raw)
	assert.ErrorIs(t, err, ErrExpired)
}

func TestCodec_UserIDAsString(t *testing.T) {
	c, clk := newTestCodec(t)

	raw := signWith(t, jwt.SigningMethodHS256, testSecret, jwt.MapClaims{
		"user_id":  "42",
		"username": "alice",
		"email":    "alice@example.com",
		"iat":      clk.Now().Unix(),
		"exp":      clk.Now().Add(time.Hour).Unix(),
	})

	_, p, err := c.Authenticate(raw)
	require.NoError(t, err)
	assert.Equal(t, int64(42), *p.UserID)
	assert.Equal(t, "alice@example.com", p.Email)
	assert.Nil(t, p.Roles)
}

func TestCodec_UserTokenWithoutUsernameIsIncomplete(t *testing.T) {
	c, clk := newTestCodec(t)

	raw := signWith(t, jwt.SigningMethodHS256, testSecret, jwt.MapClaims{
		"user_id": 42,
		"iat":     clk.Now().Unix(),
		"exp":     clk.Now().Add(time.Hour).Unix(),
	})

	_, _, err := c.Authenticate(raw)
	assert.ErrorIs(t, err, ErrIncompleteClaims)
	assert.Equal(t, "incomplete_claims", Reason(err))
}

func TestCodec_GuestIssueAndRefresh(t *testing.T) {
	c, clk := newTestCodec(t)

	raw, claims, err := c.IssueGuest("sess-1")
	require.NoError(t, err)
	assert.True(t, claims.IsGuest)
	assert.True(t, epoch.Add(DefaultGuestTTL).Equal(claims.ExpiresAt.Time))

	_, p, err := c.Authenticate(raw)
	require.NoError(t, err)
	assert.True(t, p.IsGuest())
	assert.Equal(t, "sess-1", p.SessionID)

	clk.Advance(30 * time.Minute)
	refreshed, newClaims, err := c.RefreshGuest(raw)
	require.NoError(t, err)
	assert.NotEqual(t, raw, refreshed)
	assert.NotEqual(t, claims.ID, newClaims.ID)
	assert.Equal(t, "sess-1", newClaims.SessionID)
	assert.True(t, newClaims.ExpiresAt.After(claims.ExpiresAt.Time))

	_, err = c.Verify(raw)
	assert.NoError(t, err, "the previous guest token stays valid until it expires")
}

func TestCodec_RefreshRejectsUserAndInvalidTokens(t *testing.T) {
	c, clk := newTestCodec(t)

	user, err := c.Issue(userClaims(), time.Hour)
	require.NoError(t, err)
	_, _, err = c.RefreshGuest(user)
	assert.ErrorIs(t, err, ErrNotGuest)

	guest, _, err := c.IssueGuest("sess-1")
	require.NoError(t, err)
	clk.Advance(DefaultGuestTTL)
	_, _, err = c.RefreshGuest(guest)
	assert.ErrorIs(t, err, ErrExpired)
}

func TestPeekUserID(t *testing.T) {
	c, _ := newTestCodec(t)

	raw, err := c.Issue(userClaims(), time.Hour)
	require.NoError(t, err)
	uid, ok := PeekUserID(raw)
	assert.True(t, ok)
	assert.Equal(t, int64(42), uid)

	forged := signWith(t, jwt.SigningMethodHS256, []byte("ffffffffffffffffffffffffffffffff"),
		jwt.MapClaims{"user_id": 7})
	uid, ok = PeekUserID(forged)
	assert.True(t, ok, "the peek does not verify signatures")
	assert.Equal(t, int64(7), uid)

	guest, _, err := c.IssueGuest("sess-1")
	require.NoError(t, err)
	_, ok = PeekUserID(guest)
	assert.False(t, ok)

	_, ok = PeekUserID("garbage")
	assert.False(t, ok)
}

func TestReason(t *testing.T) {
	assert.Equal(t, "revoked", Reason(ErrRevoked))
	assert.Equal(t, "expired", Reason(classify(jwt.ErrTokenExpired)))
	assert.Equal(t, "malformed", Reason(ErrMalformed))
}
