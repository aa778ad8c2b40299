// Package token verifies and issues the gateway's HS256 bearer tokens and
// tracks revoked token ids.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stephnangue/edgegate/clock"
	"github.com/stephnangue/edgegate/helper"
	"github.com/stephnangue/edgegate/logical"
)

// MinSecretLength is the minimum HMAC key size in bytes (256 bits).
const MinSecretLength = 32

const (
	DefaultTTL             = time.Hour
	DefaultGuestTTL        = 2 * time.Hour
	DefaultVerifyCacheSize = 10_000
)

var (
	ErrMalformed        = errors.New("token malformed")
	ErrUnsupportedAlg   = errors.New("unsupported signing algorithm")
	ErrSignature        = errors.New("token signature invalid")
	ErrExpired          = errors.New("token expired")
	ErrNotYetValid      = errors.New("token used before issued")
	ErrRevoked          = errors.New("token revoked")
	ErrIncompleteClaims = errors.New("token claims incomplete")
	ErrNotGuest         = errors.New("not a guest token")
	ErrWeakSecret       = errors.New("signing secret must be at least 32 bytes")
)

// Reason returns a short label for a verification error, used in logs and
// metric names.
func Reason(err error) string {
	switch {
	case errors.Is(err, ErrUnsupportedAlg):
		return "unsupported_alg"
	case errors.Is(err, ErrSignature):
		return "signature"
	case errors.Is(err, ErrExpired):
		return "expired"
	case errors.Is(err, ErrNotYetValid):
		return "not_yet_valid"
	case errors.Is(err, ErrRevoked):
		return "revoked"
	case errors.Is(err, ErrIncompleteClaims):
		return "incomplete_claims"
	default:
		return "malformed"
	}
}

// CodecConfig configures a Codec.
type CodecConfig struct {
	Secret []byte
	// TTL is the default lifetime of user tokens minted by Issue.
	TTL      time.Duration
	GuestTTL time.Duration
	// Leeway tolerates clock skew on exp and iat.
	Leeway time.Duration
	// VerifyCacheSize bounds the verified-claims cache; negative disables it.
	VerifyCacheSize int64
	Revocations     *RevocationCache
	Clock           clock.Clock
}

// Codec verifies and signs HS256 tokens.
type Codec struct {
	secret   []byte
	ttl      time.Duration
	guestTTL time.Duration
	leeway   time.Duration
	revoked  *RevocationCache
	clock    clock.Clock
	parser   *jwt.Parser
	cache    *verifyCache
}

// NewCodec validates cfg and builds a Codec.
func NewCodec(cfg CodecConfig) (*Codec, error) {
	if len(cfg.Secret) < MinSecretLength {
		return nil, ErrWeakSecret
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.GuestTTL <= 0 {
		cfg.GuestTTL = DefaultGuestTTL
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Revocations == nil {
		cfg.Revocations = NewRevocationCache(0, cfg.Clock)
	}

	c := &Codec{
		secret:   append([]byte(nil), cfg.Secret...),
		ttl:      cfg.TTL,
		guestTTL: cfg.GuestTTL,
		leeway:   cfg.Leeway,
		revoked:  cfg.Revocations,
		clock:    cfg.Clock,
	}
	c.parser = jwt.NewParser(
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(cfg.Leeway),
		jwt.WithTimeFunc(cfg.Clock.Now),
	)

	if cfg.VerifyCacheSize == 0 {
		cfg.VerifyCacheSize = DefaultVerifyCacheSize
	}
	if cfg.VerifyCacheSize > 0 {
		cache, err := newVerifyCache(cfg.VerifyCacheSize)
		if err != nil {
			return nil, err
		}
		c.cache = cache
	}
	return c, nil
}

// Revocations returns the revocation cache consulted by Verify.
func (c *Codec) Revocations() *RevocationCache { return c.revoked }

// GuestTTL returns the lifetime of guest tokens.
func (c *Codec) GuestTTL() time.Duration { return c.guestTTL }

// TTL returns the default lifetime of user tokens.
func (c *Codec) TTL() time.Duration { return c.ttl }

// Close releases the verified-claims cache.
func (c *Codec) Close() {
	if c.cache != nil {
		c.cache.close()
	}
}

// Verify checks raw in order: algorithm, signature, expiry and issue time,
// then revocation. The returned claims are shared and must not be modified.
func (c *Codec) Verify(raw string) (*Claims, error) {
	if raw == "" {
		return nil, ErrMalformed
	}

	if c.cache != nil {
		if claims, ok := c.cache.get(raw); ok {
			if !c.clock.Now().Before(claims.ExpiresAt.Add(c.leeway)) {
				return nil, ErrExpired
			}
			if err := c.checkRevoked(claims); err != nil {
				return nil, err
			}
			return claims, nil
		}
	}

	claims := &Claims{}
	if _, err := c.parser.ParseWithClaims(raw, claims, c.keyFunc); err != nil {
		return nil, classify(err)
	}
	if err := c.checkRevoked(claims); err != nil {
		return nil, err
	}

	if c.cache != nil {
		c.cache.set(raw, claims, claims.ExpiresAt.Sub(c.clock.Now()))
	}
	return claims, nil
}

// Authenticate verifies raw and extracts its principal.
func (c *Codec) Authenticate(raw string) (*Claims, *logical.Principal, error) {
	claims, err := c.Verify(raw)
	if err != nil {
		return nil, nil, err
	}
	p, err := claims.Principal()
	if err != nil {
		return nil, nil, err
	}
	return claims, p, nil
}

func (c *Codec) keyFunc(t *jwt.Token) (any, error) {
	if t.Method != jwt.SigningMethodHS256 {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedAlg, t.Method.Alg())
	}
	return c.secret, nil
}

func (c *Codec) checkRevoked(claims *Claims) error {
	if claims.ID != "" && c.revoked.Contains(claims.ID) {
		return ErrRevoked
	}
	return nil
}

func classify(err error) error {
	var sentinel error
	switch {
	case errors.Is(err, ErrUnsupportedAlg), errors.Is(err, jwt.ErrTokenUnverifiable):
		sentinel = ErrUnsupportedAlg
	case errors.Is(err, jwt.ErrTokenMalformed):
		sentinel = ErrMalformed
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		sentinel = ErrSignature
	case errors.Is(err, jwt.ErrTokenExpired):
		sentinel = ErrExpired
	case errors.Is(err, jwt.ErrTokenUsedBeforeIssued), errors.Is(err, jwt.ErrTokenNotValidYet):
		sentinel = ErrNotYetValid
	default:
		sentinel = ErrMalformed
	}
	return fmt.Errorf("%w: %v", sentinel, err)
}

// Revoke verifies raw and adds its id to the revocation cache until the
// token would have expired anyway.
func (c *Codec) Revoke(raw string) (*Claims, error) {
	claims, err := c.Verify(raw)
	if err != nil {
		return nil, err
	}
	if claims.ID == "" {
		return nil, fmt.Errorf("%w: token has no jti", ErrIncompleteClaims)
	}
	c.revoked.Add(claims.ID, claims.ExpiresAt.Add(c.leeway))
	return claims, nil
}

// IssueGuest mints a guest token bound to sessionID.
func (c *Codec) IssueGuest(sessionID string) (string, *Claims, error) {
	if sessionID == "" {
		return "", nil, fmt.Errorf("%w: empty session id", ErrIncompleteClaims)
	}
	claims := &Claims{
		SessionID: sessionID,
		IsGuest:   true,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject: sessionID,
		},
	}
	raw, err := c.Issue(claims, c.guestTTL)
	if err != nil {
		return "", nil, err
	}
	return raw, claims, nil
}

// RefreshGuest exchanges a currently valid guest token for a new one with a
// fresh id and a later expiry. The old token stays valid until it expires.
func (c *Codec) RefreshGuest(raw string) (string, *Claims, error) {
	old, err := c.Verify(raw)
	if err != nil {
		return "", nil, err
	}
	if !old.IsGuest {
		return "", nil, ErrNotGuest
	}
	sessionID := old.SessionID
	if sessionID == "" {
		sessionID = old.Subject
	}
	return c.IssueGuest(sessionID)
}

// Issue signs claims with a new token id, iat set to now and exp set to
// now+ttl. A non-positive ttl uses the configured user token TTL. claims
// is updated in place.
func (c *Codec) Issue(claims *Claims, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = c.ttl
	}
	now := c.clock.Now()
	id, err := helper.GenerateTokenID()
	if err != nil {
		return "", err
	}
	claims.ID = id
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// PeekUserID reads user_id from raw without verifying the signature. It is
// only a hint for choosing a rate-limit bucket and must never be trusted
// as identity.
func PeekUserID(raw string) (int64, bool) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return 0, false
	}
	if claims.IsGuest || claims.UserID == nil {
		return 0, false
	}
	return int64(*claims.UserID), true
}
