package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"
)

// MinSigningSecretLength is 256 bits.
const MinSigningSecretLength = 32

// Validate checks the finalized configuration and reports every problem at
// once.
func (c *Config) Validate() error {
	var errs *multierror.Error

	if len(c.Token.SigningSecret) < MinSigningSecretLength {
		errs = multierror.Append(errs, fmt.Errorf(
			"token.signing_secret must be at least %d bytes (set it in the file or via %s)",
			MinSigningSecretLength, SigningSecretEnv))
	}
	positive := []struct {
		name  string
		value int64
	}{
		{"token.ttl", int64(c.Token.TTL)},
		{"token.guest_ttl", int64(c.Token.GuestTTL)},
		{"guest_session.ttl", int64(c.GuestSession.TTL)},
		{"guest_session.max_sessions", int64(c.GuestSession.MaxSessions)},
		{"upstream.request_timeout", int64(c.Upstream.RequestTimeout)},
		{"maintenance_interval", int64(c.MaintenanceInterval)},
		{"rate_limit.ip.capacity", int64(c.RateLimit.IP.Capacity)},
		{"rate_limit.user.capacity", int64(c.RateLimit.User.Capacity)},
		{"revocation.max_entries", int64(c.Revocation.MaxEntries)},
	}
	for _, p := range positive {
		if p.value <= 0 {
			errs = multierror.Append(errs, fmt.Errorf("%s must be positive", p.name))
		}
	}
	if c.Token.Leeway < 0 {
		errs = multierror.Append(errs, errors.New("token.leeway must not be negative"))
	}
	if c.RateLimit.IP.RefillPerSec <= 0 || c.RateLimit.User.RefillPerSec <= 0 {
		errs = multierror.Append(errs, errors.New("rate_limit refill_per_sec must be positive"))
	}

	if len(c.Routes) == 0 {
		errs = multierror.Append(errs, errors.New("at least one route is required"))
	}
	for _, r := range c.Routes {
		if !strings.HasPrefix(r.Prefix, "/") {
			errs = multierror.Append(errs, fmt.Errorf("route %q: prefix must start with /", r.Prefix))
		}
		if r.Service == "" {
			errs = multierror.Append(errs, fmt.Errorf("route %q: service is required", r.Prefix))
		}
		switch strings.ToLower(r.Rewrite) {
		case "", "strip_prefix", "keep":
		case "replace":
			if r.RewriteFrom == "" {
				errs = multierror.Append(errs, fmt.Errorf("route %q: replace rewrite requires rewrite_from", r.Prefix))
			}
		default:
			errs = multierror.Append(errs, fmt.Errorf("route %q: unknown rewrite %q", r.Prefix, r.Rewrite))
		}
	}

	switch c.ServiceResolver.Kind {
	case "static":
		static := c.ServiceResolver.StaticServices()
		for _, r := range c.Routes {
			if len(static[r.Service]) == 0 {
				errs = multierror.Append(errs, fmt.Errorf("route %q: service %q has no static instances", r.Prefix, r.Service))
			}
		}
	case "discovery":
		if c.ServiceResolver.URL == "" {
			errs = multierror.Append(errs, errors.New("service_resolver \"discovery\" requires url"))
		}
	default:
		errs = multierror.Append(errs, fmt.Errorf("unknown service_resolver kind %q", c.ServiceResolver.Kind))
	}

	if c.AuthLoginPrefix != "" && !strings.HasPrefix(c.AuthLoginPrefix, "/") {
		errs = multierror.Append(errs, errors.New("auth_login_prefix must start with /"))
	}
	for _, p := range c.AllowlistExtra {
		if !strings.HasPrefix(p, "/") {
			errs = multierror.Append(errs, fmt.Errorf("infrastructure_allowlist_extra entry %q must start with /", p))
		}
	}

	return errs.ErrorOrNil()
}
