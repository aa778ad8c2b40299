package config

import (
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/hashicorp/go-secure-stdlib/parseutil"
	"github.com/hashicorp/go-secure-stdlib/strutil"
)

const (
	DefaultListenAddress       = "0.0.0.0:8080"
	DefaultReadHeaderTimeout   = 10 * time.Second
	DefaultIdleTimeout         = 2 * time.Minute
	DefaultTokenTTL            = time.Hour
	DefaultGuestTokenTTL       = 2 * time.Hour
	DefaultVerifyCacheSize     = 10_000
	DefaultGuestSessionTTL     = 2 * time.Hour
	DefaultMaxGuestSessions    = 100_000
	DefaultEvictionIdle        = time.Hour
	DefaultIPCapacity          = 100
	DefaultIPRefillPerSec      = 50
	DefaultUserCapacity        = 200
	DefaultUserRefillPerSec    = 100
	DefaultMaxRevocations      = 100_000
	DefaultRefreshInterval     = 30 * time.Second
	DefaultRequestTimeout      = 30 * time.Second
	DefaultDrainTimeout        = 30 * time.Second
	DefaultMaintenanceInterval = time.Minute
	DefaultCORSMaxAge          = 300
)

// DefaultCORS returns the CORS policy used when the cors block leaves a
// list empty.
func DefaultCORS() CORSBlock {
	return CORSBlock{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "Content-Type", "X-Trace-Id"},
		ExposedHeaders: []string{"X-Trace-Id", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		MaxAge:         DefaultCORSMaxAge,
	}
}

func (c *Config) applyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogFormat == "" {
		c.LogFormat = "standard"
	}
	if c.LogRotateMegabytes == 0 {
		c.LogRotateMegabytes = 100
	}

	if _, err := c.GetApiListener(); err != nil {
		c.Listeners = append(c.Listeners, ListenerBlock{Name: "api"})
	}
	for i := range c.Listeners {
		if c.Listeners[i].Address == "" {
			c.Listeners[i].Address = DefaultListenAddress
		}
	}

	if c.Token == nil {
		c.Token = &TokenBlock{}
	}
	if c.Token.VerifyCacheSize == 0 {
		c.Token.VerifyCacheSize = DefaultVerifyCacheSize
	}
	if c.GuestSession == nil {
		c.GuestSession = &GuestSessionBlock{}
	}
	if c.GuestSession.MaxSessions == 0 {
		c.GuestSession.MaxSessions = DefaultMaxGuestSessions
	}

	if c.RateLimit == nil {
		c.RateLimit = &RateLimitBlock{}
	}
	if c.RateLimit.IP == nil {
		c.RateLimit.IP = &BucketBlock{}
	}
	if c.RateLimit.IP.Capacity == 0 {
		c.RateLimit.IP.Capacity = DefaultIPCapacity
	}
	if c.RateLimit.IP.RefillPerSec == 0 {
		c.RateLimit.IP.RefillPerSec = DefaultIPRefillPerSec
	}
	if c.RateLimit.User == nil {
		c.RateLimit.User = &BucketBlock{}
	}
	if c.RateLimit.User.Capacity == 0 {
		c.RateLimit.User.Capacity = DefaultUserCapacity
	}
	if c.RateLimit.User.RefillPerSec == 0 {
		c.RateLimit.User.RefillPerSec = DefaultUserRefillPerSec
	}

	if c.Revocation == nil {
		c.Revocation = &RevocationBlock{}
	}
	if c.Revocation.MaxEntries == 0 {
		c.Revocation.MaxEntries = DefaultMaxRevocations
	}

	if c.ServiceResolver == nil {
		c.ServiceResolver = &ServiceResolverBlock{Kind: "static"}
	}
	if c.Upstream == nil {
		c.Upstream = &UpstreamBlock{}
	}
	if c.Shutdown == nil {
		c.Shutdown = &ShutdownBlock{}
	}

	if c.CORS == nil {
		c.CORS = &CORSBlock{}
	}
	def := DefaultCORS()
	if len(c.CORS.AllowedOrigins) == 0 {
		c.CORS.AllowedOrigins = def.AllowedOrigins
	}
	if len(c.CORS.AllowedMethods) == 0 {
		c.CORS.AllowedMethods = def.AllowedMethods
	}
	if len(c.CORS.AllowedHeaders) == 0 {
		c.CORS.AllowedHeaders = def.AllowedHeaders
	}
	if len(c.CORS.ExposedHeaders) == 0 {
		c.CORS.ExposedHeaders = def.ExposedHeaders
	}
	if c.CORS.MaxAge == 0 {
		c.CORS.MaxAge = def.MaxAge
	}

	c.AllowlistExtra = strutil.RemoveDuplicatesStable(strutil.TrimStrings(c.AllowlistExtra), false)
	c.CORS.AllowedOrigins = strutil.RemoveDuplicatesStable(strutil.TrimStrings(c.CORS.AllowedOrigins), true)
	c.CORS.AllowedMethods = strutil.RemoveDuplicatesStable(strutil.TrimStrings(c.CORS.AllowedMethods), true)
	c.CORS.AllowedHeaders = strutil.RemoveDuplicatesStable(strutil.TrimStrings(c.CORS.AllowedHeaders), true)
	c.CORS.ExposedHeaders = strutil.RemoveDuplicatesStable(strutil.TrimStrings(c.CORS.ExposedHeaders), true)
}

// parseDuration parses raw into *dst, keeping def when raw is empty.
func parseDuration(errs *multierror.Error, name, raw string, def time.Duration, dst *time.Duration) *multierror.Error {
	if raw == "" {
		*dst = def
		return errs
	}
	d, err := parseutil.ParseDurationSecond(raw)
	if err != nil {
		return multierror.Append(errs, fmt.Errorf("%s: %w", name, err))
	}
	*dst = d
	return errs
}

func (c *Config) parseDurations() error {
	var errs *multierror.Error

	errs = parseDuration(errs, "maintenance_interval", c.MaintenanceIntervalRaw, DefaultMaintenanceInterval, &c.MaintenanceInterval)
	for i := range c.Listeners {
		l := &c.Listeners[i]
		errs = parseDuration(errs, "listener."+l.Name+".read_header_timeout", l.ReadHeaderTimeoutRaw, DefaultReadHeaderTimeout, &l.ReadHeaderTimeout)
		errs = parseDuration(errs, "listener."+l.Name+".idle_timeout", l.IdleTimeoutRaw, DefaultIdleTimeout, &l.IdleTimeout)
	}
	errs = parseDuration(errs, "token.ttl", c.Token.TTLRaw, DefaultTokenTTL, &c.Token.TTL)
	errs = parseDuration(errs, "token.guest_ttl", c.Token.GuestTTLRaw, DefaultGuestTokenTTL, &c.Token.GuestTTL)
	errs = parseDuration(errs, "token.leeway", c.Token.LeewayRaw, 0, &c.Token.Leeway)
	errs = parseDuration(errs, "guest_session.ttl", c.GuestSession.TTLRaw, DefaultGuestSessionTTL, &c.GuestSession.TTL)
	errs = parseDuration(errs, "rate_limit.eviction_idle", c.RateLimit.EvictionIdleRaw, DefaultEvictionIdle, &c.RateLimit.EvictionIdle)
	errs = parseDuration(errs, "service_resolver.refresh_interval", c.ServiceResolver.RefreshIntervalRaw, DefaultRefreshInterval, &c.ServiceResolver.RefreshInterval)
	errs = parseDuration(errs, "upstream.request_timeout", c.Upstream.RequestTimeoutRaw, DefaultRequestTimeout, &c.Upstream.RequestTimeout)
	errs = parseDuration(errs, "shutdown.drain_timeout", c.Shutdown.DrainTimeoutRaw, DefaultDrainTimeout, &c.Shutdown.DrainTimeout)

	return errs.ErrorOrNil()
}
