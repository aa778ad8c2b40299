package config

import (
	"fmt"
	"os"
	"time"

	"github.com/hashicorp/hcl/v2/hclsimple"
)

// SigningSecretEnv overrides token.signing_secret when set.
const SigningSecretEnv = "EDGEGATE_SIGNING_SECRET"

// Config is the configuration for the edgegate server. Duration attributes
// are written as strings ("30s", "2h", or a bare number of seconds) and
// parsed into the untagged fields by Finalize.
type Config struct {
	LogLevel           string `hcl:"log_level,optional"`
	LogFormat          string `hcl:"log_format,optional"`
	LogFile            string `hcl:"log_file,optional"`
	LogRotateMegabytes int    `hcl:"log_rotate_megabytes,optional"`
	LogRotateMaxFiles  int    `hcl:"log_rotate_max_files,optional"`

	AuthLoginPrefix        string   `hcl:"auth_login_prefix,optional"`
	AllowlistExtra         []string `hcl:"infrastructure_allowlist_extra,optional"`
	MaintenanceIntervalRaw string   `hcl:"maintenance_interval,optional"`
	MaintenanceInterval    time.Duration

	Listeners       []ListenerBlock       `hcl:"listener,block"`
	Token           *TokenBlock           `hcl:"token,block"`
	GuestSession    *GuestSessionBlock    `hcl:"guest_session,block"`
	RateLimit       *RateLimitBlock       `hcl:"rate_limit,block"`
	Revocation      *RevocationBlock      `hcl:"revocation,block"`
	Routes          []RouteBlock          `hcl:"route,block"`
	ServiceResolver *ServiceResolverBlock `hcl:"service_resolver,block"`
	Upstream        *UpstreamBlock        `hcl:"upstream,block"`
	Shutdown        *ShutdownBlock        `hcl:"shutdown,block"`
	CORS            *CORSBlock            `hcl:"cors,block"`
}

type ListenerBlock struct {
	Name    string `hcl:"name,label"`
	Address string `hcl:"address,optional"`
	// TrustForwardedFor takes the client address from X-Forwarded-For or
	// X-Real-IP, as set by the TLS-terminating front proxy.
	TrustForwardedFor    bool   `hcl:"trust_forwarded_for,optional"`
	ReadHeaderTimeoutRaw string `hcl:"read_header_timeout,optional"`
	IdleTimeoutRaw       string `hcl:"idle_timeout,optional"`

	ReadHeaderTimeout time.Duration
	IdleTimeout       time.Duration
}

type TokenBlock struct {
	SigningSecret   string `hcl:"signing_secret,optional"`
	TTLRaw          string `hcl:"ttl,optional"`
	GuestTTLRaw     string `hcl:"guest_ttl,optional"`
	LeewayRaw       string `hcl:"leeway,optional"`
	VerifyCacheSize int64  `hcl:"verify_cache_size,optional"`

	TTL      time.Duration
	GuestTTL time.Duration
	Leeway   time.Duration
}

type GuestSessionBlock struct {
	TTLRaw      string `hcl:"ttl,optional"`
	MaxSessions int    `hcl:"max_sessions,optional"`

	TTL time.Duration
}

type RateLimitBlock struct {
	Enabled         *bool        `hcl:"enabled,optional"`
	EvictionIdleRaw string       `hcl:"eviction_idle,optional"`
	IP              *BucketBlock `hcl:"ip,block"`
	User            *BucketBlock `hcl:"user,block"`

	EvictionIdle time.Duration
}

// IsEnabled reports whether rate limiting is on; it defaults to true.
func (r *RateLimitBlock) IsEnabled() bool {
	return r == nil || r.Enabled == nil || *r.Enabled
}

type BucketBlock struct {
	Capacity     int     `hcl:"capacity,optional"`
	RefillPerSec float64 `hcl:"refill_per_sec,optional"`
}

type RevocationBlock struct {
	MaxEntries int `hcl:"max_entries,optional"`
}

type RouteBlock struct {
	Prefix      string `hcl:"prefix,label"`
	Service     string `hcl:"service"`
	Rewrite     string `hcl:"rewrite,optional"`
	RewriteFrom string `hcl:"rewrite_from,optional"`
	RewriteTo   string `hcl:"rewrite_to,optional"`
}

type ServiceResolverBlock struct {
	Kind string `hcl:"kind,label"` // "static" or "discovery"

	// static
	Services []StaticServiceBlock `hcl:"service,block"`

	// discovery
	URL                string `hcl:"url,optional"`
	RefreshIntervalRaw string `hcl:"refresh_interval,optional"`
	PreferIPAddress    bool   `hcl:"prefer_ip_address,optional"`

	RefreshInterval time.Duration
}

// StaticServices returns the static instance map.
func (s *ServiceResolverBlock) StaticServices() map[string][]string {
	out := make(map[string][]string, len(s.Services))
	for _, svc := range s.Services {
		out[svc.Name] = append(out[svc.Name], svc.Instances...)
	}
	return out
}

type StaticServiceBlock struct {
	Name      string   `hcl:"name,label"`
	Instances []string `hcl:"instances"`
}

type UpstreamBlock struct {
	RequestTimeoutRaw string `hcl:"request_timeout,optional"`

	RequestTimeout time.Duration
}

type ShutdownBlock struct {
	DrainTimeoutRaw string `hcl:"drain_timeout,optional"`

	DrainTimeout time.Duration
}

type CORSBlock struct {
	Enabled          *bool    `hcl:"enabled,optional"`
	AllowedOrigins   []string `hcl:"allowed_origins,optional"`
	AllowedMethods   []string `hcl:"allowed_methods,optional"`
	AllowedHeaders   []string `hcl:"allowed_headers,optional"`
	ExposedHeaders   []string `hcl:"exposed_headers,optional"`
	AllowCredentials bool     `hcl:"allow_credentials,optional"`
	MaxAge           int      `hcl:"max_age,optional"`
}

// IsEnabled reports whether the CORS stage is on; it defaults to true.
func (c *CORSBlock) IsEnabled() bool {
	return c == nil || c.Enabled == nil || *c.Enabled
}

// LoadConfig reads, defaults and validates an HCL config file.
func LoadConfig(configFile string) (*Config, error) {
	var config Config

	if err := hclsimple.DecodeFile(configFile, nil, &config); err != nil {
		return nil, err
	}
	if err := config.Finalize(); err != nil {
		return nil, err
	}
	return &config, nil
}

// ParseConfig is LoadConfig for in-memory sources. filename must end in
// .hcl; it is used in diagnostics.
func ParseConfig(filename string, src []byte) (*Config, error) {
	var config Config

	if err := hclsimple.Decode(filename, src, nil, &config); err != nil {
		return nil, err
	}
	if err := config.Finalize(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Finalize applies environment overrides and defaults, parses durations and
// validates the result.
func (c *Config) Finalize() error {
	if secret := os.Getenv(SigningSecretEnv); secret != "" {
		if c.Token == nil {
			c.Token = &TokenBlock{}
		}
		c.Token.SigningSecret = secret
	}
	c.applyDefaults()
	if err := c.parseDurations(); err != nil {
		return err
	}
	return c.Validate()
}

// GetListenerByName returns a listener by its name (label)
func (c *Config) GetListenerByName(name string) (*ListenerBlock, error) {
	for i := range c.Listeners {
		if c.Listeners[i].Name == name {
			return &c.Listeners[i], nil
		}
	}
	return nil, fmt.Errorf("listener '%s' not found", name)
}

// GetApiListener is a convenience method to get the api listener
func (c *Config) GetApiListener() (*ListenerBlock, error) {
	return c.GetListenerByName("api")
}
