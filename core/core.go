// Package core assembles the gateway's shared state: rate-limit stores,
// token codec, guest sessions, route table and service resolution.
package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/stephnangue/edgegate/auth/guest"
	"github.com/stephnangue/edgegate/auth/token"
	"github.com/stephnangue/edgegate/clock"
	"github.com/stephnangue/edgegate/config"
	"github.com/stephnangue/edgegate/logger"
	"github.com/stephnangue/edgegate/metrics"
	"github.com/stephnangue/edgegate/ratelimit"
)

// ErrNoRoute is returned when no route prefix matches a path.
var ErrNoRoute = errors.New("no route")

// Core holds the long-lived state shared by every request.
type Core struct {
	logger  logger.Logger
	clock   clock.Clock
	metrics *metrics.Registry

	ipLimiter   *ratelimit.Store
	userLimiter *ratelimit.Store

	codec    *token.Codec
	guests   *guest.Store
	routes   *RouteTable
	allow    *Allowlist
	resolver Resolver
	balancer Balancer

	requestTimeout      time.Duration
	maintenanceInterval time.Duration
	authLoginPrefix     string

	stopOnce sync.Once
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

type CoreConfig struct {
	RawConfig *config.Config

	Logger logger.Logger

	// Clock defaults to the wall clock.
	Clock clock.Clock

	// Metrics may be nil, which disables metrics.
	Metrics *metrics.Registry

	// Resolver overrides the resolver described by RawConfig.
	Resolver Resolver
}

// NewCore builds every component from a finalized config.
func NewCore(conf *CoreConfig) (*Core, error) {
	if conf == nil || conf.RawConfig == nil {
		return nil, errors.New("core requires a configuration")
	}
	raw := conf.RawConfig
	if conf.Logger == nil {
		conf.Logger = logger.NewNop()
	}
	if conf.Clock == nil {
		conf.Clock = clock.Real()
	}

	c := &Core{
		logger:              conf.Logger,
		clock:               conf.Clock,
		metrics:             conf.Metrics,
		requestTimeout:      raw.Upstream.RequestTimeout,
		maintenanceInterval: raw.MaintenanceInterval,
		authLoginPrefix:     raw.AuthLoginPrefix,
	}

	if raw.RateLimit.IsEnabled() {
		c.ipLimiter = ratelimit.NewStore(ratelimit.Config{
			Capacity:     raw.RateLimit.IP.Capacity,
			RefillPerSec: raw.RateLimit.IP.RefillPerSec,
			EvictionIdle: raw.RateLimit.EvictionIdle,
			Clock:        conf.Clock,
		})
		c.userLimiter = ratelimit.NewStore(ratelimit.Config{
			Capacity:     raw.RateLimit.User.Capacity,
			RefillPerSec: raw.RateLimit.User.RefillPerSec,
			EvictionIdle: raw.RateLimit.EvictionIdle,
			Clock:        conf.Clock,
		})
	}

	codec, err := token.NewCodec(token.CodecConfig{
		Secret:          []byte(raw.Token.SigningSecret),
		TTL:             raw.Token.TTL,
		GuestTTL:        raw.Token.GuestTTL,
		Leeway:          raw.Token.Leeway,
		VerifyCacheSize: raw.Token.VerifyCacheSize,
		Revocations:     token.NewRevocationCache(raw.Revocation.MaxEntries, conf.Clock),
		Clock:           conf.Clock,
	})
	if err != nil {
		return nil, fmt.Errorf("token codec setup failed: %w", err)
	}
	c.codec = codec

	c.guests, err = guest.NewStore(guest.Config{
		TTL:         raw.GuestSession.TTL,
		MaxSessions: raw.GuestSession.MaxSessions,
		Clock:       conf.Clock,
	})
	if err != nil {
		return nil, fmt.Errorf("guest session store setup failed: %w", err)
	}

	c.routes, err = BuildRouteTable(raw)
	if err != nil {
		return nil, err
	}
	for _, r := range c.routes.Shadowed() {
		c.logger.Warn("duplicate route prefix ignored",
			logger.String("prefix", r.Prefix),
			logger.String("service", r.Service),
		)
	}
	c.allow = NewAllowlist(c.routes.Routes(), raw.AuthLoginPrefix, raw.AllowlistExtra)

	c.resolver = conf.Resolver
	if c.resolver == nil {
		c.resolver, err = BuildResolver(raw, c.logger.WithSubsystem("discovery"), conf.Clock)
		if err != nil {
			return nil, err
		}
	}

	c.logger.Info("core initialized",
		logger.Int("routes", len(c.routes.Routes())),
		logger.Bool("rate_limit", raw.RateLimit.IsEnabled()),
		logger.String("resolver", raw.ServiceResolver.Kind),
	)
	return c, nil
}

// BuildRouteTable builds the route table declared in raw.
func BuildRouteTable(raw *config.Config) (*RouteTable, error) {
	routes := make([]Route, 0, len(raw.Routes))
	for _, r := range raw.Routes {
		rw, err := ParseRewrite(r.Rewrite, r.RewriteFrom, r.RewriteTo)
		if err != nil {
			return nil, fmt.Errorf("route %q: %w", r.Prefix, err)
		}
		routes = append(routes, Route{Prefix: r.Prefix, Service: r.Service, Rewrite: rw})
	}
	return NewRouteTable(routes)
}

// BuildResolver builds the resolver declared in raw.
func BuildResolver(raw *config.Config, log logger.Logger, clk clock.Clock) (Resolver, error) {
	switch raw.ServiceResolver.Kind {
	case "static":
		return NewStaticResolver(raw.ServiceResolver.StaticServices())
	case "discovery":
		return NewDiscoveryResolver(DiscoveryConfig{
			URL:             raw.ServiceResolver.URL,
			RefreshInterval: raw.ServiceResolver.RefreshInterval,
			PreferIPAddress: raw.ServiceResolver.PreferIPAddress,
			RetryMax:        2,
			Logger:          log,
			Clock:           clk,
		})
	default:
		return nil, fmt.Errorf("unknown service resolver %q", raw.ServiceResolver.Kind)
	}
}

func (c *Core) Logger() logger.Logger         { return c.logger }
func (c *Core) Clock() clock.Clock            { return c.clock }
func (c *Core) Metrics() *metrics.Registry    { return c.metrics }
func (c *Core) Codec() *token.Codec           { return c.codec }
func (c *Core) Guests() *guest.Store          { return c.guests }
func (c *Core) Routes() *RouteTable           { return c.routes }
func (c *Core) Allowlist() *Allowlist         { return c.allow }
func (c *Core) RequestTimeout() time.Duration { return c.requestTimeout }
func (c *Core) AuthLoginPrefix() string       { return c.authLoginPrefix }
func (c *Core) RateLimitEnabled() bool        { return c.ipLimiter != nil }
func (c *Core) IPLimiter() *ratelimit.Store   { return c.ipLimiter }
func (c *Core) UserLimiter() *ratelimit.Store { return c.userLimiter }
func (c *Core) Revocations() *token.RevocationCache {
	return c.codec.Revocations()
}

// Target is the upstream chosen for a request.
type Target struct {
	Route    Route
	Instance string
	Path     string
}

// Lookup matches path to a route, resolves its service and picks an
// instance round-robin. A path with no route yields ErrNoRoute; resolution
// failures wrap ErrNoInstances or ErrUnknownService.
func (c *Core) Lookup(ctx context.Context, path string) (*Target, error) {
	route, ok := c.routes.Match(path)
	if !ok {
		return nil, fmt.Errorf("%w for %s", ErrNoRoute, path)
	}
	instances, err := c.resolver.Resolve(ctx, route.Service)
	if err != nil {
		return nil, err
	}
	if len(instances) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoInstances, route.Service)
	}
	return &Target{
		Route:    route,
		Instance: c.balancer.Pick(route.Service, instances),
		Path:     route.Rewrite.Apply(route.Prefix, path),
	}, nil
}

// MaintenanceResult reports what one maintenance pass removed.
type MaintenanceResult struct {
	BucketsEvicted    int
	SessionsSwept     int
	RevocationsPruned int
}

// Maintain runs one maintenance pass at now.
func (c *Core) Maintain(now time.Time) MaintenanceResult {
	var res MaintenanceResult
	if c.ipLimiter != nil {
		res.BucketsEvicted += c.ipLimiter.Sweep(now)
		res.BucketsEvicted += c.userLimiter.Sweep(now)
	}
	res.SessionsSwept = c.guests.Sweep(now)
	res.RevocationsPruned = c.codec.Revocations().Prune(now)
	c.metrics.Maintenance(res.BucketsEvicted, res.SessionsSwept, res.RevocationsPruned)

	c.logger.Debug("maintenance pass complete",
		logger.Int("buckets_evicted", res.BucketsEvicted),
		logger.Int("sessions_swept", res.SessionsSwept),
		logger.Int("revocations_pruned", res.RevocationsPruned),
	)
	return res
}

// Start runs the maintenance loop until ctx is done or Shutdown is called.
func (c *Core) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(c.maintenanceInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.Maintain(c.clock.Now())
			}
		}
	}()
}

// Shutdown stops the maintenance loop and releases caches.
func (c *Core) Shutdown() error {
	c.stopOnce.Do(func() {
		c.logger.Info("shutting down the core")
		if c.cancel != nil {
			c.cancel()
		}
		c.wg.Wait()
		c.codec.Close()
		c.logger.Info("core shutdown successfully")
	})
	return nil
}
