package core

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	cleanhttp "github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/stephnangue/edgegate/clock"
	"github.com/stephnangue/edgegate/logger"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultRefreshInterval  = 30 * time.Second
	DefaultDiscoveryTimeout = 5 * time.Second
)

// DiscoveryConfig configures a DiscoveryResolver.
type DiscoveryConfig struct {
	// URL is the registry base, e.g. http://discovery:8761/eureka.
	URL             string
	RefreshInterval time.Duration
	// PreferIPAddress uses the registered IP instead of the host name.
	PreferIPAddress bool
	Timeout         time.Duration
	RetryMax        int
	Logger          logger.Logger
	Clock           clock.Clock
}

type discoveredService struct {
	instances []string
	fetchedAt time.Time
}

// DiscoveryResolver reads instances from a Eureka-compatible registry. Each
// service is cached for the refresh interval; concurrent refreshes of one
// service share a single registry call, and the last known instances are
// served while the registry is unreachable.
type DiscoveryResolver struct {
	base     string
	client   *retryablehttp.Client
	interval time.Duration
	preferIP bool
	logger   logger.Logger
	clock    clock.Clock

	group singleflight.Group
	mu    sync.RWMutex
	cache map[string]discoveredService
}

func NewDiscoveryResolver(cfg DiscoveryConfig) (*DiscoveryResolver, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("discovery resolver requires a url")
	}
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = DefaultRefreshInterval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultDiscoveryTimeout
	}
	if cfg.RetryMax < 0 {
		cfg.RetryMax = 0
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNop()
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}

	httpClient := cleanhttp.DefaultPooledClient()
	httpClient.Timeout = cfg.Timeout

	client := &retryablehttp.Client{
		HTTPClient:   httpClient,
		RetryWaitMin: 100 * time.Millisecond,
		RetryWaitMax: time.Second,
		RetryMax:     cfg.RetryMax,
		Backoff:      retryablehttp.DefaultBackoff,
		CheckRetry:   retryablehttp.DefaultRetryPolicy,
		Logger:       logger.NewLeveledAdapter(cfg.Logger),
		ErrorHandler: retryablehttp.PassthroughErrorHandler,
	}

	return &DiscoveryResolver{
		base:     strings.TrimRight(cfg.URL, "/"),
		client:   client,
		interval: cfg.RefreshInterval,
		preferIP: cfg.PreferIPAddress,
		logger:   cfg.Logger,
		clock:    cfg.Clock,
		cache:    make(map[string]discoveredService),
	}, nil
}

func (d *DiscoveryResolver) Resolve(ctx context.Context, service string) ([]string, error) {
	d.mu.RLock()
	cached, ok := d.cache[service]
	d.mu.RUnlock()
	if ok && d.clock.Now().Sub(cached.fetchedAt) < d.interval {
		return nonEmpty(service, cached.instances)
	}

	// The registry call outlives any single caller that shares it.
	v, err, _ := d.group.Do(service, func() (any, error) {
		return d.fetch(context.WithoutCancel(ctx), service)
	})
	if err != nil {
		if ok {
			d.logger.Warn("registry unavailable, serving cached instances",
				logger.String("service", service),
				logger.Err(err),
			)
			return nonEmpty(service, cached.instances)
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrNoInstances, service, err)
	}

	instances := v.([]string)
	d.mu.Lock()
	d.cache[service] = discoveredService{instances: instances, fetchedAt: d.clock.Now()}
	d.mu.Unlock()
	return nonEmpty(service, instances)
}

func nonEmpty(service string, instances []string) ([]string, error) {
	if len(instances) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoInstances, service)
	}
	return instances, nil
}

func (d *DiscoveryResolver) fetch(ctx context.Context, service string) ([]string, error) {
	url := d.base + "/apps/" + strings.ToUpper(service)
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("registry request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return []string{}, nil
	}
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("registry returned status %d", resp.StatusCode)
	}

	var body eurekaApplicationResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode registry response: %w", err)
	}

	instances := make([]string, 0, len(body.Application.Instances))
	for _, inst := range body.Application.Instances {
		if addr, ok := inst.address(d.preferIP); ok {
			instances = append(instances, addr)
		}
	}
	d.logger.Debug("refreshed service instances",
		logger.String("service", service),
		logger.Int("instances", len(instances)),
	)
	return instances, nil
}

type eurekaApplicationResponse struct {
	Application struct {
		Name      string          `json:"name"`
		Instances eurekaInstances `json:"instance"`
	} `json:"application"`
}

// eurekaInstances accepts both an array and a single object, since the
// registry's JSON encoder collapses one-element lists.
type eurekaInstances []eurekaInstance

func (e *eurekaInstances) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '{' {
		var one eurekaInstance
		if err := json.Unmarshal(data, &one); err != nil {
			return err
		}
		*e = eurekaInstances{one}
		return nil
	}
	var many []eurekaInstance
	if err := json.Unmarshal(data, &many); err != nil {
		return err
	}
	*e = many
	return nil
}

type eurekaInstance struct {
	HostName   string     `json:"hostName"`
	IPAddr     string     `json:"ipAddr"`
	Status     string     `json:"status"`
	Port       eurekaPort `json:"port"`
	SecurePort eurekaPort `json:"securePort"`
}

type eurekaPort struct {
	Value   int
	Enabled bool
}

func (p *eurekaPort) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] != '{' {
		v, err := strconv.Atoi(strings.Trim(string(data), `"`))
		if err != nil {
			return fmt.Errorf("invalid port %s", data)
		}
		p.Value, p.Enabled = v, true
		return nil
	}
	var raw struct {
		Value   json.RawMessage `json:"$"`
		Enabled json.RawMessage `json:"@enabled"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	v, err := strconv.Atoi(strings.Trim(string(raw.Value), `"`))
	if err != nil {
		return fmt.Errorf("invalid port %s", raw.Value)
	}
	p.Value = v
	p.Enabled = strings.Trim(string(raw.Enabled), `"`) == "true"
	return nil
}

func (i eurekaInstance) address(preferIP bool) (string, bool) {
	if i.Status != "" && !strings.EqualFold(i.Status, "UP") {
		return "", false
	}
	host := i.HostName
	if preferIP || host == "" {
		host = i.IPAddr
	}
	if host == "" {
		return "", false
	}
	if i.SecurePort.Enabled && i.SecurePort.Value > 0 {
		return "https://" + host + ":" + strconv.Itoa(i.SecurePort.Value), true
	}
	if i.Port.Value <= 0 {
		return "", false
	}
	return "http://" + host + ":" + strconv.Itoa(i.Port.Value), true
}
