package core

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
)

var (
	// ErrNoInstances is returned when a service resolves to no address.
	ErrNoInstances = errors.New("no instances available")
	// ErrUnknownService is returned for a service the resolver has never
	// heard of.
	ErrUnknownService = errors.New("unknown service")
)

// Resolver maps a logical service name to instance base URLs. A successful
// Resolve returns at least one address.
type Resolver interface {
	Resolve(ctx context.Context, service string) ([]string, error)
}

// StaticResolver serves instances declared in configuration.
type StaticResolver struct {
	services map[string][]string
}

// NewStaticResolver validates every instance address. Addresses without a
// scheme are taken as http.
func NewStaticResolver(services map[string][]string) (*StaticResolver, error) {
	out := make(map[string][]string, len(services))
	for name, instances := range services {
		for _, inst := range instances {
			u, err := NormalizeInstance(inst)
			if err != nil {
				return nil, fmt.Errorf("service %q: %w", name, err)
			}
			out[name] = append(out[name], u)
		}
	}
	return &StaticResolver{services: out}, nil
}

func (s *StaticResolver) Resolve(_ context.Context, service string) ([]string, error) {
	instances, ok := s.services[service]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownService, service)
	}
	if len(instances) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoInstances, service)
	}
	return instances, nil
}

// Services returns the configured service names, sorted.
func (s *StaticResolver) Services() []string {
	names := make([]string, 0, len(s.services))
	for name := range s.services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NormalizeInstance returns addr as scheme://host[:port] with no path.
func NormalizeInstance(addr string) (string, error) {
	addr = strings.TrimSpace(addr)
	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}
	u, err := url.Parse(addr)
	if err != nil {
		return "", fmt.Errorf("invalid instance %q: %w", addr, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("invalid instance %q: scheme must be http or https", addr)
	}
	if u.Host == "" {
		return "", fmt.Errorf("invalid instance %q: missing host", addr)
	}
	return u.Scheme + "://" + u.Host, nil
}
