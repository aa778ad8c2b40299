// Package metrics records gateway counters and samples in an in-memory
// go-metrics sink.
package metrics

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	gometrics "github.com/hashicorp/go-metrics"
)

const (
	DefaultInterval  = 10 * time.Second
	DefaultRetention = time.Minute
)

// Registry is the gateway metrics surface. A nil *Registry records nothing.
type Registry struct {
	sink    *gometrics.InmemSink
	metrics *gometrics.Metrics
}

// New creates a Registry whose keys are prefixed with service.
func New(service string, interval, retain time.Duration) (*Registry, error) {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if retain <= 0 {
		retain = DefaultRetention
	}
	sink := gometrics.NewInmemSink(interval, retain)

	conf := gometrics.DefaultConfig(service)
	conf.EnableHostname = false
	conf.EnableHostnameLabel = false
	conf.EnableRuntimeMetrics = false

	m, err := gometrics.New(conf, sink)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}
	return &Registry{sink: sink, metrics: m}, nil
}

func (r *Registry) incr(key []string, labels ...gometrics.Label) {
	if r == nil {
		return
	}
	r.metrics.IncrCounterWithLabels(key, 1, labels)
}

// RateLimited counts a refused request; scope is "ip" or "user".
func (r *Registry) RateLimited(scope string) {
	r.incr([]string{"ratelimit", "refused"}, gometrics.Label{Name: "scope", Value: scope})
}

// TokenRejected counts a bearer token that failed verification.
func (r *Registry) TokenRejected(reason string) {
	r.incr([]string{"auth", "token", "rejected"}, gometrics.Label{Name: "reason", Value: reason})
}

// TokenRevoked counts a successful revocation.
func (r *Registry) TokenRevoked() {
	r.incr([]string{"auth", "token", "revoked"})
}

// GuestSessionCreated counts allocated guest sessions.
func (r *Registry) GuestSessionCreated() {
	r.incr([]string{"guest", "session", "created"})
}

// GatewayError counts an error envelope by stable code.
func (r *Registry) GatewayError(code string) {
	r.incr([]string{"gateway", "error"}, gometrics.Label{Name: "code", Value: code})
}

// UpstreamResponse records the status class and latency of a proxied call.
func (r *Registry) UpstreamResponse(service string, status int, started time.Time) {
	if r == nil {
		return
	}
	labels := []gometrics.Label{
		{Name: "service", Value: service},
		{Name: "class", Value: statusClass(status)},
	}
	r.metrics.IncrCounterWithLabels([]string{"upstream", "response"}, 1, labels)
	r.metrics.MeasureSinceWithLabels([]string{"upstream", "latency"}, started, labels[:1])
}

// Maintenance records the result of a maintenance pass.
func (r *Registry) Maintenance(buckets, sessions, revocations int) {
	if r == nil {
		return
	}
	r.metrics.SetGauge([]string{"maintenance", "buckets_evicted"}, float32(buckets))
	r.metrics.SetGauge([]string{"maintenance", "sessions_swept"}, float32(sessions))
	r.metrics.SetGauge([]string{"maintenance", "revocations_pruned"}, float32(revocations))
}

// Data returns the retained intervals of the in-memory sink.
func (r *Registry) Data() []*gometrics.IntervalMetrics {
	if r == nil {
		return nil
	}
	return r.sink.Data()
}

// Display renders the current interval summary.
func (r *Registry) Display(w http.ResponseWriter, req *http.Request) (any, error) {
	if r == nil {
		return map[string]any{}, nil
	}
	return r.sink.DisplayMetrics(w, req)
}

func statusClass(status int) string {
	if status < 100 || status > 599 {
		return "other"
	}
	return strconv.Itoa(status/100) + "xx"
}
