package core

import (
	"sync"
	"sync/atomic"
)

// Balancer picks instances round-robin, with one counter per service.
type Balancer struct {
	counters sync.Map // service -> *atomic.Uint64
}

// Pick returns the next instance for service. instances must be non-empty.
func (b *Balancer) Pick(service string, instances []string) string {
	if len(instances) == 1 {
		return instances[0]
	}
	v, ok := b.counters.Load(service)
	if !ok {
		v, _ = b.counters.LoadOrStore(service, new(atomic.Uint64))
	}
	n := v.(*atomic.Uint64).Add(1) - 1
	return instances[n%uint64(len(instances))]
}
