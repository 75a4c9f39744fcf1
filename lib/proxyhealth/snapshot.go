package proxyhealth

import (
	"sort"
	"time"
)

// ProxyStatus is a read-only view of one proxy's tracked state.
type ProxyStatus struct {
	Endpoint       string
	SuccessCount   int
	FailureCount   int
	SuccessRate    float64
	AvgLatency     time.Duration
	LastSuccessAt  time.Time
	LastFailureAt  time.Time
	SuspendedUntil time.Time
	Suspended      bool
}

// Snapshot returns the current state of every tracked proxy, sorted by
// endpoint for stable output.
func (r *Registry) Snapshot() []ProxyStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock.Now()
	out := make([]ProxyStatus, 0, len(r.stats))
	for endpoint, s := range r.stats {
		avg, _ := s.latencyAvg()
		out = append(out, ProxyStatus{
			Endpoint:       endpoint,
			SuccessCount:   s.successCount,
			FailureCount:   s.failureCount,
			SuccessRate:    s.successRate(),
			AvgLatency:     avg,
			LastSuccessAt:  s.lastSuccessAt,
			LastFailureAt:  s.lastFailureAt,
			SuspendedUntil: s.suspendedUntil,
			Suspended:      r.suspended(s, now),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Endpoint < out[j].Endpoint
	})
	return out
}
