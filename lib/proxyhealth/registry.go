// Package proxyhealth tracks the health of forward-proxy endpoints used to
// reach scraping targets: success/failure counts, a rolling latency window,
// and time-boxed suspensions after block signals.
package proxyhealth

import (
	"math"
	"regexp"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"pricescout-backend/lib/chrono"
)

// Proxy is an opaque relay endpoint. An empty Endpoint means a direct
// connection; the registry tracks it like any other.
type Proxy struct {
	Endpoint string
}

const (
	latencyWindowSize = 32
	recencyWindow     = time.Minute * 30
	maxSuspendMinutes = 120

	successRateWeight = 0.7
	latencyWeight     = 0.3
	recencyBonus      = 0.15

	// latency at or beyond this pins the latency score to zero
	latencyScoreCeiling = time.Second * 10
)

var blockReasonRegex = regexp.MustCompile(`(?i)rate.?limit|captcha|challenge|forbidden|too many requests|blocked`)

type proxyStats struct {
	successCount int
	failureCount int

	lastSuccessAt  time.Time
	lastFailureAt  time.Time
	lastSelectedAt time.Time

	// bounded ring of observed response times
	latencies [latencyWindowSize]time.Duration
	latencyN  int
	latencyAt int

	suspendedUntil time.Time
	// timestamps of suspensions, pruned to the trailing recency window
	suspensions []time.Time
}

func (s *proxyStats) successRate() float64 {
	return float64(s.successCount) / float64(s.successCount+s.failureCount+1)
}

func (s *proxyStats) pushLatency(d time.Duration) {
	s.latencies[s.latencyAt] = d
	s.latencyAt = (s.latencyAt + 1) % latencyWindowSize
	if s.latencyN < latencyWindowSize {
		s.latencyN++
	}
}

func (s *proxyStats) latencyAvg() (time.Duration, bool) {
	if s.latencyN == 0 {
		return 0, false
	}
	var total time.Duration
	for i := 0; i < s.latencyN; i++ {
		total += s.latencies[i]
	}
	return total / time.Duration(s.latencyN), true
}

func (s *proxyStats) latencyStddev() time.Duration {
	avg, ok := s.latencyAvg()
	if !ok || s.latencyN < 2 {
		return 0
	}
	var sumsq float64
	for i := 0; i < s.latencyN; i++ {
		d := float64(s.latencies[i] - avg)
		sumsq += d * d
	}
	variance := sumsq / float64(s.latencyN)
	return time.Duration(math.Sqrt(variance))
}

// Registry is the sole owner of proxy statistics. All methods are safe for
// concurrent use; a single mutex is enough since contention is low relative
// to network latency.
type Registry struct {
	mu    sync.Mutex
	clock chrono.TimeAPI
	stats map[string]*proxyStats

	// platform -> endpoint of the proxy that last succeeded for it
	platformPref *expirable.LRU[string, string]
}

func NewRegistry(clock chrono.TimeAPI) *Registry {
	return &Registry{
		clock:        clock,
		stats:        map[string]*proxyStats{},
		platformPref: expirable.NewLRU[string, string](1024, nil, recencyWindow),
	}
}

func (r *Registry) statsFor(endpoint string) *proxyStats {
	s, ok := r.stats[endpoint]
	if !ok {
		s = &proxyStats{}
		r.stats[endpoint] = s
	}
	return s
}

func (r *Registry) suspended(s *proxyStats, now time.Time) bool {
	// lazy expiry: suspendedUntil is never proactively cleared
	return now.Before(s.suspendedUntil)
}

// IsSuspended reports whether the proxy is inside a suspension window.
func (r *Registry) IsSuspended(p Proxy) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.suspended(r.statsFor(p.Endpoint), r.clock.Now())
}

func (r *Registry) score(s *proxyStats, now time.Time) float64 {
	score := successRateWeight * s.successRate()

	if avg, ok := s.latencyAvg(); ok {
		latencyScore := 1 - float64(avg)/float64(latencyScoreCeiling)
		if latencyScore < 0 {
			latencyScore = 0
		}
		score += latencyWeight * latencyScore
	}

	if !s.lastSuccessAt.IsZero() && now.Sub(s.lastSuccessAt) < recencyWindow {
		score += recencyBonus
	}
	return score
}

// Select picks the best candidate for a platform. A suspended candidate is
// skipped; when every candidate is suspended the one whose window expires
// soonest is returned rather than failing, so callers can still make
// progress. ok is false only for an empty candidate list.
func (r *Registry) Select(candidates []Proxy, platform string) (Proxy, bool) {
	if len(candidates) == 0 {
		return Proxy{}, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.clock.Now()

	// a platform that found a good proxy keeps using it until it is suspended
	if pref, ok := r.platformPref.Get(platform); ok {
		for _, c := range candidates {
			if c.Endpoint == pref && !r.suspended(r.statsFor(c.Endpoint), now) {
				r.statsFor(c.Endpoint).lastSelectedAt = now
				return c, true
			}
		}
	}

	var best *Proxy
	var bestScore float64
	var bestSelectedAt time.Time

	var soonest *Proxy
	var soonestUntil time.Time

	for i := range candidates {
		c := candidates[i]
		s := r.statsFor(c.Endpoint)

		if r.suspended(s, now) {
			if soonest == nil || s.suspendedUntil.Before(soonestUntil) {
				soonest = &candidates[i]
				soonestUntil = s.suspendedUntil
			}
			continue
		}

		score := r.score(s, now)
		// ties go to the least recently selected candidate to spread load
		if best == nil || score > bestScore ||
			(score == bestScore && s.lastSelectedAt.Before(bestSelectedAt)) {
			best = &candidates[i]
			bestScore = score
			bestSelectedAt = s.lastSelectedAt
		}
	}

	if best == nil {
		// graceful degradation: everything is suspended
		r.statsFor(soonest.Endpoint).lastSelectedAt = now
		return *soonest, true
	}

	r.statsFor(best.Endpoint).lastSelectedAt = now
	return *best, true
}

// RecordSuccess notes a successful fetch through p taking d, and remembers
// p as the preferred proxy for the platform.
func (r *Registry) RecordSuccess(p Proxy, d time.Duration, platform string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.statsFor(p.Endpoint)
	s.successCount++
	s.lastSuccessAt = r.clock.Now()
	s.pushLatency(d)

	if platform != "" {
		r.platformPref.Add(platform, p.Endpoint)
	}
}

// RecordFailure notes a failed fetch through p. A reason matching the block
// patterns, or HTTP 403/429, suspends the proxy for
// min(2^recentSuspensions, 120) minutes so repeatedly blocked proxies back
// off harder without ever being blacklisted for good.
func (r *Registry) RecordFailure(p Proxy, platform string, reason string, statusCode int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock.Now()
	s := r.statsFor(p.Endpoint)
	s.failureCount++
	s.lastFailureAt = now

	blocked := statusCode == 403 || statusCode == 429 || blockReasonRegex.MatchString(reason)
	if !blocked {
		return
	}

	// prune suspension history to the trailing window
	kept := s.suspensions[:0]
	for _, t := range s.suspensions {
		if now.Sub(t) < recencyWindow {
			kept = append(kept, t)
		}
	}
	s.suspensions = kept

	minutes := 1 << len(s.suspensions)
	if minutes > maxSuspendMinutes {
		minutes = maxSuspendMinutes
	}
	s.suspendedUntil = now.Add(time.Duration(minutes) * time.Minute)
	s.suspensions = append(s.suspensions, now)

	if platform != "" {
		if pref, ok := r.platformPref.Get(platform); ok && pref == p.Endpoint {
			r.platformPref.Remove(platform)
		}
	}
}

// Latency returns the rolling average and standard deviation of response
// times observed through p. ok is false before any success was recorded.
func (r *Registry) Latency(p Proxy) (avg, stddev time.Duration, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.statsFor(p.Endpoint)
	avg, ok = s.latencyAvg()
	if !ok {
		return 0, 0, false
	}
	return avg, s.latencyStddev(), true
}
