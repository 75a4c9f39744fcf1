package acquire

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"pricescout-backend/lib/extract"
	"pricescout-backend/lib/fetch"
)

// query is what one pipeline run works on: either a concrete product url or
// a search term against one platform.
type query struct {
	platform   PlatformConfig
	productURL string
	searchTerm string
}

func (q query) targetURL() (string, error) {
	if q.productURL != "" {
		return q.productURL, nil
	}
	if q.platform.SearchURL == "" {
		return "", fmt.Errorf("platform %q has no search url", q.platform.Name)
	}
	if !strings.Contains(q.platform.SearchURL, "%s") {
		return "", fmt.Errorf("platform %q search url has no %%s placeholder", q.platform.Name)
	}
	return fmt.Sprintf(q.platform.SearchURL, url.QueryEscape(q.searchTerm)), nil
}

// method is one ranked acquisition strategy. run returns the parsed record
// or an error the pipeline classifies into retry-same, advance, or skip.
type method interface {
	name() string
	run(ctx context.Context, q query, retry int) (extract.Record, error)
}

// errSkipMethod marks a method whose configuration is missing (no
// credentials, no endpoint): it is skipped outright, not retried.
var errSkipMethod = errors.New("method is not configured")

// errThinPayload marks a response too short to be a real page; the attempt
// failed but another proxy may do better.
var errThinPayload = errors.New("payload too short to be real content")

// errChallengeOnly marks a challenge page that yielded nothing extractable.
var errChallengeOnly = errors.New("challenge page with no extractable content")

func (s *Service) rankedMethods() []method {
	order := s.cfg.MethodOrder
	if len(order) == 0 {
		order = []string{"hosted-api", "direct", "render", "delegate"}
	}

	var out []method
	for _, name := range order {
		switch name {
		case "hosted-api":
			out = append(out, hostedAPIMethod{svc: s})
		case "direct":
			out = append(out, directMethod{svc: s, label: "direct", profile: fetch.ProfileDefault})
		case "render":
			out = append(out, directMethod{svc: s, label: "render", profile: fetch.ProfileRender})
		case "delegate":
			out = append(out, delegateMethod{svc: s})
		default:
			slog.Warn("unknown acquisition method in config", "method", name)
		}
	}
	return out
}

// runPipeline executes methods strictly in rank order, each with its full
// retry budget, and returns the first usable record. Exhausting everything
// returns the placeholder rather than an error.
func (s *Service) runPipeline(ctx context.Context, q query, methods []method) extract.Record {
	ctx, span := tracer.Start(ctx, "runPipeline")
	defer span.End()

	for _, m := range methods {
	retries:
		for retry := 0; retry < s.cfg.MaxRetries; retry++ {
			if ctx.Err() != nil {
				break
			}

			rec, err := m.run(ctx, q, retry)
			if err == nil && rec.Usable() {
				rec.ObservedAt = s.clock.Now()
				if rec.SourcePlatform == "" {
					rec.SourcePlatform = q.platform.Name
				}
				span.AddEvent("succeeded", trace.WithAttributes(
					attribute.String("method", m.name()),
					attribute.Int("retry", retry),
				))
				return rec
			}

			switch classifyAttempt(err) {
			case attemptSkipMethod, attemptAdvance:
				slog.DebugContext(ctx, "advancing to next method",
					"method", m.name(), "err", err)
				break retries
			case attemptRetry:
				slog.DebugContext(ctx, "attempt failed",
					"method", m.name(), "retry", retry, "err", err)
			}

			if retry+1 < s.cfg.MaxRetries {
				if !s.backoff(ctx, retry) {
					break
				}
			}
		}
	}

	span.AddEvent("exhausted")
	return extract.Placeholder(q.platform.Name, q.productURL, s.clock.Now())
}

type attemptOutcome int

const (
	attemptRetry attemptOutcome = iota
	attemptAdvance
	attemptSkipMethod
)

func classifyAttempt(err error) attemptOutcome {
	switch {
	case errors.Is(err, errSkipMethod):
		return attemptSkipMethod
	case errors.Is(err, extract.ErrNoContainer):
		// the page parsed but held nothing product-like; the same method
		// would keep parsing the same nothing
		return attemptAdvance
	case errors.Is(err, errThinPayload), errors.Is(err, errChallengeOnly):
		return attemptRetry
	}

	var ferr *fetch.Error
	if errors.As(err, &ferr) {
		if ferr.Retryable() {
			return attemptRetry
		}
		return attemptAdvance
	}

	// unrecognized failures (usable=false records, odd errors) advance
	return attemptAdvance
}

// backoff sleeps base * 2^retry (capped, jittered). It reports false when
// the context was cancelled during the sleep.
func (s *Service) backoff(ctx context.Context, retry int) bool {
	d := s.cfg.BackoffBase.Duration << retry
	if limit := s.cfg.BackoffCap.Duration; d > limit {
		d = limit
	}
	d += time.Duration(rand.Int63n(int64(d)/4 + 1))

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
