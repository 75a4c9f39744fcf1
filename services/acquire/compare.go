package acquire

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/antzucaro/matchr"
	"golang.org/x/sync/errgroup"

	"pricescout-backend/lib/extract"
	"pricescout-backend/lib/textutil"
)

// titles at least this similar to the best-price record's are flagged as
// the same product
const sameProductThreshold = 0.88

// AcquireComparison runs one independent pipeline per configured platform in
// parallel under an overall ceiling, collects whichever complete, and
// returns them sorted by price ascending with the minimum flagged as best
// price. Platforms that time out or exhaust their methods are omitted, not
// treated as failure.
func (s *Service) AcquireComparison(ctx context.Context, searchTerm string) []extract.Record {
	ctx, span := tracer.Start(ctx, "AcquireComparison")
	defer span.End()

	cacheKey := "compare:" + searchTerm
	if cached, hit, err := s.comparisons.Get(ctx, cacheKey); err == nil && hit {
		return cached
	} else if err != nil {
		slog.WarnContext(ctx, "comparison cache read failed", "err", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.OverallTimeout.Duration)
	defer cancel()

	var mu sync.Mutex
	var results []extract.Record

	g, gctx := errgroup.WithContext(ctx)
	for _, platform := range s.cfg.Platforms {
		platform := platform
		g.Go(func() error {
			rec := s.runPipeline(gctx, query{platform: platform, searchTerm: searchTerm}, s.rankedMethods())
			if rec.Unavailable {
				slog.DebugContext(gctx, "platform omitted from comparison",
					"platform", platform.Name)
				return nil
			}
			mu.Lock()
			defer mu.Unlock()
			results = append(results, rec)
			return nil
		})
	}
	// branches never return errors; Wait is just the join point
	_ = g.Wait()

	rankComparison(results)

	if len(results) > 0 {
		// the overall ceiling may already be spent by the time the fan-out
		// joins; the cache write runs on a detached context so a slow
		// comparison still persists its result
		putCtx := context.WithoutCancel(ctx)
		if err := s.comparisons.Put(putCtx, cacheKey, results, s.cfg.ComparisonTTL.Duration); err != nil {
			slog.WarnContext(putCtx, "comparison cache write failed", "err", err)
		}
	}
	return results
}

// rankComparison sorts ascending by price, with priceless records last, and
// flags the cheapest priced record plus any records whose titles look like
// the same product.
func rankComparison(results []extract.Record) {
	sort.SliceStable(results, func(i, j int) bool {
		pi, pj := results[i].Price, results[j].Price
		if pi.IsPositive() != pj.IsPositive() {
			return pi.IsPositive()
		}
		return pi.LessThan(pj)
	})

	if len(results) == 0 || !results[0].Price.IsPositive() {
		return
	}

	best := &results[0]
	best.BestPrice = true

	bestTitle := textutil.NormalizeKey(best.Title)
	if bestTitle == "" {
		return
	}
	for i := 1; i < len(results); i++ {
		title := textutil.NormalizeKey(results[i].Title)
		if title == "" {
			continue
		}
		if matchr.JaroWinkler(bestTitle, title, false) >= sameProductThreshold {
			results[i].SetMeta("same_product_as_best", "true")
		}
	}
}
