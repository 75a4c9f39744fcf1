package extract

import (
	"context"
	"errors"

	"pricescout-backend/lib/textutil"
)

// ErrNoContainer means the payload parsed cleanly but none of the known
// shapes or selectors matched anything product-like. The pipeline treats it
// as "advance to the next acquisition method", not "retry this one".
var ErrNoContainer = errors.New("no recognizable product container in payload")

// Strategy turns a raw payload into a normalized record.
type Strategy interface {
	Extract(ctx context.Context, payload []byte, pageURL string) (Record, error)
}

// Chain tries strategies in order and returns the first success.
type Chain []Strategy

func (c Chain) Extract(ctx context.Context, payload []byte, pageURL string) (Record, error) {
	var lastErr error = ErrNoContainer
	for _, s := range c {
		rec, err := s.Extract(ctx, payload, pageURL)
		if err == nil {
			return rec, nil
		}
		if !errors.Is(err, ErrNoContainer) {
			lastErr = err
		}
	}
	return Record{}, lastErr
}

// Registry maps a target platform to its parsing strategy.
type Registry struct {
	platforms map[string]Strategy
	fallback  Strategy
}

// NewRegistry builds a registry preloaded with the built-in platform tables
// and a generic fallback chain.
func NewRegistry(fallbackCurrency string) *Registry {
	if fallbackCurrency == "" {
		fallbackCurrency = "USD"
	}

	r := &Registry{platforms: map[string]Strategy{}}
	for platform, table := range builtinTables {
		r.Register(platform, Chain{
			StructuredStrategy{Platform: platform, FallbackCurrency: fallbackCurrency},
			SelectorStrategy{Platform: platform, Table: table, FallbackCurrency: fallbackCurrency},
		})
	}
	r.fallback = Chain{
		StructuredStrategy{Platform: "generic", FallbackCurrency: fallbackCurrency},
		SelectorStrategy{Platform: "generic", Table: genericTable, FallbackCurrency: fallbackCurrency},
	}
	return r
}

func (r *Registry) Register(platform string, s Strategy) {
	r.platforms[textutil.NormalizeKey(platform)] = s
}

// StrategyFor never returns nil; unknown platforms get the generic chain.
func (r *Registry) StrategyFor(platform string) Strategy {
	if s, ok := r.platforms[textutil.NormalizeKey(platform)]; ok {
		return s
	}
	return r.fallback
}
