// Package extract turns raw page payloads into normalized product records.
package extract

import (
	"time"

	"github.com/shopspring/decimal"
)

// Record is the platform-agnostic product/price shape every strategy
// produces. Consumers treat it as read-only.
type Record struct {
	SourcePlatform string              `json:"source_platform"`
	Title          string              `json:"title"`
	Price          decimal.Decimal     `json:"price"`
	Currency       string              `json:"currency"`
	CanonicalURL   string              `json:"canonical_url"`
	InStock        bool                `json:"in_stock"`
	Metadata       map[string][]string `json:"metadata,omitempty"`
	ObservedAt     time.Time           `json:"observed_at"`

	// Incomplete marks a record missing its title or price but still
	// structurally valid.
	Incomplete bool `json:"incomplete,omitempty"`
	// Partial marks a record extracted from a payload that also carried a
	// challenge banner.
	Partial bool `json:"partial,omitempty"`
	// Estimated marks a price derived from a previous price rather than
	// extracted directly.
	Estimated bool `json:"estimated,omitempty"`
	// Unavailable marks the terminal placeholder returned when every
	// acquisition method was exhausted.
	Unavailable bool `json:"unavailable,omitempty"`
	// BestPrice flags the cheapest record of a comparison set.
	BestPrice bool `json:"best_price,omitempty"`
}

// Usable reports whether the record carries enough signal for a caller:
// a title or a positive price, and it is not the placeholder.
func (r Record) Usable() bool {
	if r.Unavailable {
		return false
	}
	return r.Title != "" || r.Price.IsPositive()
}

// SetMeta stores a metadata entry, allocating the map on first use.
func (r *Record) SetMeta(key string, values ...string) {
	if len(values) == 0 {
		return
	}
	if r.Metadata == nil {
		r.Metadata = map[string][]string{}
	}
	r.Metadata[key] = values
}

// Placeholder builds the terminal record for a query nothing could serve.
func Placeholder(platform, canonicalURL string, observedAt time.Time) Record {
	return Record{
		SourcePlatform: platform,
		CanonicalURL:   canonicalURL,
		ObservedAt:     observedAt,
		Incomplete:     true,
		Unavailable:    true,
	}
}
