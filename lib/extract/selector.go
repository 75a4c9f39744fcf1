package extract

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"

	"pricescout-backend/lib/htmlutil"
	"pricescout-backend/lib/textutil"
)

var selectorTracer = otel.Tracer("pricescout/extract/selector")

// SelectorTable lists ordered selector candidates per logical field. The
// first selector yielding non-empty text wins for that field. New platforms
// are table entries, not new strategy code.
type SelectorTable struct {
	Title         []string
	Price         []string
	PreviousPrice []string
	Image         []string
	Stock         []string
	Category      []string
	Features      []string
}

// SelectorStrategy parses the payload as a markup tree and probes the
// platform's selector table field by field. Field-level partial success is
// allowed: a record with a title but no price (or vice versa) comes back
// tagged incomplete so the pipeline can decide whether that is good enough.
type SelectorStrategy struct {
	Platform         string
	Table            SelectorTable
	FallbackCurrency string
}

// estimatedDiscount fills a missing current price from a found previous
// price. The result is explicitly labeled estimated, never silent fact.
var estimatedDiscount = decimal.NewFromFloat(0.9)

var outOfStockMarkers = []string{
	"out of stock",
	"outofstock",
	"sold out",
	"currently unavailable",
	"notify me",
}

func (s SelectorStrategy) Extract(ctx context.Context, payload []byte, pageURL string) (Record, error) {
	_, span := selectorTracer.Start(ctx, "Extract")
	defer span.End()

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(payload))
	if err != nil {
		return Record{}, fmt.Errorf("parsing payload: %w", err)
	}

	title := htmlutil.FirstText(doc, s.Table.Title)
	priceText := htmlutil.FirstText(doc, s.Table.Price)
	prevText := htmlutil.FirstText(doc, s.Table.PreviousPrice)

	if title == "" && priceText == "" && prevText == "" {
		return Record{}, ErrNoContainer
	}

	rec := Record{
		SourcePlatform: s.Platform,
		Title:          title,
		CanonicalURL:   pageURL,
		Currency:       s.FallbackCurrency,
		InStock:        true,
		ObservedAt:     time.Now(),
	}

	if amount, currency, err := ParsePrice(priceText, s.FallbackCurrency); err == nil {
		rec.Price = amount
		rec.Currency = currency
	}

	if prevAmount, prevCurrency, err := ParsePrice(prevText, s.FallbackCurrency); err == nil {
		rec.SetMeta("previous_price", prevAmount.String())
		if rec.Price.IsZero() {
			rec.Price = prevAmount.Mul(estimatedDiscount).Round(2)
			rec.Currency = prevCurrency
			rec.Estimated = true
		}
	}

	if rec.Title == "" || rec.Price.IsZero() {
		rec.Incomplete = true
	}

	if stockText := htmlutil.FirstText(doc, s.Table.Stock); stockText != "" {
		rec.InStock = !textutil.MatchAny(stockText, outOfStockMarkers)
		rec.SetMeta("stock_status", stockText)
	}
	if img := htmlutil.FirstAttr(doc, s.Table.Image, "src"); img != "" {
		rec.SetMeta("image", img)
	}
	if category := htmlutil.FirstText(doc, s.Table.Category); category != "" {
		rec.SetMeta("category", category)
	}
	if features := htmlutil.AllTexts(doc, s.Table.Features); len(features) > 0 {
		rec.SetMeta("features", features...)
	}

	return rec, nil
}
