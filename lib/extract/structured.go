package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"

	"pricescout-backend/lib/htmlutil"
)

var structuredTracer = otel.Tracer("pricescout/extract/structured")

// StructuredStrategy looks for machine-readable product data embedded in the
// page: linked-data blocks and server-rendered state blobs.
type StructuredStrategy struct {
	Platform         string
	FallbackCurrency string
}

// state blobs assigned to a well-known global, e.g.
// window.__INITIAL_STATE__ = {...};
var stateBlobRegex = regexp.MustCompile(
	`(?s)window\.(?:__INITIAL_STATE__|__PRELOADED_STATE__|__APP_STATE__)\s*=\s*(\{.*?\})\s*(?:;|</script)`)

// script element ids frameworks render their state under
var stateScriptIDs = []string{"__NEXT_DATA__", "serverApp-state", "js-hydration"}

func (s StructuredStrategy) Extract(ctx context.Context, payload []byte, pageURL string) (Record, error) {
	_, span := structuredTracer.Start(ctx, "Extract")
	defer span.End()

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(payload))
	if err != nil {
		return Record{}, fmt.Errorf("parsing payload: %w", err)
	}

	var blobs []map[string]any

	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, sel *goquery.Selection) {
		blobs = append(blobs, decodeJSONObjects(sel.Text())...)
	})
	for _, id := range stateScriptIDs {
		doc.Find("script#" + id).Each(func(_ int, sel *goquery.Selection) {
			blobs = append(blobs, decodeJSONObjects(sel.Text())...)
		})
	}
	for _, script := range doc.Find("script").Nodes {
		text := htmlutil.GetText(script)
		groups := stateBlobRegex.FindStringSubmatch(text)
		if len(groups) < 2 {
			continue
		}
		blobs = append(blobs, decodeJSONObjects(groups[1])...)
	}

	for _, blob := range blobs {
		if product, ok := findProduct(blob); ok {
			return s.buildRecord(product, pageURL), nil
		}
	}
	return Record{}, ErrNoContainer
}

// decodeJSONObjects tolerates both a single object and a top-level array,
// which ld+json blocks use interchangeably.
func decodeJSONObjects(text string) []map[string]any {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if strings.HasPrefix(text, "[") {
		var arr []map[string]any
		if json.Unmarshal([]byte(text), &arr) == nil {
			return arr
		}
		return nil
	}
	var obj map[string]any
	if json.Unmarshal([]byte(text), &obj) == nil {
		return []map[string]any{obj}
	}
	return nil
}

// the known shapes, probed in priority order
var containerKeys = [][]string{
	{"product", "productDetail", "item"},
	{"searchResults", "results", "hits"},
	{"catalog", "listings", "products", "itemListElement"},
}

// findProduct walks a decoded blob looking for a plausible product object:
// something with a name-like field and a price-like field.
func findProduct(blob map[string]any) (map[string]any, bool) {
	if isPlausibleProduct(blob) {
		return blob, true
	}
	for _, keys := range containerKeys {
		for _, key := range keys {
			child, ok := blob[key]
			if !ok {
				continue
			}
			if found, ok := probeValue(child, 0); ok {
				return found, true
			}
		}
	}
	// last resort: walk every nested value
	for _, v := range blob {
		if found, ok := probeValue(v, 0); ok {
			return found, true
		}
	}
	return nil, false
}

const maxProbeDepth = 6

func probeValue(v any, depth int) (map[string]any, bool) {
	if depth > maxProbeDepth {
		return nil, false
	}
	switch val := v.(type) {
	case map[string]any:
		if isPlausibleProduct(val) {
			return val, true
		}
		for _, child := range val {
			if found, ok := probeValue(child, depth+1); ok {
				return found, true
			}
		}
	case []any:
		for _, child := range val {
			if found, ok := probeValue(child, depth+1); ok {
				return found, true
			}
		}
	}
	return nil, false
}

var nameKeys = []string{"name", "title", "productTitle", "displayName"}
var priceKeys = []string{"price", "currentPrice", "priceAmount", "salePrice", "lowPrice"}

func isPlausibleProduct(obj map[string]any) bool {
	return firstString(obj, nameKeys) != "" && hasPriceField(obj)
}

func hasPriceField(obj map[string]any) bool {
	if _, ok := lookupPrice(obj); ok {
		return true
	}
	return false
}

func lookupPrice(obj map[string]any) (string, bool) {
	for _, key := range priceKeys {
		if v, ok := obj[key]; ok {
			if s := stringify(v); s != "" {
				return s, true
			}
		}
	}
	// ld+json nests price under offers
	if offers, ok := obj["offers"].(map[string]any); ok {
		return lookupPrice(offers)
	}
	if offers, ok := obj["offers"].([]any); ok && len(offers) > 0 {
		if first, ok := offers[0].(map[string]any); ok {
			return lookupPrice(first)
		}
	}
	return "", false
}

func firstString(obj map[string]any, keys []string) string {
	for _, key := range keys {
		if s := stringify(obj[key]); s != "" {
			return s
		}
	}
	return ""
}

func stringify(v any) string {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case float64:
		return decimal.NewFromFloat(val).String()
	case json.Number:
		return val.String()
	}
	return ""
}

func (s StructuredStrategy) buildRecord(product map[string]any, pageURL string) Record {
	rec := Record{
		SourcePlatform: s.Platform,
		Title:          firstString(product, nameKeys),
		CanonicalURL:   pageURL,
		InStock:        true,
		ObservedAt:     time.Now(),
	}
	if u := firstString(product, []string{"url", "canonicalUrl", "link"}); u != "" {
		rec.CanonicalURL = u
	}

	fallback := s.FallbackCurrency
	if declared := currencyText(product); declared != "" {
		fallback = declared
	}

	priceText, _ := lookupPrice(product)
	amount, currency, err := ParsePrice(priceText, fallback)
	if err == nil {
		rec.Price = amount
		rec.Currency = currency
	} else {
		rec.Currency = fallback
		rec.Incomplete = true
	}
	if rec.Title == "" {
		rec.Incomplete = true
	}

	if availability := availabilityText(product); availability != "" {
		rec.InStock = !strings.Contains(strings.ToLower(availability), "outofstock") &&
			!strings.Contains(strings.ToLower(availability), "out of stock")
		rec.SetMeta("availability", availability)
	}
	if img := firstString(product, []string{"image", "imageUrl", "thumbnail"}); img != "" {
		rec.SetMeta("image", img)
	}
	if brand := firstString(product, []string{"brand", "manufacturer"}); brand != "" {
		rec.SetMeta("brand", brand)
	}
	return rec
}

var currencyKeys = []string{"priceCurrency", "currency", "currencyCode"}

func currencyText(product map[string]any) string {
	if c := firstString(product, currencyKeys); c != "" {
		return c
	}
	if offers, ok := product["offers"].(map[string]any); ok {
		return firstString(offers, currencyKeys)
	}
	return ""
}

func availabilityText(product map[string]any) string {
	if offers, ok := product["offers"].(map[string]any); ok {
		return firstString(offers, []string{"availability"})
	}
	return firstString(product, []string{"availability", "stockStatus"})
}
