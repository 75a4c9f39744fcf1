package acquire

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"pricescout-backend/lib/extract"
)

func rec(platform, title, price string) extract.Record {
	r := extract.Record{SourcePlatform: platform, Title: title}
	if price != "" {
		r.Price = decimal.RequireFromString(price)
	}
	return r
}

func TestRankComparisonSortsAscending(t *testing.T) {
	results := []extract.Record{
		rec("shopA", "Acme Anvil 10kg", "34.99"),
		rec("shopB", "Acme Anvil 10kg", "29.99"),
		rec("shopC", "Acme Anvil 10kg", "31.50"),
	}

	rankComparison(results)

	require.Equal(t, "shopB", results[0].SourcePlatform)
	require.Equal(t, "shopC", results[1].SourcePlatform)
	require.Equal(t, "shopA", results[2].SourcePlatform)

	require.True(t, results[0].BestPrice)
	require.False(t, results[1].BestPrice)
	require.False(t, results[2].BestPrice)
}

func TestRankComparisonPricelessRecordsSortLast(t *testing.T) {
	results := []extract.Record{
		rec("shopA", "Desk Lamp", ""),
		rec("shopB", "Desk Lamp", "12.00"),
	}

	rankComparison(results)

	require.Equal(t, "shopB", results[0].SourcePlatform)
	require.True(t, results[0].BestPrice)
	require.False(t, results[1].BestPrice)
}

func TestRankComparisonNoPositivePriceNoBest(t *testing.T) {
	results := []extract.Record{
		rec("shopA", "Desk Lamp", ""),
		rec("shopB", "Desk Lamp", ""),
	}
	rankComparison(results)
	require.False(t, results[0].BestPrice)
	require.False(t, results[1].BestPrice)

	rankComparison(nil)
}

func TestRankComparisonFlagsSameProduct(t *testing.T) {
	results := []extract.Record{
		rec("shopA", "Acme Wireless Mouse M100", "24.99"),
		rec("shopB", "Acme Wireless Mouse M-100", "27.99"),
		rec("shopC", "HDMI Cable 2m Braided", "26.00"),
	}

	rankComparison(results)

	require.True(t, results[0].BestPrice)
	byPlatform := map[string]extract.Record{}
	for _, r := range results {
		byPlatform[r.SourcePlatform] = r
	}
	require.Equal(t, []string{"true"}, byPlatform["shopB"].Metadata["same_product_as_best"])
	require.Empty(t, byPlatform["shopC"].Metadata["same_product_as_best"])
	require.Empty(t, byPlatform["shopA"].Metadata["same_product_as_best"])
}

// deadlineCheckStore records whether Put arrived under a deadline.
type deadlineCheckStore struct {
	mu          sync.Mutex
	putCalled   bool
	hadDeadline bool
}

func (s *deadlineCheckStore) Get(context.Context, string) ([]extract.Record, bool, error) {
	return nil, false, nil
}

func (s *deadlineCheckStore) Put(ctx context.Context, _ string, _ []extract.Record, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.putCalled = true
	_, s.hadDeadline = ctx.Deadline()
	return nil
}

func (s *deadlineCheckStore) SweepExpired(context.Context) (int, error) {
	return 0, nil
}

func TestComparisonCacheWriteOutlivesOverallTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body>
			<h1 class="product-title">Widget</h1>
			<span class="price">$10.00</span>
		</body></html>`)
	}))
	defer server.Close()

	cfg := baseConfig()
	cfg.Platforms = []PlatformConfig{{Name: "shopa", SearchURL: server.URL + "/search?q=%s"}}

	store := &deadlineCheckStore{}
	svc := NewService(cfg, Deps{Comparisons: store})

	results := svc.AcquireComparison(context.Background(), "widget")
	require.Len(t, results, 1)

	// the write must not inherit the fan-out ceiling: a fully consumed
	// ceiling would otherwise fail every persistent cache write
	require.True(t, store.putCalled)
	require.False(t, store.hadDeadline)
}

func TestRankComparisonStableForEqualPrices(t *testing.T) {
	results := []extract.Record{
		rec("shopA", "Widget", "10.00"),
		rec("shopB", "Widget", "10.00"),
	}
	rankComparison(results)
	require.Equal(t, "shopA", results[0].SourcePlatform)
	require.True(t, results[0].BestPrice)
}
