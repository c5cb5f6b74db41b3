package textsearch

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sourcingdev/alibaba-visual-scout/internal/config"
	"github.com/sourcingdev/alibaba-visual-scout/internal/models"
)

func testConfig() config.TextSearchConfig {
	return config.TextSearchConfig{
		SearchURL:   "https://www.alibaba.com/trade/search",
		RenderProxy: "https://proxy.example.com",
		ProxyAPIKey: "test-key",
		MaxResults:  12,
	}
}

const fixturePage = `<html><body>
<div class="search-card-item">
	<a href="//www.alibaba.com/product-detail/ring_100.html"></a>
	<h2>Gold Plated Adjustable Ring Wholesale Lot</h2>
	<div class="search-card-e-price-main">$0.80-$1.20</div>
	<img src="https://s.alicdn.com/kf/country-flag-in.png">
	<img src="https://s.alicdn.com/@sc04/kf/ring_main_300x300.jpg">
	<img src="https://s.alicdn.com/kf/ring_alt.jpg">
</div>
<div class="search-card-item">
	<a href="https://www.alibaba.com/product-detail/necklace_200.html"></a>
	<h2>Pearl Choker Necklace Handmade Bridal Set</h2>
	<img src="https://s.alicdn.com/kf/necklace_full.jpg">
</div>
<div class="search-card-item">
	<a href="https://www.alibaba.com/product-detail/untitled.html"></a>
</div>
</body></html>`

func TestParse_Fixture(t *testing.T) {
	s := NewScraper(testConfig(), slog.Default())

	results, err := s.Parse(strings.NewReader(fixturePage))
	require.NoError(t, err)

	// the third card has no title and is dropped
	require.Len(t, results, 2)

	first := results[0]
	assert.Equal(t, "Gold Plated Adjustable Ring Wholesale Lot", first.Name)
	assert.Equal(t, "https://www.alibaba.com/product-detail/ring_100.html", first.Link)
	assert.Equal(t, "https://s.alicdn.com/@sc04/kf/ring_main_300x300.jpg", first.ImageURL,
		"ideal-size product shot beats both the flag and the unsized variant")
	assert.Equal(t, "$0.80-$1.20", first.PriceRange)
	assert.Equal(t, models.SourceText, first.Source)
	assert.Equal(t, 0.92, first.Similarity)
	assert.True(t, strings.HasPrefix(first.ID, "ali-scrape-"))

	second := results[1]
	assert.Equal(t, "https://s.alicdn.com/kf/necklace_full.jpg", second.ImageURL)
	assert.Equal(t, priceFallback, second.PriceRange)
	assert.InDelta(t, 0.91, second.Similarity, 1e-9)
}

func TestParse_CapsResults(t *testing.T) {
	var b strings.Builder
	b.WriteString("<html><body>")
	for i := 0; i < 20; i++ {
		b.WriteString(`<div class="search-card-item">
			<a href="https://www.alibaba.com/product-detail/x.html"></a>
			<h2>Stainless Steel Bottle Insulated Double Wall</h2>
		</div>`)
	}
	b.WriteString("</body></html>")

	s := NewScraper(testConfig(), slog.Default())
	results, err := s.Parse(strings.NewReader(b.String()))
	require.NoError(t, err)
	assert.Len(t, results, 12)
}

func TestParse_EmptyPage(t *testing.T) {
	s := NewScraper(testConfig(), slog.Default())
	results, err := s.Parse(strings.NewReader("<html><body></body></html>"))
	require.NoError(t, err)
	assert.NotNil(t, results)
	assert.Empty(t, results)
}

func TestSearchByQuery_MissingKeySkips(t *testing.T) {
	cfg := testConfig()
	cfg.ProxyAPIKey = ""
	s := NewScraper(cfg, slog.Default())

	results, err := s.SearchByQuery(context.Background(), "silver earrings")
	require.NoError(t, err)
	assert.NotNil(t, results)
	assert.Empty(t, results)
}

func TestSearchByQuery_FetchesThroughProxy(t *testing.T) {
	var gotURL string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotURL = r.URL.String()
		_, _ = w.Write([]byte(fixturePage))
	}))
	defer srv.Close()

	cfg := testConfig()
	cfg.RenderProxy = srv.URL
	s := NewScraper(cfg, slog.Default())

	results, err := s.SearchByQuery(context.Background(), "gold ring")
	require.NoError(t, err)

	assert.Len(t, results, 2)
	assert.Contains(t, gotURL, "api_key=test-key")
	assert.Contains(t, gotURL, "render=true")
	assert.Contains(t, gotURL, "SearchText")
}

func TestSearchByQuery_ProxyErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	cfg := testConfig()
	cfg.RenderProxy = srv.URL
	s := NewScraper(cfg, slog.Default())

	_, err := s.SearchByQuery(context.Background(), "gold ring")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}
