// Package textsearch runs keyword searches against the marketplace through a
// rendering HTTP proxy and parses the result grid statically. It complements
// the browser-driven visual pipeline: cheaper per query, but only as good as
// the query text.
package textsearch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"

	"github.com/sourcingdev/alibaba-visual-scout/internal/config"
	"github.com/sourcingdev/alibaba-visual-scout/internal/models"
	"github.com/sourcingdev/alibaba-visual-scout/internal/parse"
	"github.com/sourcingdev/alibaba-visual-scout/internal/ratelimit"
)

// Synthetic rank scoring for text results; lower base than visual because a
// keyword match carries less signal than an image match.
const (
	baseScore = 0.92
	scoreStep = 0.01
)

const priceFallback = "Contact for Price"

var cardSelectors = strings.Join([]string{
	".search-card-item",
	".card-info",
	".list-no-v2-main__item",
	".m-gallery-product-item-v2",
	".gallery-card-layout-item",
}, ", ")

const (
	titleSelectors = "h2, .common-card-title, .search-card-e-title, .title-link, .title"
	priceSelectors = ".search-card-e-price-main, .element--price-item, .common-card-m-price-main, .price-number, .h4"
)

// Product-image indicators: a src must look like CDN product media to beat
// the decorative noise (flags, badges, seller logos) that fills every card.
var productIndicators = []string{"/kf/", "/product/", "sc04", ".alicdn.com"}

// Preferred CDN thumbnail sizes; these are the grid's own render sizes, so
// their presence means the URL points at the main product shot.
var idealSizes = []string{"_220x220", "_300x300", "_450x450"}

var imageBlacklist = []string{
	"flag", "country", "icon", "logo", "sprite", "badge", "verified",
	"cert", "check", "dot", "svg", "loading", "placeholder", "avatar",
	"button",
}

// Scraper fetches rendered trade-search pages through a proxy.
type Scraper struct {
	client     *http.Client
	limiter    *ratelimit.AdaptiveRateLimiter
	searchURL  string
	proxyURL   string
	apiKey     string
	maxResults int
	logger     *slog.Logger
}

// NewScraper builds a text search scraper from config. A missing proxy API
// key is tolerated; searches then return empty results with a warning so the
// visual pipeline keeps the service useful.
func NewScraper(cfg config.TextSearchConfig, logger *slog.Logger) *Scraper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scraper{
		client:     &http.Client{Timeout: cfg.HTTPTimeout},
		limiter:    ratelimit.NewAdaptiveRateLimiter(cfg.MinDelay, cfg.MaxDelay),
		searchURL:  cfg.SearchURL,
		proxyURL:   cfg.RenderProxy,
		apiKey:     cfg.ProxyAPIKey,
		maxResults: cfg.MaxResults,
		logger:     logger.With("component", "textsearch"),
	}
}

// SearchByQuery fetches and parses one keyword search. Zero matches returns
// an empty non-nil slice.
func (s *Scraper) SearchByQuery(ctx context.Context, query string) ([]models.ProductResult, error) {
	if s.apiKey == "" {
		s.logger.Warn("render proxy key not configured, skipping text search")
		return []models.ProductResult{}, nil
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	target := fmt.Sprintf("%s?SearchText=%s", s.searchURL, url.QueryEscape(query))
	proxied := fmt.Sprintf("%s?api_key=%s&url=%s&render=true",
		s.proxyURL, url.QueryEscape(s.apiKey), url.QueryEscape(target))

	s.logger.Info("text search started", "query", query)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, proxied, nil)
	if err != nil {
		return nil, fmt.Errorf("build proxy request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		s.limiter.RecordError()
		return nil, fmt.Errorf("fetch rendered page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		s.limiter.RecordError()
		return nil, fmt.Errorf("render proxy status %d", resp.StatusCode)
	}

	results, err := s.Parse(resp.Body)
	if err != nil {
		s.limiter.RecordError()
		return nil, err
	}
	s.limiter.RecordSuccess()
	s.logger.Info("text search finished", "query", query, "results", len(results))
	return results, nil
}

// Parse extracts product results from a rendered search page.
func (s *Scraper) Parse(r io.Reader) ([]models.ProductResult, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse search page: %w", err)
	}

	results := make([]models.ProductResult, 0, s.maxResults)
	doc.Find(cardSelectors).EachWithBreak(func(i int, card *goquery.Selection) bool {
		if len(results) >= s.maxResults {
			return false
		}

		title := strings.TrimSpace(card.Find(titleSelectors).Text())
		link, _ := card.Find("a").Attr("href")
		if title == "" || link == "" {
			return true
		}

		price := strings.TrimSpace(card.Find(priceSelectors).Text())
		if price == "" {
			price = priceFallback
		}

		results = append(results, models.ProductResult{
			ID:         "ali-scrape-" + uuid.NewString()[:8],
			Name:       title,
			Link:       absolutize(link),
			ImageURL:   absolutize(s.pickImage(card)),
			PriceRange: price,
			MOQ:        models.DefaultMOQ,
			Source:     models.SourceText,
			Similarity: baseScore - scoreStep*float64(i),
		})
		return true
	})
	return results, nil
}

// pickImage runs the surgical filter over every image candidate in the card:
// blacklist out the decorations, then prefer product-CDN URLs at the grid's
// own thumbnail sizes.
func (s *Scraper) pickImage(card *goquery.Selection) string {
	var candidates []string
	card.Find("img").Each(func(_ int, img *goquery.Selection) {
		for _, attr := range []string{"src", "data-src", "image-src", "data-image"} {
			if v, ok := img.Attr(attr); ok && v != "" {
				candidates = append(candidates, v)
				return
			}
		}
	})

	var best, good string
	for _, src := range candidates {
		l := strings.ToLower(src)
		if containsAny(l, imageBlacklist) || !containsAny(l, productIndicators) {
			continue
		}
		if containsAny(l, idealSizes) {
			if best == "" {
				best = src
			}
		} else if good == "" {
			good = src
		}
	}
	switch {
	case best != "":
		return best
	case good != "":
		return good
	}

	// loose fallback: anything HTTP-looking that is not obvious chrome
	for _, src := range candidates {
		l := strings.ToLower(src)
		if strings.Contains(l, "http") &&
			!strings.Contains(l, "flag") && !strings.Contains(l, "icon") && !strings.Contains(l, "logo") {
			return src
		}
	}
	if len(candidates) > 0 {
		return candidates[0]
	}
	return ""
}

func absolutize(raw string) string {
	if raw == "" || strings.HasPrefix(raw, "http") {
		return raw
	}
	return parse.AbsoluteURL(raw)
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
