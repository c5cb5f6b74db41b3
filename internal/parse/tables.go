package parse

import (
	"encoding/json"
	"fmt"
	"os"
)

// Tables holds the markup-dependent selector and marker sets. The target
// site's markup drifts every few months; keeping these as data means a drift
// fix is a table update shipped via config, not a parser change.
type Tables struct {
	CardSelectors  []string `json:"card_selectors"`
	MarkerPhrases  []string `json:"marker_phrases"`
	LinkPatterns   []string `json:"link_patterns"`
	TitleSelectors []string `json:"title_selectors"`
	ImageHosts     []string `json:"image_hosts"`
	ImageBlacklist []string `json:"image_blacklist"`
}

// DefaultTables returns the selector sets known to match current markup.
func DefaultTables() Tables {
	return Tables{
		CardSelectors: []string{
			".image-search-product-card",
			".image-search-product-item",
			".pc-items-item",
			".h-search-result-item",
			"[class*='search-result-item']",
			".m-gallery-product-item-v2",
			".organic-list .list-no-v2-main__item",
			".search-card-item",
			".gallery-card-layout-item",
			".J-offer-wrapper",
			"[data-content='productItem']",
			".app-organic-search-card",
			".list-item",
		},
		MarkerPhrases: []string{
			"Chat now",
			"Add to cart",
			"Min. order",
		},
		LinkPatterns: []string{
			"/product-detail/",
			"offer/",
		},
		TitleSelectors: []string{
			".title", ".name", "[class*='title']", "[class*='name']", "h2", "h3", "h4",
		},
		ImageHosts: []string{
			".alicdn.com",
		},
		ImageBlacklist: []string{
			"flag", "country", "icon", "logo", "sprite", "badge", "verified",
			"cert", "check", "dot", "svg", "loading", "placeholder", "avatar",
			"button",
		},
	}
}

// LoadTables reads a JSON overrides file and merges it over the defaults.
// Only fields present and non-empty in the file replace their default.
func LoadTables(path string) (Tables, error) {
	t := DefaultTables()
	if path == "" {
		return t, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return t, fmt.Errorf("read tables file: %w", err)
	}
	var overrides Tables
	if err := json.Unmarshal(data, &overrides); err != nil {
		return t, fmt.Errorf("parse tables file: %w", err)
	}
	merge(&t.CardSelectors, overrides.CardSelectors)
	merge(&t.MarkerPhrases, overrides.MarkerPhrases)
	merge(&t.LinkPatterns, overrides.LinkPatterns)
	merge(&t.TitleSelectors, overrides.TitleSelectors)
	merge(&t.ImageHosts, overrides.ImageHosts)
	merge(&t.ImageBlacklist, overrides.ImageBlacklist)
	return t, nil
}

func merge(dst *[]string, src []string) {
	if len(src) > 0 {
		*dst = src
	}
}

// Geometry attributes stamped on candidate containers by AnnotationScript.
const (
	attrWidth  = "data-scout-w"
	attrHeight = "data-scout-h"
)

// AnnotationScript returns JavaScript that stamps rendered width and height
// onto every div whose visible text carries a product marker. The parser runs
// on a static snapshot and has no layout engine, so the live page records the
// geometry the marker strategy needs before the snapshot is taken.
func (t Tables) AnnotationScript() string {
	markers, _ := json.Marshal(t.MarkerPhrases)
	return fmt.Sprintf(`(() => {
  const markers = %s;
  for (const el of document.querySelectorAll('div')) {
    const text = el.innerText || '';
    const hit = markers.some(m => text.includes(m)) ||
      (text.includes('Pieces') && /[₹$£€]/.test(text));
    if (!hit) continue;
    const rect = el.getBoundingClientRect();
    el.setAttribute('%s', String(Math.round(rect.width)));
    el.setAttribute('%s', String(Math.round(rect.height)));
  }
  return true;
})()`, markers, attrWidth, attrHeight)
}
