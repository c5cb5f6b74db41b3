package models

// Source tags carried on every result so downstream consumers can tell which
// pipeline produced it.
const (
	SourceVisual = "ALIBABA_VISUAL"
	SourceText   = "ALIBABA_TEXT"
)

// Sentinel field values used when extraction finds nothing usable.
const (
	PriceNegotiable = "Negotiable"
	DefaultMOQ      = "1 Piece"
	FallbackTitle   = "Alibaba Product"
)

// MaxTitleLen bounds result names; supplier titles are routinely keyword-stuffed.
const MaxTitleLen = 150

// ProductResult is one normalized supplier listing extracted from a search
// results page. Similarity is a synthetic rank score derived from card
// position, not a measured visual-similarity metric.
type ProductResult struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Link       string  `json:"link"`
	ImageURL   string  `json:"image_url"`
	PriceRange string  `json:"price_range"`
	MOQ        string  `json:"moq"`
	Source     string  `json:"source"`
	Similarity float64 `json:"similarity_score"`
}
