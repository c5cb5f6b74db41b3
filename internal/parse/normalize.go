package parse

import (
	"math"
	"regexp"
	"strings"
)

// sizeSuffixRe matches CDN thumbnail size suffixes like _300x300.jpg plus any
// trailing query noise.
var sizeSuffixRe = regexp.MustCompile(`(?i)_\d+x\d+\.(jpg|jpeg|png|webp|gif).*$`)

// NormalizeImageURL strips the fixed-size thumbnail suffix so the same
// product yields one canonical URL regardless of which size variant the grid
// happened to render. Idempotent: a URL without a size suffix passes through
// unchanged.
func NormalizeImageURL(raw string) string {
	return sizeSuffixRe.ReplaceAllString(raw, "")
}

// AbsoluteURL upgrades protocol-relative links to https. Anything else is
// returned as is.
func AbsoluteURL(raw string) string {
	if strings.HasPrefix(raw, "//") {
		return "https:" + raw
	}
	return raw
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
