package parse

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/sourcingdev/alibaba-visual-scout/internal/models"
)

var (
	currencyRe = regexp.MustCompile(`[\$₹£€]`)
	priceRe    = regexp.MustCompile(`[\$₹£€]\s*[\d,]+(?:\.\d+)?`)
	moqRes     = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\d+\s+Pieces?`),
		regexp.MustCompile(`(?i)MOQ:\s*\d+`),
		regexp.MustCompile(`(?i)order:\s*\d+`),
	}
)

// Image src fallback attributes, in probe order. Lazy-loaded grids park the
// real URL in a data attribute until the image scrolls into view.
var imageSrcAttrs = []string{"src", "data-src", "data-image", "image-src"}

// extractCard pulls one result out of a card container. Every field except
// the image degrades to a sentinel; a card with no usable image is dropped
// entirely since the caller is a visual search.
func (p *Parser) extractCard(card *goquery.Selection, index int, ts int64) (models.ProductResult, bool) {
	imgURL := p.extractImage(card)
	title := p.extractTitle(card)
	if imgURL == "" || title == "" {
		return models.ProductResult{}, false
	}

	text := card.Text()
	price := priceRe.FindString(text)
	if price == "" {
		price = models.PriceNegotiable
	}

	moq := models.DefaultMOQ
	for _, re := range moqRes {
		if m := re.FindString(text); m != "" {
			moq = m
			break
		}
	}

	return models.ProductResult{
		ID:         fmt.Sprintf("ali-vis-%d-%d", ts, index),
		Name:       truncate(title, models.MaxTitleLen),
		Link:       AbsoluteURL(p.extractLink(card)),
		ImageURL:   NormalizeImageURL(imgURL),
		PriceRange: price,
		MOQ:        moq,
		Source:     models.SourceVisual,
		Similarity: rankScore(index),
	}, true
}

func (p *Parser) extractImage(card *goquery.Selection) string {
	var product, first string
	card.Find("img").EachWithBreak(func(_ int, img *goquery.Selection) bool {
		src := firstAttr(img, imageSrcAttrs)
		if src == "" {
			return true
		}
		if first == "" {
			first = src
		}
		lower := strings.ToLower(src)
		if containsAny(lower, lowered(p.tables.ImageHosts)) && !containsAny(lower, p.tables.ImageBlacklist) {
			product = src
			return false
		}
		return true
	})
	if product != "" {
		return product
	}
	return first
}

func (p *Parser) extractTitle(card *goquery.Selection) string {
	for _, sel := range p.tables.TitleSelectors {
		var title string
		card.Find(sel).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			t := strings.TrimSpace(s.Text())
			if len(t) > 10 {
				title = t
				return false
			}
			return true
		})
		if title != "" {
			return title
		}
	}
	// fall back to the first substantial text line of the card
	for _, line := range strings.Split(card.Text(), "\n") {
		line = strings.TrimSpace(line)
		if len(line) > 20 {
			return line
		}
	}
	return models.FallbackTitle
}

func (p *Parser) extractLink(card *goquery.Selection) string {
	if goquery.NodeName(card) == "a" {
		if href, ok := card.Attr("href"); ok {
			return href
		}
	}
	href, _ := card.Find("a").First().Attr("href")
	return href
}

func rankScore(index int) float64 {
	return round2(baseScore - scoreStep*float64(index))
}

func firstAttr(s *goquery.Selection, names []string) string {
	for _, name := range names {
		if v, ok := s.Attr(name); ok && v != "" {
			return v
		}
	}
	return ""
}

func lowered(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToLower(s)
	}
	return out
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}
