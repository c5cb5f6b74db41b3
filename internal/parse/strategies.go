package parse

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// cardsBySelector tries each known card selector and takes the first one
// matching at least two elements. A lone match is treated as noise; real
// result grids always have multiple cards.
func (p *Parser) cardsBySelector(doc *goquery.Document) []*goquery.Selection {
	for _, sel := range p.tables.CardSelectors {
		found := doc.Find(sel)
		if found.Length() < 2 {
			continue
		}
		cards := make([]*goquery.Selection, 0, found.Length())
		found.Each(func(_ int, s *goquery.Selection) {
			cards = append(cards, s)
		})
		return cards
	}
	return nil
}

// cardsByMarker scans for divs whose text carries a product marker phrase or
// a currency amount next to a piece count, then filters them by the rendered
// card-size envelope. Geometry comes from the attributes stamped by
// AnnotationScript; a wrapper div containing the whole grid carries the same
// markers but fails the width ceiling.
func (p *Parser) cardsByMarker(doc *goquery.Document) []*goquery.Selection {
	var cards []*goquery.Selection
	doc.Find("div").Each(func(_ int, s *goquery.Selection) {
		text := s.Text()
		if !containsAny(text, p.tables.MarkerPhrases) && !looksLikePriceOffer(text) {
			return
		}
		if !p.withinCardEnvelope(s) {
			return
		}
		cards = append(cards, s)
	})
	return cards
}

// cardsByLink finds product-detail anchors and walks up to the nearest
// classed container. Last resort: it recovers the grid even when every class
// name and marker phrase has changed, because detail URLs never do.
func (p *Parser) cardsByLink(doc *goquery.Document) []*goquery.Selection {
	if len(p.tables.LinkPatterns) == 0 {
		return nil
	}
	sels := make([]string, 0, len(p.tables.LinkPatterns))
	for _, pat := range p.tables.LinkPatterns {
		sels = append(sels, fmt.Sprintf(`a[href*=%q]`, pat))
	}

	seen := make(map[*html.Node]bool)
	var cards []*goquery.Selection
	doc.Find(strings.Join(sels, ", ")).Each(func(_ int, a *goquery.Selection) {
		card := a.Closest("div[class]")
		if card.Length() == 0 {
			card = a.Parent()
		}
		if card.Length() == 0 {
			return
		}
		node := card.Get(0)
		if seen[node] {
			return
		}
		seen[node] = true
		cards = append(cards, card)
	})
	return cards
}

func (p *Parser) withinCardEnvelope(s *goquery.Selection) bool {
	w, okW := intAttr(s, attrWidth)
	h, okH := intAttr(s, attrHeight)
	if !okW || !okH {
		return false
	}
	return w > minCardWidth && w < maxCardWidth && h > minCardHeight
}

func intAttr(s *goquery.Selection, name string) (int, bool) {
	raw, ok := s.Attr(name)
	if !ok {
		return 0, false
	}
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, false
	}
	return v, true
}

func looksLikePriceOffer(text string) bool {
	return strings.Contains(text, "Pieces") && currencyRe.MatchString(text)
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
