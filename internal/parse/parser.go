// Package parse extracts normalized product results from rendered search
// pages. Detection runs a fixed cascade of strategies so that a markup drift
// degrades extraction quality instead of zeroing it out.
package parse

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/sourcingdev/alibaba-visual-scout/internal/models"
)

// MaxResults caps a single parse pass. Cards past the first screenful are
// mostly sponsored noise.
const MaxResults = 10

// Synthetic rank score: descending from baseScore by scoreStep per card
// position.
const (
	baseScore = 0.98
	scoreStep = 0.05
)

// Marker-strategy card envelope in pixels. Containers wider than a card grid
// column are wrappers, not cards.
const (
	minCardWidth  = 50
	maxCardWidth  = 800
	minCardHeight = 80
)

// SnapshotFunc produces a fresh HTML snapshot of the results page.
type SnapshotFunc func(context.Context) (string, error)

// Parser turns page snapshots into ProductResults.
type Parser struct {
	tables     Tables
	logger     *slog.Logger
	attempts   int
	retryDelay time.Duration
	now        func() time.Time
}

// NewParser builds a parser over the given selector tables. attempts is the
// total number of snapshot-and-parse passes before an empty page is accepted
// as truly empty.
func NewParser(tables Tables, attempts int, logger *slog.Logger) *Parser {
	if attempts < 1 {
		attempts = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Parser{
		tables:     tables,
		logger:     logger.With("component", "parser"),
		attempts:   attempts,
		retryDelay: 2 * time.Second,
		now:        time.Now,
	}
}

// Tables exposes the active selector tables, shared with the snapshot
// annotation step.
func (p *Parser) Tables() Tables {
	return p.tables
}

// Parse extracts product results from one HTML snapshot. Returns an empty,
// non-nil slice when no cards are found; an error only when the snapshot
// itself cannot be parsed.
func (p *Parser) Parse(html string) ([]models.ProductResult, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse snapshot: %w", err)
	}

	cards := p.detectCards(doc)
	ts := p.now().UnixMilli()
	results := make([]models.ProductResult, 0, len(cards))
	for i, card := range cards {
		if i >= MaxResults {
			break
		}
		r, ok := p.extractCard(card, i, ts)
		if !ok {
			continue
		}
		results = append(results, r)
	}
	return results, nil
}

// ParseWithRetry snapshots and parses up to the configured attempt count,
// re-snapshotting when a pass yields nothing. Result grids render
// asynchronously; an empty first pass usually means the page was captured
// mid-render, not that there are no results.
func (p *Parser) ParseWithRetry(ctx context.Context, snap SnapshotFunc) ([]models.ProductResult, error) {
	var lastErr error
	for attempt := 1; attempt <= p.attempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(p.retryDelay):
			}
		}

		html, err := snap(ctx)
		if err != nil {
			lastErr = fmt.Errorf("snapshot attempt %d: %w", attempt, err)
			p.logger.Warn("snapshot failed", "attempt", attempt, "error", err)
			continue
		}

		results, err := p.Parse(html)
		if err != nil {
			lastErr = err
			continue
		}
		if len(results) > 0 {
			p.logger.Info("results extracted", "attempt", attempt, "count", len(results))
			return results, nil
		}
		lastErr = nil
		p.logger.Info("no cards found in snapshot", "attempt", attempt)
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return []models.ProductResult{}, nil
}

type cardStrategy struct {
	name   string
	detect func(*goquery.Document) []*goquery.Selection
}

// detectCards runs the strategy cascade in fixed order and stops at the
// first strategy producing any candidates.
func (p *Parser) detectCards(doc *goquery.Document) []*goquery.Selection {
	strategies := []cardStrategy{
		{"selector", p.cardsBySelector},
		{"marker", p.cardsByMarker},
		{"link", p.cardsByLink},
	}
	for _, s := range strategies {
		cards := s.detect(doc)
		if len(cards) > 0 {
			p.logger.Debug("cards detected", "strategy", s.name, "count", len(cards))
			return cards
		}
	}
	return nil
}
