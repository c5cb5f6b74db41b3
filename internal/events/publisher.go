package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/sourcingdev/alibaba-visual-scout/internal/database"
	"github.com/sourcingdev/alibaba-visual-scout/internal/models"
)

// EventType represents the type of event
type EventType string

const (
	// EventTypeSearchCompleted is published when a sourcing search finishes
	EventTypeSearchCompleted EventType = "SEARCH_COMPLETED"
)

// SearchCompletedPayload represents the payload for SEARCH_COMPLETED event
type SearchCompletedPayload struct {
	EventID     string                 `json:"event_id"`
	EventType   string                 `json:"event_type"`
	Timestamp   time.Time              `json:"timestamp"`
	SearchID    string                 `json:"search_id"`
	Kind        string                 `json:"kind"`
	Query       string                 `json:"query,omitempty"`
	ImageDigest string                 `json:"image_digest,omitempty"`
	ResultCount int                    `json:"result_count"`
	Results     []models.ProductResult `json:"results,omitempty"`
	Source      string                 `json:"source"`
}

// Publisher handles event publishing using the transactional outbox pattern
type Publisher struct {
	db       *database.DB
	outbox   *database.OutboxRepository
	searches *database.SearchRepository
	logger   *slog.Logger
}

// NewPublisher creates a new event publisher with database connection
func NewPublisher(db *database.DB, logger *slog.Logger) *Publisher {
	return &Publisher{
		db:       db,
		outbox:   database.NewOutboxRepository(db),
		searches: database.NewSearchRepository(db),
		logger:   logger.With("component", "event_publisher"),
	}
}

// PublishSearchCompleted persists the search with its results and enqueues a
// SEARCH_COMPLETED event in the same transaction, so the record and the event
// cannot diverge.
func (p *Publisher) PublishSearchCompleted(ctx context.Context, search *database.Search, results []models.ProductResult) error {
	if search.ID == uuid.Nil {
		search.ID = uuid.New()
	}

	payload := &SearchCompletedPayload{
		EventID:     uuid.New().String(),
		EventType:   string(EventTypeSearchCompleted),
		Timestamp:   time.Now(),
		SearchID:    search.ID.String(),
		Kind:        search.Kind,
		Query:       search.Query,
		ImageDigest: search.ImageDigest,
		ResultCount: len(results),
		Results:     results,
		Source:      "visual-scout",
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	outboxEvent := &database.OutboxEvent{
		AggregateType: "search",
		AggregateID:   search.ID.String(),
		EventType:     string(EventTypeSearchCompleted),
		Payload:       data,
		TargetStream:  database.DefaultTargetStream,
	}

	err = p.db.Transaction(ctx, func(tx pgx.Tx) error {
		if err := p.searches.InsertWithTx(ctx, tx, search, results); err != nil {
			return err
		}
		if err := p.outbox.InsertWithTx(ctx, tx, outboxEvent); err != nil {
			return fmt.Errorf("failed to insert outbox event: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	p.logger.Info("event published to outbox",
		"type", payload.EventType,
		"event_id", payload.EventID,
		"search_id", payload.SearchID,
		"result_count", payload.ResultCount,
		"outbox_id", outboxEvent.ID,
	)

	return nil
}
