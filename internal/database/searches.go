package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/sourcingdev/alibaba-visual-scout/internal/models"
)

// Search kinds.
const (
	SearchKindVisual = "visual"
	SearchKindText   = "text"
)

// Search is one recorded search run with its result count.
type Search struct {
	ID          uuid.UUID `json:"id"`
	Kind        string    `json:"kind"`
	Query       string    `json:"query"`
	ImageDigest string    `json:"image_digest,omitempty"`
	ResultCount int       `json:"result_count"`
	CreatedAt   time.Time `json:"created_at"`
}

// SearchRepository persists searches and their results.
type SearchRepository struct {
	db *DB
}

func NewSearchRepository(db *DB) *SearchRepository {
	return &SearchRepository{db: db}
}

// InsertWithTx writes the search row and its result rows in the given
// transaction, so the caller can atomically add an outbox event alongside.
func (r *SearchRepository) InsertWithTx(ctx context.Context, tx pgx.Tx, s *Search, results []models.ProductResult) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now()
	}
	s.ResultCount = len(results)

	_, err := tx.Exec(ctx, `
		INSERT INTO search (id, kind, query, image_digest, result_count, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		s.ID, s.Kind, s.Query, s.ImageDigest, s.ResultCount, s.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert search: %w", err)
	}

	for i, res := range results {
		_, err := tx.Exec(ctx, `
			INSERT INTO search_result (
				search_id, position, result_id, name, link,
				image_url, price_range, moq, source, similarity_score
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			s.ID, i, res.ID, res.Name, res.Link,
			res.ImageURL, res.PriceRange, res.MOQ, res.Source, res.Similarity)
		if err != nil {
			return fmt.Errorf("insert search result %d: %w", i, err)
		}
	}
	return nil
}

// Insert records a search and its results in one transaction.
func (r *SearchRepository) Insert(ctx context.Context, s *Search, results []models.ProductResult) error {
	return r.db.Transaction(ctx, func(tx pgx.Tx) error {
		return r.InsertWithTx(ctx, tx, s, results)
	})
}

// Recent returns the most recent searches, newest first.
func (r *SearchRepository) Recent(ctx context.Context, limit int) ([]*Search, error) {
	rows, err := r.db.pool.Query(ctx, `
		SELECT id, kind, query, image_digest, result_count, created_at
		FROM search
		ORDER BY created_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent searches: %w", err)
	}
	defer rows.Close()

	var searches []*Search
	for rows.Next() {
		s := &Search{}
		if err := rows.Scan(&s.ID, &s.Kind, &s.Query, &s.ImageDigest, &s.ResultCount, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan search: %w", err)
		}
		searches = append(searches, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate searches: %w", err)
	}
	return searches, nil
}

// ResultsFor returns the stored results of one search in original order.
func (r *SearchRepository) ResultsFor(ctx context.Context, searchID uuid.UUID) ([]models.ProductResult, error) {
	rows, err := r.db.pool.Query(ctx, `
		SELECT result_id, name, link, image_url, price_range, moq, source, similarity_score
		FROM search_result
		WHERE search_id = $1
		ORDER BY position ASC`, searchID)
	if err != nil {
		return nil, fmt.Errorf("query search results: %w", err)
	}
	defer rows.Close()

	results := make([]models.ProductResult, 0)
	for rows.Next() {
		var res models.ProductResult
		if err := rows.Scan(&res.ID, &res.Name, &res.Link, &res.ImageURL,
			&res.PriceRange, &res.MOQ, &res.Source, &res.Similarity); err != nil {
			return nil, fmt.Errorf("scan search result: %w", err)
		}
		results = append(results, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate search results: %w", err)
	}
	return results, nil
}
