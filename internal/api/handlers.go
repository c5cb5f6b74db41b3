package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/sourcingdev/alibaba-visual-scout/internal/cache"
	"github.com/sourcingdev/alibaba-visual-scout/internal/database"
	"github.com/sourcingdev/alibaba-visual-scout/internal/models"
	"github.com/sourcingdev/alibaba-visual-scout/internal/scout"
)

// VisualSearcher runs a reverse image search through the browser pipeline.
type VisualSearcher interface {
	SearchByImage(ctx context.Context, imagePath string) ([]models.ProductResult, error)
}

// TextSearcher runs a keyword search through the rendering proxy.
type TextSearcher interface {
	SearchByQuery(ctx context.Context, query string) ([]models.ProductResult, error)
}

// ResultCache caches completed searches.
type ResultCache interface {
	GetVisual(ctx context.Context, digest string) ([]models.ProductResult, bool, error)
	PutVisual(ctx context.Context, digest string, results []models.ProductResult) error
	GetText(ctx context.Context, query string) ([]models.ProductResult, bool, error)
	PutText(ctx context.Context, query string, results []models.ProductResult) error
}

// SearchRecorder persists a finished search and emits its completion event.
type SearchRecorder interface {
	PublishSearchCompleted(ctx context.Context, search *database.Search, results []models.ProductResult) error
}

// SearchHistory reads back recorded searches.
type SearchHistory interface {
	Recent(ctx context.Context, limit int) ([]*database.Search, error)
}

// UploadStore keeps uploaded images on disk for the pipeline to consume.
type UploadStore interface {
	Save(originalName string, data []byte) (string, error)
	Remove(path string) error
}

type Handlers struct {
	visual   VisualSearcher
	text     TextSearcher
	cache    ResultCache
	recorder SearchRecorder
	history  SearchHistory
	uploads  UploadStore
	maxBytes int64
	logger   *slog.Logger
}

func NewHandlers(visual VisualSearcher, text TextSearcher, cache ResultCache,
	recorder SearchRecorder, history SearchHistory, uploads UploadStore,
	maxUploadBytes int64, logger *slog.Logger) *Handlers {
	return &Handlers{
		visual:   visual,
		text:     text,
		cache:    cache,
		recorder: recorder,
		history:  history,
		uploads:  uploads,
		maxBytes: maxUploadBytes,
		logger:   logger,
	}
}

// SearchResponse is the common response for both search endpoints.
type SearchResponse struct {
	SearchID string                 `json:"search_id,omitempty"`
	Results  []models.ProductResult `json:"results"`
	Count    int                    `json:"count"`
	Cached   bool                   `json:"cached"`
	Error    string                 `json:"error,omitempty"`
}

// VisualSearch handles reverse image search requests. The image arrives as
// multipart form data under the "image" field.
func (h *Handlers) VisualSearch(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)
	if err := r.ParseMultipartForm(h.maxBytes); err != nil {
		h.respondError(w, http.StatusBadRequest, "image upload too large or malformed")
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "image file is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "failed to read image")
		return
	}
	if len(data) == 0 {
		h.respondError(w, http.StatusBadRequest, "image file is empty")
		return
	}

	digest := cache.ImageDigest(data)

	if cached, hit, err := h.cache.GetVisual(r.Context(), digest); err != nil {
		h.logger.Warn("visual cache lookup failed", "error", err)
	} else if hit {
		h.respondJSON(w, http.StatusOK, SearchResponse{
			Results: cached,
			Count:   len(cached),
			Cached:  true,
		})
		return
	}

	imagePath, err := h.uploads.Save(header.Filename, data)
	if err != nil {
		h.logger.Error("failed to store upload", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to store upload")
		return
	}
	defer func() {
		if err := h.uploads.Remove(imagePath); err != nil {
			h.logger.Warn("failed to remove upload", "path", imagePath, "error", err)
		}
	}()

	results, err := h.visual.SearchByImage(r.Context(), imagePath)
	if err != nil {
		if errors.Is(err, scout.ErrImageNotFound) {
			h.respondError(w, http.StatusBadRequest, "image file could not be read")
			return
		}
		// Search failures degrade to an empty result set rather than an
		// error, so callers can fall back to text search.
		h.logger.Error("visual search failed", "error", err, "digest", digest)
		h.respondJSON(w, http.StatusOK, SearchResponse{
			Results: []models.ProductResult{},
			Count:   0,
			Error:   "visual search unavailable",
		})
		return
	}

	if err := h.cache.PutVisual(r.Context(), digest, results); err != nil {
		h.logger.Warn("failed to cache visual results", "error", err)
	}

	search := &database.Search{
		Kind:        database.SearchKindVisual,
		ImageDigest: digest,
	}
	if err := h.recorder.PublishSearchCompleted(r.Context(), search, results); err != nil {
		h.logger.Error("failed to record search", "error", err)
	}

	h.respondJSON(w, http.StatusOK, SearchResponse{
		SearchID: search.ID.String(),
		Results:  results,
		Count:    len(results),
	})
}

// TextSearchRequest is the body for keyword searches.
type TextSearchRequest struct {
	Query string `json:"query"`
}

// TextSearch handles keyword search requests.
func (h *Handlers) TextSearch(w http.ResponseWriter, r *http.Request) {
	var req TextSearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Query == "" {
		h.respondError(w, http.StatusBadRequest, "query is required")
		return
	}

	if cached, hit, err := h.cache.GetText(r.Context(), req.Query); err != nil {
		h.logger.Warn("text cache lookup failed", "error", err)
	} else if hit {
		h.respondJSON(w, http.StatusOK, SearchResponse{
			Results: cached,
			Count:   len(cached),
			Cached:  true,
		})
		return
	}

	results, err := h.text.SearchByQuery(r.Context(), req.Query)
	if err != nil {
		h.logger.Error("text search failed", "error", err, "query", req.Query)
		h.respondJSON(w, http.StatusOK, SearchResponse{
			Results: []models.ProductResult{},
			Count:   0,
			Error:   "text search unavailable",
		})
		return
	}

	if err := h.cache.PutText(r.Context(), req.Query, results); err != nil {
		h.logger.Warn("failed to cache text results", "error", err)
	}

	search := &database.Search{
		Kind:  database.SearchKindText,
		Query: req.Query,
	}
	if err := h.recorder.PublishSearchCompleted(r.Context(), search, results); err != nil {
		h.logger.Error("failed to record search", "error", err)
	}

	h.respondJSON(w, http.StatusOK, SearchResponse{
		SearchID: search.ID.String(),
		Results:  results,
		Count:    len(results),
	})
}

// RecentSearches returns the latest recorded searches.
func (h *Handlers) RecentSearches(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 200 {
			h.respondError(w, http.StatusBadRequest, "limit must be between 1 and 200")
			return
		}
		limit = parsed
	}

	searches, err := h.history.Recent(r.Context(), limit)
	if err != nil {
		h.logger.Error("failed to list searches", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to list searches")
		return
	}
	if searches == nil {
		searches = []*database.Search{}
	}

	h.respondJSON(w, http.StatusOK, searches)
}

// Helper methods
func (h *Handlers) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handlers) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
