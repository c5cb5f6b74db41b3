package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/redis/go-redis/v9"

	"github.com/sourcingdev/alibaba-visual-scout/internal/api"
	"github.com/sourcingdev/alibaba-visual-scout/internal/browser"
	"github.com/sourcingdev/alibaba-visual-scout/internal/cache"
	"github.com/sourcingdev/alibaba-visual-scout/internal/config"
	"github.com/sourcingdev/alibaba-visual-scout/internal/database"
	"github.com/sourcingdev/alibaba-visual-scout/internal/events"
	"github.com/sourcingdev/alibaba-visual-scout/internal/parse"
	"github.com/sourcingdev/alibaba-visual-scout/internal/scout"
	"github.com/sourcingdev/alibaba-visual-scout/internal/storage"
	"github.com/sourcingdev/alibaba-visual-scout/internal/textsearch"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Logging)
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database connection
	db, err := database.New(ctx, cfg.DatabaseURL())
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.EnsureSchema(ctx); err != nil {
		logger.Error("failed to ensure schema", "error", err)
		os.Exit(1)
	}

	// Redis client, shared by the relay and the result cache
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Error("failed to connect to Redis", "error", err)
		os.Exit(1)
	}

	// Relay drains the transactional outbox into Redis streams
	relay := database.NewRelay(db, redisClient, logger, database.RelayConfig{
		PollInterval: 5 * time.Second,
		BatchSize:    100,
	})
	go func() {
		if err := relay.Start(ctx); err != nil && err != context.Canceled {
			logger.Error("relay stopped with error", "error", err)
		}
	}()

	// Upload storage and its periodic cleanup
	uploads, err := storage.NewUploadStore(cfg.Uploads.Dir, cfg.Uploads.MaxAge)
	if err != nil {
		logger.Error("failed to initialize upload store", "error", err)
		os.Exit(1)
	}
	go pruneUploads(ctx, uploads, logger)

	// Browser session manager
	sessions := browser.NewManager(&browser.Options{
		Headless:       cfg.Browser.Headless,
		ProfileDir:     cfg.Browser.ProfileDir,
		ExecutablePath: cfg.Browser.ExecutablePath,
		UserAgent:      cfg.Browser.UserAgent,
		ViewportWidth:  cfg.Browser.ViewportWidth,
		ViewportHeight: cfg.Browser.ViewportHeight,
		DefaultTimeout: cfg.Browser.DefaultTimeout,
	}, logger)
	defer func() {
		if err := sessions.Shutdown(); err != nil {
			logger.Error("browser shutdown failed", "error", err)
		}
	}()

	if cfg.Browser.Prewarm {
		if err := sessions.Warm(); err != nil {
			logger.Warn("browser prewarm failed, will retry on first search", "error", err)
		}
	}

	// Selector tables, optionally overridden from disk
	parseTables := parse.DefaultTables()
	scoutTables := scout.DefaultTables()
	if cfg.Scout.TablesFile != "" {
		if parseTables, err = parse.LoadTables(cfg.Scout.TablesFile); err != nil {
			logger.Error("failed to load parse tables", "file", cfg.Scout.TablesFile, "error", err)
			os.Exit(1)
		}
		if scoutTables, err = scout.LoadTables(cfg.Scout.TablesFile); err != nil {
			logger.Error("failed to load scout tables", "file", cfg.Scout.TablesFile, "error", err)
			os.Exit(1)
		}
	}

	// Services
	parser := parse.NewParser(parseTables, cfg.Scout.ParseAttempts, logger)
	visual := scout.NewService(sessions, cfg.Scout, scoutTables, parser, uploads.ScreenshotPath(), logger)
	text := textsearch.NewScraper(cfg.TextSearch, logger)
	resultCache := cache.NewResultCache(redisClient, cfg.Redis.CacheTTL, logger)
	publisher := events.NewPublisher(db, logger)
	searches := database.NewSearchRepository(db)

	handlers := api.NewHandlers(visual, text, resultCache, publisher, searches,
		uploads, cfg.Uploads.MaxBytes, logger)

	// Router
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.Server.SearchTimeout))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:*", "https://localhost:*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		pendingCount, _ := relay.GetPendingCount(req.Context())
		deadLetterCount, _ := relay.GetDeadLetterCount(req.Context())

		health := map[string]interface{}{
			"status": "ok",
			"outbox": map[string]interface{}{
				"pending":     pendingCount,
				"dead_letter": deadLetterCount,
			},
		}

		status := http.StatusOK
		if pendingCount > 1000 {
			health["status"] = "warning"
			health["message"] = "High number of pending outbox events"
		}
		if deadLetterCount > 100 {
			health["status"] = "error"
			health["message"] = "High number of dead letter events"
			status = http.StatusServiceUnavailable
		}

		w.WriteHeader(status)
		json.NewEncoder(w).Encode(health)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/search", func(r chi.Router) {
			r.Post("/visual", handlers.VisualSearch)
			r.Post("/text", handlers.TextSearch)
		})
		r.Get("/searches/recent", handlers.RecentSearches)
	})

	server := &http.Server{
		Addr: fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		// Write timeout must outlast the search timeout or long visual
		// searches get cut off mid-response.
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan

		logger.Info("shutting down server...")
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown failed", "error", err)
		}
	}()

	logger.Info("server starting", "addr", server.Addr, "headless", cfg.Browser.Headless)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "text") {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

// pruneUploads deletes expired uploads on a fixed cadence.
func pruneUploads(ctx context.Context, uploads *storage.UploadStore, logger *slog.Logger) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := uploads.Prune()
			if err != nil {
				logger.Warn("upload prune failed", "error", err)
				continue
			}
			if removed > 0 {
				logger.Info("pruned expired uploads", "removed", removed)
			}
		}
	}
}
