// Package scout runs reverse-image searches against a supplier marketplace
// through a real browser: upload an image, survive the anti-bot gauntlet,
// parse the result grid.
package scout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/sourcingdev/alibaba-visual-scout/internal/browser"
	"github.com/sourcingdev/alibaba-visual-scout/internal/config"
	"github.com/sourcingdev/alibaba-visual-scout/internal/models"
	"github.com/sourcingdev/alibaba-visual-scout/internal/parse"
)

// ErrImageNotFound means the requested image path does not exist. Raised
// before any browser work starts.
var ErrImageNotFound = errors.New("image file not found")

// Service owns one visual-search pipeline over a shared browser.
type Service struct {
	sessions   *browser.Manager
	challenges *ChallengeHandler
	uploader   *UploadTrigger
	waiter     *ResultWaiter
	parser     *parse.Parser
	tables     Tables
	annotate   string
	homeURL    string
	altURL     string
	navTimeout time.Duration
	inputWait  time.Duration
	logger     *slog.Logger
}

// NewService wires the pipeline from config. screenshotPath receives the
// diagnostic capture when no upload affordance can be triggered.
func NewService(sessions *browser.Manager, cfg config.ScoutConfig, tables Tables, parser *parse.Parser, screenshotPath string, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "scout")
	return &Service{
		sessions:   sessions,
		challenges: NewChallengeHandler(tables, cfg.ChallengeTimeout, logger),
		uploader:   NewUploadTrigger(tables, cfg.InputWaitTimeout, screenshotPath, logger),
		waiter:     NewResultWaiter(tables.ResultMarkers, cfg.ResultTimeout, logger),
		parser:     parser,
		tables:     tables,
		annotate:   parser.Tables().AnnotationScript(),
		homeURL:    cfg.HomeURL,
		altURL:     cfg.AltSearchURL,
		navTimeout: cfg.NavTimeout,
		inputWait:  cfg.InputWaitTimeout,
		logger:     logger,
	}
}

// Warm pre-launches the shared browser so the first search skips the startup
// cost. Idempotent.
func (s *Service) Warm() error {
	return s.sessions.Warm()
}

// Close shuts down the shared browser. Idempotent.
func (s *Service) Close() error {
	return s.sessions.Shutdown()
}

// SearchByImage uploads the image at imagePath and returns the extracted
// result grid. Each call runs on a fresh page; the page is always closed on
// the way out, success or not. Zero matches is a valid outcome and returns
// an empty non-nil slice.
func (s *Service) SearchByImage(ctx context.Context, imagePath string) ([]models.ProductResult, error) {
	if _, err := os.Stat(imagePath); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrImageNotFound, imagePath)
	}

	started := time.Now()
	s.logger.Info("starting visual search", "image", imagePath)

	page, err := s.sessions.NewPage()
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := page.Close(); err != nil {
			s.logger.Warn("page close failed", "error", err)
		}
	}()

	if err := browser.ConfigurePage(page, s.logger); err != nil {
		return nil, err
	}

	if _, err := page.Goto(s.homeURL, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   playwright.Float(float64(s.navTimeout.Milliseconds())),
	}); err != nil {
		return nil, fmt.Errorf("navigate to %s: %w", s.homeURL, err)
	}

	s.resolveChallenge(ctx, page)

	// the search bar anchors the camera affordance; its absence is not
	// fatal, the cascade has other routes to an input
	_, _ = page.WaitForSelector(s.tables.SearchInputSelector, playwright.PageWaitForSelectorOptions{
		Timeout: playwright.Float(float64(s.inputWait.Milliseconds())),
	})

	input, err := s.uploader.EnsureFileInput(ctx, page, s.altURL, func(ctx context.Context) {
		s.resolveChallenge(ctx, page)
	})
	if err != nil {
		return nil, err
	}

	if err := submitFile(input, imagePath); err != nil {
		return nil, fmt.Errorf("submit image: %w", err)
	}
	s.logger.Info("image submitted, waiting for results")

	if outcome := s.waiter.Await(ctx, page); outcome == OutcomeDegraded {
		s.logger.Warn("proceeding with possibly incomplete results page")
	}
	s.resolveChallenge(ctx, page)

	results, err := s.parser.ParseWithRetry(ctx, func(context.Context) (string, error) {
		return s.snapshot(page)
	})
	if err != nil {
		return nil, fmt.Errorf("parse results: %w", err)
	}

	s.logger.Info("visual search finished",
		"results", len(results),
		"elapsed", time.Since(started).Round(time.Millisecond))
	return results, nil
}

func (s *Service) resolveChallenge(ctx context.Context, page playwright.Page) {
	outcome, err := s.challenges.Resolve(ctx, page, page.Mouse())
	if err != nil {
		s.logger.Warn("challenge resolution error", "error", err)
		return
	}
	if outcome != OutcomeClear {
		s.logger.Info("challenge handling finished", "outcome", outcome.String())
	}
}

// snapshot nudges lazy loading, stamps geometry hints for the marker
// strategy, then captures the rendered HTML.
func (s *Service) snapshot(page playwright.Page) (string, error) {
	_, _ = page.Evaluate(`window.scrollBy(0, 400)`)
	_, _ = page.Evaluate(s.annotate)
	return page.Content()
}

// fileReceiver is the slice of playwright.ElementHandle the upload needs.
// The files argument is loosely typed upstream; we always pass
// []playwright.InputFile.
type fileReceiver interface {
	SetInputFiles(files interface{}, options ...playwright.ElementHandleSetInputFilesOptions) error
}

// submitFile streams the image into the input by content rather than by
// path, sidestepping filesystem visibility differences between this process
// and the browser.
func submitFile(input fileReceiver, path string) error {
	buf, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	mt := mime.TypeByExtension(filepath.Ext(path))
	if mt == "" {
		mt = "image/jpeg"
	}
	return input.SetInputFiles([]playwright.InputFile{{
		Name:     filepath.Base(path),
		MimeType: mt,
		Buffer:   buf,
	}})
}
