// profile-warmup opens a headful browser on the persistent profile so an
// operator can solve any verification challenge by hand. A profile that has
// passed a challenge once keeps working headless for a long time.
package main

import (
	"log/slog"
	"os"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/sourcingdev/alibaba-visual-scout/internal/browser"
	"github.com/sourcingdev/alibaba-visual-scout/internal/config"
	"github.com/sourcingdev/alibaba-visual-scout/internal/scout"
)

const manualSolveWindow = 2 * time.Minute

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	sessions := browser.NewManager(&browser.Options{
		Headless:       false,
		ProfileDir:     cfg.Browser.ProfileDir,
		ExecutablePath: cfg.Browser.ExecutablePath,
		UserAgent:      cfg.Browser.UserAgent,
		ViewportWidth:  cfg.Browser.ViewportWidth,
		ViewportHeight: cfg.Browser.ViewportHeight,
		DefaultTimeout: cfg.Browser.DefaultTimeout,
	}, logger)
	defer sessions.Shutdown()

	page, err := sessions.NewPage()
	if err != nil {
		logger.Error("failed to open page", "error", err)
		os.Exit(1)
	}

	logger.Info("opening home page", "url", cfg.Scout.HomeURL)
	if _, err := page.Goto(cfg.Scout.HomeURL, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   playwright.Float(float64(cfg.Scout.NavTimeout.Milliseconds())),
	}); err != nil {
		logger.Error("navigation failed", "error", err)
		os.Exit(1)
	}

	tables := scout.DefaultTables()
	challenges := scout.NewChallengeHandler(tables, cfg.Scout.ChallengeTimeout, logger)

	waitForManualSolve(page, challenges, logger)

	// A keyword search leaves the profile with normal browsing state,
	// which makes later automated visits look less fresh.
	warmupURL := cfg.TextSearch.SearchURL + "?SearchText=jewelry+wholesale"
	logger.Info("running warmup search", "url", warmupURL)
	if _, err := page.Goto(warmupURL, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   playwright.Float(float64(cfg.Scout.NavTimeout.Milliseconds())),
	}); err != nil {
		logger.Warn("warmup search failed", "error", err)
	}
	time.Sleep(5 * time.Second)

	logger.Info("profile warmup complete", "profile", cfg.Browser.ProfileDir)
}

// waitForManualSolve polls the page until no challenge markers remain or
// the operator window runs out.
func waitForManualSolve(page playwright.Page, challenges *scout.ChallengeHandler, logger *slog.Logger) {
	deadline := time.Now().Add(manualSolveWindow)
	for time.Now().Before(deadline) {
		content, err := page.Content()
		if err != nil {
			logger.Warn("failed to read page content", "error", err)
			return
		}
		if !challenges.Detect(content) {
			logger.Info("no challenge present")
			return
		}
		logger.Info("challenge visible, waiting for manual solve",
			"remaining", time.Until(deadline).Round(time.Second))
		time.Sleep(3 * time.Second)
	}
	logger.Warn("manual solve window expired with challenge still present")
}
