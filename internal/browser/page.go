package browser

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/playwright-community/playwright-go"
)

// blockedURLFragments are request URL substrings dropped before they hit the
// network. Analytics and ad beacons add weight and give the target site more
// signals to fingerprint.
var blockedURLFragments = []string{
	"google-analytics",
	"doubleclick",
	"facebook.com",
	"adsystem",
	"tracking",
}

// blockedResourceTypes are never needed for extraction.
var blockedResourceTypes = map[string]bool{
	"font": true,
}

// stealthScript hides the most common automation tell before any page script
// runs.
const stealthScript = `
Object.defineProperty(navigator, 'webdriver', { get: () => false });
window.chrome = window.chrome || { runtime: {} };
`

// ConfigurePage applies request filtering, the stealth init script and dialog
// dismissal to a fresh page. Must be called before the first navigation.
func ConfigurePage(page playwright.Page, logger *slog.Logger) error {
	err := page.Route("**/*", func(route playwright.Route) {
		req := route.Request()
		url := strings.ToLower(req.URL())
		if blockedResourceTypes[req.ResourceType()] || containsAny(url, blockedURLFragments) {
			_ = route.Abort()
			return
		}
		_ = route.Continue()
	})
	if err != nil {
		return fmt.Errorf("install route filter: %w", err)
	}

	script := stealthScript
	if err := page.AddInitScript(playwright.Script{Content: &script}); err != nil {
		return fmt.Errorf("add init script: %w", err)
	}

	// modals (cookie prompts aside, the site raises real window dialogs on
	// some flows) would otherwise hang the pipeline
	page.OnDialog(func(d playwright.Dialog) {
		logger.Debug("dismissing page dialog", "message", d.Message())
		_ = d.Dismiss()
	})
	return nil
}

func containsAny(s string, fragments []string) bool {
	for _, f := range fragments {
		if strings.Contains(s, f) {
			return true
		}
	}
	return false
}
