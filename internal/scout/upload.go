package scout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/sourcingdev/alibaba-visual-scout/internal/humanize"
)

// ErrUploadUnavailable means no file input could be produced by any strategy.
// This is the pipeline's fatal case: with no upload target there is no
// search.
var ErrUploadUnavailable = errors.New("no upload affordance could be triggered")

// UploadTrigger drives the page until a file input is available.
type UploadTrigger struct {
	tables Tables
	// inputWait bounds the wait for the upload modal's input after a
	// camera click.
	inputWait time.Duration
	// screenshotPath, when set, receives a full-page capture on failure.
	screenshotPath string
	logger         *slog.Logger
}

// NewUploadTrigger builds an upload trigger. screenshotPath may be empty to
// disable the diagnostic capture.
func NewUploadTrigger(tables Tables, inputWait time.Duration, screenshotPath string, logger *slog.Logger) *UploadTrigger {
	if logger == nil {
		logger = slog.Default()
	}
	return &UploadTrigger{
		tables:         tables,
		inputWait:      inputWait,
		screenshotPath: screenshotPath,
		logger:         logger.With("component", "upload"),
	}
}

// EnsureFileInput runs the affordance cascade: direct input lookup, camera
// click, alternate page layout. afterNav is invoked after a fallback
// navigation so the caller can re-run challenge handling on the fresh page.
// On total failure it captures a diagnostic screenshot and returns
// ErrUploadUnavailable.
func (u *UploadTrigger) EnsureFileInput(ctx context.Context, page playwright.Page, altURL string, afterNav func(context.Context)) (playwright.ElementHandle, error) {
	if input := u.locateFileInput(page); input != nil {
		return input, nil
	}

	if input := u.clickAndLocate(ctx, page); input != nil {
		return input, nil
	}

	if altURL != "" {
		u.logger.Warn("no upload affordance on current layout, trying alternate entry", "url", altURL)
		_, err := page.Goto(altURL, playwright.PageGotoOptions{
			WaitUntil: playwright.WaitUntilStateDomcontentloaded,
			Timeout:   playwright.Float(30000),
		})
		if err != nil {
			u.logger.Warn("alternate entry navigation failed", "error", err)
		} else {
			if afterNav != nil {
				afterNav(ctx)
			}
			if input := u.clickAndLocate(ctx, page); input != nil {
				return input, nil
			}
		}
	}

	u.captureFailure(page)
	return nil, ErrUploadUnavailable
}

// locateFileInput looks for an existing file input: known selectors, then
// same-origin iframes, then a brute-force scan for anything upload-shaped.
func (u *UploadTrigger) locateFileInput(page playwright.Page) playwright.ElementHandle {
	for _, sel := range u.tables.FileInputSelectors {
		el, err := page.QuerySelector(sel)
		if err != nil {
			continue
		}
		if el != nil {
			u.logger.Debug("file input located", "selector", sel)
			return el
		}
	}

	for _, frame := range page.Frames() {
		el, err := frame.QuerySelector(`input[type="file"]`)
		if err != nil {
			// cross-origin frames refuse access
			continue
		}
		if el != nil {
			u.logger.Debug("file input located in frame", "url", frame.URL())
			return el
		}
	}

	handle, err := page.EvaluateHandle(bruteForceInputScript)
	if err != nil || handle == nil {
		return nil
	}
	el := handle.AsElement()
	if el != nil {
		u.logger.Debug("file input located via brute-force scan")
	}
	return el
}

// clickAndLocate clicks the camera affordance and re-probes for the input
// the resulting modal should contain. Two rounds; the first click sometimes
// only focuses the search bar.
func (u *UploadTrigger) clickAndLocate(ctx context.Context, page playwright.Page) playwright.ElementHandle {
	for attempt := 0; attempt < 2; attempt++ {
		if u.triggerAffordance(page) {
			_, _ = page.WaitForSelector(`input[type="file"]`, playwright.PageWaitForSelectorOptions{
				State:   playwright.WaitForSelectorStateAttached,
				Timeout: playwright.Float(float64(u.inputWait.Milliseconds())),
			})
			if el := u.locateFileInput(page); el != nil {
				return el
			}
		}
		if err := humanize.Delay(ctx, time.Second, 2*time.Second); err != nil {
			return nil
		}
	}
	return nil
}

// triggerAffordance clicks the first visible camera-icon candidate, falling
// back to a coordinate probe just inside the search bar's right edge where
// the icon lives on every layout variant.
func (u *UploadTrigger) triggerAffordance(page playwright.Page) bool {
	for _, sel := range u.tables.CameraSelectors {
		loc := page.Locator(sel).First()
		count, err := loc.Count()
		if err != nil || count == 0 {
			continue
		}
		box, err := loc.BoundingBox()
		if err != nil || box == nil || box.Width <= 2 || box.Height <= 2 {
			continue
		}
		_ = loc.ScrollIntoViewIfNeeded()
		if err := loc.Click(); err != nil {
			u.logger.Debug("camera candidate click failed", "selector", sel, "error", err)
			continue
		}
		u.logger.Debug("camera icon clicked", "selector", sel)
		return true
	}

	res, err := page.Evaluate(coordinateFallbackScript(u.tables.SearchInputSelector))
	if err != nil {
		return false
	}
	clicked, _ := res.(bool)
	if clicked {
		u.logger.Debug("camera triggered via coordinate fallback")
	}
	return clicked
}

func (u *UploadTrigger) captureFailure(page playwright.Page) {
	if u.screenshotPath == "" {
		return
	}
	_, err := page.Screenshot(playwright.PageScreenshotOptions{
		Path: playwright.String(u.screenshotPath),
	})
	if err != nil {
		u.logger.Error("diagnostic screenshot failed", "error", err)
		return
	}
	u.logger.Error("upload affordance missing, diagnostic screenshot captured", "path", u.screenshotPath)
}

const bruteForceInputScript = `(() => {
  const inputs = Array.from(document.querySelectorAll('input[type="file"]'));
  if (inputs.length > 0) return inputs[0];
  return Array.from(document.querySelectorAll('input')).find(i =>
    (i.getAttribute('accept') || '').includes('image') ||
    (i.id || '').includes('upload') ||
    (i.className || '').includes('upload')
  ) || null;
})()`

func coordinateFallbackScript(searchInputSelector string) string {
	return fmt.Sprintf(`(() => {
  const bar = document.querySelector(%q) || document.querySelector('.ui-searchbar-main');
  if (!bar) return false;
  const rect = bar.getBoundingClientRect();
  const stack = document.elementsFromPoint(rect.right - 10, rect.top + rect.height / 2);
  for (const el of stack) {
    if (el !== bar && (el.tagName === 'DIV' || el.tagName === 'SPAN' || el.tagName === 'I')) {
      el.click();
      return true;
    }
  }
  return false;
})()`, searchInputSelector)
}
