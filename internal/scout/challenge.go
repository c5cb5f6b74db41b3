package scout

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sourcingdev/alibaba-visual-scout/internal/humanize"
)

// Outcome reports how a best-effort pipeline step ended. Degraded means the
// step hit its ceiling and the pipeline continues anyway; callers log it but
// never abort on it.
type Outcome int

const (
	// OutcomeClear means no intervention was needed.
	OutcomeClear Outcome = iota
	// OutcomeSolved means an obstacle was detected and cleared.
	OutcomeSolved
	// OutcomeDegraded means the obstacle may still be present.
	OutcomeDegraded
)

func (o Outcome) String() string {
	switch o {
	case OutcomeClear:
		return "clear"
	case OutcomeSolved:
		return "solved"
	default:
		return "degraded"
	}
}

// slideDistance is how far the handle is dragged. The track is narrower than
// this on every observed variant; overshooting is harmless, undershooting
// fails the check.
const slideDistance = 300

// challengePage is the page surface the handler reads. playwright.Page
// satisfies it.
type challengePage interface {
	Content() (string, error)
	Evaluate(expression string, arg ...interface{}) (interface{}, error)
}

// ChallengeHandler detects and best-effort clears slide challenges.
type ChallengeHandler struct {
	tables  Tables
	ceiling time.Duration
	poll    time.Duration
	logger  *slog.Logger
	drag    func(context.Context, humanize.Mouse, humanize.Point, float64) error
	sleep   func(context.Context, time.Duration) error
}

// NewChallengeHandler builds a handler with the given manual-solve ceiling.
func NewChallengeHandler(tables Tables, ceiling time.Duration, logger *slog.Logger) *ChallengeHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChallengeHandler{
		tables:  tables,
		ceiling: ceiling,
		poll:    2 * time.Second,
		logger:  logger.With("component", "challenge"),
		drag: func(ctx context.Context, m humanize.Mouse, start humanize.Point, distance float64) error {
			return humanize.Drag(ctx, m, start, distance, nil)
		},
		sleep: func(ctx context.Context, d time.Duration) error {
			return humanize.Delay(ctx, d, d+time.Second)
		},
	}
}

// Detect reports whether the content carries any known challenge marker.
// Pure content inspection; no page interaction.
func (h *ChallengeHandler) Detect(content string) bool {
	return containsAny(content, h.tables.ChallengeMarkers)
}

// Resolve checks the page for a challenge and tries to clear it: first an
// automated slide, then a bounded wait for a manual solve in headful runs.
// It never blocks past the ceiling and never fails the pipeline; the worst
// result is OutcomeDegraded.
func (h *ChallengeHandler) Resolve(ctx context.Context, page challengePage, mouse humanize.Mouse) (Outcome, error) {
	content, err := page.Content()
	if err != nil {
		return OutcomeDegraded, fmt.Errorf("read page content: %w", err)
	}
	if !h.Detect(content) {
		return OutcomeClear, nil
	}

	h.logger.Warn("challenge detected, attempting slide solve")
	if h.trySlide(ctx, page, mouse) {
		h.logger.Info("slide challenge solved")
		if err := h.sleep(ctx, 3*time.Second); err != nil {
			return OutcomeSolved, err
		}
		return OutcomeSolved, nil
	}

	h.logger.Warn("automated solve failed, waiting for manual solve", "ceiling", h.ceiling)
	deadline := time.Now().Add(h.ceiling)
	for time.Now().Before(deadline) {
		if err := h.sleep(ctx, h.poll); err != nil {
			return OutcomeDegraded, err
		}
		content, err := page.Content()
		if err != nil {
			continue
		}
		if h.cleared(content) {
			h.logger.Info("challenge cleared")
			return OutcomeSolved, nil
		}
	}
	h.logger.Warn("challenge ceiling reached, proceeding anyway")
	return OutcomeDegraded, nil
}

// cleared re-checks only the residual markers; the widget's container markup
// survives a successful solve.
func (h *ChallengeHandler) cleared(content string) bool {
	return !containsAny(content, h.tables.ResidualMarkers)
}

func (h *ChallengeHandler) trySlide(ctx context.Context, page challengePage, mouse humanize.Mouse) bool {
	b, ok := h.findSlider(page)
	if !ok {
		h.logger.Info("no slider handle found")
		return false
	}

	start := humanize.Point{X: b.x + b.w/2, Y: b.y + b.h/2}
	h.logger.Debug("dragging slider", "x", start.X, "y", start.Y, "distance", slideDistance)
	if err := h.drag(ctx, mouse, start, slideDistance); err != nil {
		h.logger.Warn("slide drag failed", "error", err)
		return false
	}
	if err := h.sleep(ctx, time.Second); err != nil {
		return false
	}

	content, err := page.Content()
	if err != nil {
		return false
	}
	return h.cleared(content)
}

type sliderBox struct {
	x, y, w, h float64
}

// findSlider probes in-page for the slider handle: known selectors first,
// then a heuristic scan for small drag-styled pointer-cursor elements.
func (h *ChallengeHandler) findSlider(page challengePage) (sliderBox, bool) {
	res, err := page.Evaluate(sliderProbeScript(h.tables.SliderSelectors))
	if err != nil || res == nil {
		return sliderBox{}, false
	}
	m, ok := res.(map[string]interface{})
	if !ok {
		return sliderBox{}, false
	}
	b := sliderBox{
		x: toFloat(m["x"]),
		y: toFloat(m["y"]),
		w: toFloat(m["width"]),
		h: toFloat(m["height"]),
	}
	return b, b.w > 0
}

func sliderProbeScript(selectors []string) string {
	sels, _ := json.Marshal(selectors)
	return fmt.Sprintf(`(() => {
  const rectOf = (el) => {
    const r = el.getBoundingClientRect();
    return { x: r.x, y: r.y, width: r.width, height: r.height };
  };
  for (const sel of %s) {
    const el = document.querySelector(sel);
    if (el) {
      const r = rectOf(el);
      if (r.width > 0) return r;
    }
  }
  for (const el of document.querySelectorAll('span, div, button')) {
    const cls = (el.className || '').toString().toLowerCase();
    const style = window.getComputedStyle(el);
    if ((cls.includes('slide') || cls.includes('drag') || cls.includes('btn')) &&
        el.offsetWidth > 20 && el.offsetWidth < 80 &&
        el.offsetHeight > 20 && el.offsetHeight < 60 &&
        style.cursor === 'pointer') {
      return rectOf(el);
    }
  }
  return null;
})()`, sels)
}

func toFloat(v interface{}) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	default:
		return 0
	}
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
