package scout

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/sourcingdev/alibaba-visual-scout/internal/humanize"
)

// evaluator is the page surface the waiter needs.
type evaluator interface {
	Evaluate(expression string, arg ...interface{}) (interface{}, error)
}

// ResultWaiter waits for result-card content to appear after an upload.
// It polls rendered text for phrases that sit on every product card instead
// of waiting for network idle: the results page holds connections open
// indefinitely, so a network-based wait always hits its timeout.
type ResultWaiter struct {
	markers []string
	timeout time.Duration
	poll    time.Duration
	logger  *slog.Logger
	sleep   func(context.Context, time.Duration) error
	settle  func(context.Context) error
}

// NewResultWaiter builds a waiter over the given marker phrases.
func NewResultWaiter(markers []string, timeout time.Duration, logger *slog.Logger) *ResultWaiter {
	if logger == nil {
		logger = slog.Default()
	}
	return &ResultWaiter{
		markers: markers,
		timeout: timeout,
		poll:    500 * time.Millisecond,
		logger:  logger.With("component", "wait"),
		sleep: func(ctx context.Context, d time.Duration) error {
			t := time.NewTimer(d)
			defer t.Stop()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-t.C:
				return nil
			}
		},
		// brief pause so lazy-loaded card images land before the snapshot
		settle: func(ctx context.Context) error {
			return humanize.Delay(ctx, 800*time.Millisecond, 1200*time.Millisecond)
		},
	}
}

// Await blocks until a result marker shows up in the page text or the
// timeout passes. Timeout is not an error; the caller parses whatever is
// there and OutcomeDegraded tells it the page may be incomplete.
func (w *ResultWaiter) Await(ctx context.Context, page evaluator) Outcome {
	script := markerProbeScript(w.markers)
	deadline := time.Now().Add(w.timeout)
	for {
		res, err := page.Evaluate(script)
		if err == nil {
			if hit, ok := res.(bool); ok && hit {
				w.logger.Info("result content detected")
				_ = w.settle(ctx)
				return OutcomeClear
			}
		}
		if time.Now().After(deadline) {
			break
		}
		if err := w.sleep(ctx, w.poll); err != nil {
			return OutcomeDegraded
		}
	}
	w.logger.Warn("result wait timed out, parsing anyway", "timeout", w.timeout)
	_ = w.settle(ctx)
	return OutcomeDegraded
}

func markerProbeScript(markers []string) string {
	m, _ := json.Marshal(markers)
	return fmt.Sprintf(`(() => {
  const text = document.body ? (document.body.innerText || '') : '';
  return %s.some(marker => text.includes(marker));
})()`, m)
}
