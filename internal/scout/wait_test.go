package scout

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type scriptedEvaluator struct {
	results []interface{}
	errs    []error
	calls   int
}

func (s *scriptedEvaluator) Evaluate(string, ...interface{}) (interface{}, error) {
	i := s.calls
	s.calls++
	if i >= len(s.results) {
		i = len(s.results) - 1
	}
	var err error
	if i < len(s.errs) {
		err = s.errs[i]
	}
	return s.results[i], err
}

func newTestWaiter(t *testing.T, timeout time.Duration) *ResultWaiter {
	t.Helper()
	w := NewResultWaiter(DefaultTables().ResultMarkers, timeout, slog.Default())
	w.poll = time.Millisecond
	w.sleep = func(ctx context.Context, _ time.Duration) error { return ctx.Err() }
	w.settle = func(context.Context) error { return nil }
	return w
}

func TestAwait_ImmediateHit(t *testing.T) {
	w := newTestWaiter(t, time.Minute)
	page := &scriptedEvaluator{results: []interface{}{true}}

	outcome := w.Await(context.Background(), page)

	assert.Equal(t, OutcomeClear, outcome)
	assert.Equal(t, 1, page.calls)
}

func TestAwait_HitAfterPolling(t *testing.T) {
	w := newTestWaiter(t, time.Minute)
	page := &scriptedEvaluator{results: []interface{}{false, false, true}}

	outcome := w.Await(context.Background(), page)

	assert.Equal(t, OutcomeClear, outcome)
	assert.Equal(t, 3, page.calls)
}

func TestAwait_TimeoutDegrades(t *testing.T) {
	w := newTestWaiter(t, 10*time.Millisecond)
	w.sleep = func(ctx context.Context, d time.Duration) error {
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			return nil
		}
	}
	page := &scriptedEvaluator{results: []interface{}{false}}

	outcome := w.Await(context.Background(), page)

	assert.Equal(t, OutcomeDegraded, outcome)
	assert.Greater(t, page.calls, 1, "timeout must come from polling, not a single probe")
}

func TestAwait_EvaluateErrorsAreAbsorbed(t *testing.T) {
	w := newTestWaiter(t, time.Minute)
	page := &scriptedEvaluator{
		results: []interface{}{nil, true},
		errs:    []error{errors.New("execution context destroyed")},
	}

	outcome := w.Await(context.Background(), page)
	assert.Equal(t, OutcomeClear, outcome)
}

func TestAwait_CancelledContext(t *testing.T) {
	w := newTestWaiter(t, time.Minute)
	w.sleep = func(ctx context.Context, _ time.Duration) error { return ctx.Err() }

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	page := &scriptedEvaluator{results: []interface{}{false}}

	outcome := w.Await(ctx, page)
	assert.Equal(t, OutcomeDegraded, outcome)
}

func TestMarkerProbeScript(t *testing.T) {
	script := markerProbeScript([]string{"Chat now", "Min. order"})

	assert.Contains(t, script, `"Chat now"`)
	assert.Contains(t, script, "document.body")
	assert.Contains(t, script, "innerText")
}
