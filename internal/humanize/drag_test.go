package humanize

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/playwright-community/playwright-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEaseOutCubic(t *testing.T) {
	tests := []struct {
		name string
		t    float64
		want float64
	}{
		{"start", 0, 0},
		{"quarter", 0.25, 1 - math.Pow(0.75, 3)},
		{"half", 0.5, 0.875},
		{"end", 1, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, EaseOutCubic(tt.t), 1e-9)
		})
	}
}

func TestEaseOutCubic_Decelerates(t *testing.T) {
	// step size must shrink monotonically across equal t increments
	prev := EaseOutCubic(0.1) - EaseOutCubic(0)
	for i := 1; i < 10; i++ {
		step := EaseOutCubic(float64(i+1)/10) - EaseOutCubic(float64(i)/10)
		assert.Less(t, step, prev, "step %d should be smaller than the previous one", i)
		prev = step
	}
}

func TestTrajectory_NoJitter(t *testing.T) {
	start := Point{X: 100, Y: 200}
	noJitter := func() float64 { return 0 }

	pts := Trajectory(start, 300, 30, noJitter)

	require.Len(t, pts, 30)
	assert.InDelta(t, 400, pts[len(pts)-1].X, 1e-9, "final point lands exactly at start+distance")
	for i, pt := range pts {
		assert.Equal(t, 200.0, pt.Y)
		if i > 0 {
			assert.GreaterOrEqual(t, pt.X, pts[i-1].X, "x must be monotonically non-decreasing")
		}
	}
}

func TestTrajectory_JitterStaysBounded(t *testing.T) {
	rnd := rand.New(rand.NewSource(42))
	jitter := func() float64 { return (rnd.Float64()*2 - 1) * 1.0 }

	pts := Trajectory(Point{X: 0, Y: 50}, 300, 35, jitter)

	for _, pt := range pts {
		assert.InDelta(t, 50, pt.Y, 1.0)
	}
}

type recordedEvent struct {
	kind string
	x, y float64
}

type fakeMouse struct {
	events []recordedEvent
}

func (m *fakeMouse) Move(x, y float64, _ ...playwright.MouseMoveOptions) error {
	m.events = append(m.events, recordedEvent{"move", x, y})
	return nil
}

func (m *fakeMouse) Down(_ ...playwright.MouseDownOptions) error {
	m.events = append(m.events, recordedEvent{"down", 0, 0})
	return nil
}

func (m *fakeMouse) Up(_ ...playwright.MouseUpOptions) error {
	m.events = append(m.events, recordedEvent{"up", 0, 0})
	return nil
}

func instantOpts(steps int) *Options {
	return &Options{
		MinSteps: steps,
		MaxSteps: steps,
		JitterPx: 0,
		Rand:     rand.New(rand.NewSource(1)),
		Sleep:    func(context.Context, time.Duration) error { return nil },
	}
}

func TestDrag_EventOrder(t *testing.T) {
	m := &fakeMouse{}

	err := Drag(context.Background(), m, Point{X: 50, Y: 300}, 300, instantOpts(28))
	require.NoError(t, err)

	// initial move, down, 28 trajectory moves, up
	require.Len(t, m.events, 31)
	assert.Equal(t, "move", m.events[0].kind)
	assert.Equal(t, 50.0, m.events[0].x)
	assert.Equal(t, "down", m.events[1].kind)
	assert.Equal(t, "up", m.events[len(m.events)-1].kind)

	last := m.events[len(m.events)-2]
	assert.Equal(t, "move", last.kind)
	assert.InDelta(t, 350, last.x, 1e-9)
}

func TestDrag_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	m := &fakeMouse{}
	opts := instantOpts(25)
	opts.Sleep = sleepCtx

	err := Drag(ctx, m, Point{X: 0, Y: 0}, 300, opts)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDelay_BoundedAndConcurrencySafe(t *testing.T) {
	ctx := context.Background()

	start := time.Now()
	require.NoError(t, Delay(ctx, 0, time.Millisecond))
	assert.Less(t, time.Since(start), 100*time.Millisecond)

	// Delay runs on every in-flight search at once; exercise it from
	// parallel goroutines so the race detector covers the shared source.
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_ = Delay(ctx, 0, time.Microsecond)
			}
		}()
	}
	wg.Wait()
}

func TestDelay_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Delay(ctx, time.Second, 2*time.Second)
	assert.ErrorIs(t, err, context.Canceled)
}
