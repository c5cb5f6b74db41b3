// Package humanize generates pointer input that resembles a person rather
// than a script: eased trajectories, positional jitter and irregular timing.
package humanize

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/playwright-community/playwright-go"
)

// Mouse is the pointer surface a drag needs. playwright.Mouse satisfies it.
type Mouse interface {
	Move(x, y float64, options ...playwright.MouseMoveOptions) error
	Down(options ...playwright.MouseDownOptions) error
	Up(options ...playwright.MouseUpOptions) error
}

// Point is a viewport coordinate.
type Point struct {
	X float64
	Y float64
}

// Options tune trajectory generation. Rand and Sleep are injectable so tests
// can run deterministic, zero-delay drags.
type Options struct {
	MinSteps     int
	MaxSteps     int
	JitterPx     float64
	StepDelayMin time.Duration
	StepDelayMax time.Duration
	Rand         *rand.Rand
	Sleep        func(context.Context, time.Duration) error
}

// DefaultOptions match observed human slide behavior closely enough to pass
// trajectory heuristics: fast start, decelerating finish, slight hand tremor.
func DefaultOptions() *Options {
	return &Options{
		MinSteps:     25,
		MaxSteps:     35,
		JitterPx:     1,
		StepDelayMin: 10 * time.Millisecond,
		StepDelayMax: 30 * time.Millisecond,
	}
}

// EaseOutCubic maps progress t in [0,1] to an eased position fraction. The
// derivative is highest at t=0 and approaches zero at t=1, so the pointer
// decelerates into the target the way a wrist movement does.
func EaseOutCubic(t float64) float64 {
	return 1 - math.Pow(1-t, 3)
}

// Trajectory returns the intermediate pointer positions for a horizontal drag
// of the given distance, starting after (not including) the start point. The
// jitter func supplies per-step vertical displacement.
func Trajectory(start Point, distance float64, steps int, jitter func() float64) []Point {
	pts := make([]Point, 0, steps)
	for i := 1; i <= steps; i++ {
		t := float64(i) / float64(steps)
		pts = append(pts, Point{
			X: start.X + distance*EaseOutCubic(t),
			Y: start.Y + jitter(),
		})
	}
	return pts
}

// Drag moves to start, presses, follows an eased jittered trajectory for
// distance pixels and releases. The button is released on the success path
// only; a mid-drag transport error aborts immediately since the page is
// already in an unknown state.
func Drag(ctx context.Context, m Mouse, start Point, distance float64, opts *Options) error {
	if opts == nil {
		opts = DefaultOptions()
	}
	rnd := opts.Rand
	if rnd == nil {
		rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	sleep := opts.Sleep
	if sleep == nil {
		sleep = sleepCtx
	}

	steps := opts.MinSteps
	if opts.MaxSteps > opts.MinSteps {
		steps += rnd.Intn(opts.MaxSteps - opts.MinSteps + 1)
	}
	jitter := func() float64 {
		if opts.JitterPx == 0 {
			return 0
		}
		return (rnd.Float64()*2 - 1) * opts.JitterPx
	}

	if err := m.Move(start.X, start.Y); err != nil {
		return err
	}
	if err := sleep(ctx, spread(rnd, 200*time.Millisecond, 400*time.Millisecond)); err != nil {
		return err
	}
	if err := m.Down(); err != nil {
		return err
	}
	if err := sleep(ctx, spread(rnd, 100*time.Millisecond, 200*time.Millisecond)); err != nil {
		return err
	}
	for _, pt := range Trajectory(start, distance, steps, jitter) {
		if err := m.Move(pt.X, pt.Y); err != nil {
			return err
		}
		if err := sleep(ctx, spread(rnd, opts.StepDelayMin, opts.StepDelayMax)); err != nil {
			return err
		}
	}
	if err := sleep(ctx, spread(rnd, 100*time.Millisecond, 200*time.Millisecond)); err != nil {
		return err
	}
	return m.Up()
}

// Delay sleeps for a random duration in [min, max], honoring context
// cancellation. Used between page interactions to avoid machine-regular
// timing. Safe for concurrent use: it draws from the locked top-level
// rand source, since delays run on every in-flight search at once.
func Delay(ctx context.Context, min, max time.Duration) error {
	d := min
	if max > min {
		d += time.Duration(rand.Int63n(int64(max - min)))
	}
	return sleepCtx(ctx, d)
}

func spread(rnd *rand.Rand, min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(rnd.Int63n(int64(max-min)))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
