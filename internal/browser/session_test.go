package browser

import (
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) (*Manager, *int) {
	t.Helper()
	launches := 0
	m := NewManager(nil, slog.Default())
	m.launch = func(*Options) (*session, error) {
		launches++
		return &session{}, nil
	}
	m.health = func(*session) bool { return true }
	return m, &launches
}

func TestManager_LaunchesOnce(t *testing.T) {
	m, launches := newTestManager(t)

	s1, err := m.acquire()
	require.NoError(t, err)
	s2, err := m.acquire()
	require.NoError(t, err)

	assert.Same(t, s1, s2)
	assert.Equal(t, 1, *launches)
}

func TestManager_ConcurrentFirstUseSharesOneLaunch(t *testing.T) {
	m, launches := newTestManager(t)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.acquire()
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, *launches)
}

func TestManager_RelaunchesDeadSession(t *testing.T) {
	m, launches := newTestManager(t)

	s1, err := m.acquire()
	require.NoError(t, err)
	require.Equal(t, 1, *launches)

	m.health = func(*session) bool { return false }
	s2, err := m.acquire()
	require.NoError(t, err)

	assert.NotSame(t, s1, s2)
	assert.Equal(t, 2, *launches)
}

func TestManager_InvalidateClearsOnlyMatchingSession(t *testing.T) {
	m, launches := newTestManager(t)

	s1, err := m.acquire()
	require.NoError(t, err)

	// a stale invalidation from an already replaced session is a no-op
	m.invalidate(&session{})
	s2, err := m.acquire()
	require.NoError(t, err)
	assert.Same(t, s1, s2)
	assert.Equal(t, 1, *launches)

	m.invalidate(s1)
	_, err = m.acquire()
	require.NoError(t, err)
	assert.Equal(t, 2, *launches)
}

func TestManager_DisconnectEventForcesRelaunch(t *testing.T) {
	m, launches := newTestManager(t)

	s1, err := m.acquire()
	require.NoError(t, err)
	require.Equal(t, 1, *launches)

	// what the watchSession close/disconnect handlers run, without a
	// live driver behind them
	m.invalidate(s1)

	s2, err := m.acquire()
	require.NoError(t, err)
	assert.NotSame(t, s1, s2)
	assert.Equal(t, 2, *launches)
}

func TestManager_WatchSessionNilSafe(t *testing.T) {
	m, _ := newTestManager(t)

	// sessions without a live context must not register handlers or panic
	m.watchSession(nil)
	m.watchSession(&session{})
}

func TestManager_LaunchErrorIsNotCached(t *testing.T) {
	m := NewManager(nil, slog.Default())
	calls := 0
	m.launch = func(*Options) (*session, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("driver missing")
		}
		return &session{}, nil
	}
	m.health = func(*session) bool { return true }

	_, err := m.acquire()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "browser launch")

	_, err = m.acquire()
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestManager_ShutdownIdempotent(t *testing.T) {
	m, _ := newTestManager(t)

	_, err := m.acquire()
	require.NoError(t, err)

	require.NoError(t, m.Shutdown())
	require.NoError(t, m.Shutdown())
}

func TestSessionAlive_NilSafe(t *testing.T) {
	var s *session
	assert.False(t, s.alive())
	assert.False(t, (&session{}).alive())
}

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()
	assert.True(t, opts.Headless)
	assert.Equal(t, 1366, opts.ViewportWidth)
	assert.Equal(t, 900, opts.ViewportHeight)
	assert.Contains(t, opts.UserAgent, "Chrome/131")
}
