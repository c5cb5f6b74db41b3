// Package browser owns the process-wide headless Chromium instance. A single
// persistent-profile context is shared by all searches so that cookies and
// local storage accumulated across sessions keep working in our favor.
package browser

import (
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"
)

// Options configure the shared browser instance.
type Options struct {
	Headless       bool
	ProfileDir     string
	ExecutablePath string
	UserAgent      string
	ViewportWidth  int
	ViewportHeight int
	DefaultTimeout time.Duration
}

// DefaultOptions return a headless desktop-Chrome profile.
func DefaultOptions() *Options {
	return &Options{
		Headless:       true,
		ProfileDir:     ".chrome-profile",
		UserAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
		ViewportWidth:  1366,
		ViewportHeight: 900,
		DefaultTimeout: 30 * time.Second,
	}
}

// session bundles one playwright driver run with its persistent context.
type session struct {
	pw  *playwright.Playwright
	ctx playwright.BrowserContext
}

// alive reports whether the underlying browser process is still reachable.
// The driver can panic on a torn-down connection, so the probe is
// recover-wrapped.
func (s *session) alive() (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
		}
	}()
	if s == nil || s.ctx == nil {
		return false
	}
	b := s.ctx.Browser()
	if b == nil {
		// persistent contexts may report no parent browser; treat the
		// context itself as the liveness signal
		return len(s.ctx.Pages()) >= 0
	}
	return b.IsConnected()
}

type launchFunc func(*Options) (*session, error)

// Manager hands out pages on a lazily launched shared browser. The mutex is
// held across the launch itself so concurrent first callers wait for the
// in-flight launch instead of racing a second browser process into existence.
type Manager struct {
	mu     sync.Mutex
	sess   *session
	opts   *Options
	launch launchFunc
	health func(*session) bool
	logger *slog.Logger
}

// NewManager creates a manager; the browser is not launched until first use.
func NewManager(opts *Options, logger *slog.Logger) *Manager {
	if opts == nil {
		opts = DefaultOptions()
	}
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		opts:   opts,
		logger: logger.With("component", "browser"),
	}
	m.launch = m.launchPersistent
	m.health = (*session).alive
	return m
}

// Warm eagerly launches the browser so the first search does not pay the
// startup cost. Idempotent.
func (m *Manager) Warm() error {
	_, err := m.acquire()
	return err
}

// NewPage opens a fresh page on the shared browser, relaunching it first if
// the previous instance died.
func (m *Manager) NewPage() (playwright.Page, error) {
	s, err := m.acquire()
	if err != nil {
		return nil, err
	}
	page, err := s.ctx.NewPage()
	if err != nil {
		// a dead browser surfaces here; drop the session so the next
		// caller relaunches
		m.invalidate(s)
		return nil, fmt.Errorf("open page: %w", err)
	}
	page.SetDefaultTimeout(float64(m.opts.DefaultTimeout.Milliseconds()))
	return page, nil
}

// Shutdown closes the browser and stops the driver. Idempotent.
func (m *Manager) Shutdown() error {
	m.mu.Lock()
	s := m.sess
	m.sess = nil
	m.mu.Unlock()
	if s == nil {
		return nil
	}
	var firstErr error
	if s.ctx != nil {
		if err := s.ctx.Close(); err != nil {
			firstErr = fmt.Errorf("close browser context: %w", err)
		}
	}
	if s.pw != nil {
		if err := s.pw.Stop(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("stop driver: %w", err)
		}
	}
	m.logger.Info("browser shut down")
	return firstErr
}

func (m *Manager) acquire() (*session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sess != nil {
		if m.health(m.sess) {
			return m.sess, nil
		}
		m.logger.Warn("browser connection lost, relaunching")
		m.closeQuietly(m.sess)
		m.sess = nil
	}
	m.logger.Info("launching browser",
		"profile_dir", m.opts.ProfileDir,
		"headless", m.opts.Headless)
	s, err := m.launch(m.opts)
	if err != nil {
		return nil, fmt.Errorf("browser launch: %w", err)
	}
	m.sess = s
	return s, nil
}

func (m *Manager) invalidate(s *session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sess == s {
		m.sess = nil
		m.logger.Warn("browser session invalidated")
	}
}

func (m *Manager) closeQuietly(s *session) {
	defer func() { _ = recover() }()
	if s.ctx != nil {
		_ = s.ctx.Close()
	}
	if s.pw != nil {
		_ = s.pw.Stop()
	}
}

func (m *Manager) launchPersistent(opts *Options) (*session, error) {
	if err := os.MkdirAll(opts.ProfileDir, 0o755); err != nil {
		return nil, fmt.Errorf("create profile dir: %w", err)
	}
	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("start playwright driver: %w", err)
	}

	launchOpts := playwright.BrowserTypeLaunchPersistentContextOptions{
		Headless:  playwright.Bool(opts.Headless),
		UserAgent: playwright.String(opts.UserAgent),
		Viewport: &playwright.Size{
			Width:  opts.ViewportWidth,
			Height: opts.ViewportHeight,
		},
		Args: []string{
			"--no-sandbox",
			"--disable-setuid-sandbox",
			"--disable-blink-features=AutomationControlled",
			"--disable-gpu",
			"--disable-dev-shm-usage",
			"--use-fake-ui-for-media-stream",
			fmt.Sprintf("--window-size=%d,%d", opts.ViewportWidth, opts.ViewportHeight),
		},
		IgnoreDefaultArgs: []string{"--enable-automation"},
	}
	if opts.ExecutablePath != "" {
		launchOpts.ExecutablePath = playwright.String(opts.ExecutablePath)
	}

	ctx, err := pw.Chromium.LaunchPersistentContext(opts.ProfileDir, launchOpts)
	if err != nil {
		_ = pw.Stop()
		return nil, fmt.Errorf("launch persistent context: %w", err)
	}
	s := &session{pw: pw, ctx: ctx}
	m.watchSession(s)
	return s, nil
}

// watchSession drops the session the moment the driver reports the context
// closed or the browser disconnected, so a crash between requests is noticed
// immediately instead of at the next acquire. Handlers hop to a fresh
// goroutine: the driver dispatches events from its transport loop, which
// must never block on the manager mutex.
func (m *Manager) watchSession(s *session) {
	if s == nil || s.ctx == nil {
		return
	}
	drop := func(reason string) {
		m.logger.Warn("browser session lost", "reason", reason)
		m.invalidate(s)
	}
	s.ctx.OnClose(func(playwright.BrowserContext) {
		go drop("context closed")
	})
	if b := s.ctx.Browser(); b != nil {
		b.OnDisconnected(func(playwright.Browser) {
			go drop("browser disconnected")
		})
	}
}
