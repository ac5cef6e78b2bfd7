// Package browser manages the Chrome process used for page captures:
// launch or remote connect via Rod, time-based recycling, and scoped tabs
// that are always closed after use.
package browser

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
)

// Config configures the browser manager.
type Config struct {
	// RemoteURL is the WebSocket URL of an external Chrome instance.
	// Empty = launch a local headless Chrome via launcher.
	RemoteURL string

	// RecycleInterval is the maximum lifetime of a Chrome process. Default: 4h.
	RecycleInterval time.Duration

	// NavigateTimeout bounds navigation plus load wait of one tab. Default: 30s.
	NavigateTimeout time.Duration

	// ViewportWidth and ViewportHeight set the emulated window. Default: 1366x768.
	ViewportWidth  int
	ViewportHeight int

	// ResourceBlocking lists resource types to block (fonts, media).
	ResourceBlocking []string

	// Stealth applies go-rod/stealth evasions to each tab. Default: true
	// through DefaultConfig.
	Stealth bool

	// CheckURL, when set, vets the URL a tab ended up on after redirects.
	// A rejected page is closed before anything is captured.
	CheckURL func(ctx context.Context, url string) error

	Logger *slog.Logger
}

// DefaultConfig returns the configuration used when nothing is overridden.
func DefaultConfig() Config {
	c := Config{Stealth: true}
	c.defaults()
	return c
}

func (c *Config) defaults() {
	if c.RecycleInterval <= 0 {
		c.RecycleInterval = 4 * time.Hour
	}
	if c.NavigateTimeout <= 0 {
		c.NavigateTimeout = 30 * time.Second
	}
	if c.ViewportWidth <= 0 {
		c.ViewportWidth = 1366
	}
	if c.ViewportHeight <= 0 {
		c.ViewportHeight = 768
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Manager owns one Chrome process. Start is lazy: the first tab request
// launches Chrome when Start was not called explicitly.
type Manager struct {
	cfg     Config
	mu      sync.RWMutex
	browser *rod.Browser
	lnch    *launcher.Launcher
	startAt time.Time
	closed  bool
	stop    chan struct{}

	// health probes a live browser; recycle replaces it.
	health  func(*rod.Browser) error
	recycle func() error
}

// NewManager creates a browser Manager. Chrome is not started yet.
func NewManager(cfg Config) *Manager {
	cfg.defaults()
	m := &Manager{cfg: cfg, stop: make(chan struct{})}
	m.health = func(b *rod.Browser) error {
		_, err := b.Version()
		return err
	}
	m.recycle = m.Recycle
	return m
}

// Start launches Chrome (or connects to a remote instance) and starts the
// recycle monitor, which runs until Close.
func (m *Manager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return fmt.Errorf("browser: manager is closed")
	}
	if m.browser != nil {
		return nil
	}

	b, err := m.launch()
	if err != nil {
		return err
	}
	m.browser = b
	m.startAt = time.Now()

	go m.monitorLoop()
	return nil
}

// Browser returns the current Rod browser handle, launching Chrome on
// first use.
func (m *Manager) Browser(ctx context.Context) (*rod.Browser, error) {
	m.mu.RLock()
	b, closed := m.browser, m.closed
	m.mu.RUnlock()
	if closed {
		return nil, fmt.Errorf("browser: manager is closed")
	}
	if b != nil {
		return b, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := m.Start(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.browser, nil
}

// Recycle kills Chrome and restarts it. Tabs open on the old process fail
// and their captures are reported as capture errors.
func (m *Manager) Recycle() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return fmt.Errorf("browser: manager is closed")
	}

	log := m.cfg.Logger
	log.Info("browser: recycling", "uptime", time.Since(m.startAt))
	m.cleanup()

	b, err := m.launch()
	if err != nil {
		return fmt.Errorf("browser: relaunch: %w", err)
	}
	m.browser = b
	m.startAt = time.Now()
	log.Info("browser: recycled")
	return nil
}

// Close shuts Chrome down. Further use returns an error.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.stop)
	}
	m.cleanup()
	return nil
}

func (m *Manager) launch() (*rod.Browser, error) {
	log := m.cfg.Logger

	var wsURL string
	if m.cfg.RemoteURL != "" {
		wsURL = m.cfg.RemoteURL
		log.Info("browser: connecting to remote", "url", wsURL)
	} else {
		l := launcher.New().
			Headless(true).
			Set("disable-blink-features", "AutomationControlled").
			Set("hide-scrollbars")

		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("browser: launch: %w", err)
		}
		wsURL = u
		m.lnch = l
		log.Info("browser: launched local chrome", "url", wsURL)
	}

	b := rod.New().ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		return nil, fmt.Errorf("browser: connect: %w", err)
	}
	if err := b.IgnoreCertErrors(true); err != nil {
		log.Warn("browser: ignore cert errors failed", "error", err)
	}
	return b, nil
}

func (m *Manager) cleanup() {
	if m.browser != nil {
		if err := m.browser.Close(); err != nil {
			m.cfg.Logger.Debug("browser: close", "error", err)
		}
		m.browser = nil
	}
	if m.lnch != nil {
		m.lnch.Cleanup()
		m.lnch = nil
	}
}

func (m *Manager) monitorLoop() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			if !m.check() {
				return
			}
		}
	}
}

// check recycles Chrome when it stopped answering or outlived the recycle
// interval. It returns false once the manager is closed.
func (m *Manager) check() bool {
	log := m.cfg.Logger

	m.mu.RLock()
	if m.closed || m.browser == nil {
		m.mu.RUnlock()
		return false
	}
	b, startAt := m.browser, m.startAt
	m.mu.RUnlock()

	var reason string
	if err := m.health(b); err != nil {
		log.Warn("browser: health check failed", "error", err)
		reason = "unhealthy"
	} else if time.Since(startAt) > m.cfg.RecycleInterval {
		reason = "interval"
	}
	if reason == "" {
		return true
	}
	log.Info("browser: recycling", "reason", reason)
	if err := m.recycle(); err != nil {
		log.Error("browser: recycle failed", "error", err)
	}
	return true
}
