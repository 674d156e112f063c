package browser

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/ahrdadan/verq/internal/harness"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// Options configures the browser manager.
type Options struct {
	// BinPath is an explicit Chromium binary. Empty lets rod resolve
	// (and download) one.
	BinPath string
	// RemoteURL attaches to an already-running CDP endpoint instead of
	// launching a local Chromium.
	RemoteURL string
	// Headed disables headless mode for local debugging.
	Headed bool
	// WindowWidth/WindowHeight size the browser viewport.
	WindowWidth  int
	WindowHeight int
}

// Manager owns the Chromium instance the harness drives. It launches a
// local headless browser or attaches to a remote CDP endpoint, and hands
// out pages wrapped as harness targets.
type Manager struct {
	opts      Options
	mu        sync.Mutex
	launcher  *launcher.Launcher
	browser   *rod.Browser
	wsURL     string
	isRunning bool
}

// NewManager creates a new browser manager.
func NewManager(opts Options) *Manager {
	if opts.WindowWidth <= 0 {
		opts.WindowWidth = 1280
	}
	if opts.WindowHeight <= 0 {
		opts.WindowHeight = 900
	}
	return &Manager{opts: opts}
}

// Start launches or attaches to the browser and connects via CDP.
func (m *Manager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.isRunning {
		return nil
	}

	if m.opts.RemoteURL != "" {
		wsURL, err := launcher.ResolveURL(m.opts.RemoteURL)
		if err != nil {
			return fmt.Errorf("failed to resolve CDP endpoint %s: %w", m.opts.RemoteURL, err)
		}

		browser := rod.New().ControlURL(wsURL)
		if err := browser.Connect(); err != nil {
			return fmt.Errorf("failed to connect to browser at %s: %w", wsURL, err)
		}

		m.browser = browser
		m.wsURL = wsURL
		m.isRunning = true
		log.Printf("Attached to browser at %s", wsURL)
		return nil
	}

	l := launcher.New().Headless(!m.opts.Headed)
	if m.opts.BinPath != "" {
		l.Bin(m.opts.BinPath)
	}

	wsURL, err := l.Launch()
	if err != nil {
		return fmt.Errorf("failed to launch browser: %w", err)
	}

	browser := rod.New().ControlURL(wsURL)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return fmt.Errorf("failed to connect to browser: %w", err)
	}

	m.launcher = l
	m.browser = browser
	m.wsURL = wsURL
	m.isRunning = true

	log.Printf("Browser started with endpoint %s", wsURL)
	return nil
}

// Stop releases the browser. For a launched browser the process is killed;
// for a remote one only the connection is closed. Safe to call when not
// running.
func (m *Manager) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.isRunning {
		return nil
	}

	if m.browser != nil {
		if err := m.browser.Close(); err != nil {
			log.Printf("Warning: failed to close browser: %v", err)
		}
	}

	if m.launcher != nil {
		m.launcher.Kill()
		m.launcher.Cleanup()
	}

	m.launcher = nil
	m.browser = nil
	m.wsURL = ""
	m.isRunning = false

	log.Println("Browser stopped")
	return nil
}

// IsRunning reports whether the browser is connected.
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.isRunning
}

// GetEndpoint returns the CDP endpoint URL.
func (m *Manager) GetEndpoint() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.wsURL
}

// OpenTarget creates a fresh page sized to the configured viewport and
// wraps it as a harness target.
func (m *Manager) OpenTarget(ctx context.Context) (harness.Target, error) {
	m.mu.Lock()
	browser := m.browser
	m.mu.Unlock()

	if browser == nil {
		return nil, fmt.Errorf("browser is not running")
	}

	page, err := browser.Context(ctx).Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, fmt.Errorf("failed to create page: %w", err)
	}

	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             m.opts.WindowWidth,
		Height:            m.opts.WindowHeight,
		DeviceScaleFactor: 1,
	}); err != nil {
		page.Close()
		return nil, fmt.Errorf("failed to set viewport: %w", err)
	}

	return newTarget(page), nil
}
