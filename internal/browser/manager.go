// internal/browser/manager.go
package browser

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/postpilot/internal/browser/session"
	"github.com/xkilldash9x/postpilot/internal/config"
)

const startTimeout = 60 * time.Second

// Manager owns the browser process (or the connection to an attached one)
// and the single tab postpilot drives.
type Manager struct {
	cfg    config.BrowserConfig
	logger *zap.Logger

	mu          sync.Mutex
	allocCancel context.CancelFunc
	tabCtx      context.Context
	tabCancel   context.CancelFunc
	session     *session.Session
	closed      bool
}

// NewManager creates a manager. Nothing is started until Open.
func NewManager(cfg config.BrowserConfig, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{cfg: cfg, logger: logger.Named("browser_manager")}
}

// Attached reports whether the manager drives a browser it did not launch.
func (m *Manager) Attached() bool { return m.cfg.RemoteURL != "" }

// Open launches Chrome, or attaches to the one at browser.remote_url, and
// opens a new tab. The browser outlives ctx; it is only stopped by Close.
func (m *Manager) Open(ctx context.Context) (*session.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session != nil {
		return m.session, nil
	}
	if m.closed {
		return nil, fmt.Errorf("browser manager is closed")
	}

	var allocCtx context.Context
	if m.Attached() {
		m.logger.Info("Attaching to running browser.", zap.String("url", m.cfg.RemoteURL))
		allocCtx, m.allocCancel = chromedp.NewRemoteAllocator(context.Background(), m.cfg.RemoteURL)
	} else {
		m.logger.Info("Launching browser.", zap.Bool("headless", m.cfg.Headless))
		allocCtx, m.allocCancel = chromedp.NewExecAllocator(context.Background(), DefaultAllocatorOptions(m.cfg)...)
	}

	var opts []chromedp.ContextOption
	if m.cfg.Debug {
		opts = append(opts, chromedp.WithDebugf(m.logger.Sugar().Debugf))
	}
	opts = append(opts, chromedp.WithErrorf(m.logger.Sugar().Debugf))
	m.tabCtx, m.tabCancel = chromedp.NewContext(allocCtx, opts...)

	startCtx, cancel := context.WithTimeout(ctx, startTimeout)
	defer cancel()
	runCtx, cancelRun := session.CombineContext(m.tabCtx, startCtx)
	defer cancelRun()
	if err := chromedp.Run(runCtx); err != nil {
		m.shutdown()
		return nil, fmt.Errorf("failed to start browser tab: %w", err)
	}

	if m.cfg.Locale != "" {
		if err := chromedp.Run(runCtx, emulation.SetLocaleOverride().WithLocale(m.cfg.Locale)); err != nil {
			m.logger.Debug("Locale override not applied.", zap.Error(err))
		}
	}

	m.session = session.New(m.tabCtx, m.cfg, m.logger)
	return m.session, nil
}

// Close stops a launched browser. An attached browser is left running with
// its tab open; only the connection is dropped when the process exits.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	if m.Attached() {
		m.logger.Info("Leaving attached browser running.")
		return
	}
	m.shutdown()
}

func (m *Manager) shutdown() {
	if m.tabCancel != nil {
		m.tabCancel()
	}
	if m.allocCancel != nil {
		m.allocCancel()
	}
	m.logger.Info("Browser stopped.")
}

// flag is one command line switch passed to Chrome.
type flag struct {
	name  string
	value any
}

// allocatorFlags lists the Chrome switches derived from cfg, in order.
func allocatorFlags(cfg config.BrowserConfig) []flag {
	flags := []flag{
		{"no-first-run", true},
		{"no-default-browser-check", true},
		{"disable-popup-blocking", true},
		{"force-device-scale-factor", "1"},
		{"high-dpi-support", "1"},
	}
	if cfg.Headless {
		flags = append(flags, flag{"headless", "new"}, flag{"hide-scrollbars", true}, flag{"mute-audio", true})
	}
	if cfg.WindowWidth > 0 && cfg.WindowHeight > 0 {
		flags = append(flags, flag{"window-size", strconv.Itoa(cfg.WindowWidth) + "," + strconv.Itoa(cfg.WindowHeight)})
	}
	if cfg.Locale != "" {
		flags = append(flags, flag{"lang", cfg.Locale})
	}
	if cfg.UserDataDir != "" {
		flags = append(flags, flag{"user-data-dir", cfg.UserDataDir})
	}
	for _, arg := range cfg.Args {
		arg = strings.TrimLeft(strings.TrimSpace(arg), "-")
		if arg == "" {
			continue
		}
		if key, value, ok := strings.Cut(arg, "="); ok {
			flags = append(flags, flag{key, strings.Trim(value, `"`)})
		} else {
			flags = append(flags, flag{arg, true})
		}
	}
	return flags
}

// DefaultAllocatorOptions builds the exec allocator options for cfg.
func DefaultAllocatorOptions(cfg config.BrowserConfig) []chromedp.ExecAllocatorOption {
	var opts []chromedp.ExecAllocatorOption
	for _, f := range allocatorFlags(cfg) {
		opts = append(opts, chromedp.Flag(f.name, f.value))
	}
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	return opts
}
