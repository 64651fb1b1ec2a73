// internal/session/monitor.go
package session

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/xkilldash9x/postpilot/api/schemas"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// State is the position of the login gate.
type State string

const (
	StateWaiting       State = "WAITING"
	StateAuthenticated State = "AUTHENTICATED"
	StateTimedOut      State = "TIMED_OUT"
)

// Marker is a cookie that must be present for a session to be established.
type Marker struct {
	Name   string
	Domain string
}

// Matches reports whether c satisfies the marker. The domain is matched as a
// substring so ".naver.com" and "blog.naver.com" both satisfy "naver.com".
func (m Marker) Matches(c *schemas.Cookie) bool {
	return c != nil && c.Name == m.Name && strings.Contains(c.Domain, m.Domain)
}

// CookieSource reads the cookies currently held by the browser.
type CookieSource interface {
	Cookies(ctx context.Context) ([]*schemas.Cookie, error)
}

// SessionState is what the engine reads after the gate.
type SessionState struct {
	Authenticated bool
	LastCheckedAt time.Time
}

// Monitor polls a CookieSource until every required marker is present.
type Monitor struct {
	source  CookieSource
	markers []Marker
	logger  *zap.Logger

	mu    sync.Mutex
	state State
	last  SessionState
}

// NewMonitor creates a monitor in the WAITING state.
func NewMonitor(source CookieSource, markers []Marker, logger *zap.Logger) *Monitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Monitor{
		source:  source,
		markers: markers,
		logger:  logger.Named("session_monitor"),
		state:   StateWaiting,
	}
}

// State returns the current gate state.
func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Snapshot returns the result of the latest poll.
func (m *Monitor) Snapshot() SessionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

// Present evaluates the markers against cookies and returns which of them
// were found, in marker order.
func Present(markers []Marker, cookies []*schemas.Cookie) []bool {
	found := make([]bool, len(markers))
	for i, mk := range markers {
		for _, c := range cookies {
			if mk.Matches(c) {
				found[i] = true
				break
			}
		}
	}
	return found
}

// Authenticated is the conjunction of all markers.
func Authenticated(markers []Marker, cookies []*schemas.Cookie) bool {
	if len(markers) == 0 {
		return false
	}
	for _, ok := range Present(markers, cookies) {
		if !ok {
			return false
		}
	}
	return true
}

// poll performs one check. A failed cookie read counts as not authenticated.
func (m *Monitor) poll(ctx context.Context) bool {
	cookies, err := m.source.Cookies(ctx)
	if err != nil {
		m.logger.Debug("Cookie read failed, treating markers as absent.", zap.Error(err))
		cookies = nil
	}
	ok := Authenticated(m.markers, cookies)

	m.mu.Lock()
	m.last = SessionState{Authenticated: ok, LastCheckedAt: time.Now()}
	if ok {
		m.state = StateAuthenticated
	}
	m.mu.Unlock()
	return ok
}

// WaitForAuthenticated blocks until all markers are present or timeout
// elapses. The first poll runs immediately, so an already established session
// returns on the first tick and a zero timeout never waits. Cancellation of
// ctx returns false together with ctx.Err().
func (m *Monitor) WaitForAuthenticated(ctx context.Context, pollInterval, timeout time.Duration) (bool, error) {
	m.mu.Lock()
	m.state = StateWaiting
	m.mu.Unlock()

	if m.poll(ctx) {
		m.logger.Info("Session markers present.")
		return true, nil
	}

	deadline, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	limiter := rate.NewLimiter(rate.Every(pollInterval), 1)
	limiter.Allow() // the immediate poll above spent the first token

	m.logger.Info("Waiting for login to complete.",
		zap.Duration("poll_interval", pollInterval),
		zap.Duration("timeout", timeout),
		zap.Int("markers", len(m.markers)))

	for {
		if err := limiter.Wait(deadline); err != nil {
			if ctx.Err() != nil {
				return false, ctx.Err()
			}
			// The next tick would land past the deadline. Wait out the
			// remaining time and check once more before giving up.
			if timeout > 0 {
				<-deadline.Done()
				if ctx.Err() != nil {
					return false, ctx.Err()
				}
				if m.poll(ctx) {
					m.logger.Info("Login detected.")
					return true, nil
				}
			}
			m.setState(StateTimedOut)
			m.logger.Warn("Login wait timed out.", zap.Duration("timeout", timeout))
			return false, nil
		}
		if m.poll(deadline) {
			m.logger.Info("Login detected.")
			return true, nil
		}
	}
}

func (m *Monitor) setState(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}
