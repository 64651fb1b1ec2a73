// internal/browser/session/session.go
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/postpilot/api/schemas"
	"github.com/xkilldash9x/postpilot/internal/browser/humanoid"
	"github.com/xkilldash9x/postpilot/internal/config"
	"github.com/xkilldash9x/postpilot/internal/inject"
	"github.com/xkilldash9x/postpilot/internal/locator"
	"github.com/xkilldash9x/postpilot/internal/platform"
	pilotsession "github.com/xkilldash9x/postpilot/internal/session"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrOperationTimeout is returned when a single page operation exceeds the
// configured timeout. It is not a transport failure.
var ErrOperationTimeout = errors.New("browser operation timed out")

// Session drives one browser tab over CDP. Page operations are strictly
// sequential; every call is bounded by the configured operation timeout.
type Session struct {
	// ctx is the chromedp target context. It carries the CDP connection and
	// is combined with every operational context.
	ctx    context.Context
	cfg    config.BrowserConfig
	logger *zap.Logger

	runActionsFunc func(ctx context.Context, actions ...chromedp.Action) error
	evalFunc       func(ctx context.Context, script string) ([]byte, error)

	refSeq     atomic.Int64
	granted    atomic.Bool
	editorPoll time.Duration
}

type timeoutKey struct{}

// withTimeout overrides the operation timeout for the actions run with ctx.
func withTimeout(ctx context.Context, d time.Duration) context.Context {
	return context.WithValue(ctx, timeoutKey{}, d)
}

var (
	_ locator.Page              = (*Session)(nil)
	_ inject.Driver             = (*Session)(nil)
	_ humanoid.Executor         = (*Session)(nil)
	_ pilotsession.CookieSource = (*Session)(nil)
	_ platform.Actions          = (*Session)(nil)
	_ ActionExecutor            = (*Session)(nil)
)

// New wraps a chromedp target context.
func New(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.OperationTimeout <= 0 {
		cfg.OperationTimeout = 30 * time.Second
	}
	s := &Session{
		ctx:        ctx,
		cfg:        cfg,
		logger:     logger.Named("browser"),
		editorPoll: 250 * time.Millisecond,
	}
	s.runActionsFunc = s.run
	s.evalFunc = s.evaluateRaw
	return s
}

// RunActions executes actions within ctx, bounded by the operation timeout.
func (s *Session) RunActions(ctx context.Context, actions ...chromedp.Action) error {
	return s.runActionsFunc(ctx, actions...)
}

// RunBackgroundActions executes actions detached from ctx's cancellation.
func (s *Session) RunBackgroundActions(ctx context.Context, actions ...chromedp.Action) error {
	return s.runActionsFunc(Detach(ctx), actions...)
}

func (s *Session) run(ctx context.Context, actions ...chromedp.Action) error {
	timeout := s.cfg.OperationTimeout
	if d, ok := ctx.Value(timeoutKey{}).(time.Duration); ok && d > 0 {
		timeout = d
	}
	opCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	combined, cancelCombined := CombineContext(s.ctx, opCtx)
	defer cancelCombined()

	err := chromedp.Run(combined, actions...)
	if err == nil {
		return nil
	}
	return s.classify(ctx, opCtx, err)
}

// classify maps a chromedp failure to the error taxonomy. A dead browser
// channel is a transport failure; cancellation of the caller's context is
// returned as is; everything else stays a plain error for the caller to
// interpret.
func (s *Session) classify(ctx, opCtx context.Context, err error) error {
	if s.ctx.Err() != nil {
		return schemas.NewError(schemas.KindTransport, "cdp", fmt.Errorf("browser session closed: %w", err))
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if IsTransportError(err) {
		return schemas.NewError(schemas.KindTransport, "cdp", err)
	}
	if opCtx.Err() == context.DeadlineExceeded {
		return fmt.Errorf("%w: %v", ErrOperationTimeout, err)
	}
	return err
}

var transportMarkers = []string{
	"websocket",
	"target closed",
	"connection reset",
	"broken pipe",
	"use of closed network connection",
	"connection refused",
	"session closed",
}

// IsTransportError reports whether err means the CDP channel is gone.
func IsTransportError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, chromedp.ErrInvalidContext) ||
		errors.Is(err, chromedp.ErrInvalidTarget) ||
		errors.Is(err, chromedp.ErrChannelClosed) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, m := range transportMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

// isFatal reports errors that end the run: a dead channel or cancellation
// of the caller's context.
func isFatal(err error) bool {
	return err != nil && (schemas.KindOf(err) == schemas.KindTransport ||
		errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded))
}

func (s *Session) evaluateRaw(ctx context.Context, script string) ([]byte, error) {
	var raw []byte
	err := s.runActionsFunc(ctx, chromedp.Evaluate(script, &raw, func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
		return p.WithReturnByValue(true).WithAwaitPromise(true).WithSilent(true)
	}))
	return raw, err
}

// Evaluate runs script in the top document and decodes its result into res
// when res is not nil.
func (s *Session) Evaluate(ctx context.Context, script string, res any) error {
	raw, err := s.evalFunc(ctx, script)
	if err != nil {
		return err
	}
	if res == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, res); err != nil {
		return fmt.Errorf("failed to decode script result: %w (payload: %.200s)", err, raw)
	}
	return nil
}

// Sleep pauses within the session context.
func (s *Session) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	return s.runActionsFunc(ctx, chromedp.Sleep(d))
}

// Navigate loads url and waits for the body, then for the configured
// post-load settle time.
func (s *Session) Navigate(ctx context.Context, url string) error {
	timeout := s.cfg.NavigationTimeout
	if timeout <= 0 {
		timeout = s.cfg.OperationTimeout
	}
	s.logger.Info("Navigating.", zap.String("url", url))

	err := s.runActionsFunc(withTimeout(ctx, timeout),
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery))
	if err != nil {
		return fmt.Errorf("navigate to %s: %w", url, err)
	}
	return s.Sleep(ctx, s.cfg.PostLoadWait)
}

// CurrentURL returns the URL of the top document.
func (s *Session) CurrentURL(ctx context.Context) (string, error) {
	var u string
	if err := s.runActionsFunc(ctx, chromedp.Location(&u)); err != nil {
		return "", err
	}
	return u, nil
}

func (s *Session) nextRefPrefix() string {
	return fmt.Sprintf("pp%d-", s.refSeq.Add(1))
}

// jsLiteral leaves HTML characters alone so markup reaches the page verbatim.
var jsLiteral = jsoniter.Config{EscapeHTML: false}.Froze()

// jsonEncode encodes v as a JS literal.
func jsonEncode(v any) string {
	b, err := jsLiteral.Marshal(v)
	if err != nil {
		return `null`
	}
	return string(b)
}
