// internal/browser/session/interfaces.go
package session

import (
	"context"

	"github.com/chromedp/chromedp"
)

// ActionExecutor runs raw chromedp actions against the session's tab.
type ActionExecutor interface {
	// RunActions combines ctx with the session context and bounds the run by
	// the operation timeout.
	RunActions(ctx context.Context, actions ...chromedp.Action) error
	// RunBackgroundActions ignores ctx's cancellation.
	RunBackgroundActions(ctx context.Context, actions ...chromedp.Action) error
}
