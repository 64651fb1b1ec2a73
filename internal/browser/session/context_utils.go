// internal/browser/session/context_utils.go
package session

import (
	"context"
	"time"
)

// CombineContext returns a context that carries the values of target (the
// chromedp target context) and is canceled when either target or op is done.
func CombineContext(target, op context.Context) (context.Context, context.CancelFunc) {
	combined, cancel := context.WithCancel(target)
	go func() {
		select {
		case <-op.Done():
			cancel()
		case <-combined.Done():
		}
	}()
	return combined, cancel
}

// detached keeps the values of its parent but none of its cancellation.
type detached struct {
	context.Context
}

func (detached) Deadline() (time.Time, bool) { return time.Time{}, false }
func (detached) Done() <-chan struct{}       { return nil }
func (detached) Err() error                  { return nil }

// Detach returns a context with ctx's values that is never canceled. Used for
// cleanup that must run after the operational context ended.
func Detach(ctx context.Context) context.Context {
	return detached{ctx}
}
