// internal/browser/session/probes.go
package session

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

// Frames lists the URLs of every frame below the top document.
func (s *Session) Frames(ctx context.Context) ([]string, error) {
	var tree *page.FrameTree
	err := s.runActionsFunc(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		tree, err = page.GetFrameTree().Do(ctx)
		return err
	}))
	if err != nil {
		return nil, fmt.Errorf("frame tree: %w", err)
	}
	return frameURLs(tree, nil), nil
}

func frameURLs(t *page.FrameTree, acc []string) []string {
	if t == nil {
		return acc
	}
	for _, child := range t.ChildFrames {
		if child.Frame != nil {
			acc = append(acc, child.Frame.URL)
		}
		acc = frameURLs(child, acc)
	}
	return acc
}

// activeElementJS descends through same-origin iframes to the element that
// really holds focus.
const activeElementJS = `(() => {
  let el = document.activeElement;
  while (el && el.tagName === 'IFRAME') {
    let inner = null;
    try { inner = el.contentDocument && el.contentDocument.activeElement; } catch (e) { inner = null; }
    if (!inner) break;
    el = inner;
  }
  return el ? el.outerHTML : '';
})()`

// ActiveElement returns the outerHTML of the focused element.
func (s *Session) ActiveElement(ctx context.Context) (string, error) {
	var html string
	err := s.Evaluate(ctx, activeElementJS, &html)
	return html, err
}

// Count returns how many elements of the top document match selector.
func (s *Session) Count(ctx context.Context, selector string) (int, error) {
	var n int
	err := s.Evaluate(ctx, fmt.Sprintf(`document.querySelectorAll(%s).length`, jsonEncode(selector)), &n)
	return n, err
}

// AddStyle appends a style element to the top document.
func (s *Session) AddStyle(ctx context.Context, css string) error {
	script := fmt.Sprintf(`(() => {
  const st = document.createElement('style');
  st.textContent = %s;
  (document.head || document.documentElement).appendChild(st);
  return true;
})()`, jsonEncode(css))
	return s.Evaluate(ctx, script, nil)
}

// Screenshot writes a full-page PNG to path.
func (s *Session) Screenshot(ctx context.Context, path string) error {
	var buf []byte
	// Quality 100 selects PNG encoding.
	if err := s.runActionsFunc(ctx, chromedp.FullScreenshot(&buf, 100)); err != nil {
		return fmt.Errorf("capture screenshot: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create screenshot directory: %w", err)
		}
	}
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		return fmt.Errorf("write screenshot: %w", err)
	}
	return nil
}
