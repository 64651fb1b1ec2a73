// internal/browser/session/storage.go
package session

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/postpilot/api/schemas"
)

func fromCDPCookie(c *network.Cookie) *schemas.Cookie {
	return &schemas.Cookie{
		Name:     c.Name,
		Value:    c.Value,
		Domain:   c.Domain,
		Path:     c.Path,
		Expires:  c.Expires,
		HTTPOnly: c.HTTPOnly,
		Secure:   c.Secure,
		Session:  c.Session,
		SameSite: schemas.CookieSameSite(c.SameSite),
	}
}

func toCookieParam(c *schemas.Cookie) *network.CookieParam {
	p := &network.CookieParam{
		Name:     c.Name,
		Value:    c.Value,
		Domain:   c.Domain,
		Path:     c.Path,
		HTTPOnly: c.HTTPOnly,
		Secure:   c.Secure,
	}
	if c.SameSite != "" {
		p.SameSite = network.CookieSameSite(c.SameSite)
	}
	// Playwright writes -1 for session cookies.
	if !c.Session && c.Expires > 0 {
		sec, frac := math.Modf(c.Expires)
		t := cdp.TimeSinceEpoch(time.Unix(int64(sec), int64(frac*1e9)))
		p.Expires = &t
	}
	return p
}

// Cookies returns every cookie the browser holds.
func (s *Session) Cookies(ctx context.Context) ([]*schemas.Cookie, error) {
	var raw []*network.Cookie
	err := s.runActionsFunc(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		raw, err = storage.GetCookies().Do(ctx)
		return err
	}))
	if err != nil {
		return nil, fmt.Errorf("read cookies: %w", err)
	}
	out := make([]*schemas.Cookie, 0, len(raw))
	for _, c := range raw {
		out = append(out, fromCDPCookie(c))
	}
	return out, nil
}

// localStorageJS seeds localStorage on every new document of the origin.
const localStorageJS = `((origin, items) => {
  if (location.origin !== origin) return;
  try { for (const [k, v] of items) window.localStorage.setItem(k, v); } catch (e) {}
})(%s, %s)`

// ApplyStorageState loads cookies and localStorage into the browser before
// the first navigation.
func (s *Session) ApplyStorageState(ctx context.Context, state schemas.StorageState) error {
	params := make([]*network.CookieParam, 0, len(state.Cookies))
	for _, c := range state.Cookies {
		if c == nil || c.Name == "" {
			continue
		}
		params = append(params, toCookieParam(c))
	}

	actions := []chromedp.Action{}
	if len(params) > 0 {
		actions = append(actions, storage.SetCookies(params))
	}
	for _, o := range state.Origins {
		if len(o.LocalStorage) == 0 {
			continue
		}
		pairs := make([][2]string, 0, len(o.LocalStorage))
		for _, it := range o.LocalStorage {
			pairs = append(pairs, [2]string{it.Name, it.Value})
		}
		script := fmt.Sprintf(localStorageJS, jsonEncode(o.Origin), jsonEncode(pairs))
		actions = append(actions, chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(script).Do(ctx)
			return err
		}))
	}
	if len(actions) == 0 {
		return nil
	}
	if err := s.runActionsFunc(ctx, actions...); err != nil {
		return fmt.Errorf("apply storage state: %w", err)
	}
	s.logger.Info("Session state applied.",
		zap.Int("cookies", len(params)),
		zap.Int("origins", len(state.Origins)))
	return nil
}

const captureLocalStorageJS = `(() => {
  try {
    return { origin: location.origin, localStorage: Object.entries(window.localStorage).map(([name, value]) => ({ name, value })) };
  } catch (e) { return null; }
})()`

// CaptureStorageState reads cookies and the current origin's localStorage.
func (s *Session) CaptureStorageState(ctx context.Context) (schemas.StorageState, error) {
	cookies, err := s.Cookies(ctx)
	if err != nil {
		return schemas.StorageState{}, err
	}
	state := schemas.StorageState{Cookies: cookies, Origins: []schemas.OriginState{}}

	var origin *schemas.OriginState
	if err := s.Evaluate(ctx, captureLocalStorageJS, &origin); err != nil {
		if isFatal(err) {
			return schemas.StorageState{}, err
		}
		s.logger.Debug("localStorage capture failed.", zap.Error(err))
	}
	if origin != nil && origin.Origin != "" && origin.Origin != "null" && len(origin.LocalStorage) > 0 {
		state.Origins = append(state.Origins, *origin)
	}
	return state, nil
}
