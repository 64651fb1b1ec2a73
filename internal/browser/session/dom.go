// internal/browser/session/dom.go
package session

import (
	"context"
	"fmt"

	"github.com/chromedp/cdproto/input"
	"go.uber.org/zap"

	"github.com/xkilldash9x/postpilot/api/schemas"
	"github.com/xkilldash9x/postpilot/internal/locator"
)

// refAttr tags located elements so later operations of the same step can
// address them again without holding remote object ids.
const refAttr = "data-postpilot-ref"

// maxCandidates caps how many elements one strategy reports.
const maxCandidates = 20

// resolveFrameJS defines frameOf(scope) returning {el, doc} for a frame scope.
// el is null for the top document; doc is null when the frame is missing or
// cross-origin.
const resolveFrameJS = `
const frameOf = (scope) => {
  if (!scope.kind) return { el: null, doc: document };
  const frames = Array.from(document.querySelectorAll('iframe'));
  let el = null;
  if (scope.kind === 'index') el = frames[scope.index] || null;
  else if (scope.kind === 'selector') el = document.querySelector(scope.value);
  else if (scope.kind === 'url') el = frames.find(f => {
    if ((f.src || '').includes(scope.value)) return true;
    try { return f.contentWindow.location.href.includes(scope.value); } catch (e) { return false; }
  }) || null;
  if (!el) return { el: null, doc: null, missing: true };
  let doc = null;
  try { doc = el.contentDocument; } catch (e) { doc = null; }
  return { el, doc };
};
const boxOf = (e, frameEl) => {
  const r = e.getBoundingClientRect();
  const off = frameEl ? frameEl.getBoundingClientRect() : { left: 0, top: 0 };
  const view = (e.ownerDocument && e.ownerDocument.defaultView) || window;
  const st = view.getComputedStyle(e);
  return {
    x: r.left + off.left, y: r.top + off.top, width: r.width, height: r.height,
    visible: r.width > 0 && r.height > 0 && st.display !== 'none' && st.visibility !== 'hidden' && st.opacity !== '0',
  };
};
`

// candidatesJS resolves one strategy. Frame problems are reported as thrown
// errors so they count as a failed strategy.
const candidatesJS = `((q) => {
` + resolveFrameJS + `
  const f = frameOf(q.frame);
  if (f.missing) return [];
  if (q.kind === 'frame-coordinate') {
    const r = f.el ? f.el.getBoundingClientRect() : { left: 0, top: 0, width: window.innerWidth, height: window.innerHeight };
    return [{ ref: '', x: r.left, y: r.top, width: r.width, height: r.height, visible: r.width > 0 && r.height > 0,
      point: { x: r.left + r.width * q.relX, y: r.top + r.height * q.relY } }];
  }
  if (!f.doc) throw new Error('frame document is not accessible');
  const doc = f.doc;
  const norm = (t) => (t || '').replace(/\s+/g, ' ').trim();
  const textOf = (e) => norm(e.innerText !== undefined ? e.innerText : e.textContent);
  const innermost = (els) => els.filter(e => !els.some(o => o !== e && e.contains(o)));
  let els = [];
  switch (q.kind) {
    case 'stable-id': {
      const e = doc.getElementById(q.value);
      if (e) els = [e];
      break;
    }
    case 'attribute-pattern':
      els = Array.from(doc.querySelectorAll(q.value));
      break;
    case 'text-match':
      els = innermost(Array.from(doc.querySelectorAll(q.scope || '*')).filter(e => {
        const t = textOf(e);
        return q.exact ? t === q.value : t.includes(q.value);
      }));
      break;
    case 'near-label': {
      const labels = innermost(Array.from(doc.body ? doc.body.querySelectorAll('*') : [])
        .filter(e => norm(e.textContent).includes(q.value)));
      const label = labels[0];
      if (!label) break;
      const box = label.closest('label,div,li,section') || label.parentElement;
      if (!box) break;
      const control = box.querySelector(q.scope || 'button,[role="button"],[role="combobox"],.dropdown,.selectbox');
      if (control) els = [control];
      else if (!q.scope) els = [box];
      break;
    }
    default:
      throw new Error('unknown strategy kind ' + q.kind);
  }
  return els.slice(0, q.max).map((e, i) => {
    const ref = q.prefix + i;
    e.setAttribute('` + refAttr + `', ref);
    return Object.assign({ ref }, boxOf(e, f.el));
  });
})(%s)`

// refJS finds a tagged element, scrolls it into view and reports its box
// and readable text.
const refJS = `((q) => {
` + resolveFrameJS + `
  const f = frameOf(q.frame);
  if (!f.doc) return null;
  const e = f.doc.querySelector('[` + refAttr + `="' + q.ref + '"]');
  if (!e) return null;
  if (q.scroll) e.scrollIntoView({ block: 'center', inline: 'center' });
  const text = ('value' in e && typeof e.value === 'string' && /^(INPUT|TEXTAREA)$/.test(e.tagName))
    ? e.value : (e.innerText !== undefined ? e.innerText : e.textContent) || '';
  return Object.assign({ text }, boxOf(e, f.el));
})(%s)`

type jsFrame struct {
	Kind  string `json:"kind"`
	Index int    `json:"index"`
	Value string `json:"value"`
}

func toJSFrame(f locator.FrameScope) jsFrame {
	return jsFrame{Kind: string(f.Kind), Index: f.Index, Value: f.Value}
}

type jsStrategy struct {
	Kind   string  `json:"kind"`
	Frame  jsFrame `json:"frame"`
	Value  string  `json:"value"`
	Scope  string  `json:"scope"`
	Exact  bool    `json:"exact"`
	RelX   float64 `json:"relX"`
	RelY   float64 `json:"relY"`
	Prefix string  `json:"prefix"`
	Max    int     `json:"max"`
}

type jsPoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type jsCandidate struct {
	Ref     string   `json:"ref"`
	X       float64  `json:"x"`
	Y       float64  `json:"y"`
	Width   float64  `json:"width"`
	Height  float64  `json:"height"`
	Visible bool     `json:"visible"`
	Point   *jsPoint `json:"point"`
	Text    string   `json:"text"`
}

func (c jsCandidate) box() schemas.ElementGeometry {
	return schemas.ElementGeometry{X: c.X, Y: c.Y, Width: c.Width, Height: c.Height}
}

// Candidates resolves one locator strategy against the live page.
func (s *Session) Candidates(ctx context.Context, st locator.Strategy) ([]locator.Candidate, error) {
	q := jsStrategy{
		Kind:   string(st.Kind),
		Frame:  toJSFrame(st.Frame),
		Value:  st.Value,
		Scope:  st.Scope,
		Exact:  st.Exact,
		RelX:   st.RelX,
		RelY:   st.RelY,
		Prefix: s.nextRefPrefix(),
		Max:    maxCandidates,
	}
	var found []jsCandidate
	if err := s.Evaluate(ctx, fmt.Sprintf(candidatesJS, jsonEncode(q)), &found); err != nil {
		return nil, err
	}

	out := make([]locator.Candidate, 0, len(found))
	for _, c := range found {
		cand := locator.Candidate{Ref: c.Ref, Box: c.box(), Visible: c.Visible}
		if c.Point != nil {
			cand.Point = &locator.Point{X: c.Point.X, Y: c.Point.Y}
		}
		out = append(out, cand)
	}
	return out, nil
}

type refQuery struct {
	Frame  jsFrame `json:"frame"`
	Ref    string  `json:"ref"`
	Scroll bool    `json:"scroll"`
}

func (s *Session) lookup(ctx context.Context, h locator.Handle, scroll bool) (*jsCandidate, error) {
	q := refQuery{Frame: toJSFrame(h.Frame), Ref: h.Ref, Scroll: scroll}
	var c *jsCandidate
	if err := s.Evaluate(ctx, fmt.Sprintf(refJS, jsonEncode(q)), &c); err != nil {
		return nil, err
	}
	if c == nil {
		return nil, fmt.Errorf("%s target %q is gone from the page", h.Role, h.Ref)
	}
	return c, nil
}

// Click presses the left mouse button on the handle: at its point for
// coordinate handles, at the element's center otherwise.
func (s *Session) Click(ctx context.Context, h locator.Handle) error {
	var x, y float64
	if h.IsPoint() {
		x, y = h.Point.X, h.Point.Y
	} else {
		c, err := s.lookup(ctx, h, true)
		if err != nil {
			return err
		}
		x, y = c.box().Center()
	}
	s.logger.Debug("Click.", zap.String("role", string(h.Role)), zap.Float64("x", x), zap.Float64("y", y))
	return s.runActionsFunc(ctx,
		input.DispatchMouseEvent(input.MouseMoved, x, y),
		input.DispatchMouseEvent(input.MousePressed, x, y).WithButton(input.Left).WithButtons(1).WithClickCount(1),
		input.DispatchMouseEvent(input.MouseReleased, x, y).WithButton(input.Left).WithClickCount(1),
	)
}

// ReadText returns the value of a form control or the rendered text of any
// other element.
func (s *Session) ReadText(ctx context.Context, h locator.Handle) (string, error) {
	if h.IsPoint() {
		return "", fmt.Errorf("%s is a coordinate target and has no readable text", h.Role)
	}
	c, err := s.lookup(ctx, h, false)
	if err != nil {
		return "", err
	}
	return c.Text, nil
}
