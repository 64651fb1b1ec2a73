// internal/platform/naver.go
package platform

import (
	"time"

	"github.com/xkilldash9x/postpilot/api/schemas"
	"github.com/xkilldash9x/postpilot/internal/inject"
	"github.com/xkilldash9x/postpilot/internal/locator"
	"github.com/xkilldash9x/postpilot/internal/session"
)

const naverLayoutCSS = `[data-ag-hidden="1"] { display:none !important; }
body { overflow-x:hidden !important; }
main, #wrap, #container, .wrap, .container {
  max-width: 1200px !important;
  margin-left: auto !important;
  margin-right: auto !important;
}`

// The first matching selector wins, in this order.
const naverCloseHelpJS = `(() => {
  const byText = (words) => Array.from(document.querySelectorAll('button'))
    .find(b => words.some(w => (b.textContent || '').includes(w)));
  const candidates = [
    () => byText(['닫기']),
    () => byText(['접기']),
    () => document.querySelector('button[aria-label*="닫기"]'),
    () => document.querySelector('button[aria-label*="접기"]'),
    () => document.querySelector('button[title*="닫기"]'),
    () => document.querySelector('button[title*="접기"]'),
  ];
  for (const find of candidates) {
    const el = find();
    if (el) { el.click(); return true; }
  }
  return false;
})()`

const naverHideRightPanelsJS = `(() => {
  const targets = [];
  for (const el of document.querySelectorAll('body *')) {
    const st = window.getComputedStyle(el);
    if (st.position !== 'fixed') continue;
    const r = el.getBoundingClientRect();
    if (!(r.right > window.innerWidth - 2 && r.width > 260 && r.height > 200)) continue;
    const zi = parseInt(st.zIndex || '0', 10);
    if (Number.isFinite(zi) && zi >= 10) targets.push(el);
  }
  targets.slice(0, 3).forEach(el => {
    el.setAttribute('data-ag-hidden', '1');
    el.style.display = 'none';
  });
  return targets.length;
})()`

const naverScrollTopJS = `(() => {
  window.scrollTo(0, 0);
  const best = Array.from(document.querySelectorAll('div, main, section'))
    .map(el => {
      const st = getComputedStyle(el);
      const r = el.getBoundingClientRect();
      const scrollable = (st.overflowY === 'auto' || st.overflowY === 'scroll') && el.scrollHeight > el.clientHeight + 200;
      return { el, ok: scrollable && r.width > 600 && r.height > 400, area: r.width * r.height };
    })
    .filter(x => x.ok)
    .sort((a, b) => b.area - a.area);
  if (best.length) best[0].el.scrollTop = 0;
  return best.length;
})()`

func naverProfile() *Profile {
	wide := locator.Validity{MinWidth: 200, RequireVisible: true}
	editorFrame := locator.FrameIndex(0)
	verify := locator.Descriptor{Role: schemas.RoleBodyEditor, Strategies: []locator.Strategy{
		locator.ByCSS(".se-main-container").In(editorFrame),
		locator.ByCSS(`[contenteditable="true"]`).In(editorFrame),
		locator.ByCSS("body").In(editorFrame).Valid(locator.Validity{}),
	}}

	return &Profile{
		Name:             "naver",
		WriteURLTemplate: "https://blog.naver.com/{id}?Redirect=Write&",
		LoginURL:         "https://nid.naver.com/nidlogin.login",
		HomeURL:          "https://www.naver.com",
		LoginPatterns:    []string{"nid.naver.com", "nidlogin", "login.naver"},
		Markers: []session.Marker{
			{Name: "NID_AUT", Domain: "naver.com"},
			{Name: "NID_SES", Domain: "naver.com"},
		},
		AuthFile: "auth_naver.json",

		Title: Field{
			Role: schemas.RoleTitleField,
			Target: locator.Descriptor{Role: schemas.RoleTitleField, Strategies: []locator.Strategy{
				locator.ByCSS("#post-title-inp").Valid(wide),
				locator.ByCSS("textarea.textarea_tit").Valid(wide),
				locator.ByCSS(`textarea[placeholder="제목을 입력하세요"]`).Valid(wide),
				locator.ByCSS(`textarea[placeholder*="제목"]`).Valid(wide),
			}},
			Technique: inject.TechniquePlainField,
			Mode:      inject.ModeReplace,
			Input:     inject.InputInsert,
			Wait:      5 * time.Second,
		},
		// The editor document is the first iframe. Clicking a little below its
		// top edge lands in the body area; appending keeps anything the editor
		// already placed there.
		Body: Field{
			Role: schemas.RoleBodyEditor,
			Target: locator.Descriptor{Role: schemas.RoleBodyEditor, Strategies: []locator.Strategy{
				locator.AtFrameCoordinate(editorFrame, 0.50, 0.30),
			}},
			Verify:    &verify,
			Technique: inject.TechniqueEditableRegion,
			Mode:      inject.ModeAppend,
			Input:     inject.InputClipboard,
			Wait:      5 * time.Second,
		},

		Prep: []Step{
			{Name: "layout-css", Kind: StepStyle, CSS: naverLayoutCSS},
			{Name: "dismiss-popups", Kind: StepKeys, Keys: []string{"Escape"}, Repeat: 3, Pause: 150 * time.Millisecond},
			{Name: "close-help", Kind: StepScript, Script: naverCloseHelpJS, Pause: 200 * time.Millisecond},
			{Name: "hide-right-panels", Kind: StepScript, Script: naverHideRightPanelsJS},
			{Name: "scroll-editor-top", Kind: StepScript, Script: naverScrollTopJS, Pause: 600 * time.Millisecond},
		},

		Probes: []string{
			"#post-title-inp",
			"textarea.textarea_tit",
			"iframe",
			`[contenteditable="true"]`,
		},
	}
}
