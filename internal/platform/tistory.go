// internal/platform/tistory.go
package platform

import (
	"time"

	"github.com/xkilldash9x/postpilot/api/schemas"
	"github.com/xkilldash9x/postpilot/internal/inject"
	"github.com/xkilldash9x/postpilot/internal/locator"
	"github.com/xkilldash9x/postpilot/internal/session"
)

const tistoryEditorID = "editor-tistory"

// Makes the preview/done bar visible without touching its buttons.
const tistoryRevealBarJS = `(() => {
  const findByText = (re) => Array.from(document.querySelectorAll('button,a,span,div'))
    .find(el => re.test((el.textContent || '').trim()));
  const anchor = findByText(/완료/) || findByText(/미리보기/);
  if (!anchor) return false;
  let p = anchor instanceof HTMLElement ? anchor.parentElement : null;
  let bar = null;
  while (p && p !== document.body) {
    const cs = window.getComputedStyle(p);
    if (cs.position === 'fixed' || cs.position === 'sticky') { bar = p; break; }
    p = p.parentElement;
  }
  bar = bar || (anchor.closest && anchor.closest('div')) || anchor.parentElement;
  if (!bar) return false;
  Object.assign(bar.style, {
    display: 'flex', visibility: 'visible', opacity: '1', transform: 'translateY(0)',
    pointerEvents: 'auto', position: 'fixed', left: '0', right: '0', bottom: '0',
    zIndex: '2147483647',
  });
  return true;
})()`

const scrollToBottomJS = `window.scrollTo(0, document.body.scrollHeight)`

func tistoryProfile() *Profile {
	editorFrame := locator.FrameSelector("#" + tistoryEditorID + "_ifr")
	verify := locator.Descriptor{Role: schemas.RoleBodyEditor, Strategies: []locator.Strategy{
		locator.ByCSS("body").In(editorFrame).Valid(locator.Validity{}),
	}}
	name := locator.NamePlaceholder

	return &Profile{
		Name:             "tistory",
		WriteURLTemplate: "https://{id}.tistory.com/manage/newpost/?type=post&returnURL=%2Fmanage%2Fposts%2F",
		LoginURL:         "https://www.tistory.com/auth/login",
		HomeURL:          "https://www.tistory.com",
		LoginPatterns:    []string{"/auth/login", "accounts.kakao.com"},
		Markers:          []session.Marker{{Name: "TSSESSION", Domain: "tistory.com"}},
		AuthFile:         "auth.json",
		DefaultCategory:  "카테고리 없음",

		Title: Field{
			Role: schemas.RoleTitleField,
			Target: locator.Descriptor{Role: schemas.RoleTitleField, Strategies: []locator.Strategy{
				locator.ByID("post-title-inp"),
			}},
			Technique: inject.TechniquePlainField,
			Mode:      inject.ModeReplace,
			Input:     inject.InputInsert,
			Wait:      30 * time.Second,
		},
		// Located only to make sure the editor frame exists; content goes
		// through the TinyMCE API.
		Body: Field{
			Role: schemas.RoleBodyEditor,
			Target: locator.Descriptor{Role: schemas.RoleBodyEditor, Strategies: []locator.Strategy{
				locator.ByID(tistoryEditorID + "_ifr").Valid(locator.Validity{}),
			}},
			Verify:    &verify,
			Technique: inject.TechniqueScriptEditor,
			Mode:      inject.ModeReplace,
			EditorID:  tistoryEditorID,
			Wait:      30 * time.Second,
		},
		CategoryTrigger: &Field{
			Role: schemas.RoleCategoryTrigger,
			Target: locator.Descriptor{Role: schemas.RoleCategoryTrigger, Strategies: []locator.Strategy{
				locator.ByCSS(`[role="combobox"][aria-label*="카테고리"]`),
				locator.ByText(`[role="combobox"]`, "카테고리"),
				locator.ByText(`button,[role="button"]`, "카테고리"),
				locator.NearLabel("카테고리"),
			}},
			Option: locator.Descriptor{Role: schemas.RoleCategoryOption, Strategies: []locator.Strategy{
				locator.ByText(`[role="option"]`, name),
				locator.ByText(`[role="menuitem"]`, name),
				locator.ByText("li", name),
				locator.ByText("button", name),
				locator.ByText("a", name),
				locator.ByText(`div[role="listbox"] *`, name),
			}},
			Technique: inject.TechniqueOptionList,
		},
		Tags: &Field{
			Role: schemas.RoleTagInput,
			Target: locator.Descriptor{Role: schemas.RoleTagInput, Strategies: []locator.Strategy{
				locator.ByCSS(`input[placeholder*="태그"]`),
				locator.ByCSS(`input[aria-label*="태그"]`),
				locator.ByCSS(`input[placeholder*="Tag" i]`),
				locator.ByCSS(`input[aria-label*="Tag" i]`),
				locator.NearLabelControl("태그", "input"),
			}},
			Technique: inject.TechniqueTagInput,
			Mode:      inject.ModeAppend,
			Input:     inject.InputKeystroke,
			Before: []Step{
				{Name: "scroll-to-tags", Kind: StepScript, Script: scrollToBottomJS, Pause: 600 * time.Millisecond},
			},
		},

		Finalize: []Step{
			{Name: "close-editor-popups", Kind: StepKeys, Keys: []string{"Escape"}},
			{Name: "blur-editor", Kind: StepClickPoint, X: 10, Y: 10, Pause: 200 * time.Millisecond},
			{Name: "reveal-publish-bar", Kind: StepScript, Script: tistoryRevealBarJS},
		},

		Probes: []string{
			"#post-title-inp",
			"#" + tistoryEditorID + "_ifr",
			"#" + tistoryEditorID,
		},
	}
}
