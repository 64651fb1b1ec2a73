// internal/engine/engine_test.go
package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/postpilot/api/schemas"
	"github.com/xkilldash9x/postpilot/internal/config"
	"github.com/xkilldash9x/postpilot/internal/diagnostics"
	"github.com/xkilldash9x/postpilot/internal/document"
	"github.com/xkilldash9x/postpilot/internal/locator"
	"github.com/xkilldash9x/postpilot/internal/platform"
	pilotsession "github.com/xkilldash9x/postpilot/internal/session"
)

// -- In-memory browser --

// fakeBrowser answers locator strategies by value and models every focused
// element as a text buffer keyed by its ref.
type fakeBrowser struct {
	elements map[string]string // strategy value -> ref
	buffers  map[string]string
	focused  string
	selected bool

	editors    map[string]string
	editorRef  string
	cookies    []*schemas.Cookie
	urls       map[string]string // navigated url -> landed url
	current    string
	navigated  []string
	applied    *schemas.StorageState
	pressed    []string
	clicked    []string
	pasted     []string
	evaluated  int
	screenshot []string

	pasteFailures int
	clickErr      error
}

func newFakeBrowser() *fakeBrowser {
	return &fakeBrowser{
		elements: map[string]string{},
		buffers:  map[string]string{},
		editors:  map[string]string{},
		urls:     map[string]string{},
	}
}

const coordKey = "@coordinate"

func (b *fakeBrowser) Candidates(_ context.Context, s locator.Strategy) ([]locator.Candidate, error) {
	key := s.Value
	if s.Kind == locator.KindFrameCoordinate {
		key = coordKey
	}
	ref, ok := b.elements[key]
	if !ok {
		return nil, nil
	}
	c := locator.Candidate{Ref: ref, Visible: true, Box: schemas.ElementGeometry{X: 10, Y: 10, Width: 600, Height: 40}}
	if s.Kind == locator.KindFrameCoordinate {
		c.Point = &locator.Point{X: 300, Y: 200}
	}
	return []locator.Candidate{c}, nil
}

func (b *fakeBrowser) type_(text string) {
	if b.selected {
		b.buffers[b.focused] = ""
		b.selected = false
	}
	b.buffers[b.focused] += text
}

func (b *fakeBrowser) Click(_ context.Context, h locator.Handle) error {
	if b.clickErr != nil {
		return b.clickErr
	}
	b.clicked = append(b.clicked, h.Ref)
	if h.Ref != "" {
		b.focused = h.Ref
	}
	b.selected = false
	return nil
}

func (b *fakeBrowser) Press(_ context.Context, key string) error {
	b.pressed = append(b.pressed, key)
	switch key {
	case "Control+A":
		b.selected = true
	case "Backspace":
		if b.selected {
			b.buffers[b.focused] = ""
			b.selected = false
		}
	case "Enter":
		b.type_("\n")
	}
	return nil
}

func (b *fakeBrowser) InsertText(_ context.Context, text string) error {
	b.type_(text)
	return nil
}

func (b *fakeBrowser) SendKeys(_ context.Context, keys string) error {
	b.type_(keys)
	return nil
}

func (b *fakeBrowser) Paste(_ context.Context, text string) error {
	if b.pasteFailures > 0 {
		b.pasteFailures--
		return errors.New("clipboard write rejected")
	}
	b.pasted = append(b.pasted, text)
	b.type_(text)
	return nil
}

func (b *fakeBrowser) SetEditorContent(_ context.Context, id, html string) error {
	b.editors[id] = html
	b.buffers[b.editorRef] = document.PlainText(html)
	return nil
}

func (b *fakeBrowser) Sleep(ctx context.Context, _ time.Duration) error { return ctx.Err() }

func (b *fakeBrowser) Evaluate(context.Context, string, any) error {
	b.evaluated++
	return nil
}

func (b *fakeBrowser) AddStyle(context.Context, string) error { return nil }

func (b *fakeBrowser) ReadText(_ context.Context, h locator.Handle) (string, error) {
	return b.buffers[h.Ref], nil
}

func (b *fakeBrowser) CurrentURL(context.Context) (string, error) { return b.current, nil }

func (b *fakeBrowser) Frames(context.Context) ([]string, error) {
	return []string{"https://editor.example/frame"}, nil
}

func (b *fakeBrowser) ActiveElement(context.Context) (string, error) { return "<body></body>", nil }

func (b *fakeBrowser) Count(context.Context, string) (int, error) { return 1, nil }

func (b *fakeBrowser) Screenshot(_ context.Context, path string) error {
	b.screenshot = append(b.screenshot, path)
	return nil
}

func (b *fakeBrowser) Cookies(context.Context) ([]*schemas.Cookie, error) { return b.cookies, nil }

func (b *fakeBrowser) Navigate(_ context.Context, url string) error {
	b.navigated = append(b.navigated, url)
	b.current = url
	if landed, ok := b.urls[url]; ok {
		b.current = landed
		delete(b.urls, url)
	}
	return nil
}

func (b *fakeBrowser) ApplyStorageState(_ context.Context, state schemas.StorageState) error {
	b.applied = &state
	return nil
}

func (b *fakeBrowser) CaptureStorageState(context.Context) (schemas.StorageState, error) {
	return schemas.StorageState{Cookies: b.cookies}, nil
}

// -- Fixtures --

const naverWriteURL = "https://blog.naver.com/myblog?Redirect=Write&"

type fixture struct {
	cfg       *config.Config
	browser   *fakeBrowser
	artifacts *pilotsession.ArtifactStore
	dir       string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	cfg := config.NewDefaultConfig()
	cfg.Session.AuthDir = dir
	cfg.Diagnostics.Dir = dir
	cfg.Humanoid.Enabled = false
	return &fixture{
		cfg:       cfg,
		browser:   newFakeBrowser(),
		artifacts: pilotsession.NewArtifactStore(dir, nil, zaptest.NewLogger(t)),
		dir:       dir,
	}
}

func (f *fixture) writeDoc(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(f.dir, "post.txt")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func (f *fixture) saveArtifact(t *testing.T, platformName string) {
	t.Helper()
	_, err := f.artifacts.Save(platformName, schemas.StorageState{
		Cookies: []*schemas.Cookie{{Name: "NID_AUT", Value: "a", Domain: ".naver.com", Path: "/"}},
	})
	require.NoError(t, err)
}

func (f *fixture) engine(t *testing.T, name string, opts Options) *Engine {
	t.Helper()
	profile, err := platform.NewRegistry().Get(name, config.PlatformConfig{BlogID: "myblog"})
	require.NoError(t, err)
	return New(f.cfg, profile, f.browser, f.artifacts, opts, zaptest.NewLogger(t))
}

// naverPage lays out the Naver editor: the title textarea and the editor
// iframe body, which is both clicked by coordinate and read back.
func (f *fixture) naverPage() {
	f.browser.elements["#post-title-inp"] = "title"
	f.browser.elements[coordKey] = "body"
	f.browser.elements[".se-main-container"] = "body"
}

func (f *fixture) tistoryPage() {
	b := f.browser
	b.elements["post-title-inp"] = "title"
	b.elements["editor-tistory_ifr"] = "iframe"
	b.elements["body"] = "tinymce"
	b.editorRef = "tinymce"
	b.elements[`[role="combobox"][aria-label*="카테고리"]`] = "category"
	b.elements[`input[placeholder*="태그"]`] = "tags"
}

// -- Tests --

func TestRun_NaverEndToEnd(t *testing.T) {
	f := newFixture(t)
	f.naverPage()
	f.saveArtifact(t, "naver")
	doc := f.writeDoc(t, "[제목: Hello World]\nLine one.\nLine two.")

	e := f.engine(t, "naver", Options{})
	report, err := e.Run(context.Background(), doc)
	require.NoError(t, err)
	assert.True(t, e.PageUsed())

	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, "Hello World", report.Title)
	assert.True(t, report.TitleFound)
	assert.Empty(t, report.FatalKind)
	assert.Equal(t, []string{naverWriteURL}, f.browser.navigated)
	require.NotNil(t, f.browser.applied)
	assert.Len(t, f.browser.applied.Cookies, 1)

	title, ok := report.Outcome(schemas.RoleTitleField)
	require.True(t, ok)
	assert.True(t, title.Succeeded)
	assert.Equal(t, 0, title.StrategyUsed)
	require.NotNil(t, title.VerifiedLength)
	assert.Equal(t, 11, *title.VerifiedLength)
	assert.Equal(t, "Hello World", f.browser.buffers["title"])

	body, ok := report.Outcome(schemas.RoleBodyEditor)
	require.True(t, ok)
	assert.True(t, body.Succeeded)
	assert.Equal(t, "editable-region", body.Technique)
	assert.Equal(t, []string{"Line one.\nLine two."}, f.browser.pasted)
	require.NotNil(t, body.VerifiedLength)
	assert.Equal(t, 19, *body.VerifiedLength)
	assert.Empty(t, body.Warning)

	assert.Len(t, report.Outcomes, 2)
	require.Len(t, report.Diagnostics, 1)
	assert.Equal(t, diagnostics.LabelAfterFill, report.Diagnostics[0].Label)
	assert.Equal(t, filepath.Join(f.dir, "naver_write_filled.png"), report.Diagnostics[0].ScreenshotPath)
	assert.False(t, report.FinishedAt.Before(report.StartedAt))
}

func TestRun_MissingDocumentIsPrecondition(t *testing.T) {
	f := newFixture(t)
	f.saveArtifact(t, "naver")

	e := f.engine(t, "naver", Options{})
	report, err := e.Run(context.Background(), filepath.Join(f.dir, "nope.txt"))
	require.Error(t, err)
	assert.False(t, e.PageUsed())
	assert.Equal(t, schemas.KindPrecondition, schemas.KindOf(err))
	assert.Equal(t, schemas.KindPrecondition, report.FatalKind)
	assert.Empty(t, f.browser.navigated)
	assert.Empty(t, report.Diagnostics, "nothing was shown in the browser yet")
}

func TestRun_MissingArtifact(t *testing.T) {
	t.Run("LaunchedBrowserFails", func(t *testing.T) {
		f := newFixture(t)
		doc := f.writeDoc(t, "[제목: T]\nbody")

		_, err := f.engine(t, "naver", Options{}).Run(context.Background(), doc)
		require.Error(t, err)
		assert.True(t, schemas.IsFatal(err))
		assert.Contains(t, err.Error(), "postpilot login")
		assert.Empty(t, f.browser.navigated)
	})

	t.Run("AttachedBrowserContinues", func(t *testing.T) {
		f := newFixture(t)
		f.naverPage()
		doc := f.writeDoc(t, "[제목: T]\nbody")

		report, err := f.engine(t, "naver", Options{Attached: true}).Run(context.Background(), doc)
		require.NoError(t, err)
		assert.Nil(t, f.browser.applied)
		assert.Len(t, report.Outcomes, 2)
	})
}

func TestRun_LoginGate(t *testing.T) {
	t.Run("WaitsThenSavesAndRenavigates", func(t *testing.T) {
		f := newFixture(t)
		f.naverPage()
		f.saveArtifact(t, "naver")
		f.browser.urls[naverWriteURL] = "https://nid.naver.com/nidlogin.login?url=x"
		f.browser.cookies = []*schemas.Cookie{
			{Name: "NID_AUT", Value: "fresh", Domain: ".naver.com"},
			{Name: "NID_SES", Value: "fresh", Domain: ".naver.com"},
		}
		doc := f.writeDoc(t, "[제목: T]\nbody")

		_, err := f.engine(t, "naver", Options{}).Run(context.Background(), doc)
		require.NoError(t, err)
		assert.Equal(t, []string{naverWriteURL, naverWriteURL}, f.browser.navigated)

		art, err := f.artifacts.Load("naver")
		require.NoError(t, err)
		assert.Len(t, art.Cookies, 2, "the artifact is refreshed after login")
	})

	t.Run("TimeoutIsPrecondition", func(t *testing.T) {
		f := newFixture(t)
		f.naverPage()
		f.saveArtifact(t, "naver")
		f.cfg.Session.LoginTimeout = 0
		f.browser.urls[naverWriteURL] = "https://nid.naver.com/nidlogin.login"
		doc := f.writeDoc(t, "[제목: T]\nbody")

		report, err := f.engine(t, "naver", Options{}).Run(context.Background(), doc)
		require.Error(t, err)
		assert.Equal(t, schemas.KindPrecondition, schemas.KindOf(err))
		require.Len(t, report.Diagnostics, 1)
		assert.Equal(t, diagnostics.LabelOnError, report.Diagnostics[0].Label)
		assert.Equal(t, filepath.Join(f.dir, "naver_error.png"), report.Diagnostics[0].ScreenshotPath)
		assert.Empty(t, report.Outcomes)
	})
}

func TestRun_TitleNotFoundIsRecorded(t *testing.T) {
	f := newFixture(t)
	f.naverPage()
	delete(f.browser.elements, "#post-title-inp")
	f.saveArtifact(t, "naver")
	doc := f.writeDoc(t, "[제목: Hello]\nbody text")

	report, err := f.engine(t, "naver", Options{}).Run(context.Background(), doc)
	require.NoError(t, err)

	title, _ := report.Outcome(schemas.RoleTitleField)
	assert.True(t, title.Attempted)
	assert.False(t, title.Succeeded)
	assert.Equal(t, -1, title.StrategyUsed)
	assert.Contains(t, title.Warning, "locate failure")

	body, _ := report.Outcome(schemas.RoleBodyEditor)
	assert.True(t, body.Succeeded, "a missing title does not stop the body")
	assert.Equal(t, 1, report.SoftFailures())
}

func TestRun_InjectionRetriedOnce(t *testing.T) {
	t.Run("SecondAttemptSucceeds", func(t *testing.T) {
		f := newFixture(t)
		f.naverPage()
		f.saveArtifact(t, "naver")
		f.browser.pasteFailures = 1
		doc := f.writeDoc(t, "[제목: T]\nbody text")

		report, err := f.engine(t, "naver", Options{}).Run(context.Background(), doc)
		require.NoError(t, err)
		body, _ := report.Outcome(schemas.RoleBodyEditor)
		assert.True(t, body.Succeeded)
		assert.Equal(t, []string{"body text"}, f.browser.pasted)
	})

	t.Run("SecondFailureIsRecorded", func(t *testing.T) {
		f := newFixture(t)
		f.naverPage()
		f.saveArtifact(t, "naver")
		f.browser.pasteFailures = 2
		doc := f.writeDoc(t, "[제목: T]\nbody text")

		report, err := f.engine(t, "naver", Options{}).Run(context.Background(), doc)
		require.NoError(t, err)
		body, _ := report.Outcome(schemas.RoleBodyEditor)
		assert.False(t, body.Succeeded)
		assert.Contains(t, body.Warning, "injection failure")
		assert.Nil(t, body.VerifiedLength)
	})
}

func TestRun_TransportErrorAborts(t *testing.T) {
	f := newFixture(t)
	f.naverPage()
	f.saveArtifact(t, "naver")
	f.browser.clickErr = schemas.Errorf(schemas.KindTransport, "click", "websocket closed")
	doc := f.writeDoc(t, "[제목: T]\nbody")

	report, err := f.engine(t, "naver", Options{}).Run(context.Background(), doc)
	require.Error(t, err)
	assert.Equal(t, schemas.KindTransport, schemas.KindOf(err))
	assert.Equal(t, schemas.KindTransport, report.FatalKind)
	require.Len(t, report.Diagnostics, 1)
	assert.Equal(t, diagnostics.LabelOnError, report.Diagnostics[0].Label)
}

func TestRun_CancelledContext(t *testing.T) {
	f := newFixture(t)
	f.naverPage()
	f.saveArtifact(t, "naver")
	doc := f.writeDoc(t, "[제목: T]\nbody")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.engine(t, "naver", Options{}).Run(ctx, doc)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRun_NaverIgnoresCategoryAndTags(t *testing.T) {
	f := newFixture(t)
	f.naverPage()
	f.saveArtifact(t, "naver")
	doc := f.writeDoc(t, "[제목: T]\n[카테고리: Go]\n[태그: a, b]\nbody")

	report, err := f.engine(t, "naver", Options{}).Run(context.Background(), doc)
	require.NoError(t, err)

	cat, ok := report.Outcome(schemas.RoleCategoryTrigger)
	require.True(t, ok)
	assert.False(t, cat.Attempted)
	assert.Contains(t, cat.Warning, "no control")
	tags, ok := report.Outcome(schemas.RoleTagInput)
	require.True(t, ok)
	assert.False(t, tags.Attempted)
}

func TestRun_TistoryAllFields(t *testing.T) {
	f := newFixture(t)
	f.tistoryPage()
	f.browser.elements["카테고리 없음"] = "default-option"
	f.saveArtifact(t, "tistory")
	doc := f.writeDoc(t, "[제목: Hello]\n[카테고리: Missing]\n[태그: go, #cli, go]\nFirst line.\n\nSecond line.")

	report, err := f.engine(t, "tistory", Options{BlogID: "myblog"}).Run(context.Background(), doc)
	require.NoError(t, err)
	assert.Equal(t,
		[]string{"https://myblog.tistory.com/manage/newpost/?type=post&returnURL=%2Fmanage%2Fposts%2F"},
		f.browser.navigated)

	roles := make([]schemas.Role, 0, len(report.Outcomes))
	for _, o := range report.Outcomes {
		roles = append(roles, o.Role)
	}
	assert.Equal(t, []schemas.Role{
		schemas.RoleTitleField, schemas.RoleBodyEditor, schemas.RoleCategoryTrigger, schemas.RoleTagInput,
	}, roles)

	body, _ := report.Outcome(schemas.RoleBodyEditor)
	assert.True(t, body.Succeeded)
	assert.Equal(t, "<p>First line.</p>\n<p>&nbsp;</p>\n<p>Second line.</p>", f.browser.editors["editor-tistory"])
	require.NotNil(t, body.VerifiedLength)
	assert.Empty(t, body.Warning)

	cat, _ := report.Outcome(schemas.RoleCategoryTrigger)
	assert.True(t, cat.Attempted)
	assert.False(t, cat.Succeeded, "the default category is not the requested one")
	assert.Contains(t, cat.Warning, "카테고리 없음")
	assert.Contains(t, f.browser.clicked, "default-option")

	tags, _ := report.Outcome(schemas.RoleTagInput)
	assert.True(t, tags.Succeeded)
	assert.Equal(t, "go\ncli\n", f.browser.buffers["tags"])

	// Finalize presses Escape and never clicks anything labelled publish.
	assert.Equal(t, "Escape", f.browser.pressed[len(f.browser.pressed)-1])
	for _, ref := range f.browser.clicked {
		assert.False(t, strings.Contains(ref, "publish"))
	}
}

func TestRun_TistoryWithoutBlogID(t *testing.T) {
	f := newFixture(t)
	f.saveArtifact(t, "tistory")
	doc := f.writeDoc(t, "[제목: T]\nbody")

	profile, err := platform.NewRegistry().Get("tistory", config.PlatformConfig{})
	require.NoError(t, err)
	_, err = New(f.cfg, profile, f.browser, f.artifacts, Options{}, nil).Run(context.Background(), doc)
	require.Error(t, err)
	assert.Equal(t, schemas.KindPrecondition, schemas.KindOf(err))
	assert.Empty(t, f.browser.navigated)
}

func TestRun_TitleFromFilename(t *testing.T) {
	f := newFixture(t)
	f.naverPage()
	f.saveArtifact(t, "naver")
	f.cfg.Publish.TitleFromFilename = true
	doc := f.writeDoc(t, "no marker here")

	report, err := f.engine(t, "naver", Options{}).Run(context.Background(), doc)
	require.NoError(t, err)
	assert.Equal(t, "post", report.Title)
	assert.False(t, report.TitleFound)
	assert.Equal(t, "post", f.browser.buffers["title"])
}
