// internal/diagnostics/diagnostics_test.go
package diagnostics

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xkilldash9x/postpilot/api/schemas"
	"github.com/xkilldash9x/postpilot/internal/locator"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

// textPage answers every selector with one visible candidate whose ref is
// the selector, and reads texts by ref.
type textPage struct {
	texts   map[string]string
	missing map[string]bool
	readErr error
}

func (p *textPage) Candidates(_ context.Context, s locator.Strategy) ([]locator.Candidate, error) {
	if p.missing[s.Value] {
		return nil, nil
	}
	return []locator.Candidate{{Ref: s.Value, Visible: true, Box: schemas.ElementGeometry{Width: 500, Height: 40}}}, nil
}

func (p *textPage) ReadText(_ context.Context, h locator.Handle) (string, error) {
	if p.readErr != nil {
		return "", p.readErr
	}
	return p.texts[h.Ref], nil
}

func filled(role schemas.Role, sel, expected string) Filled {
	return Filled{
		Outcome:  schemas.FillOutcome{Role: role, Attempted: true, Succeeded: true, StrategyUsed: 0},
		Target:   locator.Descriptor{Role: role, Strategies: []locator.Strategy{locator.ByCSS(sel)}},
		Expected: expected,
	}
}

func newVerifier(t *testing.T, p *textPage) *Verifier {
	logger := zaptest.NewLogger(t)
	return NewVerifier(locator.New(p, logger), p, 0.8, logger)
}

func TestVerify(t *testing.T) {
	t.Run("MatchRecordsLength", func(t *testing.T) {
		p := &textPage{texts: map[string]string{"#title": "Hello World"}}
		out := newVerifier(t, p).Verify(context.Background(), []Filled{filled(schemas.RoleTitleField, "#title", "Hello World")})
		require.Len(t, out, 1)
		require.NotNil(t, out[0].VerifiedLength)
		assert.Equal(t, 11, *out[0].VerifiedLength)
		assert.Empty(t, out[0].Warning)
		assert.True(t, out[0].Succeeded)
	})

	t.Run("WhitespaceIsCollapsed", func(t *testing.T) {
		p := &textPage{texts: map[string]string{"body": "Line one.\n\n\nLine two."}}
		out := newVerifier(t, p).Verify(context.Background(), []Filled{filled(schemas.RoleBodyEditor, "body", "Line one.\nLine two.")})
		assert.Equal(t, 19, *out[0].VerifiedLength)
		assert.Empty(t, out[0].Warning)
	})

	t.Run("ShortTextWarnsButStaysSucceeded", func(t *testing.T) {
		p := &textPage{texts: map[string]string{"body": "Line"}}
		out := newVerifier(t, p).Verify(context.Background(), []Filled{filled(schemas.RoleBodyEditor, "body", "Line one. Line two.")})
		assert.Equal(t, 4, *out[0].VerifiedLength)
		assert.Contains(t, out[0].Warning, "verification mismatch")
		assert.True(t, out[0].Succeeded)
	})

	t.Run("EmptyTarget", func(t *testing.T) {
		p := &textPage{texts: map[string]string{}}
		out := newVerifier(t, p).Verify(context.Background(), []Filled{filled(schemas.RoleTitleField, "#title", "Hello")})
		assert.Equal(t, 0, *out[0].VerifiedLength)
		assert.Contains(t, out[0].Warning, "empty")
	})

	t.Run("TargetGone", func(t *testing.T) {
		p := &textPage{missing: map[string]bool{"#title": true}}
		out := newVerifier(t, p).Verify(context.Background(), []Filled{filled(schemas.RoleTitleField, "#title", "Hello")})
		assert.Nil(t, out[0].VerifiedLength)
		assert.Contains(t, out[0].Warning, "verification skipped")
	})

	t.Run("ReadErrorIsSoft", func(t *testing.T) {
		p := &textPage{readErr: errors.New("detached")}
		out := newVerifier(t, p).Verify(context.Background(), []Filled{filled(schemas.RoleTitleField, "#title", "Hello")})
		assert.Nil(t, out[0].VerifiedLength)
		assert.Contains(t, out[0].Warning, "detached")
	})

	t.Run("UnfilledOutcomesPassThrough", func(t *testing.T) {
		f := filled(schemas.RoleTagInput, "#tags", "a b")
		f.Outcome.Succeeded = false
		f.Outcome.Warning = "tag input not found"
		out := newVerifier(t, &textPage{}).Verify(context.Background(), []Filled{f})
		assert.Equal(t, f.Outcome, out[0])
	})
}

func TestNewVerifierDefaultsRatio(t *testing.T) {
	v := NewVerifier(nil, nil, 0, nil)
	assert.Equal(t, DefaultMinRatio, v.minRatio)
}

type fakeProber struct {
	url        string
	frames     []string
	active     string
	counts     map[string]int
	failures   map[string]error
	screenshot string
}

func (p *fakeProber) CurrentURL(context.Context) (string, error) {
	return p.url, p.failures["url"]
}

func (p *fakeProber) Frames(context.Context) ([]string, error) {
	if err := p.failures["frames"]; err != nil {
		return nil, err
	}
	return p.frames, nil
}

func (p *fakeProber) ActiveElement(context.Context) (string, error) {
	return p.active, p.failures["active"]
}

func (p *fakeProber) Count(_ context.Context, sel string) (int, error) {
	if err := p.failures[sel]; err != nil {
		return 0, err
	}
	return p.counts[sel], nil
}

func (p *fakeProber) Screenshot(_ context.Context, path string) error {
	if err := p.failures["screenshot"]; err != nil {
		return err
	}
	p.screenshot = path
	return nil
}

func TestSnapshot(t *testing.T) {
	dir := t.TempDir()
	probes := []string{"#post-title-inp", "iframe"}

	t.Run("AllProbes", func(t *testing.T) {
		p := &fakeProber{
			url:    "https://blog.naver.com/me?Redirect=Write&",
			frames: []string{"https://blog.naver.com/editor"},
			active: "<textarea class=\"textarea_tit\"></textarea>",
			counts: map[string]int{"#post-title-inp": 0, "iframe": 2},
		}
		c := NewCollector(p, "naver", dir, probes, 0, zaptest.NewLogger(t))
		fixed := time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)
		c.now = func() time.Time { return fixed }

		b := c.Snapshot(context.Background(), LabelAfterFill, true)
		assert.Equal(t, LabelAfterFill, b.Label)
		assert.Equal(t, fixed, b.CapturedAt)
		assert.Equal(t, p.url, b.URL)
		assert.Equal(t, p.frames, b.Frames)
		assert.Equal(t, map[string]int{"#post-title-inp": 0, "iframe": 2}, b.Counts)
		assert.Equal(t, filepath.Join(dir, "naver_write_filled.png"), b.ScreenshotPath)
		assert.Equal(t, b.ScreenshotPath, p.screenshot)
		assert.Empty(t, b.ProbeErrors)
	})

	t.Run("ProbesFailIndependently", func(t *testing.T) {
		p := &fakeProber{
			url:    "https://x.tistory.com/manage/newpost/",
			active: "<body></body>",
			counts: map[string]int{"iframe": 1},
			failures: map[string]error{
				"frames":          errors.New("frame tree unavailable"),
				"#post-title-inp": errors.New("eval failed"),
				"screenshot":      errors.New("disk full"),
			},
		}
		core, logs := observer.New(zap.InfoLevel)
		c := NewCollector(p, "tistory", dir, probes, 0, zap.New(core))

		b := c.Snapshot(context.Background(), LabelOnError, true)
		assert.Equal(t, p.url, b.URL)
		assert.Empty(t, b.Frames)
		assert.Equal(t, "<body></body>", b.ActiveElement)
		assert.Equal(t, map[string]int{"iframe": 1}, b.Counts)
		assert.Empty(t, b.ScreenshotPath)
		assert.Equal(t, "disk full", b.ProbeErrors["screenshot"])
		assert.Equal(t, "frame tree unavailable", b.ProbeErrors["frames"])
		assert.Contains(t, b.ProbeErrors, "count #post-title-inp")
		assert.Equal(t, 1, logs.FilterMessage("Diagnostic snapshot.").Len())
	})

	t.Run("NoScreenshotRequested", func(t *testing.T) {
		p := &fakeProber{}
		b := NewCollector(p, "naver", dir, nil, 0, nil).Snapshot(context.Background(), LabelAfterFill, false)
		assert.Empty(t, p.screenshot)
		assert.Empty(t, b.ScreenshotPath)
	})
}

func TestScreenshotPath(t *testing.T) {
	c := NewCollector(&fakeProber{}, "naver", "/tmp/diag", nil, 0, nil)
	assert.Equal(t, "/tmp/diag/naver_write_filled.png", c.ScreenshotPath(LabelAfterFill))
	assert.Equal(t, "/tmp/diag/naver_error.png", c.ScreenshotPath(LabelOnError))
}

func TestTruncate(t *testing.T) {
	long := strings.Repeat("가", 300)
	got := truncate(long, DefaultActiveElementLimit)
	assert.True(t, strings.HasSuffix(got, "..."))
	assert.Equal(t, DefaultActiveElementLimit+3, len([]rune(got)))
	assert.Equal(t, "short", truncate("short", DefaultActiveElementLimit))
}
