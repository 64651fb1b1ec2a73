// internal/diagnostics/collector.go
package diagnostics

import (
	"context"
	"path/filepath"
	"time"
	"unicode/utf8"

	"github.com/xkilldash9x/postpilot/api/schemas"
	"go.uber.org/zap"
)

// DefaultActiveElementLimit caps the focused element's markup in a bundle.
const DefaultActiveElementLimit = 260

// Labels of the snapshots the engine takes.
const (
	LabelAfterFill = "after-fill"
	LabelOnError   = "on-error"
)

// Prober is the read-only page surface a snapshot inspects.
type Prober interface {
	CurrentURL(ctx context.Context) (string, error)
	Frames(ctx context.Context) ([]string, error)
	ActiveElement(ctx context.Context) (string, error)
	Count(ctx context.Context, selector string) (int, error)
	Screenshot(ctx context.Context, path string) error
}

// Collector captures diagnostic bundles for one platform.
type Collector struct {
	prober   Prober
	platform string
	dir      string
	probes   []string
	limit    int
	logger   *zap.Logger
	now      func() time.Time
}

// NewCollector creates a Collector. Screenshots are written below dir.
func NewCollector(prober Prober, platform, dir string, probes []string, limit int, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	if limit <= 0 {
		limit = DefaultActiveElementLimit
	}
	return &Collector{
		prober:   prober,
		platform: platform,
		dir:      dir,
		probes:   probes,
		limit:    limit,
		logger:   logger.Named("diagnostics"),
		now:      time.Now,
	}
}

// ScreenshotPath returns the fixed screenshot file for a snapshot label.
func (c *Collector) ScreenshotPath(label string) string {
	suffix := "write_filled"
	if label == LabelOnError {
		suffix = "error"
	}
	return filepath.Join(c.dir, c.platform+"_"+suffix+".png")
}

// Snapshot probes the page. Every probe runs independently; a failing probe
// leaves its field empty and is recorded in ProbeErrors.
func (c *Collector) Snapshot(ctx context.Context, label string, withScreenshot bool) schemas.DiagnosticBundle {
	b := schemas.DiagnosticBundle{
		Label:      label,
		CapturedAt: c.now().UTC(),
		Frames:     []string{},
		Counts:     make(map[string]int, len(c.probes)),
	}
	fail := func(probe string, err error) {
		if b.ProbeErrors == nil {
			b.ProbeErrors = map[string]string{}
		}
		b.ProbeErrors[probe] = err.Error()
	}

	if u, err := c.prober.CurrentURL(ctx); err != nil {
		fail("url", err)
	} else {
		b.URL = u
	}
	if frames, err := c.prober.Frames(ctx); err != nil {
		fail("frames", err)
	} else if frames != nil {
		b.Frames = frames
	}
	if el, err := c.prober.ActiveElement(ctx); err != nil {
		fail("active_element", err)
	} else {
		b.ActiveElement = truncate(el, c.limit)
	}
	for _, sel := range c.probes {
		n, err := c.prober.Count(ctx, sel)
		if err != nil {
			fail("count "+sel, err)
			continue
		}
		b.Counts[sel] = n
	}
	if withScreenshot {
		path := c.ScreenshotPath(label)
		if err := c.prober.Screenshot(ctx, path); err != nil {
			fail("screenshot", err)
		} else {
			b.ScreenshotPath = path
		}
	}

	c.logger.Info("Diagnostic snapshot.",
		zap.String("label", b.Label),
		zap.String("url", b.URL),
		zap.Strings("frames", b.Frames),
		zap.String("active_element", b.ActiveElement),
		zap.Any("counts", b.Counts),
		zap.String("screenshot", b.ScreenshotPath),
		zap.Any("probe_errors", b.ProbeErrors))
	return b
}

// truncate cuts s to limit runes and marks the cut with "...".
func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	return string([]rune(s)[:limit]) + "..."
}
