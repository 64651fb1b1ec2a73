// File: cmd/helpers.go
package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/postpilot/api/schemas"
	"github.com/xkilldash9x/postpilot/internal/browser"
	"github.com/xkilldash9x/postpilot/internal/browser/session"
	"github.com/xkilldash9x/postpilot/internal/engine"
	"github.com/xkilldash9x/postpilot/internal/platform"
	pilotsession "github.com/xkilldash9x/postpilot/internal/session"
)

var _ engine.Browser = (*session.Session)(nil)

// browserOpener opens a browser and returns the tab plus a close function.
// Tests replace it to avoid launching Chrome.
type browserOpener func(ctx context.Context, a *app) (engine.Browser, func(), error)

var openBrowser browserOpener = func(ctx context.Context, a *app) (engine.Browser, func(), error) {
	m := browser.NewManager(a.cfg.Browser, a.logger)
	s, err := m.Open(ctx)
	if err != nil {
		m.Close()
		return nil, nil, err
	}
	return s, m.Close, nil
}

// resolveProfile builds the profile of the platform selected by --platform
// or publish.platform.
func (a *app) resolveProfile(blogID string) (*platform.Profile, error) {
	name := strings.ToLower(strings.TrimSpace(a.cfg.Publish.Platform))
	if name == "" {
		return nil, fmt.Errorf("no platform selected: pass --platform or set publish.platform")
	}
	pcfg, _ := a.cfg.Platform(name)
	if blogID != "" {
		pcfg.BlogID = blogID
	}
	return platform.NewRegistry().Get(name, pcfg)
}

// artifactStore maps every registered platform to its configured auth file.
func (a *app) artifactStore() *pilotsession.ArtifactStore {
	reg := platform.NewRegistry()
	files := make(map[string]string)
	for _, name := range reg.Names() {
		pcfg, _ := a.cfg.Platform(name)
		if p, err := reg.Get(name, pcfg); err == nil && p.AuthFile != "" {
			files[name] = p.AuthFile
		}
	}
	return pilotsession.NewArtifactStore(a.cfg.Session.AuthDir, files, a.logger)
}

// holdBrowser blocks until ctx is cancelled so a launched browser stays
// open for manual review: after a failed run that reached the page unless the
// control channel is gone, and after a successful one when browser.keep_open
// is set.
func (a *app) holdBrowser(ctx context.Context, cmd *cobra.Command, runErr error, pageUsed bool) {
	if a.cfg.Browser.RemoteURL != "" || ctx.Err() != nil {
		return
	}
	switch {
	case runErr != nil && !pageUsed:
		return
	case runErr != nil && schemas.KindOf(runErr) == schemas.KindTransport:
		return
	case runErr == nil && !a.cfg.Browser.KeepOpen:
		return
	}
	a.logger.Info("Browser left open for review. Press Ctrl+C to exit.")
	fmt.Fprintln(cmd.ErrOrStderr(), "Browser left open for review. Press Ctrl+C to exit.")
	<-ctx.Done()
	a.logger.Debug("Closing browser.", zap.Error(ctx.Err()))
}
