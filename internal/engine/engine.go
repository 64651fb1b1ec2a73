// internal/engine/engine.go
package engine

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/postpilot/api/schemas"
	"github.com/xkilldash9x/postpilot/internal/browser/humanoid"
	"github.com/xkilldash9x/postpilot/internal/config"
	"github.com/xkilldash9x/postpilot/internal/diagnostics"
	"github.com/xkilldash9x/postpilot/internal/document"
	"github.com/xkilldash9x/postpilot/internal/inject"
	"github.com/xkilldash9x/postpilot/internal/locator"
	"github.com/xkilldash9x/postpilot/internal/platform"
	pilotsession "github.com/xkilldash9x/postpilot/internal/session"
)

// -- Interfaces for Dependency Inversion --

// Browser is every page operation a run performs. The chromedp session
// implements it; tests use an in-memory page.
type Browser interface {
	locator.Page
	inject.Driver
	platform.Actions
	diagnostics.Prober
	diagnostics.TextReader
	pilotsession.CookieSource
	humanoid.Executor

	Navigate(ctx context.Context, url string) error
	ApplyStorageState(ctx context.Context, state schemas.StorageState) error
	CaptureStorageState(ctx context.Context) (schemas.StorageState, error)
}

// Options tune a single Engine.
type Options struct {
	// BlogID overrides the configured blog id of the platform.
	BlogID string
	// Attached means the browser was started by the user, who may already be
	// logged in, so a missing artifact is not fatal.
	Attached bool
}

const (
	locatePoll      = 500 * time.Millisecond
	snapshotTimeout = 20 * time.Second
)

// Engine runs the document-to-editor pipeline against one platform.
type Engine struct {
	cfg       *config.Config
	profile   *platform.Profile
	browser   Browser
	artifacts *pilotsession.ArtifactStore
	opts      Options
	logger    *zap.Logger

	locator   *locator.Locator
	injector  *inject.Injector
	verifier  *diagnostics.Verifier
	collector *diagnostics.Collector

	pageUsed bool
}

// New wires an Engine. Nothing touches the browser until Run.
func New(cfg *config.Config, profile *platform.Profile, b Browser, artifacts *pilotsession.ArtifactStore, opts Options, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("engine").With(zap.String("platform", profile.Name))

	loc := locator.New(b, logger)
	typist := humanoid.New(cfg.Humanoid, logger, b)
	return &Engine{
		cfg:       cfg,
		profile:   profile,
		browser:   b,
		artifacts: artifacts,
		opts:      opts,
		logger:    logger,
		locator:   loc,
		injector:  inject.New(b, typist, loc, cfg.Publish.SettleDelay, logger),
		verifier:  diagnostics.NewVerifier(loc, b, cfg.Publish.VerifyMinRatio, logger),
		collector: diagnostics.NewCollector(b, profile.Name, cfg.Diagnostics.Dir, profile.Probes,
			cfg.Diagnostics.ActiveElementLimit, logger),
	}
}

// Run fills the editor with the document at docPath. Field level failures
// are recorded in the report; only precondition and transport failures (and
// cancellation) are returned. The browser is never closed here.
func (e *Engine) Run(ctx context.Context, docPath string) (*schemas.RunReport, error) {
	report := &schemas.RunReport{
		RunID:        uuid.NewString(),
		Platform:     e.profile.Name,
		DocumentPath: docPath,
		StartedAt:    time.Now().UTC(),
		Outcomes:     []schemas.FillOutcome{},
	}
	log := e.logger.With(zap.String("run_id", report.RunID))
	log.Info("Run started.", zap.String("document", docPath))

	st := &runState{report: report, logger: log}
	err := e.run(ctx, docPath, st)
	e.pageUsed = st.browserUsed
	if err != nil {
		report.FatalKind = schemas.KindOf(err)
		report.FatalError = err.Error()
		log.Error("Run aborted.", zap.String("kind", string(report.FatalKind)), zap.Error(err))
		if st.browserUsed {
			snapCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), snapshotTimeout)
			report.Diagnostics = append(report.Diagnostics,
				e.collector.Snapshot(snapCtx, diagnostics.LabelOnError, e.cfg.Diagnostics.Screenshots))
			cancel()
		}
	}
	report.FinishedAt = time.Now().UTC()

	if err == nil {
		log.Info("Run finished. Review the editor and publish manually.",
			zap.Int("fields", len(report.Outcomes)),
			zap.Int("soft_failures", report.SoftFailures()),
			zap.Duration("elapsed", report.FinishedAt.Sub(report.StartedAt)))
	}
	return report, err
}

// PageUsed reports whether the last Run got as far as loading a session
// into the browser, so there is page state worth inspecting.
func (e *Engine) PageUsed() bool { return e.pageUsed }

type runState struct {
	report      *schemas.RunReport
	logger      *zap.Logger
	browserUsed bool
}

func (e *Engine) run(ctx context.Context, docPath string, st *runState) error {
	doc, err := e.readDocument(docPath, st)
	if err != nil {
		return err
	}

	writeURL, err := e.profile.WriteURL(e.opts.BlogID)
	if err != nil {
		return err
	}

	if err := e.applySession(ctx, st); err != nil {
		return err
	}
	if err := e.openEditor(ctx, writeURL, st.logger); err != nil {
		return err
	}

	if err := platform.RunSteps(ctx, e.browser, e.profile.Prep, st.logger); err != nil {
		return fatal("prepare page", err)
	}

	if err := e.fill(ctx, doc, st); err != nil {
		return err
	}

	if err := e.browser.Sleep(ctx, e.cfg.Publish.SettleDelay); err != nil {
		return fatal("settle", err)
	}
	st.report.Diagnostics = append(st.report.Diagnostics,
		e.collector.Snapshot(ctx, diagnostics.LabelAfterFill, e.cfg.Diagnostics.Screenshots))

	if err := platform.RunSteps(ctx, e.browser, e.profile.Finalize, st.logger); err != nil {
		return fatal("finalize", err)
	}
	return ctx.Err()
}

func (e *Engine) readDocument(path string, st *runState) (document.ParsedDocument, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return document.ParsedDocument{}, schemas.NewError(schemas.KindPrecondition, "read document", err)
	}
	doc := document.Parse(string(raw))
	if !doc.TitleFound {
		fallback := document.FallbackTitle(path)
		if e.cfg.Publish.TitleFromFilename && fallback != "" {
			doc.Title = fallback
		}
		st.logger.Warn("No title marker found.",
			zap.String("fallback_title", fallback),
			zap.String("title", doc.Title))
	}
	st.report.Title = doc.Title
	st.report.TitleFound = doc.TitleFound
	st.logger.Info("Document parsed.",
		zap.String("title", doc.Title),
		zap.Bool("has_category", doc.HasCategory()),
		zap.Strings("tags", doc.Tags),
		zap.Int("body_length", len([]rune(doc.Body))))
	return doc, nil
}

// applySession loads the saved login state into the browser.
func (e *Engine) applySession(ctx context.Context, st *runState) error {
	art, err := e.artifacts.Load(e.profile.Name)
	st.browserUsed = err == nil || e.opts.Attached
	if err != nil {
		if e.opts.Attached {
			st.logger.Info("No usable session artifact, relying on the attached browser.", zap.Error(err))
			return nil
		}
		if errors.Is(err, pilotsession.ErrNoArtifact) {
			return schemas.Errorf(schemas.KindPrecondition, "load session",
				"%v (run `postpilot login --platform %s` first)", err, e.profile.Name)
		}
		return schemas.NewError(schemas.KindPrecondition, "load session", err)
	}
	if err := e.browser.ApplyStorageState(ctx, art.StorageState); err != nil {
		return fatal("apply session", err)
	}
	return nil
}

// openEditor navigates to the write page and passes the login gate.
func (e *Engine) openEditor(ctx context.Context, writeURL string, log *zap.Logger) error {
	onLogin, err := e.navigate(ctx, writeURL)
	if err != nil {
		return err
	}
	if !onLogin {
		return nil
	}

	log.Warn("Redirected to the login page. Complete the login in the browser window.",
		zap.Duration("timeout", e.cfg.Session.LoginTimeout))
	monitor := pilotsession.NewMonitor(e.browser, e.profile.Markers, log)
	ok, err := monitor.WaitForAuthenticated(ctx, e.cfg.Session.PollInterval, e.cfg.Session.LoginTimeout)
	if err != nil {
		return err
	}
	if !ok {
		return schemas.Errorf(schemas.KindPrecondition, "login",
			"login was not completed within %s", e.cfg.Session.LoginTimeout)
	}

	if e.cfg.Session.SaveAfterLogin {
		if err := e.saveSession(ctx, log); err != nil {
			return err
		}
	}

	onLogin, err = e.navigate(ctx, writeURL)
	if err != nil {
		return err
	}
	if onLogin {
		return schemas.Errorf(schemas.KindPrecondition, "login",
			"still on the login page after authentication")
	}
	return nil
}

func (e *Engine) navigate(ctx context.Context, url string) (bool, error) {
	if err := e.browser.Navigate(ctx, url); err != nil {
		return false, fatal("open editor", err)
	}
	current, err := e.browser.CurrentURL(ctx)
	if err != nil {
		return false, fatal("read url", err)
	}
	return e.profile.IsLoginURL(current), nil
}

func (e *Engine) saveSession(ctx context.Context, log *zap.Logger) error {
	state, err := e.browser.CaptureStorageState(ctx)
	if err != nil {
		if isFatal(err) {
			return err
		}
		log.Warn("Could not capture session state.", zap.Error(err))
		return nil
	}
	if _, err := e.artifacts.Save(e.profile.Name, state); err != nil {
		log.Warn("Could not save session artifact.", zap.Error(err))
	}
	return nil
}

// fatal passes fatal errors and cancellation through and turns any other
// failure of a mandatory step into a precondition failure.
func fatal(op string, err error) error {
	if isFatal(err) {
		return err
	}
	return schemas.NewError(schemas.KindPrecondition, op, err)
}

func isFatal(err error) bool {
	return schemas.IsFatal(err) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

