// File: cmd/publish.go
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/postpilot/api/schemas"
	"github.com/xkilldash9x/postpilot/internal/engine"
	"github.com/xkilldash9x/postpilot/internal/reporting"
	"github.com/xkilldash9x/postpilot/internal/store"
)

// runStore is the part of store.Store publish needs.
type runStore interface {
	EnsureSchema(ctx context.Context) error
	SaveRun(ctx context.Context, report *schemas.RunReport) error
}

// storeProvider connects to the run history database.
var storeProvider = func(ctx context.Context, url string, logger *zap.Logger) (runStore, func(), error) {
	return store.Connect(ctx, url, logger)
}

func newPublishCmd(a *app) *cobra.Command {
	var blogID string
	publishCmd := &cobra.Command{
		Use:   "publish <document>",
		Short: "Fill the platform's write page from a document",
		Long: `Opens the write page of the selected platform, restores the saved session and
fills title, body, category and tags from the document. The post is never
submitted: review the editor and publish it yourself.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.publish(cmd, args[0], blogID)
		},
	}
	addBrowserFlags(publishCmd)
	publishCmd.Flags().StringVar(&blogID, "blog-id", "", "blog id used in the write URL (overrides platforms.<name>.blog_id)")
	return publishCmd
}

func (a *app) publish(cmd *cobra.Command, docPath, blogID string) error {
	ctx := cmd.Context()
	profile, err := a.resolveProfile(blogID)
	if err != nil {
		return err
	}
	if err := checkDocument(docPath); err != nil {
		return err
	}
	rep, err := reporting.New(a.cfg.Report.Format, a.cfg.Report.Output)
	if err != nil {
		return err
	}
	defer rep.Close()

	b, closeBrowser, err := openBrowser(ctx, a)
	if err != nil {
		return fmt.Errorf("failed to open browser: %w", err)
	}
	defer closeBrowser()

	e := engine.New(a.cfg, profile, b, a.artifactStore(), engine.Options{
		BlogID:   blogID,
		Attached: a.cfg.Browser.RemoteURL != "",
	}, a.logger)
	report, runErr := e.Run(ctx, docPath)

	if err := rep.Write(report); err != nil {
		a.logger.Error("Failed to write report.", zap.Error(err))
	}
	a.persist(ctx, report)

	a.holdBrowser(ctx, cmd, runErr, e.PageUsed())
	return runErr
}

// checkDocument rejects a missing or unreadable document before a browser is
// launched.
func checkDocument(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return schemas.NewError(schemas.KindPrecondition, "read document", err)
	}
	if info.IsDir() {
		return schemas.Errorf(schemas.KindPrecondition, "read document", "%s is a directory", path)
	}
	return nil
}

// persist records the run when a database is configured. Failures only warn.
func (a *app) persist(ctx context.Context, report *schemas.RunReport) {
	if a.cfg.Report.DatabaseURL == "" || report == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	s, closeStore, err := storeProvider(ctx, a.cfg.Report.DatabaseURL, a.logger)
	if err != nil {
		a.logger.Warn("Run history unavailable.", zap.Error(err))
		return
	}
	defer closeStore()
	if err := s.EnsureSchema(ctx); err != nil {
		a.logger.Warn("Run history unavailable.", zap.Error(err))
		return
	}
	if err := s.SaveRun(ctx, report); err != nil {
		a.logger.Warn("Failed to record run.", zap.String("run_id", report.RunID), zap.Error(err))
	}
}
