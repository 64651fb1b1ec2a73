// File: cmd/history.go
package cmd

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/postpilot/api/schemas"
	"github.com/xkilldash9x/postpilot/internal/store"
)

// runLister is the part of store.Store history needs.
type runLister interface {
	RecentRuns(ctx context.Context, platform string, limit int) ([]schemas.RunReport, error)
}

var historyProvider = func(ctx context.Context, url string, logger *zap.Logger) (runLister, func(), error) {
	return store.Connect(ctx, url, logger)
}

func newHistoryCmd(a *app) *cobra.Command {
	var limit int
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "List recent runs recorded in the database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.history(cmd, limit)
		},
	}
	historyCmd.Flags().StringP("platform", "p", "", "platform whose runs are listed (default from publish.platform)")
	historyCmd.Flags().IntVarP(&limit, "limit", "n", 10, "maximum number of runs")
	return historyCmd
}

func (a *app) history(cmd *cobra.Command, limit int) error {
	if a.cfg.Report.DatabaseURL == "" {
		return fmt.Errorf("no database configured: set report.database_url")
	}
	platformName := a.cfg.Publish.Platform
	if platformName == "" {
		return fmt.Errorf("no platform selected: pass --platform or set publish.platform")
	}

	ctx := cmd.Context()
	s, closeStore, err := historyProvider(ctx, a.cfg.Report.DatabaseURL, a.logger)
	if err != nil {
		return err
	}
	defer closeStore()

	runs, err := s.RecentRuns(ctx, platformName, limit)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(runs) == 0 {
		_, err := fmt.Fprintf(out, "No runs recorded for %s.\n", platformName)
		return err
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STARTED\tRUN\tDOCUMENT\tTITLE\tRESULT")
	for _, r := range runs {
		result := "ok"
		if r.FatalKind != "" {
			result = "aborted (" + string(r.FatalKind) + ")"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			r.StartedAt.Local().Format("2006-01-02 15:04"), r.RunID, r.DocumentPath, r.Title, result)
	}
	return w.Flush()
}
