// File: cmd/session.go
package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/postpilot/api/schemas"
	pilotsession "github.com/xkilldash9x/postpilot/internal/session"
)

func newSessionCmd(a *app) *cobra.Command {
	sessionCmd := &cobra.Command{
		Use:   "session",
		Short: "Inspect saved sessions",
	}
	checkCmd := &cobra.Command{
		Use:   "check",
		Short: "Restore the saved session and report which login cookies are present",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.checkSession(cmd)
		},
	}
	addBrowserFlags(checkCmd)
	sessionCmd.AddCommand(checkCmd)
	return sessionCmd
}

func (a *app) checkSession(cmd *cobra.Command) error {
	ctx := cmd.Context()
	profile, err := a.resolveProfile("")
	if err != nil {
		return err
	}
	artifact, err := a.artifactStore().Load(profile.Name)
	if err != nil {
		return schemas.NewError(schemas.KindPrecondition, "session check", err)
	}

	b, closeBrowser, err := openBrowser(ctx, a)
	if err != nil {
		return fmt.Errorf("failed to open browser: %w", err)
	}
	defer closeBrowser()

	if err := b.ApplyStorageState(ctx, artifact.StorageState); err != nil {
		return err
	}
	if err := b.Navigate(ctx, profile.HomeURL); err != nil {
		return err
	}
	cookies, err := b.Cookies(ctx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "MARKER\tDOMAIN\tPRESENT")
	for i, present := range pilotsession.Present(profile.Markers, cookies) {
		m := profile.Markers[i]
		fmt.Fprintf(w, "%s\t%s\t%t\n", m.Name, m.Domain, present)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if pilotsession.Authenticated(profile.Markers, cookies) {
		_, err = fmt.Fprintf(out, "%s session is valid (saved %s)\n", profile.Name, artifact.SavedAt.Format("2006-01-02 15:04"))
		return err
	}
	return schemas.Errorf(schemas.KindPrecondition, "session check",
		"%s session is missing login cookies (run `postpilot login --platform %s`)", profile.Name, profile.Name)
}
