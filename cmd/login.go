// File: cmd/login.go
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/postpilot/api/schemas"
	pilotsession "github.com/xkilldash9x/postpilot/internal/session"
)

func newLoginCmd(a *app) *cobra.Command {
	loginCmd := &cobra.Command{
		Use:   "login",
		Short: "Log in by hand and save the session for later runs",
		Long: `Opens the platform's login page and waits until the session cookies appear.
Complete the login (including any 2FA) in the browser window. The browser
state is then saved to the session artifact used by publish.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.login(cmd)
		},
	}
	addBrowserFlags(loginCmd)
	return loginCmd
}

func (a *app) login(cmd *cobra.Command) error {
	ctx := cmd.Context()
	profile, err := a.resolveProfile("")
	if err != nil {
		return err
	}

	b, closeBrowser, err := openBrowser(ctx, a)
	if err != nil {
		return fmt.Errorf("failed to open browser: %w", err)
	}
	defer closeBrowser()

	if err := b.Navigate(ctx, profile.LoginURL); err != nil {
		return err
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Log in to %s in the browser window (waiting up to %s).\n",
		profile.Name, a.cfg.Session.LoginTimeout)

	monitor := pilotsession.NewMonitor(b, profile.Markers, a.logger)
	ok, err := monitor.WaitForAuthenticated(ctx, a.cfg.Session.PollInterval, a.cfg.Session.LoginTimeout)
	if err != nil {
		return err
	}
	if !ok {
		return schemas.Errorf(schemas.KindPrecondition, "login",
			"login was not completed within %s", a.cfg.Session.LoginTimeout)
	}

	state, err := b.CaptureStorageState(ctx)
	if err != nil {
		return err
	}
	path, err := a.artifactStore().Save(profile.Name, state)
	if err != nil {
		return err
	}
	a.logger.Info("Session saved.", zap.String("platform", profile.Name), zap.String("path", path))
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "Session saved to %s\n", path)
	return err
}
