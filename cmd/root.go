// File: cmd/root.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/postpilot/internal/config"
	"github.com/xkilldash9x/postpilot/internal/observability"
)

// app carries what PersistentPreRunE prepared to every subcommand.
type app struct {
	cfgFile string
	v       *viper.Viper
	cfg     *config.Config
	logger  *zap.Logger
}

// NewRootCommand builds a fresh command tree. Every call returns independent
// flag and config state.
func NewRootCommand() *cobra.Command {
	a := &app{}
	rootCmd := &cobra.Command{
		Use:     "postpilot",
		Short:   "postpilot fills blog editors from plain text documents.",
		Long:    "postpilot drives a Chromium browser to fill the write page of Tistory or Naver Blog\nfrom a text document. It never presses publish.",
		Version: Version,
		// Errors are logged by Execute.
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := a.load(cmd); err != nil {
				return err
			}
			observability.InitializeLogger(a.cfg.Logger)
			a.logger = observability.GetLogger()
			a.logger.Debug("Starting postpilot", zap.String("version", Version))
			return nil
		},
	}
	rootCmd.PersistentFlags().StringVarP(&a.cfgFile, "config", "c", "", "config file (default is ./config.yaml)")
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	rootCmd.AddCommand(
		newPublishCmd(a),
		newLoginCmd(a),
		newSessionCmd(a),
		newHistoryCmd(a),
		newConfigCmd(a),
		newVersionCmd(),
	)
	return rootCmd
}

// Execute runs the command tree with ctx.
func Execute(ctx context.Context) error {
	err := NewRootCommand().ExecuteContext(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		observability.GetLogger().Error("Command execution failed", zap.Error(err))
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	observability.Sync()
	return err
}

// load reads the config file and environment, then binds command flags that
// shadow config keys.
func (a *app) load(cmd *cobra.Command) error {
	v := viper.New()
	config.SetDefaults(v)

	if a.cfgFile != "" {
		v.SetConfigFile(a.cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
	v.SetEnvPrefix("POSTPILOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || a.cfgFile != "" {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	if f := cmd.Flags().Lookup("platform"); f != nil {
		if err := v.BindPFlag("publish.platform", f); err != nil {
			return fmt.Errorf("failed to bind --platform: %w", err)
		}
	}
	if f := cmd.Flags().Lookup("remote-url"); f != nil {
		if err := v.BindPFlag("browser.remote_url", f); err != nil {
			return fmt.Errorf("failed to bind --remote-url: %w", err)
		}
	}

	cfg, err := config.NewConfigFromViper(v)
	if err != nil {
		return err
	}
	a.v, a.cfg = v, cfg
	return nil
}

// addBrowserFlags registers the flags shared by every command that opens a
// browser.
func addBrowserFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("platform", "p", "", "target platform: naver or tistory (default from publish.platform)")
	cmd.Flags().String("remote-url", "", "attach to a running Chrome at this DevTools URL instead of launching one")
}
