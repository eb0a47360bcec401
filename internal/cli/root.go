// Package cli wires the mailpipe commands together: configuration, logging,
// message building and delivery through the configured transport.
package cli

import (
	"context"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/shineum/mailpipe/internal/config"
)

// app carries state shared by all subcommands of one invocation.
type app struct {
	cfgFile  string
	logLevel string

	cfg *config.Config

	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

// Execute runs the root command against the process streams.
func Execute(ctx context.Context) error {
	return NewRootCommand(os.Stdin, os.Stdout, os.Stderr).ExecuteContext(ctx)
}

// NewRootCommand returns the mailpipe command tree bound to the given streams.
func NewRootCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	a := &app{
		stdin:  stdin,
		stdout: stdout,
		stderr: stderr,
	}

	root := &cobra.Command{
		Use:   "mailpipe",
		Short: "Build MIME messages with attachments and hand them to sendmail",
		Long: `mailpipe assembles a multipart/mixed message from a sender, recipient,
subject, plain-text body and any number of named file attachments, then
pipes it to the local sendmail binary or another configured transport.

Example:
  mailpipe build --from a@x.com --to b@y.com --subject Hi --body Hello \
      --attach report=q1.pdf --attach report=q2.pdf --attach logo=logo.png
  mailpipe send --in message.eml
  mailpipe mail --job nightly.yaml
  mailpipe inspect --in message.eml`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
	}

	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)

	root.PersistentFlags().StringVarP(&a.cfgFile, "config", "c", "", "path to YAML configuration file (optional)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level (debug, info, warn, error); overrides LOG_LEVEL")

	root.AddCommand(
		newBuildCommand(a),
		newSendCommand(a),
		newMailCommand(a),
		newInspectCommand(a),
	)

	return root
}

// init loads configuration and installs the default logger.
func (a *app) init() error {
	cfg, err := loadConfig(a.cfgFile)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
	}
	a.cfg = cfg

	setupLogger(a.stderr, cfg.Logging.Level, cfg.Logging.Format)
	return nil
}

// loadConfig loads configuration from the specified path (YAML + env override)
// or from environment variables only if no path is given.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFromFile(path)
	}
	return config.Load()
}
