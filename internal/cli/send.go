package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

func newSendCommand(a *app) *cobra.Command {
	var in string

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Deliver a serialized message through the configured transport",
		Long: `Read a serialized message from --in or standard input and hand it to the
configured transport. Output captured from the transport is copied to
standard output and standard error. A non-zero sendmail exit status is
reported but is only an error when sendmail.strict is enabled.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := a.readMessage(in)
			if err != nil {
				return err
			}
			return a.send(cmd.Context(), raw)
		},
	}

	cmd.Flags().StringVarP(&in, "in", "i", "", "read the message from a file instead of stdin")

	return cmd
}

// readMessage reads a message from path, or from stdin when path is empty.
func (a *app) readMessage(path string) ([]byte, error) {
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read message: %w", err)
		}
		return raw, nil
	}

	raw, err := io.ReadAll(a.stdin)
	if err != nil {
		return nil, fmt.Errorf("failed to read message from stdin: %w", err)
	}
	return raw, nil
}

// send delivers raw and relays the captured transport output.
func (a *app) send(ctx context.Context, raw []byte) error {
	if ctx == nil {
		ctx = context.Background()
	}

	prov, err := selectProvider(ctx, a.cfg, a.stdout)
	if err != nil {
		return err
	}

	capture, sendErr := prov.Send(ctx, raw)
	if capture != nil {
		if _, err := a.stdout.Write(capture.Stdout); err != nil {
			return fmt.Errorf("failed to write transport output: %w", err)
		}
		if _, err := a.stderr.Write(capture.Stderr); err != nil {
			return fmt.Errorf("failed to write transport output: %w", err)
		}
	}
	if sendErr != nil {
		return fmt.Errorf("%s: %w", prov.Name(), sendErr)
	}

	if capture.Failed() {
		slog.Warn("transport exited with non-zero status",
			"transport", prov.Name(),
			"exit_code", capture.ExitCode,
		)
		return nil
	}

	slog.Info("message handed off",
		"transport", prov.Name(),
		"size", len(raw),
	)
	return nil
}
