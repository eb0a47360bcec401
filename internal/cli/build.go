package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/shineum/mailpipe/internal/message"
)

func newBuildCommand(a *app) *cobra.Command {
	var (
		flags inputFlags
		out   string
	)

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build a MIME message and write it out",
		Long: `Build a multipart/mixed message without delivering it.

Each --attach name=path adds a file under a logical field name. Repeating a
name turns the field into a list, whose files are attached as name_0,
name_1 and so on. Fields declared with --field and never given a path are
skipped.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := a.build(&flags)
			if err != nil {
				return err
			}

			if out != "" {
				if err := os.WriteFile(out, raw, 0644); err != nil {
					return fmt.Errorf("failed to write message: %w", err)
				}
				slog.Info("message written", "path", out, "size", len(raw))
				return nil
			}

			_, err = a.stdout.Write(raw)
			return err
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVarP(&out, "out", "o", "", "write the message to a file instead of stdout")

	return cmd
}

// build turns the flags into a serialized message.
func (a *app) build(flags *inputFlags) ([]byte, error) {
	in, err := flags.input()
	if err != nil {
		return nil, err
	}

	raw, err := message.New(message.WithLogger(slog.Default())).Build(in)
	if err != nil {
		return nil, fmt.Errorf("failed to build message: %w", err)
	}
	return raw, nil
}
