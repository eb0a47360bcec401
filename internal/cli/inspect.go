package cli

import (
	"io"

	"github.com/spf13/cobra"

	"github.com/shineum/mailpipe/internal/parser"
	"github.com/shineum/mailpipe/internal/provider/stdout"
)

func newInspectCommand(a *app) *cobra.Command {
	var in string

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Print a summary of a serialized message",
		Long: `Parse a message from --in or standard input and print its headers, body and
attachments. Attachment lines show the logical field name when the message
carries one.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := a.readMessage(in)
			if err != nil {
				return err
			}

			msg, err := parser.Parse(raw)
			if err != nil {
				return err
			}

			_, err = io.WriteString(a.stdout, stdout.Summary(msg))
			return err
		},
	}

	cmd.Flags().StringVarP(&in, "in", "i", "", "read the message from a file instead of stdin")

	return cmd
}
