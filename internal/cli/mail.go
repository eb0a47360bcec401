package cli

import (
	"github.com/spf13/cobra"
)

func newMailCommand(a *app) *cobra.Command {
	var flags inputFlags

	cmd := &cobra.Command{
		Use:   "mail",
		Short: "Build a message and deliver it in one step",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := a.build(&flags)
			if err != nil {
				return err
			}
			return a.send(cmd.Context(), raw)
		},
	}

	flags.register(cmd)

	return cmd
}
