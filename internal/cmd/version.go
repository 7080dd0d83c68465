package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/keyfobhq/keyfob/internal"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Display the keyfob version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), internal.FullVersion())
			return nil
		},
	}
}
