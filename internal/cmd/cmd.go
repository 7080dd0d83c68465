// Package cmd implements the keyfob command line interface.
package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/keyfobhq/keyfob/internal/logging"
)

// Run the main CLI command with the given args. The args should not contain
// the name of the binary (ex: os.Args[1:]).
func Run(ctx context.Context, args ...string) error {
	cmd := NewRootCmd()
	cmd.SetArgs(args)
	return cmd.ExecuteContext(ctx)
}

func NewRootCmd() *cobra.Command {
	var logLevel string

	rootCmd := &cobra.Command{
		Use:           "keyfob",
		Short:         "Credential lifecycle server",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return logging.SetLevel(logLevel)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.AddCommand(
		newServerCmd(),
		newVersionCmd(),
	)

	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Show logs when running the command [error, warn, info, debug]")
	return rootCmd
}
