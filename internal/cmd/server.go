package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/keyfobhq/keyfob/internal/server"
)

func newServerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "server",
		Short: "Start the keyfob server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var options server.Options
			if err := parseOptions(cmd, &options, "KEYFOB_SERVER"); err != nil {
				return err
			}

			dbFile, err := canonicalPath(options.DB.File)
			if err != nil {
				return err
			}
			options.DB.File = dbFile

			srv, err := server.New(options)
			if err != nil {
				return fmt.Errorf("creating server: %w", err)
			}
			return runServer(cmd.Context(), srv)
		},
	}

	cmd.Flags().StringP("config-file", "f", "", "Server configuration file")
	cmd.Flags().Int("sessions-max-active", 10, "Maximum number of active sessions per owner")
	cmd.Flags().Duration("sessions-ttl", 12*time.Hour, "Session lifetime")
	cmd.Flags().Int("access-keys-max-active", 0, "Maximum number of active access keys per owner, 0 for no limit")
	cmd.Flags().Duration("access-keys-default-ttl", 0, "Lifetime of access keys issued without an expiry, 0 for no expiry")
	cmd.Flags().Duration("sweep-interval", 12*time.Hour, "How often to delete terminated credentials")
	cmd.Flags().Duration("sweep-retention", 30*24*time.Hour, "How long to keep terminated credentials before deletion")
	cmd.Flags().String("addr-metrics", ":9090", "Address to serve prometheus metrics on")
	cmd.Flags().String("db-file", "$HOME/.keyfob/sqlite3.db", "Path to SQLite 3 database")
	cmd.Flags().String("db-connection-string", "", "PostgreSQL connection string, takes precedence over db-file")

	return cmd
}

// shim for testing
var runServer = func(ctx context.Context, srv *server.Server) error {
	return srv.Run(ctx)
}
