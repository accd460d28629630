package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/memolanes/memolanes-server/internal/config"
	"github.com/memolanes/memolanes-server/internal/sqlitestore"
)

// newMigrateCmd applies pending schema migrations and exits — useful as a
// separate deploy-pipeline step ahead of serve, since sqlitestore.Open
// already runs migrations automatically on every startup.
func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations and exit",
		RunE:  runMigrate,
	}
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Resolve(flagBootstrapFile)
	if err != nil {
		return err
	}

	logger := slog.Default()

	db, err := sqlitestore.Open(cmd.Context(), cfg.DatabaseURL, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	logger.Info("migrations applied", slog.String("database_url", cfg.DatabaseURL))

	return nil
}
