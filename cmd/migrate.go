package cmd

import (
	"context"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the database schema",
	Run: func(_ *cobra.Command, _ []string) {
		migrate()
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func migrate() {
	ctx := context.Background()

	logger, config := setup()

	st, pool, err := openStore(ctx, config.Database, logger)
	if err != nil {
		logger.Fatal("opening store", zap.Error(err))
	}
	defer pool.Close()

	if err := st.Migrate(ctx); err != nil {
		logger.Fatal("applying schema", zap.Error(err))
	}
	logger.Info("schema is up to date")
}
