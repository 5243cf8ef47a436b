package cmd

import (
	"fmt"

	"github.com/jmehdipour/wx-ci/internal/config"
	"github.com/jmehdipour/wx-ci/internal/db"
	"github.com/jmehdipour/wx-ci/internal/repository"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the run history table for the configured driver",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgPath, "", "")
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if cfg.History.Driver == "" {
			return fmt.Errorf("history.driver is not configured")
		}

		dbx, err := db.Open(cfg.HistoryOpts())
		if err != nil {
			return fmt.Errorf("%s connect: %w", cfg.History.Driver, err)
		}
		defer dbx.Close()

		if err := repository.NewRunsRepository(dbx).Migrate(cmd.Context()); err != nil {
			return err
		}

		fmt.Println(">> Migration complete ✅")
		return nil
	},
}
