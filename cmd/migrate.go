package cmd

import (
	"fmt"

	"github.com/kopihq/kopi/db"
	"github.com/kopihq/kopi/internal/config"
	"github.com/kopihq/kopi/internal/log"
)

func migrateDatabase(cfg *config.Config, logger log.Logger) error {
	if err := db.Migrate(cfg.DSN(), logger); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	logger.Info("database migrations applied")
	return nil
}
