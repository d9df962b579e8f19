package migration

import (
	"github.com/fabworks/cbbstore/internal/config"
	"github.com/fabworks/cbbstore/internal/seed"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}

		if err := RunMigrations(sqlDB); err != nil {
			return err
		}

		if cfg.SeedCatalog {
			return seed.EnsureDemoCatalog(conn)
		}
		return nil
	}),
)
