package migration

import (
	"context"
	"time"

	"github.com/smallbiznis/sygmef/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Module brings the schema up to date before the server accepts invoices.
// DATABASE_AUTO_MIGRATE=false leaves it to `sygmef migrate`.
var Module = fx.Module("migrations",
	fx.Invoke(registerStartupMigration),
)

func registerStartupMigration(lc fx.Lifecycle, conn *gorm.DB, cfg config.Config, log *zap.Logger) {
	log = log.Named("migration").With(zap.String("db_type", cfg.DBType))
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			if !cfg.DBAutoMigrate {
				log.Info("startup migration disabled")
				return nil
			}
			start := time.Now()
			if err := Apply(conn, cfg.DBType); err != nil {
				log.Error("startup migration failed", zap.Error(err))
				return err
			}
			log.Info("schema up to date", zap.Duration("took", time.Since(start)))
			return nil
		},
	})
}
