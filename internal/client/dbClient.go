package client

import (
	"affiliate-commission/internal/config"
	"affiliate-commission/internal/model"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func InitDBClient(cfg config.Database, logger *zap.Logger) *gorm.DB {
	dialector, err := Dialector(cfg)
	if err != nil {
		logger.Fatal("unsupported database driver", zap.Error(err))
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}

	sqlDB, err := db.DB()
	if err != nil {
		logger.Fatal("failed to get sql db", zap.Error(err))
	}

	// Connection pool (webhooks and payout workers share it)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(50)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := Migrate(db); err != nil {
		logger.Fatal("failed to migrate database", zap.Error(err))
	}

	logger.Info("database connected", zap.String("driver", cfg.Driver))
	return db
}

func Dialector(cfg config.Database) (gorm.Dialector, error) {
	switch cfg.Driver {
	case "mysql":
		return mysql.Open(cfg.URL), nil
	case "postgres":
		return postgres.Open(cfg.URL), nil
	case "sqlite":
		return sqlite.Open(cfg.URL), nil
	default:
		return nil, fmt.Errorf("driver %q", cfg.Driver)
	}
}

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&model.User{},
		&model.Merchant{},
		&model.Affiliate{},
		&model.Order{},
	)
}
