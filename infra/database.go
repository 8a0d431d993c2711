package infra

import (
	"errors"
	"fmt"
	"time"

	"github.com/amirasaad/ledger/infra/repository"
	"github.com/amirasaad/ledger/pkg/config"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDBConnection opens the database named by cnf. The sqlite driver is
// meant for local runs and tests; it is schema-migrated with AutoMigrate and
// limited to one connection so writers serialize.
func NewDBConnection(
	cnf *config.DB,
	appEnv string,
) (*gorm.DB, error) {
	if cnf == nil || cnf.Url == "" {
		return nil, errors.New("DATABASE_URL is not set")
	}

	var logMode logger.LogLevel
	if appEnv == "development" {
		logMode = logger.Info
	} else {
		logMode = logger.Silent
	}
	gormCfg := &gorm.Config{
		Logger:                 logger.Default.LogMode(logMode),
		SkipDefaultTransaction: true,
		TranslateError:         true,
		NowFunc:                func() time.Time { return time.Now().UTC() },
	}

	switch cnf.Driver {
	case "", "postgres":
		connection, err := gorm.Open(postgres.Open(cnf.Url), gormCfg)
		if err != nil {
			return nil, err
		}
		sqlDB, err := connection.DB()
		if err != nil {
			return nil, err
		}
		maxOpen := cnf.MaxOpenConns
		if maxOpen <= 0 {
			maxOpen = 25
		}
		sqlDB.SetMaxOpenConns(maxOpen)
		sqlDB.SetMaxIdleConns(maxOpen)
		sqlDB.SetConnMaxLifetime(1 * time.Hour)
		return connection, nil

	case "sqlite":
		connection, err := gorm.Open(sqlite.Open(cnf.Url), gormCfg)
		if err != nil {
			return nil, err
		}
		sqlDB, err := connection.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
		if err := connection.AutoMigrate(repository.Models()...); err != nil {
			return nil, fmt.Errorf("auto-migrate sqlite: %w", err)
		}
		return connection, nil

	default:
		return nil, fmt.Errorf("unsupported DATABASE_DRIVER %q", cnf.Driver)
	}
}
