package db

import (
	"context"
	"fmt"
	"time"

	"musinotes/config"
	"musinotes/logger"
	"musinotes/model"

	"github.com/go-sql-driver/mysql"
	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const (
	DriverMySQL  = "mysql"
	DriverSQLite = "sqlite3"
)

// Open connects with GORM and configures the underlying database/sql pool.
// Repositories use the pool through (*gorm.DB).DB(); GORM itself owns the schema.
func Open(cfg config.DatabaseConfig) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case DriverMySQL:
		dialector = gormmysql.Open(MySQLDSN(cfg))
	case DriverSQLite, "sqlite":
		dialector = sqlite.Open(SQLiteDSN(cfg.SQLitePath))
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", cfg.Driver)
	}

	logLevel := gormlogger.Silent
	if cfg.LogQueries {
		logLevel = gormlogger.Info
	}

	gormDB, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(logLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect database with GORM: %w", err)
	}

	if err := gormDB.Use(otelgorm.NewPlugin(otelgorm.WithoutQueryVariables())); err != nil {
		return nil, fmt.Errorf("failed to install tracing plugin: %w", err)
	}

	sqlDB, err := gormDB.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("Connected to database", logger.String("driver", cfg.Driver))
	return gormDB, nil
}

// MySQLDSN builds the go-sql-driver DSN. Timeout bounds the connect wait.
func MySQLDSN(cfg config.DatabaseConfig) string {
	c := mysql.NewConfig()
	c.User = cfg.User
	c.Passwd = cfg.Password
	c.Net = "tcp"
	c.Addr = fmt.Sprintf("%s:%s", cfg.Host, cfg.Port)
	c.DBName = cfg.Name
	c.ParseTime = true
	c.Loc = time.UTC
	// UPDATE reports matched rows, not changed rows.
	c.ClientFoundRows = true
	c.Timeout = cfg.ConnectTimeout
	c.Params = map[string]string{"charset": "utf8mb4"}
	return c.FormatDSN()
}

// SQLiteDSN enables foreign keys so ON DELETE CASCADE is honoured.
func SQLiteDSN(path string) string {
	return fmt.Sprintf("file:%s?_foreign_keys=on&_busy_timeout=5000", path)
}

// Migrate creates or updates the users and songs tables.
func Migrate(gormDB *gorm.DB) error {
	if err := gormDB.AutoMigrate(&model.User{}, &model.Song{}); err != nil {
		return fmt.Errorf("failed to auto migrate models: %w", err)
	}
	logger.Info("Database schema migrated")
	return nil
}

// Close releases the pool.
func Close(gormDB *gorm.DB) error {
	if gormDB == nil {
		return nil
	}
	sqlDB, err := gormDB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
