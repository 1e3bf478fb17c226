package db

import (
	"fmt"
	"log"
	"os"
	"time"

	"docqa/internal/config"
	"docqa/internal/models"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// GormDB wraps the GORM database instance
type GormDB struct {
	*gorm.DB
}

// NewGorm connects to Postgres, enables pgvector and migrates the schema.
func NewGorm(cfg *config.Config, zapLogger *zap.Logger) (*GormDB, error) {
	dsn := cfg.DatabaseURL()

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.New(
			log.New(os.Stdout, "\r\n", log.LstdFlags),
			logger.Config{
				SlowThreshold:             200 * time.Millisecond,
				LogLevel:                  GormLogLevel(cfg.LogLevel),
				IgnoreRecordNotFoundError: true,
			},
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.Exec("CREATE EXTENSION IF NOT EXISTS vector").Error; err != nil {
		return nil, fmt.Errorf("failed to enable pgvector extension: %w", err)
	}

	// Ranking scans chunks in Go, so no vector index is created.
	if err := db.AutoMigrate(
		&models.Document{},
		&models.Chunk{},
		&models.IngestionJob{},
		&models.QASession{},
	); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	zapLogger.Info("database connected and migrated",
		zap.String("host", cfg.DBHost),
		zap.String("database", cfg.DBName),
	)

	return &GormDB{db}, nil
}

// GormLogLevel maps the service log level to GORM's. SQL statements are only
// logged at debug.
func GormLogLevel(level string) logger.LogLevel {
	switch level {
	case "debug":
		return logger.Info
	case "info", "warn":
		return logger.Warn
	default:
		return logger.Error
	}
}

// Close closes the database connection
func (db *GormDB) Close() error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
