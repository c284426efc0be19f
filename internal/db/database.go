package db

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"face-attendance-go/config"
	"face-attendance-go/internal/core/models"

	"github.com/glebarez/sqlite" // pure Go SQLite driver
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DB is the process-wide connection set by Initialize.
var DB *gorm.DB

// Initialize opens the configured SQLite file, migrates the schema and stores
// the handle in DB.
func Initialize(cfg *config.Config) error {
	if cfg.DB.File != "" && !isMemory(cfg.DB.File) {
		dbDir := filepath.Dir(cfg.DB.File)
		if err := os.MkdirAll(dbDir, 0750); err != nil {
			log.Errorf("Failed to create database directory '%s': %v", dbDir, err)
			return fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	conn, err := Connect(cfg.DB.File)
	if err != nil {
		return err
	}
	DB = conn
	return nil
}

// Connect opens dsn and runs migrations. Tests pass "file::memory:".
func Connect(dsn string) (*gorm.DB, error) {
	gormLogger := logger.New(
		log.StandardLogger(),
		logger.Config{
			SlowThreshold:             2 * time.Second,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	log.Infof("Connecting to database: %s", dsn)

	conn, err := gorm.Open(sqlite.Open(withPragmas(dsn)), &gorm.Config{
		Logger:         gormLogger,
		TranslateError: true,
	})
	if err != nil {
		log.Errorf("Failed to connect to database: %v", err)
		return nil, fmt.Errorf("database connection failed: %w", err)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database connection: %w", err)
	}
	if isMemory(dsn) {
		// every new connection would open a fresh empty memory database
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetMaxOpenConns(100)
		sqlDB.SetConnMaxLifetime(time.Hour)
	}

	log.Info("Running database migrations...")
	if err := conn.AutoMigrate(
		&models.Person{},
		&models.ReferenceFace{},
		&models.Attendance{},
		&models.Recognition{},
	); err != nil {
		log.Errorf("Database migration failed: %v", err)
		return nil, fmt.Errorf("database migration failed: %w", err)
	}

	log.Info("Database ready")
	return conn, nil
}

// GetDB returns the handle set by Initialize.
func GetDB() (*gorm.DB, error) {
	if DB == nil {
		return nil, fmt.Errorf("database is not initialized")
	}
	return DB, nil
}

// Close releases the process-wide connection.
func Close() error {
	if DB == nil {
		return nil
	}
	sqlDB, err := DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func isMemory(dsn string) bool {
	return strings.Contains(dsn, ":memory:")
}

func withPragmas(dsn string) string {
	if isMemory(dsn) {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
}
