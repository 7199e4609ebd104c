package database

import (
	"fmt"
	"log"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/Ananth-NQI/truckpe-crew/internal/config"
)

// Connect opens the database selected by cfg. DATABASE_URL wins, then the
// Cloud SQL socket, then SQLITE_PATH, then a local PostgreSQL over TCP.
func Connect(cfg *config.Config) (*gorm.DB, error) {
	gormConfig := &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Warn),
	}

	var dialector gorm.Dialector
	switch {
	case cfg.DatabaseURL != "":
		log.Println("Connecting to PostgreSQL via DATABASE_URL")
		dialector = postgres.Open(cfg.DatabaseURL)
	case cfg.InstanceConnectionName != "":
		// Production: Connect via Unix socket
		dsn := fmt.Sprintf("host=/cloudsql/%s user=%s password=%s dbname=%s sslmode=disable",
			cfg.InstanceConnectionName, cfg.DBUser, cfg.DBPass, cfg.DBName)
		log.Printf("Connecting to Cloud SQL via socket: %s", cfg.InstanceConnectionName)
		dialector = postgres.Open(dsn)
	case cfg.SQLitePath != "":
		log.Printf("Connecting to SQLite at %s", cfg.SQLitePath)
		dialector = sqlite.Open(cfg.SQLitePath + "?_busy_timeout=5000&_foreign_keys=on")
	default:
		// Local development: Connect via TCP
		dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=5432 sslmode=disable",
			cfg.DBHost, cfg.DBUser, cfg.DBPass, cfg.DBName)
		log.Println("Connecting to local PostgreSQL")
		dialector = postgres.Open(dsn)
	}

	db, err := gorm.Open(dialector, gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database handle: %w", err)
	}
	if cfg.SQLitePath != "" && cfg.DatabaseURL == "" && cfg.InstanceConnectionName == "" {
		// SQLite allows a single writer.
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(20)
		sqlDB.SetMaxIdleConns(5)
		sqlDB.SetConnMaxLifetime(30 * time.Minute)
	}

	log.Println("✅ Database connected successfully!")
	return db, nil
}
