package datastore

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/frigate-speciesid/speciesid/internal/conf"
	"github.com/frigate-speciesid/speciesid/internal/errors"
	"github.com/frigate-speciesid/speciesid/internal/logger"
)

// slowQueryThreshold is the duration after which SQL is logged at WARN
const slowQueryThreshold = 500 * time.Millisecond

// SQLiteStore implements Interface for SQLite
type SQLiteStore struct {
	DataStore
	Settings *conf.Settings
}

// NewSQLiteStore returns a store for a database file at path
func NewSQLiteStore(path string) *SQLiteStore {
	settings := &conf.Settings{}
	settings.Database.Type = "sqlite"
	settings.Database.Path = path
	return &SQLiteStore{Settings: settings}
}

// Open opens the database file, creating parent directories, and migrates the schema.
func (store *SQLiteStore) Open() error {
	path := store.Settings.Database.Path
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.New(fmt.Errorf("failed to create database directory: %w", err)).
				Component("datastore").
				Category(errors.CategoryFileIO).
				Context("path", dir).
				Build()
		}
	}

	// WAL lets the reporting process read while ingestion writes; busy_timeout
	// absorbs short lock waits between the two.
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on", path)

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.NewGormLoggerAdapter(GetLogger(), logger.GormOptions{Database: "detections", SlowThreshold: slowQueryThreshold}),
		TranslateError: true,
	})
	if err != nil {
		return errors.New(fmt.Errorf("failed to open SQLite database: %w", err)).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("path", path).
			Build()
	}

	// One connection serializes writers inside this process, so the
	// read-then-write transaction in UpsertIfHigher never hits SQLITE_BUSY.
	sqlDB, err := db.DB()
	if err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Build()
	}
	sqlDB.SetMaxOpenConns(1)

	store.DB = db
	return performAutoMigration(db, "sqlite", path)
}

// Close closes the database connection
func (store *SQLiteStore) Close() error {
	return store.closeDB()
}
