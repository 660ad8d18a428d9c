package datastore

import (
	"fmt"
	"net"
	"strconv"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/frigate-speciesid/speciesid/internal/conf"
	"github.com/frigate-speciesid/speciesid/internal/errors"
	"github.com/frigate-speciesid/speciesid/internal/logger"
)

// MySQLStore implements Interface for MySQL
type MySQLStore struct {
	DataStore
	Settings *conf.Settings
}

// Open connects to MySQL and migrates the schema
func (store *MySQLStore) Open() error {
	cfg := store.Settings.Database.MySQL
	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))

	// loc=UTC matches the UTC timestamps written by the store
	dsn := fmt.Sprintf("%s:%s@tcp(%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		cfg.Username, cfg.Password, addr, cfg.Database)

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger:         logger.NewGormLoggerAdapter(GetLogger(), logger.GormOptions{Database: "detections", SlowThreshold: slowQueryThreshold}),
		TranslateError: true,
	})
	if err != nil {
		GetLogger().Error("failed to open MySQL database",
			logger.String("host", cfg.Host),
			logger.Int("port", cfg.Port),
			logger.String("database", cfg.Database),
			logger.Error(err))
		return errors.New(fmt.Errorf("failed to open MySQL database: %w", err)).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("host", cfg.Host).
			Context("database", cfg.Database).
			Build()
	}

	store.DB = db
	return performAutoMigration(db, "mysql", fmt.Sprintf("%s/%s", addr, cfg.Database))
}

// Close closes the database connection
func (store *MySQLStore) Close() error {
	return store.closeDB()
}
