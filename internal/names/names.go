// Package names resolves scientific names to common names using the
// birdnames table.
package names

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/patrickmn/go-cache"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/frigate-speciesid/speciesid/internal/errors"
	"github.com/frigate-speciesid/speciesid/internal/logger"
)

// NotFound is what reporting shows for a name missing from the table.
const NotFound = "No common name found."

const (
	defaultCacheTTL = 30 * time.Minute
	// misses are cached briefly so a later import becomes visible quickly
	missCacheTTL = time.Minute
)

// BirdName maps a scientific name to its common name.
type BirdName struct {
	ScientificName string `gorm:"primaryKey;size:255" json:"scientific_name"`
	CommonName     string `gorm:"size:255;not null" json:"common_name"`
}

// TableName returns the table name used by existing name databases
func (BirdName) TableName() string {
	return "birdnames"
}

// missMarker is stored in the cache for names known to be absent
type missMarker struct{}

// Resolver looks up common names with a read-through cache.
type Resolver struct {
	db    *gorm.DB
	cache *cache.Cache
	owned bool
}

// Open opens (or creates) the SQLite name database at path.
func Open(path string) (*Resolver, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.New(fmt.Errorf("failed to create name database directory: %w", err)).
				Component("names").
				Category(errors.CategoryFileIO).
				Context("path", dir).
				Build()
		}
	}

	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?_busy_timeout=5000", path)), &gorm.Config{
		Logger:         logger.NewGormLoggerAdapter(GetLogger(), logger.GormOptions{Database: "names"}),
		TranslateError: true,
	})
	if err != nil {
		return nil, errors.New(fmt.Errorf("failed to open name database: %w", err)).
			Component("names").
			Category(errors.CategoryDatabase).
			Context("path", path).
			Build()
	}

	r, err := NewResolver(db, defaultCacheTTL)
	if err != nil {
		if sqlDB, dbErr := db.DB(); dbErr == nil {
			_ = sqlDB.Close()
		}
		return nil, err
	}
	r.owned = true
	return r, nil
}

// NewResolver uses an existing connection, migrating the birdnames table.
func NewResolver(db *gorm.DB, ttl time.Duration) (*Resolver, error) {
	if err := db.AutoMigrate(&BirdName{}); err != nil {
		return nil, errors.New(err).
			Component("names").
			Category(errors.CategoryDatabase).
			Context("operation", "auto_migrate").
			Build()
	}
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &Resolver{
		db:    db,
		cache: cache.New(ttl, ttl*2),
	}, nil
}

// CommonName returns the common name for scientificName and whether it was found.
func (r *Resolver) CommonName(ctx context.Context, scientificName string) (string, bool, error) {
	if cached, found := r.cache.Get(scientificName); found {
		switch v := cached.(type) {
		case string:
			return v, true, nil
		case missMarker:
			return "", false, nil
		}
	}

	var rows []BirdName
	if err := r.db.WithContext(ctx).
		Where("scientific_name = ?", scientificName).
		Limit(1).
		Find(&rows).Error; err != nil {
		return "", false, errors.New(err).
			Component("names").
			Category(errors.CategoryDatabase).
			Context("operation", "common_name").
			Context("scientific_name", scientificName).
			Build()
	}

	if len(rows) == 0 {
		GetLogger().Debug("no common name",
			logger.String("scientific_name", scientificName))
		r.cache.Set(scientificName, missMarker{}, missCacheTTL)
		return "", false, nil
	}

	r.cache.SetDefault(scientificName, rows[0].CommonName)
	return rows[0].CommonName, true, nil
}

// Display returns the common name, or NotFound when there is none or the
// lookup fails.
func (r *Resolver) Display(ctx context.Context, scientificName string) string {
	name, ok, err := r.CommonName(ctx, scientificName)
	if err != nil {
		GetLogger().Warn("common name lookup failed",
			logger.String("scientific_name", scientificName),
			logger.Error(err))
		return NotFound
	}
	if !ok {
		return NotFound
	}
	return name
}

// Label returns the common name, falling back to scientificName itself.
func (r *Resolver) Label(ctx context.Context, scientificName string) string {
	name, ok, err := r.CommonName(ctx, scientificName)
	if err != nil {
		GetLogger().Warn("common name lookup failed, using display name",
			logger.String("scientific_name", scientificName),
			logger.Error(err))
		return scientificName
	}
	if !ok || name == "" {
		return scientificName
	}
	return name
}

// Upsert writes names in one transaction, replacing existing common names.
func (r *Resolver) Upsert(ctx context.Context, names []BirdName) error {
	if len(names) == 0 {
		return nil
	}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "scientific_name"}},
			DoUpdates: clause.AssignmentColumns([]string{"common_name"}),
		}).CreateInBatches(names, 500).Error
	})
	if err != nil {
		return errors.New(err).
			Component("names").
			Category(errors.CategoryDatabase).
			Context("operation", "upsert").
			Context("count", len(names)).
			Build()
	}
	r.cache.Flush()
	return nil
}

// Count returns the number of stored names.
func (r *Resolver) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&BirdName{}).Count(&n).Error; err != nil {
		return 0, errors.New(err).
			Component("names").
			Category(errors.CategoryDatabase).
			Context("operation", "count").
			Build()
	}
	return n, nil
}

// Close closes the database if the resolver opened it.
func (r *Resolver) Close() error {
	if !r.owned || r.db == nil {
		return nil
	}
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	r.db = nil
	return sqlDB.Close()
}
