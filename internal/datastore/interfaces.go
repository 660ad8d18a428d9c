// interfaces.go: detection store contract and its gorm implementation
package datastore

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/frigate-speciesid/speciesid/internal/conf"
	"github.com/frigate-speciesid/speciesid/internal/errors"
	"github.com/frigate-speciesid/speciesid/internal/logger"
)

// ErrDuplicateEvent is wrapped by Insert when a row for the event already exists.
var ErrDuplicateEvent = errors.NewStd("detection for frigate event already exists")

// Interface is the detection store. It is the only mutator of detection rows.
type Interface interface {
	Open() error
	Close() error

	// FindByEvent returns the row for eventID, or a CategoryNotFound error.
	FindByEvent(ctx context.Context, eventID string) (*Detection, error)
	// Insert creates a row and returns its id. A duplicate event wraps ErrDuplicateEvent.
	Insert(ctx context.Context, d *Detection) (uint, error)
	// UpdateFields overwrites the mutable fields of the row for eventID.
	UpdateFields(ctx context.Context, eventID string, c Candidate) error
	// UpsertIfHigher atomically inserts, replaces on a strictly higher score, or leaves the row alone.
	UpsertIfHigher(ctx context.Context, eventID string, c Candidate) (UpsertResult, error)

	RecentDetections(ctx context.Context, limit int) ([]Detection, error)
	DailySummary(ctx context.Context, date time.Time) ([]SpeciesDailySummary, error)
	DetectionsForDateHour(ctx context.Context, date time.Time, hour int) ([]Detection, error)
	DetectionsForNameAndDate(ctx context.Context, displayName string, date time.Time) ([]Detection, error)
	EarliestDetectionDate(ctx context.Context) (time.Time, error)
}

// DataStore implements Interface on top of a gorm connection.
type DataStore struct {
	DB       *gorm.DB
	Location *time.Location // calendar used by date queries, defaults to time.Local
}

// New returns the store selected by settings.Database.Type.
func New(settings *conf.Settings) Interface {
	switch settings.Database.Type {
	case "mysql":
		return &MySQLStore{Settings: settings}
	default:
		return &SQLiteStore{Settings: settings}
	}
}

func (ds *DataStore) location() *time.Location {
	if ds.Location == nil {
		return time.Local
	}
	return ds.Location
}

func (ds *DataStore) ready() error {
	if ds.DB == nil {
		return errors.Newf("database connection is not initialized").
			Component("datastore").
			Category(errors.CategoryState).
			Build()
	}
	return nil
}

// closeDB closes the underlying sql.DB
func (ds *DataStore) closeDB() error {
	if ds.DB == nil {
		return nil
	}
	sqlDB, err := ds.DB.DB()
	if err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "close").
			Build()
	}
	if err := sqlDB.Close(); err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "close").
			Build()
	}
	ds.DB = nil
	return nil
}

// performAutoMigration creates or updates the schema
func performAutoMigration(db *gorm.DB, dbType, connectionInfo string) error {
	start := time.Now()
	if err := db.AutoMigrate(&Detection{}); err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "auto_migrate").
			Context("db_type", dbType).
			Build()
	}
	GetLogger().Debug("database schema ready",
		logger.String("db_type", dbType),
		logger.String("connection", connectionInfo),
		logger.Duration("elapsed", time.Since(start)))
	return nil
}
