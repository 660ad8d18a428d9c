package datastore

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/frigate-speciesid/speciesid/internal/errors"
	"github.com/frigate-speciesid/speciesid/internal/logger"
)

// FindByEvent returns the detection stored for eventID.
func (ds *DataStore) FindByEvent(ctx context.Context, eventID string) (*Detection, error) {
	if err := ds.ready(); err != nil {
		return nil, err
	}

	var d Detection
	err := ds.DB.WithContext(ctx).Where("frigate_event = ?", eventID).Take(&d).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.Newf("no detection for frigate event %s", eventID).
				Component("datastore").
				Category(errors.CategoryNotFound).
				Context("frigate_event", eventID).
				Build()
		}
		return nil, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "find_by_event").
			Context("frigate_event", eventID).
			Build()
	}
	return &d, nil
}

// Insert creates a new detection row and returns its id.
func (ds *DataStore) Insert(ctx context.Context, d *Detection) (uint, error) {
	if err := ds.ready(); err != nil {
		return 0, err
	}

	d.ID = 0
	d.DetectionTime = normalizeTime(d.DetectionTime)
	if err := ds.DB.WithContext(ctx).Create(d).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return 0, errors.New(fmt.Errorf("%w: %s", ErrDuplicateEvent, d.FrigateEvent)).
				Component("datastore").
				Category(errors.CategoryConflict).
				Context("frigate_event", d.FrigateEvent).
				Build()
		}
		return 0, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "insert").
			Context("frigate_event", d.FrigateEvent).
			Build()
	}
	return d.ID, nil
}

// UpdateFields unconditionally overwrites the mutable fields for eventID.
// Use UpsertIfHigher on the ingestion path; this is the raw primitive.
func (ds *DataStore) UpdateFields(ctx context.Context, eventID string, c Candidate) error {
	if err := ds.ready(); err != nil {
		return err
	}

	res := ds.DB.WithContext(ctx).
		Model(&Detection{}).
		Where("frigate_event = ?", eventID).
		Updates(c.updates())
	if res.Error != nil {
		return errors.New(res.Error).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "update_fields").
			Context("frigate_event", eventID).
			Build()
	}
	if res.RowsAffected == 0 {
		return errors.Newf("no detection for frigate event %s", eventID).
			Component("datastore").
			Category(errors.CategoryNotFound).
			Context("frigate_event", eventID).
			Build()
	}
	return nil
}

// UpsertIfHigher applies the reconciliation rule for one event in a single
// transaction:
//   - no row: insert the candidate
//   - row with a lower score: overwrite its mutable fields, keeping id
//   - otherwise: leave the row untouched
//
// A concurrent insert of the same event makes our insert a no-op; that case
// falls through to the conditional update so the higher score still wins.
func (ds *DataStore) UpsertIfHigher(ctx context.Context, eventID string, c Candidate) (UpsertResult, error) {
	if err := ds.ready(); err != nil {
		return UpsertResult{}, err
	}

	var result UpsertResult
	err := ds.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing Detection
		err := tx.Where("frigate_event = ?", eventID).Take(&existing).Error
		switch {
		case err == nil:
			// fall through to conditional update
		case errors.Is(err, gorm.ErrRecordNotFound):
			row := c.detection(eventID)
			res := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "frigate_event"}},
				DoNothing: true,
			}).Create(row)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected > 0 {
				result = UpsertResult{Outcome: Inserted, Detection: *row}
				return nil
			}
			GetLogger().Debug("concurrent insert for event, using conditional update",
				logger.String("frigate_event", eventID))
		default:
			return err
		}

		res := tx.Model(&Detection{}).
			Where("frigate_event = ? AND score < ?", eventID, c.Score).
			Updates(c.updates())
		if res.Error != nil {
			return res.Error
		}

		var current Detection
		if err := tx.Where("frigate_event = ?", eventID).Take(&current).Error; err != nil {
			return err
		}
		result.Detection = current
		if res.RowsAffected > 0 {
			result.Outcome = Updated
		} else {
			result.Outcome = Unchanged
		}
		return nil
	})
	if err != nil {
		return UpsertResult{}, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "upsert_if_higher").
			Context("frigate_event", eventID).
			Build()
	}
	return result, nil
}
