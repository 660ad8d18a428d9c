package datastore

import (
	"cmp"
	"context"
	"slices"
	"time"

	"github.com/frigate-speciesid/speciesid/internal/errors"
)

// Read projections for the reporting layer. Dates are calendar dates in the
// store location; rows are fetched by UTC time range and bucketed in Go so
// the same code works on SQLite and MySQL.

const maxRecentDetections = 1000

// dayRange returns [start, end) in UTC for the calendar date of date in loc.
func dayRange(date time.Time, loc *time.Location) (time.Time, time.Time) {
	y, m, d := date.Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, loc)
	end := time.Date(y, m, d+1, 0, 0, 0, 0, loc)
	return start.UTC(), end.UTC()
}

func queryError(err error, operation string) error {
	return errors.New(err).
		Component("datastore").
		Category(errors.CategoryDatabase).
		Context("operation", operation).
		Build()
}

// RecentDetections returns the newest detections first.
func (ds *DataStore) RecentDetections(ctx context.Context, limit int) ([]Detection, error) {
	if err := ds.ready(); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > maxRecentDetections {
		return nil, errors.Newf("limit must be between 1 and %d", maxRecentDetections).
			Component("datastore").
			Category(errors.CategoryValidation).
			Context("limit", limit).
			Build()
	}

	var rows []Detection
	if err := ds.DB.WithContext(ctx).
		Order("detection_time DESC, id DESC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, queryError(err, "recent_detections")
	}
	return rows, nil
}

// DailySummary returns per-species totals and hourly histograms for a day,
// ordered by total descending then display name.
func (ds *DataStore) DailySummary(ctx context.Context, date time.Time) ([]SpeciesDailySummary, error) {
	if err := ds.ready(); err != nil {
		return nil, err
	}

	loc := ds.location()
	start, end := dayRange(date, loc)

	var rows []Detection
	if err := ds.DB.WithContext(ctx).
		Select("display_name", "category_name", "detection_time").
		Where("detection_time >= ? AND detection_time < ?", start, end).
		Find(&rows).Error; err != nil {
		return nil, queryError(err, "daily_summary")
	}

	byName := make(map[string]*SpeciesDailySummary)
	for i := range rows {
		r := &rows[i]
		s, ok := byName[r.DisplayName]
		if !ok {
			s = &SpeciesDailySummary{DisplayName: r.DisplayName, CategoryName: r.CategoryName}
			byName[r.DisplayName] = s
		}
		s.Total++
		s.Hourly[r.DetectionTime.In(loc).Hour()]++
	}

	out := make([]SpeciesDailySummary, 0, len(byName))
	for _, s := range byName {
		out = append(out, *s)
	}
	slices.SortFunc(out, func(a, b SpeciesDailySummary) int {
		if c := cmp.Compare(b.Total, a.Total); c != 0 {
			return c
		}
		return cmp.Compare(a.DisplayName, b.DisplayName)
	})
	return out, nil
}

// DetectionsForDateHour returns a given hour's detections in time order.
func (ds *DataStore) DetectionsForDateHour(ctx context.Context, date time.Time, hour int) ([]Detection, error) {
	if err := ds.ready(); err != nil {
		return nil, err
	}
	if hour < 0 || hour > 23 {
		return nil, errors.Newf("hour must be between 0 and 23, got %d", hour).
			Component("datastore").
			Category(errors.CategoryValidation).
			Build()
	}

	loc := ds.location()
	y, m, d := date.Date()
	start := time.Date(y, m, d, hour, 0, 0, 0, loc).UTC()
	end := time.Date(y, m, d, hour+1, 0, 0, 0, loc).UTC()

	var rows []Detection
	if err := ds.DB.WithContext(ctx).
		Where("detection_time >= ? AND detection_time < ?", start, end).
		Order("detection_time ASC, id ASC").
		Find(&rows).Error; err != nil {
		return nil, queryError(err, "detections_for_date_hour")
	}
	return rows, nil
}

// DetectionsForNameAndDate returns one species' detections for a day in time order.
func (ds *DataStore) DetectionsForNameAndDate(ctx context.Context, displayName string, date time.Time) ([]Detection, error) {
	if err := ds.ready(); err != nil {
		return nil, err
	}

	start, end := dayRange(date, ds.location())

	var rows []Detection
	if err := ds.DB.WithContext(ctx).
		Where("display_name = ? AND detection_time >= ? AND detection_time < ?", displayName, start, end).
		Order("detection_time ASC, id ASC").
		Find(&rows).Error; err != nil {
		return nil, queryError(err, "detections_for_name_and_date")
	}
	return rows, nil
}

// EarliestDetectionDate returns the time of the oldest detection in the
// store location, or a CategoryNotFound error when the store is empty.
func (ds *DataStore) EarliestDetectionDate(ctx context.Context) (time.Time, error) {
	if err := ds.ready(); err != nil {
		return time.Time{}, err
	}

	var rows []Detection
	if err := ds.DB.WithContext(ctx).
		Select("detection_time").
		Order("detection_time ASC").
		Limit(1).
		Find(&rows).Error; err != nil {
		return time.Time{}, queryError(err, "earliest_detection_date")
	}
	if len(rows) == 0 {
		return time.Time{}, errors.Newf("no detections stored").
			Component("datastore").
			Category(errors.CategoryNotFound).
			Build()
	}
	return rows[0].DetectionTime.In(ds.location()), nil
}
