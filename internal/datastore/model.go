package datastore

import "time"

// Detection is the canonical record for one Frigate event. At most one row
// exists per FrigateEvent and its Score never decreases.
type Detection struct {
	ID             uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	DetectionTime  time.Time `gorm:"index;not null" json:"detection_time"` // camera event start, UTC
	DetectionIndex int       `gorm:"not null" json:"detection_index"`
	Score          float64   `gorm:"not null" json:"score"`
	DisplayName    string    `gorm:"size:255;index" json:"display_name"`
	CategoryName   string    `gorm:"size:255" json:"category_name"`
	FrigateEvent   string    `gorm:"size:128;uniqueIndex;not null" json:"frigate_event"`
	CameraName     string    `gorm:"size:128;index" json:"camera_name"`
}

// TableName keeps the table name used by existing deployments
func (Detection) TableName() string {
	return "detections"
}

// Candidate carries the mutable fields of a classification result that may
// replace a stored detection.
type Candidate struct {
	DetectionTime  time.Time
	DetectionIndex int
	Score          float64
	DisplayName    string
	CategoryName   string
	CameraName     string
}

// detection builds a new row for eventID from the candidate
func (c *Candidate) detection(eventID string) *Detection {
	return &Detection{
		DetectionTime:  normalizeTime(c.DetectionTime),
		DetectionIndex: c.DetectionIndex,
		Score:          c.Score,
		DisplayName:    c.DisplayName,
		CategoryName:   c.CategoryName,
		FrigateEvent:   eventID,
		CameraName:     c.CameraName,
	}
}

// updates returns the column map written on replacement. id and
// frigate_event are never part of it.
func (c *Candidate) updates() map[string]any {
	return map[string]any{
		"detection_time":  normalizeTime(c.DetectionTime),
		"detection_index": c.DetectionIndex,
		"score":           c.Score,
		"display_name":    c.DisplayName,
		"category_name":   c.CategoryName,
		"camera_name":     c.CameraName,
	}
}

// normalizeTime stores timestamps in UTC at second precision so SQLite and
// MySQL round-trip identically.
func normalizeTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}

// UpsertOutcome reports what UpsertIfHigher did.
type UpsertOutcome int

const (
	Unchanged UpsertOutcome = iota
	Inserted
	Updated
)

func (o UpsertOutcome) String() string {
	switch o {
	case Inserted:
		return "inserted"
	case Updated:
		return "updated"
	default:
		return "unchanged"
	}
}

// Written reports whether the outcome mutated the store.
func (o UpsertOutcome) Written() bool {
	return o == Inserted || o == Updated
}

// UpsertResult is the outcome plus the row as it stands after the operation.
type UpsertResult struct {
	Outcome   UpsertOutcome
	Detection Detection
}

// SpeciesDailySummary aggregates one day's reconciled detections for a display name.
type SpeciesDailySummary struct {
	DisplayName  string
	CategoryName string
	Total        int
	Hourly       [24]int
}
