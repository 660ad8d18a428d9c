package frigate

import (
	"encoding/json"
	"math"
	"time"
)

// Event is the payload Frigate publishes on {main_topic}/events.
type Event struct {
	Type   string        `json:"type"` // new, update or end
	Before *EventDetails `json:"before"`
	After  *EventDetails `json:"after"`
}

// EventDetails is one side of an event change. Only the fields the
// pipeline reads are decoded.
type EventDetails struct {
	ID        string  `json:"id"`
	Camera    string  `json:"camera"`
	Label     string  `json:"label"`
	StartTime float64 `json:"start_time"` // epoch seconds
	// SubLabel is a string in older Frigate releases and a [name, score]
	// pair in newer ones, so it is kept raw.
	SubLabel json.RawMessage `json:"sub_label,omitempty"`
}

// ParseEvent decodes an event message. A message without an "after"
// object is rejected because the pipeline has nothing to act on.
func ParseEvent(payload []byte) (*Event, error) {
	var ev Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, err
	}
	if ev.After == nil || ev.After.ID == "" {
		return nil, errMissingAfter
	}
	return &ev, nil
}

// Start returns StartTime as a UTC time.
func (d *EventDetails) Start() time.Time {
	sec, frac := math.Modf(d.StartTime)
	return time.Unix(int64(sec), int64(frac*1e9)).UTC()
}
