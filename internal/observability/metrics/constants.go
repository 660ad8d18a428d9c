// Package metrics provides constants used across metric definitions.
package metrics

import "time"

// Label value constants used for metric labels.
const (
	// LabelSuccess marks a successful operation.
	LabelSuccess = "success"
	// LabelError marks a failed operation.
	LabelError = "error"
	// LabelSnapshot is the operation label for snapshot downloads.
	LabelSnapshot = "snapshot"
	// LabelSubLabel is the operation label for sub_label callbacks.
	LabelSubLabel = "sub_label"
	// LabelOther is used for requests that match no known Frigate endpoint.
	LabelOther = "other"
)

// Histogram bucket configuration constants.
const (
	// BucketStart1ms is the starting bucket for 1ms histograms (1ms to ~1s range).
	BucketStart1ms = 0.001
	// BucketStart10ms is the starting bucket for 10ms histograms (10ms to ~40s range).
	BucketStart10ms = 0.01
	// BucketFactor2 is the common exponential growth factor of 2 for histogram buckets.
	BucketFactor2 = 2
	// BucketCount12 defines 12 exponential buckets.
	BucketCount12 = 12
)

// ShutdownTimeout is the timeout for graceful shutdown operations.
const ShutdownTimeout = 5 * time.Second
