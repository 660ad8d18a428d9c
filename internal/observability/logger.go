package observability

import "github.com/frigate-speciesid/speciesid/internal/logger"

// Package-level cached logger instance.
var log = logger.Global().Module("metrics")
