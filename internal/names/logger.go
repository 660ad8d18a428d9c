package names

import (
	"sync"

	"github.com/frigate-speciesid/speciesid/internal/logger"
)

var (
	serviceLogger logger.Logger
	loggerOnce    sync.Once
)

// GetLogger returns the names module logger
func GetLogger() logger.Logger {
	loggerOnce.Do(func() {
		serviceLogger = logger.Global().Module("names")
	})
	return serviceLogger
}
