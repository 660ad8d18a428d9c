package frigate

import (
	"sync"

	"github.com/frigate-speciesid/speciesid/internal/logger"
)

var (
	serviceLogger logger.Logger
	loggerOnce    sync.Once
)

// GetLogger returns the frigate module logger
func GetLogger() logger.Logger {
	loggerOnce.Do(func() {
		serviceLogger = logger.Global().Module("frigate")
	})
	return serviceLogger
}
