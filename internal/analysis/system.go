package analysis

import (
	"context"
	"runtime"
	"strings"

	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/frigate-speciesid/speciesid/internal/logger"
)

// logSystemDetails logs platform details useful when reading bug reports
func logSystemDetails(ctx context.Context) {
	log := GetLogger()

	fields := []logger.Field{
		logger.String("arch", runtime.GOARCH),
		logger.Int("cpus", runtime.NumCPU()),
		logger.String("go", runtime.Version()),
	}

	info, err := host.InfoWithContext(ctx)
	if err != nil {
		log.Warn("failed to read host info", logger.Error(err))
	} else {
		fields = append(fields,
			logger.String("os", info.OS),
			logger.String("platform", strings.TrimSpace(info.Platform+" "+info.PlatformVersion)),
			logger.String("virtualization", info.VirtualizationSystem))
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		fields = append(fields, logger.Int64("memory_mb", int64(vm.Total/1024/1024)))
	}

	log.Info("system details", fields...)
}
