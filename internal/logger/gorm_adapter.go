package logger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	gorm_logger "gorm.io/gorm/logger"
)

// GormOptions configures a GORM adapter.
type GormOptions struct {
	// Database names the store in every record, e.g. "detections" or "names"
	Database string
	// SlowThreshold logs slower statements at WARN, 0 disables it
	SlowThreshold time.Duration
}

// GormLoggerAdapter routes GORM output through a module logger. Statements
// are logged at TRACE and only show with the module level set to "trace".
type GormLoggerAdapter struct {
	log  Logger
	opts GormOptions
}

// NewGormLoggerAdapter returns an adapter for log, falling back to the
// datastore module of the global logger.
func NewGormLoggerAdapter(log Logger, opts GormOptions) *GormLoggerAdapter {
	if log == nil {
		log = Global().Module("datastore")
	}
	if opts.Database != "" {
		log = log.With(String("database", opts.Database))
	}
	return &GormLoggerAdapter{log: log, opts: opts}
}

// LogMode is a no-op, levels come from the module configuration.
func (a *GormLoggerAdapter) LogMode(_ gorm_logger.LogLevel) gorm_logger.Interface {
	return a
}

func (a *GormLoggerAdapter) Info(_ context.Context, msg string, data ...any) {
	a.log.Debug(fmt.Sprintf(msg, data...))
}

func (a *GormLoggerAdapter) Warn(_ context.Context, msg string, data ...any) {
	a.log.Warn(fmt.Sprintf(msg, data...))
}

func (a *GormLoggerAdapter) Error(_ context.Context, msg string, data ...any) {
	a.log.Error(fmt.Sprintf(msg, data...))
}

// Trace reports one executed statement. Missing rows and the duplicate key
// raised on the upsert conflict path are expected and stay at TRACE.
func (a *GormLoggerAdapter) Trace(_ context.Context, begin time.Time, fc func() (sql string, rowsAffected int64), err error) {
	elapsed := time.Since(begin)
	sql, rows := fc()
	fields := []Field{
		String("sql", sql),
		Int64("rows_affected", rows),
		Int64("duration_ms", elapsed.Milliseconds()),
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		a.log.Warn("query abandoned", append(fields, Error(err))...)
	case err != nil && !expectedQueryError(err):
		a.log.Warn("query error", append(fields, Error(err))...)
	case a.opts.SlowThreshold > 0 && elapsed > a.opts.SlowThreshold:
		a.log.Warn("slow query", append(fields, Duration("threshold", a.opts.SlowThreshold))...)
	default:
		a.log.Trace("sql query", fields...)
	}
}

func expectedQueryError(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound) || errors.Is(err, gorm.ErrDuplicatedKey)
}
