// Package api implements the v1 JSON reporting endpoints.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	mw "github.com/frigate-speciesid/speciesid/internal/api/middleware"
	"github.com/frigate-speciesid/speciesid/internal/datastore"
	"github.com/frigate-speciesid/speciesid/internal/errors"
	"github.com/frigate-speciesid/speciesid/internal/logger"
	"github.com/frigate-speciesid/speciesid/internal/names"
)

// Store is the read side of the detection store used by the API.
type Store interface {
	RecentDetections(ctx context.Context, limit int) ([]datastore.Detection, error)
	DailySummary(ctx context.Context, date time.Time) ([]datastore.SpeciesDailySummary, error)
	DetectionsForDateHour(ctx context.Context, date time.Time, hour int) ([]datastore.Detection, error)
	DetectionsForNameAndDate(ctx context.Context, displayName string, date time.Time) ([]datastore.Detection, error)
	EarliestDetectionDate(ctx context.Context) (time.Time, error)
}

// NameResolver maps scientific names to common names for display.
type NameResolver interface {
	Display(ctx context.Context, scientificName string) string
}

// Controller manages the API routes and handlers
type Controller struct {
	Echo      *echo.Echo
	Group     *echo.Group
	store     Store
	names     NameResolver
	location  *time.Location
	version   string
	startTime time.Time
	logger    logger.Logger
}

// Option configures a Controller.
type Option func(*Controller)

// WithLocation sets the calendar used to interpret date parameters.
func WithLocation(loc *time.Location) Option {
	return func(c *Controller) {
		if loc != nil {
			c.location = loc
		}
	}
}

// WithVersion sets the version reported by the health endpoint.
func WithVersion(version string) Option {
	return func(c *Controller) {
		c.version = version
	}
}

// New registers the v1 routes on e under /api/v1. names may be nil, in
// which case common names are reported as not found.
func New(e *echo.Echo, store Store, resolver NameResolver, opts ...Option) *Controller {
	c := &Controller{
		Echo:      e,
		Group:     e.Group("/api/v1"),
		store:     store,
		names:     resolver,
		location:  time.Local,
		startTime: time.Now(),
		logger:    logger.Global().Module("api"),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.Group.GET("/health", c.HealthCheck)
	c.initDetectionRoutes()
	return c
}

// ErrorResponse is the JSON body of every failed request.
type ErrorResponse struct {
	Error         string `json:"error"`
	Message       string `json:"message"`
	Code          int    `json:"code"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

// HandleError logs err and writes an ErrorResponse with the given status code.
func (c *Controller) HandleError(ctx echo.Context, err error, message string, code int) error {
	resp := ErrorResponse{Error: message, Message: message, Code: code}
	if err != nil {
		resp.Error = err.Error()
	}
	resp.CorrelationID, _ = ctx.Get(mw.CorrelationIDKey).(string)

	fields := []logger.Field{
		logger.String("correlation_id", resp.CorrelationID),
		logger.String("path", ctx.Path()),
		logger.Int("code", code),
		logger.String("message", message),
	}
	if err != nil {
		fields = append(fields, logger.Error(err))
	}
	if code >= http.StatusInternalServerError {
		c.logger.Error("API error", fields...)
	} else {
		c.logger.Debug("API request rejected", fields...)
	}
	return ctx.JSON(code, resp)
}

// handleStoreError maps store error categories onto HTTP status codes.
func (c *Controller) handleStoreError(ctx echo.Context, err error, message string) error {
	switch {
	case errors.IsCategory(err, errors.CategoryValidation):
		return c.HandleError(ctx, err, message, http.StatusBadRequest)
	case errors.IsNotFound(err):
		return c.HandleError(ctx, err, message, http.StatusNotFound)
	default:
		return c.HandleError(ctx, err, message, http.StatusInternalServerError)
	}
}

// HealthCheck reports liveness and uptime.
func (c *Controller) HealthCheck(ctx echo.Context) error {
	uptime := time.Since(c.startTime)
	return ctx.JSON(http.StatusOK, map[string]any{
		"status":         "healthy",
		"version":        c.version,
		"uptime":         uptime.Round(time.Second).String(),
		"uptime_seconds": uptime.Seconds(),
		"timestamp":      time.Now().Format(time.RFC3339),
	})
}

// commonName resolves the display form of a scientific name.
func (c *Controller) commonName(ctx context.Context, scientificName string) string {
	if c.names == nil {
		return names.NotFound
	}
	return c.names.Display(ctx, scientificName)
}
