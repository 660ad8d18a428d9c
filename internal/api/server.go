package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	mw "github.com/frigate-speciesid/speciesid/internal/api/middleware"
	v1 "github.com/frigate-speciesid/speciesid/internal/api/v1"
	"github.com/frigate-speciesid/speciesid/internal/conf"
	errs "github.com/frigate-speciesid/speciesid/internal/errors"
	"github.com/frigate-speciesid/speciesid/internal/logger"
	"github.com/frigate-speciesid/speciesid/internal/observability"
)

// Server is the reporting HTTP server.
type Server struct {
	echo     *echo.Echo
	config   *Config
	settings *conf.Settings

	store    v1.Store
	names    v1.NameResolver
	metrics  *observability.Metrics
	location *time.Location
	version  string

	controller *v1.Controller
	startTime  time.Time
}

// ServerOption is a functional option for configuring the Server.
type ServerOption func(*Server)

// WithDataStore sets the detection store for the server.
func WithDataStore(store v1.Store) ServerOption {
	return func(s *Server) {
		s.store = store
	}
}

// WithNames sets the common-name resolver.
func WithNames(resolver v1.NameResolver) ServerOption {
	return func(s *Server) {
		s.names = resolver
	}
}

// WithMetrics also serves /metrics from the API server.
func WithMetrics(m *observability.Metrics) ServerOption {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithLocation sets the calendar used for date parameters.
func WithLocation(loc *time.Location) ServerOption {
	return func(s *Server) {
		s.location = loc
	}
}

// WithVersion sets the version reported by health checks.
func WithVersion(version string) ServerOption {
	return func(s *Server) {
		s.version = version
	}
}

// New creates a new HTTP server with the given settings and options.
func New(settings *conf.Settings, opts ...ServerOption) (*Server, error) {
	config := ConfigFromSettings(settings)
	if err := config.Validate(); err != nil {
		return nil, err
	}

	s := &Server{
		config:    config,
		settings:  settings,
		location:  time.Local,
		startTime: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.store == nil {
		return nil, errs.Newf("api server requires a detection store").
			Component("api").
			Category(errs.CategoryConfiguration).
			Build()
	}

	s.echo = echo.New()
	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.Server.ReadTimeout = config.ReadTimeout
	s.echo.Server.WriteTimeout = config.WriteTimeout
	s.echo.Server.IdleTimeout = config.IdleTimeout

	s.setupMiddleware()
	s.setupRoutes()

	GetLogger().Info("HTTP server initialized",
		logger.String("address", config.Address()),
		logger.Bool("debug", config.Debug))
	return s, nil
}

// setupMiddleware configures the Echo middleware stack.
func (s *Server) setupMiddleware() {
	s.echo.Use(echomw.Recover())
	s.echo.Use(mw.NewCorrelationID())
	s.echo.Use(mw.NewRequestLogger(GetLogger()))
	s.echo.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: s.config.AllowedOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodHead, http.MethodOptions},
	}))
	s.echo.Use(echomw.BodyLimit(s.config.BodyLimit))
	s.echo.Use(echomw.Gzip())
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.echo.GET("/health", s.healthCheck)
	if s.metrics != nil {
		s.echo.GET("/metrics", echo.WrapHandler(s.metrics.Handler()))
	}
	s.controller = v1.New(s.echo, s.store, s.names,
		v1.WithLocation(s.location),
		v1.WithVersion(s.version))
}

// healthCheck handles the server health check endpoint.
func (s *Server) healthCheck(c echo.Context) error {
	uptime := time.Since(s.startTime)
	return c.JSON(http.StatusOK, map[string]any{
		"status":         "healthy",
		"version":        s.version,
		"uptime":         uptime.Round(time.Second).String(),
		"uptime_seconds": uptime.Seconds(),
	})
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Address())
	if err != nil {
		return errs.New(err).
			Component("api").
			Category(errs.CategoryNetwork).
			Context("address", s.config.Address()).
			Build()
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.echo.Listener = ln
	serveErr := make(chan error, 1)
	go func() {
		GetLogger().Info("HTTP server starting", logger.String("address", ln.Addr().String()))
		serveErr <- s.echo.Start("")
	}()

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()
	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		GetLogger().Error("error during server shutdown", logger.Error(err))
		return err
	}
	<-serveErr
	GetLogger().Info("HTTP server stopped")
	return nil
}

// Echo returns the underlying Echo instance.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}
