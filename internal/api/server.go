package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"golang.org/x/net/netutil"

	mw "github.com/examwatch/examwatch/internal/api/middleware"
	v2 "github.com/examwatch/examwatch/internal/api/v2"
	"github.com/examwatch/examwatch/internal/conf"
	"github.com/examwatch/examwatch/internal/logger"
	"github.com/examwatch/examwatch/internal/observability"
)

const healthPingTimeout = 2 * time.Second

// Pinger reports whether the event store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server is the main HTTP server for ExamWatch.
// It manages the Echo framework instance, middleware, and all HTTP routes.
type Server struct {
	echo     *echo.Echo
	config   *Config
	settings *conf.Settings
	logger   logger.Logger

	// Dependencies
	processor v2.FrameProcessor
	recorder  v2.FindingRecorder
	store     v2.EventStore
	query     v2.QueryService
	pinger    Pinger
	metrics   *observability.Metrics

	apiController *v2.Controller
	staticServer  *StaticFileServer

	startTime time.Time
	done      chan error
}

// ServerOption is a functional option for configuring the Server.
type ServerOption func(*Server)

// WithLogger sets the server logger.
func WithLogger(l logger.Logger) ServerOption {
	return func(s *Server) { s.logger = l }
}

// WithPipeline sets the frame processor and the recorder saving its findings.
func WithPipeline(p v2.FrameProcessor, r v2.FindingRecorder) ServerOption {
	return func(s *Server) {
		s.processor = p
		s.recorder = r
	}
}

// WithDataStore sets the event store. It is also probed by /health when it
// implements Pinger.
func WithDataStore(ds v2.EventStore) ServerOption {
	return func(s *Server) {
		s.store = ds
		if p, ok := ds.(Pinger); ok {
			s.pinger = p
		}
	}
}

// WithQuery sets the read service.
func WithQuery(q v2.QueryService) ServerOption {
	return func(s *Server) { s.query = q }
}

// WithMetrics sets the observability metrics for the server.
func WithMetrics(m *observability.Metrics) ServerOption {
	return func(s *Server) { s.metrics = m }
}

// New creates a new HTTP server with the given settings and options.
func New(settings *conf.Settings, opts ...ServerOption) (*Server, error) {
	config := ConfigFromSettings(settings)
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid server configuration: %w", err)
	}

	s := &Server{
		config:    config,
		settings:  settings,
		startTime: time.Now(),
		done:      make(chan error, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.NewNopLogger()
	}

	s.echo = echo.New()
	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.Server.ReadTimeout = config.ReadTimeout
	s.echo.Server.WriteTimeout = config.WriteTimeout
	s.echo.Server.IdleTimeout = config.IdleTimeout

	s.setupMiddleware()
	s.setupRoutes()

	s.logger.Info("HTTP server initialized",
		logger.String("address", config.Address()),
		logger.Bool("metrics", config.MetricsEnabled),
		logger.Int("max_connections", config.MaxConnections),
		logger.String("static_dir", config.StaticDir))
	return s, nil
}

// setupMiddleware configures the Echo middleware stack.
func (s *Server) setupMiddleware() {
	s.echo.Use(echomw.Recover())
	s.echo.Use(mw.NewTraceID())

	if s.metrics != nil {
		s.echo.Use(mw.NewMetrics(s.metrics.HTTP))
	}

	s.echo.Use(mw.NewRequestLoggerWithSkipper(s.logger, func(c echo.Context) bool {
		return c.Path() == "/metrics" || c.Path() == "/health"
	}))

	securityConfig := mw.DefaultSecurityConfig()
	securityConfig.AllowedOrigins = s.config.AllowedOrigins
	s.echo.Use(mw.NewCORS(securityConfig))
	s.echo.Use(mw.NewBodyLimit(s.config.BodyLimit))
	s.echo.Use(mw.NewSecureHeaders(securityConfig))
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.echo.GET("/health", s.healthCheck)

	if s.config.MetricsEnabled && s.metrics != nil {
		s.echo.GET("/metrics", echo.WrapHandler(s.metrics.Handler()))
	}

	if s.config.StaticDir != "" {
		s.staticServer = NewStaticFileServer(s.config.StaticDir, s.logger.Module("static"))
		s.staticServer.RegisterRoutes(s.echo)
	}

	var apiOpts []v2.Option
	apiOpts = append(apiOpts, v2.WithLogger(s.logger.Module("v2")))
	if s.metrics != nil {
		apiOpts = append(apiOpts, v2.WithHTTPMetrics(s.metrics.HTTP))
	}
	s.apiController = v2.New(s.echo, s.settings, s.processor, s.recorder, s.store, s.query, apiOpts...)
}

// healthCheck reports liveness and whether the event store answers.
func (s *Server) healthCheck(c echo.Context) error {
	status, dbStatus, code := "healthy", "not_configured", http.StatusOK

	if s.pinger != nil {
		ctx, cancel := context.WithTimeout(c.Request().Context(), healthPingTimeout)
		defer cancel()
		if err := s.pinger.Ping(ctx); err != nil {
			status, dbStatus, code = "degraded", "disconnected", http.StatusServiceUnavailable
			s.logger.Warn("health check database ping failed", logger.Error(err))
		} else {
			dbStatus = "connected"
		}
	}

	uptime := time.Since(s.startTime)
	return c.JSON(code, map[string]any{
		"status":          status,
		"database_status": dbStatus,
		"version":         s.settings.Main.Version,
		"uptime_seconds":  uptime.Seconds(),
		"timestamp":       time.Now().UTC().Format(time.RFC3339),
	})
}

// Start begins serving HTTP requests in a background goroutine and returns
// immediately. Errors other than a clean shutdown are reported by Wait.
func (s *Server) Start() {
	if s.config.MaxConnections > 0 {
		ln, err := net.Listen("tcp", s.config.Address())
		if err != nil {
			s.logger.Error("HTTP listener failed", logger.String("address", s.config.Address()), logger.Error(err))
			s.done <- err
			return
		}
		s.echo.Listener = netutil.LimitListener(ln, s.config.MaxConnections)
	}

	go func() {
		err := s.echo.Start(s.config.Address())
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP server error", logger.Error(err))
			s.done <- err
			return
		}
		s.done <- nil
	}()
	s.logger.Info("HTTP server starting", logger.String("address", s.config.Address()))
}

// Wait blocks until the server stops and returns its error, if any.
func (s *Server) Wait() <-chan error {
	return s.done
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	if err := s.echo.Shutdown(ctx); err != nil {
		s.logger.Error("error during server shutdown", logger.Error(err))
		return fmt.Errorf("shutdown error: %w", err)
	}
	s.logger.Info("HTTP server shutdown complete")
	return nil
}

// APIController returns the v2 API controller.
func (s *Server) APIController() *v2.Controller {
	return s.apiController
}

// Echo returns the underlying Echo instance.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}
