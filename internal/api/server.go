package api

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/bindery/bindery/internal/api/handlers"
	securemw "github.com/bindery/bindery/internal/api/middleware"
	"github.com/bindery/bindery/internal/config"
	"github.com/bindery/bindery/internal/downloads"
	"github.com/bindery/bindery/internal/websocket"
)

// Server handles HTTP requests for the Bindery API.
type Server struct {
	echo      *echo.Echo
	hub       *websocket.Hub
	logger    zerolog.Logger
	cfg       *config.Config
	startedAt time.Time

	downloads *downloads.Handlers
	scheduler *handlers.SchedulerHandler
	logs      *LogsHandlers
}

// NewServer creates a new API server instance. hub and sched may be nil,
// in which case their routes are not mounted.
func NewServer(
	cfg *config.Config,
	orchestrator *downloads.Orchestrator,
	sched handlers.TaskScheduler,
	hub *websocket.Hub,
	logger zerolog.Logger,
) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:      e,
		hub:       hub,
		logger:    logger.With().Str("component", "api").Logger(),
		cfg:       cfg,
		startedAt: time.Now(),
		downloads: downloads.NewHandlers(orchestrator),
	}
	if sched != nil {
		s.scheduler = handlers.NewSchedulerHandler(sched)
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// SetLogsProvider exposes buffered log entries under /api/v1/system/logs.
func (s *Server) SetLogsProvider(provider LogsProvider) {
	s.logs = NewLogsHandlers(provider)
	s.logs.RegisterRoutes(s.echo.Group("/api/v1/system/logs"))
}

// setupMiddleware configures Echo middleware.
func (s *Server) setupMiddleware() {
	s.echo.Use(middleware.Recover())
	s.echo.Use(middleware.RequestID())
	s.echo.Use(securemw.SecurityHeaders())

	s.echo.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))

	s.echo.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogMethod:    true,
		LogError:     true,
		LogRequestID: true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			var evt *zerolog.Event
			switch {
			case v.Error != nil:
				evt = s.logger.Error().Err(v.Error)
			case v.URI == "/health":
				evt = s.logger.Trace()
			default:
				evt = s.logger.Debug()
			}
			evt.Str("method", v.Method).
				Str("uri", v.URI).
				Str("requestId", v.RequestID).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Msg("request")
			return nil
		},
	}))

	s.echo.Use(middleware.GzipWithConfig(middleware.GzipConfig{
		Level: 5,
		Skipper: func(c echo.Context) bool {
			// Skip compression for WebSocket
			return c.Request().Header.Get("Upgrade") == "websocket"
		},
	}))
}

// setupRoutes configures API routes.
func (s *Server) setupRoutes() {
	s.echo.GET("/health", s.healthCheck)

	if s.hub != nil {
		s.echo.GET("/ws", s.hub.HandleWebSocket)
	}

	api := s.echo.Group("/api/v1")
	api.GET("/system/status", s.getStatus)

	s.downloads.RegisterRoutes(api.Group("/downloads"))
	s.downloads.RegisterBookRoutes(api.Group("/books"))
	s.downloads.RegisterClientRoutes(api.Group("/downloadclients"))

	if s.scheduler != nil {
		tasks := api.Group("/scheduler/tasks")
		tasks.GET("", s.scheduler.ListTasks)
		tasks.GET("/:id", s.scheduler.GetTask)
		tasks.POST("/:id/run", s.scheduler.RunTask)
	}
}

// Start begins listening for HTTP requests.
func (s *Server) Start(address string) error {
	s.logger.Info().Str("address", address).Msg("starting HTTP server")
	return s.echo.Start(address)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("shutting down HTTP server")
	return s.echo.Shutdown(ctx)
}

// Echo returns the underlying Echo instance.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

func (s *Server) healthCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) getStatus(c echo.Context) error {
	response := map[string]interface{}{
		"version":   config.Version,
		"startTime": s.startedAt.UTC().Format(time.RFC3339),
		"uptime":    time.Since(s.startedAt).Round(time.Second).String(),
	}
	if s.hub != nil {
		response["wsClients"] = s.hub.ClientCount()
	}
	return c.JSON(http.StatusOK, response)
}
