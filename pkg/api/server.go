// Package api implements RequestAPI (spec §4.6): the HTTP surface that maps
// routes from spec §6.1 onto the LifecycleCoordinator, LocationPipeline, and
// RideEventService, plus the WebSocket upgrade endpoint SocketGateway
// connections enter through.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"

	"github.com/wayfarian/groupjourney/pkg/config"
	"github.com/wayfarian/groupjourney/pkg/database"
	"github.com/wayfarian/groupjourney/pkg/events"
	"github.com/wayfarian/groupjourney/pkg/external"
	"github.com/wayfarian/groupjourney/pkg/queue"
	"github.com/wayfarian/groupjourney/pkg/ratelimit"
	"github.com/wayfarian/groupjourney/pkg/services"
)

// Server is the HTTP API server.
type Server struct {
	echo       *echo.Echo
	httpServer *http.Server
	cfg        *config.Config
	dbClient   *database.Client

	identity   external.IdentityVerifier
	lifecycle  *services.LifecycleCoordinator
	rideEvents *services.RideEventService
	pipeline   *services.LocationPipeline

	journeyLimiter   *ratelimit.HTTPLimiter
	authLimiter      *ratelimit.HTTPLimiter
	locationThrottle *ratelimit.LocationThrottle

	connManager *events.ConnectionManager // nil until SetConnectionManager
	notifier    *queue.Notifier           // nil until SetNotifier (health reporting only)
}

// NewServer creates the API server and registers every route in spec §6.1.
func NewServer(
	cfg *config.Config,
	dbClient *database.Client,
	identity external.IdentityVerifier,
	lifecycle *services.LifecycleCoordinator,
	rideEvents *services.RideEventService,
	pipeline *services.LocationPipeline,
) *Server {
	e := echo.New()

	s := &Server{
		echo:             e,
		cfg:              cfg,
		dbClient:         dbClient,
		identity:         identity,
		lifecycle:        lifecycle,
		rideEvents:       rideEvents,
		pipeline:         pipeline,
		journeyLimiter:   ratelimit.NewHTTPLimiter(ratelimit.HTTPWindowConfig{Limit: cfg.JourneyRateLimit.Limit, Window: cfg.JourneyRateLimit.Window}),
		authLimiter:      ratelimit.NewHTTPLimiter(ratelimit.HTTPWindowConfig{Limit: cfg.AuthRateLimit.Limit, Window: cfg.AuthRateLimit.Window}),
		locationThrottle: ratelimit.NewLocationThrottle(cfg.LocationThrottleWindow),
	}

	s.setupRoutes()
	return s
}

// SetConnectionManager wires the WebSocket ConnectionManager for the /ws
// upgrade route. Required before Start; checked by ValidateWiring.
func (s *Server) SetConnectionManager(cm *events.ConnectionManager) {
	s.connManager = cm
}

// SetNotifier wires the push-notification worker pool, reported on /health.
func (s *Server) SetNotifier(n *queue.Notifier) {
	s.notifier = n
}

// ValidateWiring checks that every required collaborator has been set,
// catching a missing Set* call at startup instead of a nil-pointer panic or
// silent 503 at request time.
func (s *Server) ValidateWiring() error {
	var errs []error
	if s.identity == nil {
		errs = append(errs, fmt.Errorf("identity verifier not set"))
	}
	if s.lifecycle == nil {
		errs = append(errs, fmt.Errorf("lifecycle coordinator not set"))
	}
	if s.rideEvents == nil {
		errs = append(errs, fmt.Errorf("ride event service not set"))
	}
	if s.pipeline == nil {
		errs = append(errs, fmt.Errorf("location pipeline not set"))
	}
	if s.connManager == nil {
		errs = append(errs, fmt.Errorf("connection manager not set (call SetConnectionManager)"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("server wiring incomplete: %w", errors.Join(errs...))
	}
	return nil
}

// setupRoutes registers every route in spec §6.1 plus the WebSocket upgrade
// and health endpoints.
func (s *Server) setupRoutes() {
	s.echo.Use(middleware.BodyLimit(2 * 1024 * 1024))
	s.echo.Use(securityHeaders())

	s.echo.GET("/health", s.healthHandler)
	s.echo.GET("/ws", s.wsHandler)

	gj := s.echo.Group("/group-journey", s.requireAuth, s.journeyRateLimit)
	gj.POST("/start", s.startGroupJourneyHandler)
	gj.POST("/:journeyId/start-my-instance", s.startMyInstanceHandler)
	gj.GET("/:id", s.getGroupJourneyHandler)
	gj.GET("/:journeyId/my-instance", s.getMyInstanceHandler)
	gj.GET("/active/:groupId", s.getActiveForGroupHandler)
	gj.GET("/:id/summary", s.getSummaryHandler)
	gj.GET("/:id/events", s.getEventsHandler)
	gj.POST("/:id/events", s.postEventHandler)

	// The instance sub-routes share the same prefix as the static paths
	// above but never collide: echo matches /group-journey/instance/:id/*
	// against a distinct literal segment ("instance") ahead of the :id
	// param on routes like GET /group-journey/:id.
	inst := s.echo.Group("/group-journey/instance", s.requireAuth)
	inst.POST("/:id/location", s.updateLocationHandler) // not rate-limited, throttled per-instance instead
	inst.POST("/:id/pause", s.pauseInstanceHandler, s.journeyRateLimit)
	inst.POST("/:id/resume", s.resumeInstanceHandler, s.journeyRateLimit)
	inst.POST("/:id/complete", s.completeInstanceHandler, s.journeyRateLimit)
}

// Start starts the HTTP server on the given address (blocking).
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{Addr: addr, Handler: s.echo}
	return s.httpServer.ListenAndServe()
}

// StartWithListener starts the HTTP server on a pre-created listener, used
// by tests that need a random OS-assigned port.
func (s *Server) StartWithListener(ln net.Listener) error {
	s.httpServer = &http.Server{Handler: s.echo}
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// HealthResponse is the body returned by GET /health.
type HealthResponse struct {
	Status      string                  `json:"status"`
	Database    *database.HealthStatus  `json:"database,omitempty"`
	Connections int                     `json:"activeConnections"`
	Notifier    *queue.Health           `json:"notifier,omitempty"`
}

func (s *Server) healthHandler(c *echo.Context) error {
	reqCtx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	dbHealth, err := database.Health(reqCtx, s.dbClient.DB())
	status := "healthy"
	if err != nil {
		status = "unhealthy"
	}

	resp := &HealthResponse{Status: status, Database: dbHealth}
	if s.connManager != nil {
		resp.Connections = s.connManager.ActiveConnections()
	}
	if s.notifier != nil {
		h := s.notifier.Health()
		resp.Notifier = &h
	}

	code := http.StatusOK
	if status != "healthy" {
		code = http.StatusServiceUnavailable
	}
	return c.JSON(code, resp)
}
