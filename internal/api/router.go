package api

import (
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/classpoint/classroom-system/internal/api/handler"
	"github.com/classpoint/classroom-system/internal/api/middleware"
	"github.com/classpoint/classroom-system/internal/core/domain"
	"github.com/classpoint/classroom-system/internal/core/ports"
	"github.com/classpoint/classroom-system/internal/realtime"
)

// Deps bundles everything the router mounts. Construction happens in the
// composition root so the router stays declarative.
type Deps struct {
	AuthHandler      *handler.AuthHandler
	RoomHandler      *handler.RoomHandler
	HealthHandler    *handler.HealthHandler
	ReadinessHandler *handler.ReadinessHandler
	RealtimeHandler  *realtime.Handler

	RateLimiter ports.RateLimiter
	JWTSecret   string
	Logger      zerolog.Logger
}

// NewRouter builds and returns the Echo instance with all routes registered.
func NewRouter(deps Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Validator = handler.NewValidator()
	e.HTTPErrorHandler = NewHTTPErrorHandler(deps.Logger)

	// --- Global middleware ---
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.RequestID())
	e.Use(echoprometheus.NewMiddleware("classroom"))
	e.Use(middleware.RateLimit(deps.RateLimiter, deps.JWTSecret))

	// --- Observability ---
	e.GET("/metrics", echoprometheus.NewHandler())

	// --- Health probes (no auth required) ---
	e.GET("/health", deps.HealthHandler.Liveness)             // liveness  – is the process alive?
	e.GET("/health/ready", deps.ReadinessHandler.Readiness)   // readiness – are dependencies up?

	// --- Auth routes ---
	e.POST("/auth/register", deps.AuthHandler.Register)
	e.POST("/auth/login", deps.AuthHandler.Login)

	// --- Room routes ---
	authed := e.Group("/api/v1", middleware.Auth(deps.JWTSecret), middleware.RequireRank(domain.GuestPermissions))
	authed.POST("/rooms/join", deps.RoomHandler.Join)
	authed.GET("/rooms/:id/links", deps.RoomHandler.Links)
	authed.GET("/rooms/:id/poll", deps.RoomHandler.PollResults)

	// --- Realtime ---
	e.GET("/ws", deps.RealtimeHandler.Serve)

	return e
}
