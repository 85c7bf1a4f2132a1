package api

import (
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	echoSwagger "github.com/swaggo/echo-swagger"

	"github.com/stomacrm/clinic/internal/api/handler"
	"github.com/stomacrm/clinic/internal/api/middleware"
	"github.com/stomacrm/clinic/internal/core/domain"
	"github.com/stomacrm/clinic/internal/core/ports"

	_ "github.com/stomacrm/clinic/docs"
)

// Deps are the services the HTTP surface is built on.
type Deps struct {
	Accounts  ports.AccountService
	Admin     ports.AdminService
	Reminders ports.ReminderService
	Profiles  ports.ProfileStore
	Events    ports.SessionSubscriber
	Checks    map[string]handler.DependencyCheck
	Log       zerolog.Logger
}

// NewRouter builds and returns the Echo instance with all routes registered.
// It registers the HTTP Prometheus collectors, so call it once per process.
func NewRouter(d Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handler.NewValidator()
	e.HTTPErrorHandler = NewHTTPErrorHandler(d.Log)

	// --- Global middleware ---
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.RequestID())
	e.Use(requestLogger(d.Log))
	e.Use(echoprometheus.NewMiddlewareWithConfig(echoprometheus.MiddlewareConfig{
		Subsystem: "clinic_http",
		Skipper: func(c echo.Context) bool {
			return c.Path() == "/metrics" || c.Path() == "/auth/events"
		},
	}))

	// --- Dependencies ---
	authHandler := handler.NewAuthHandler(d.Accounts, d.Events, d.Log)
	profileHandler := handler.NewProfileHandler(d.Profiles, d.Log)
	adminHandler := handler.NewAdminHandler(d.Admin, d.Log)
	reminderHandler := handler.NewReminderHandler(d.Reminders)
	healthHandler := handler.NewHealthHandler(d.Checks)

	requireSession := middleware.Auth(d.Accounts)
	requireAdmin := middleware.RBAC(d.Profiles, domain.RoleAdmin)

	// --- Auth ---
	auth := e.Group("/auth")
	auth.POST("/sign-up", authHandler.SignUp)
	auth.POST("/sign-in", authHandler.SignIn)
	auth.POST("/sign-out", authHandler.SignOut, requireSession)
	auth.GET("/session", authHandler.Session, requireSession)
	auth.POST("/refresh", authHandler.Refresh, requireSession)
	auth.GET("/events", authHandler.Events, requireSession)

	// --- Profiles ---
	profiles := e.Group("/profiles", requireSession)
	profiles.GET("/me", profileHandler.Me)
	profiles.PUT("/me", profileHandler.Provision)

	// --- Admin ---
	e.POST("/admin/recovery", adminHandler.Recover)

	admin := e.Group("/admin/users", requireSession, requireAdmin)
	admin.GET("", adminHandler.ListUsers)
	admin.PATCH("/:id/role", adminHandler.ChangeRole)
	admin.PATCH("/:id/active", adminHandler.SetActive)
	admin.POST("/:id/password", adminHandler.ResetPassword)

	// --- Reminders ---
	e.POST("/reminders/dispatch", reminderHandler.Dispatch, requireSession, requireAdmin)

	// --- Ops ---
	e.GET("/health", healthHandler.Liveness)
	e.GET("/health/ready", healthHandler.Readiness)
	e.GET("/metrics", echoprometheus.NewHandler())
	e.GET("/swagger/*", echoSwagger.WrapHandler)

	return e
}

func requestLogger(log zerolog.Logger) echo.MiddlewareFunc {
	return echomiddleware.RequestLoggerWithConfig(echomiddleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v echomiddleware.RequestLoggerValues) error {
			ev := log.Info()
			if v.Status >= 500 {
				ev = log.Error()
			}
			if v.Error != nil {
				ev = ev.Err(v.Error)
			}
			ev.Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("request_id", v.RequestID).
				Msg("request")
			return nil
		},
	})
}
