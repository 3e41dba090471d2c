package routes

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/resumekit/credential-service/internal/core/port"
	"github.com/resumekit/credential-service/internal/infra/config"
	"github.com/resumekit/credential-service/internal/transport/http/handlers"
	"github.com/resumekit/credential-service/internal/transport/http/middleware"
	"github.com/resumekit/credential-service/internal/usecase"
)

// ServiceSet groups the services the HTTP layer depends on.
type ServiceSet struct {
	Credentials   *usecase.CredentialService
	Sessions      *usecase.SessionService
	PasswordReset *usecase.PasswordResetService
	Guard         *usecase.GuardService
	Hosted        port.HostedAuth
}

// Dependencies encapsulates the objects required to register routes.
type Dependencies struct {
	Config      *config.AppConfig
	Logger      *zap.Logger
	RateLimiter *middleware.RateLimiter
	Services    ServiceSet
	Database    DatabaseChecker
	Cache       CacheChecker
}

// DatabaseChecker exposes readiness behaviour for database connections.
type DatabaseChecker interface {
	Ping(ctx context.Context) error
}

// CacheChecker exposes readiness behaviour for cache backends.
type CacheChecker interface {
	HealthCheck(ctx context.Context) error
}

// Register configures the Gin engine with routes and middleware.
func Register(deps Dependencies) *gin.Engine {
	if deps.Config.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.EnrichContext())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(deps.Logger))
	r.Use(middleware.CORS(deps.Config.App.CORSAllowedOrigins))

	healthOptions := make([]handlers.HealthOption, 0, 2)
	if deps.Database != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("database", deps.Database.Ping))
	}
	if deps.Cache != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("redis", deps.Cache.HealthCheck))
	}
	healthHandler := handlers.NewHealthHandler(healthOptions...)

	r.GET("/healthz", healthHandler.Status)
	r.GET("/readyz", healthHandler.Readiness)

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api/v1")
	{
		isDev := deps.Config.App.DevMode()

		sessionMiddleware := middleware.RequireSession(deps.Services.Sessions)
		adminMiddleware := middleware.RequireAdmin()

		authGroup := api.Group("/auth")
		authHandler := handlers.NewAuthHandler(deps.Services.Hosted, deps.Services.Credentials, deps.Services.Sessions, deps.Logger)
		authHandler.RegisterRoutes(authGroup, sessionMiddleware, buildLoginMiddlewares(deps)...)

		passwordGroup := api.Group("/password")
		passwordHandler := handlers.NewPasswordHandler(deps.Services.PasswordReset, isDev)
		passwordHandler.RegisterRoutes(passwordGroup, buildResetMiddlewares(deps)...)

		if deps.Services.Guard != nil {
			gatesGroup := api.Group("/gates")
			gateHandler := handlers.NewGateHandler(deps.Services.Guard)
			gateHandler.RegisterRoutes(gatesGroup)
		}

		adminGroup := api.Group("/admin")
		adminGroup.Use(sessionMiddleware, adminMiddleware)
		adminHandler := handlers.NewAdminHandler(deps.Services.Credentials, deps.Services.Sessions)
		adminHandler.RegisterRoutes(adminGroup)
	}

	return r
}

func buildLoginMiddlewares(deps Dependencies) []gin.HandlerFunc {
	return buildRateLimitMiddlewares(deps, "auth_login_ip", deps.Config.RateLimit.LoginMaxAttempts)
}

func buildResetMiddlewares(deps Dependencies) []gin.HandlerFunc {
	return buildRateLimitMiddlewares(deps, "password_reset_ip", deps.Config.RateLimit.ResetMaxAttempts)
}

func buildRateLimitMiddlewares(deps Dependencies, name string, limit int) []gin.HandlerFunc {
	if deps.RateLimiter == nil || deps.Config == nil || limit <= 0 {
		return nil
	}

	window := deps.Config.RateLimit.WindowDuration
	if window <= 0 {
		window = time.Minute
	}

	rule := middleware.RateLimitRule{
		Name:       name,
		Limit:      limit,
		Window:     window,
		Identifier: middleware.ClientIPIdentifier(),
	}

	return []gin.HandlerFunc{deps.RateLimiter.RateLimit(rule)}
}
