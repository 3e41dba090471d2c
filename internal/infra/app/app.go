package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/resumekit/credential-service/internal/core/port"
	"github.com/resumekit/credential-service/internal/infra/config"
	"github.com/resumekit/credential-service/internal/infra/database"
	"github.com/resumekit/credential-service/internal/infra/hosted"
	kafkainfra "github.com/resumekit/credential-service/internal/infra/kafka"
	"github.com/resumekit/credential-service/internal/infra/logger"
	redisinfra "github.com/resumekit/credential-service/internal/infra/redis"
	"github.com/resumekit/credential-service/internal/infra/security"
	"github.com/resumekit/credential-service/internal/infra/telemetry"
	postgresrepo "github.com/resumekit/credential-service/internal/repository/postgres"
	redisrepo "github.com/resumekit/credential-service/internal/repository/redis"
	"github.com/resumekit/credential-service/internal/transport/http/middleware"
	"github.com/resumekit/credential-service/internal/transport/http/routes"
	"github.com/resumekit/credential-service/internal/usecase"
)

type Application struct {
	cfg    *config.AppConfig
	engine *gin.Engine
	logger *zap.Logger
	pool   *pgxpool.Pool
	redis  *redisinfra.Client
}

func New(ctx context.Context, cfg *config.AppConfig) (*Application, error) {
	log, err := logger.New(cfg.App.Env)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	if _, err := telemetry.Attach(ctx, cfg); err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	pool, err := database.NewPostgresPool(ctx, cfg.Postgres, log)
	if err != nil {
		return nil, fmt.Errorf("init postgres: %w", err)
	}

	redisClient, err := redisinfra.NewClient(cfg.Redis, log)
	if err != nil {
		return nil, fmt.Errorf("init redis: %w", err)
	}

	blobStore := postgresrepo.NewBlobRepository(pool)
	otpStore := redisrepo.NewOTPRepository(redisClient.Client(), cfg.Redis.OTPPrefix)
	flagStore := redisrepo.NewVerifiedFlagRepository(redisClient.Client(), cfg.Redis.FlagPrefix)
	tokenStore := redisrepo.NewResetTokenRepository(redisClient.Client(), cfg.Redis.ResetTokenPrefix)

	// Initialize Kafka event publisher
	var eventPublisher port.EventPublisher
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaProducer, err := kafkainfra.NewProducer(cfg.Kafka, log)
		if err != nil {
			log.Warn("failed to init kafka producer, using stub publisher", zap.Error(err))
			eventPublisher = kafkainfra.NewStubPublisher(log)
		} else {
			eventPublisher = kafkainfra.NewEventPublisher(kafkaProducer, cfg.App, log)
			log.Info("kafka event publisher initialized", zap.Strings("brokers", cfg.Kafka.Brokers))
		}
	} else {
		log.Info("kafka brokers not configured, using stub publisher")
		eventPublisher = kafkainfra.NewStubPublisher(log)
	}

	passwordValidator := security.DefaultPasswordValidator()

	rateLimitWindow := cfg.RateLimit.WindowDuration
	if rateLimitWindow <= 0 {
		rateLimitWindow = time.Minute
	}
	rateLimitTTL := rateLimitWindow * 2
	if cfg.Recovery.ResendCooldown > rateLimitWindow {
		rateLimitTTL = cfg.Recovery.ResendCooldown * 2
	}
	rateLimitStore := redisrepo.NewRateLimitRepository(redisClient.Client(), redisrepo.SlidingWindowConfig{
		KeyPrefix: cfg.Redis.CooldownPrefix,
		TTL:       rateLimitTTL,
	})

	rateLimiter := middleware.NewRateLimiter(rateLimitStore, log)

	hostedClient := hosted.NewClient(cfg.Hosted, log)

	credentialService := usecase.NewCredentialService(blobStore, eventPublisher, passwordValidator, log)
	sessionService := usecase.NewSessionService(blobStore, credentialService, log)

	otpService := usecase.NewOTPService(otpStore, log)
	if cfg.Recovery.OTPTTL > 0 {
		otpService.WithTTL(cfg.Recovery.OTPTTL)
	}
	if cfg.Recovery.OTPLength > 0 {
		otpService.WithCodeLength(cfg.Recovery.OTPLength)
	}
	if cfg.Recovery.OTPMaxAttempts > 0 {
		otpService.WithMaxAttempts(cfg.Recovery.OTPMaxAttempts)
	}

	resetService := usecase.NewPasswordResetService(hostedClient, credentialService, sessionService, otpService, flagStore, tokenStore, rateLimitStore, eventPublisher, cfg.Recovery, log)
	guardService := usecase.NewGuardService(sessionService, flagStore, log)

	engine := routes.Register(routes.Dependencies{
		Config:      cfg,
		Logger:      log,
		RateLimiter: rateLimiter,
		Database:    pool,
		Cache:       redisClient,
		Services: routes.ServiceSet{
			Credentials:   credentialService,
			Sessions:      sessionService,
			PasswordReset: resetService,
			Guard:         guardService,
			Hosted:        hostedClient,
		},
	})

	return &Application{
		cfg:    cfg,
		engine: engine,
		logger: log,
		pool:   pool,
		redis:  redisClient,
	}, nil
}

func (a *Application) Run(ctx context.Context) error {
	defer func() {
		_ = a.logger.Sync()
	}()
	defer func() {
		if a.pool != nil {
			a.pool.Close()
		}
	}()
	defer func() {
		if a.redis != nil {
			_ = a.redis.Close()
		}
	}()

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", a.cfg.App.Host, a.cfg.App.Port),
		Handler:           a.engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	a.logger.Info("starting credential API",
		zap.String("env", a.cfg.App.Env),
		zap.String("address", srv.Addr),
	)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- fmt.Errorf("run server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown server: %w", err)
		}
		return nil
	case err := <-serverErrCh:
		return err
	}
}
