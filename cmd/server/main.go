package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/openclaw/session-server-go/internal/config"
	"github.com/openclaw/session-server-go/internal/database"
	"github.com/openclaw/session-server-go/internal/handler"
	"github.com/openclaw/session-server-go/internal/jobs"
	"github.com/openclaw/session-server-go/internal/middleware"
	"github.com/openclaw/session-server-go/internal/redis"
	"github.com/openclaw/session-server-go/internal/repository"
	"github.com/openclaw/session-server-go/internal/service"
	"github.com/openclaw/session-server-go/internal/sse"
	"github.com/openclaw/session-server-go/internal/util"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	setLogLevel(cfg.LogLevel)

	isProduction := os.Getenv("FLY_APP_NAME") != ""
	if err := cfg.Validate(isProduction); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), config.DBPingTimeout)
	if err := db.Ping(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to ping database")
	}
	cancel()
	log.Info().Msg("database connected")

	redisClient, err := redis.NewClient(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer redisClient.Close()
	log.Info().Msg("redis connected")

	tokens, err := service.NewTokenService(service.TokenConfig{
		AccessSecret:  []byte(cfg.AccessTokenSecret),
		RefreshSecret: []byte(cfg.RefreshTokenSecret),
		AccessTTL:     cfg.AccessTokenTTL,
		RefreshTTL:    cfg.RefreshTokenTTL,
		Issuer:        cfg.TokenIssuer,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create token service")
	}

	encryptor, err := util.NewEncryptor(cfg.EncryptionKey)
	if err != nil {
		log.Fatal().Err(err).Msg("ENCRYPTION_KEY is required")
	}

	sessionRepo := repository.NewSessionRepository(db.DB)
	userRepo := repository.NewUserRepository(db.DB)
	apiKeyRepo := repository.NewAPIKeyRepository(db.DB)
	pairingRepo := repository.NewPairingRequestRepository(redisClient.Client, config.PairingRecordRetention)

	broker := sse.NewBroker(redisClient.Client)
	defer broker.Close()

	authService := service.NewAuthService(tokens, sessionRepo, userRepo)
	pairingService := service.NewPairingService(
		db, tokens, sessionRepo, userRepo, pairingRepo, encryptor,
		service.PairingConfig{
			AuthorizeURL: cfg.PairingURL(),
			RequestTTL:   config.PairingRequestTTL,
		},
	).WithPublisher(broker)
	apiKeyService := service.NewAPIKeyService(apiKeyRepo, encryptor)
	rateLimiter := service.NewRateLimiter(redisClient.Client)

	janitor := jobs.NewSessionJanitor(sessionRepo, cfg.SessionRetention, cfg.CleanupInterval)

	authMiddleware := middleware.NewAuthMiddleware(tokens)
	csrfMiddleware := middleware.NewCSRFMiddleware(cfg.CookieSecure)
	loginLimit := middleware.NewIPRateLimitMiddleware(rateLimiter, cfg.LoginRateLimit, config.RateLimitWindow, "login")
	pairingLimit := middleware.NewIPRateLimitMiddleware(rateLimiter, config.PairingInitiateLimit, config.RateLimitWindow, "pairing")
	userLimit := middleware.NewUserRateLimitMiddleware(rateLimiter, config.APIKeyRateLimit, config.RateLimitWindow, "api-keys")
	maintenanceMiddleware := middleware.NewMaintenanceMiddleware(cfg.CronSecret)
	bodyLimitMiddleware := middleware.NewBodyLimitMiddleware(0)
	securityHeadersMiddleware := middleware.NewSecurityHeadersMiddleware(isProduction)

	r := handler.NewRouter(handler.Handlers{
		Auth:        handler.NewAuthHandler(authService, middleware.NewCookieWriter(cfg.CookieSecure)),
		Pairing:     handler.NewPairingHandler(pairingService, broker),
		APIKeys:     handler.NewAPIKeyHandler(apiKeyService),
		Maintenance: handler.NewMaintenanceHandler(janitor, db),
	}, handler.Middlewares{
		RequireAuth:     authMiddleware.Handler,
		CSRF:            csrfMiddleware.Handler,
		LoginLimit:      loginLimit.Handler,
		PairingLimit:    pairingLimit.Handler,
		UserLimit:       userLimit.Handler,
		Maintenance:     maintenanceMiddleware.Handler,
		BodyLimit:       bodyLimitMiddleware.Handler,
		SecurityHeaders: securityHeadersMiddleware.Handler,
	})

	janitor.Start()
	defer janitor.Stop()

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      r,
		ReadTimeout:  config.ServerReadTimeout,
		WriteTimeout: 0, // pairing event streams stay open until the request expires
		IdleTimeout:  config.ServerIdleTimeout,
	}

	go func() {
		log.Info().Str("addr", cfg.Addr()).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.ServerShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}

func setLogLevel(level string) {
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
