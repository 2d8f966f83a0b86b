package main

import (
	"context"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/barterhub/backend/internal/cache"
	"github.com/barterhub/backend/internal/client"
	"github.com/barterhub/backend/internal/config"
	"github.com/barterhub/backend/internal/db"
	"github.com/barterhub/backend/internal/handler"
	"github.com/barterhub/backend/internal/logging"
	"github.com/barterhub/backend/internal/policy"
	"github.com/barterhub/backend/internal/service"
	"github.com/barterhub/backend/internal/token"
)

var defaultCountries = map[string]string{
	"DE": "Germany",
	"PL": "Poland",
	"GB": "United Kingdom",
	"US": "United States",
	"UA": "Ukraine",
}

func main() {
	_ = godotenv.Load()

	logger, err := logging.New(os.Getenv("APP_ENV"))
	if err != nil {
		panic(err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	cfg := config.Load()
	ctx := context.Background()

	postgres, err := db.NewPostgres(ctx, cfg.Postgres)
	if err != nil {
		logger.Fatal("postgres init failed", zap.Error(err))
	}
	defer postgres.Close()

	redisClient, err := cache.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		logger.Fatal("redis init failed", zap.Error(err))
	}
	defer func() {
		_ = redisClient.Close()
	}()

	if err := postgres.EnsureUserSchema(ctx); err != nil {
		logger.Fatal("user schema failed", zap.Error(err))
	}
	if err := postgres.EnsureSessionSchema(ctx); err != nil {
		logger.Fatal("session schema failed", zap.Error(err))
	}
	if err := postgres.EnsureMailConfirmSchema(ctx); err != nil {
		logger.Fatal("mail confirm schema failed", zap.Error(err))
	}
	if err := postgres.SeedCountries(ctx, defaultCountries); err != nil {
		logger.Fatal("country seed failed", zap.Error(err))
	}

	sessionCache := cache.NewSessionCache(redisClient)
	counters := cache.NewCounters(redisClient)
	freshness := cache.NewFreshness(redisClient)

	// Seed the per-user freshness keys so conditional reads work right
	// after a restart.
	updatedAt, err := postgres.ListUserUpdatedAt(ctx)
	if err != nil {
		logger.Fatal("freshness seed query failed", zap.Error(err))
	}
	if err := freshness.Seed(ctx, updatedAt); err != nil {
		logger.Fatal("freshness seed failed", zap.Error(err))
	}
	logger.Info("freshness keys seeded", zap.Int("users", len(updatedAt)))

	codec, err := token.NewCodec(cfg.Auth)
	if err != nil {
		logger.Fatal("token codec init failed", zap.Error(err))
	}

	bruteforce, err := policy.NewBruteforcePolicy(counters, cfg.Security)
	if err != nil {
		logger.Fatal("bruteforce policy init failed", zap.Error(err))
	}

	sessionPolicy, err := policy.NewSessionPolicy(postgres, cfg.Security)
	if err != nil {
		logger.Fatal("session policy init failed", zap.Error(err))
	}

	var mailer service.Mailer
	if cfg.SMTP.Host != "" {
		mailer = client.NewSMTPMailer(cfg.SMTP, logger)
	} else {
		logger.Warn("SMTP_HOST not set, confirmation mails are logged only")
		mailer = &client.LogMailer{BaseURL: cfg.SMTP.BaseURL, Logger: logger}
	}

	mailConfirm, err := service.NewMailConfirmService(postgres, counters, freshness, mailer, cfg.Security, logger)
	if err != nil {
		logger.Fatal("mail confirm init failed", zap.Error(err))
	}

	usersSvc := service.NewUsersService(postgres, freshness, mailConfirm, logger)
	authSvc := service.NewAuthService(postgres, postgres, sessionCache, bruteforce, sessionPolicy, codec, logger)

	if err := usersSvc.EnsureAdmin(ctx, cfg.Admin); err != nil {
		logger.Fatal("admin seed failed", zap.Error(err))
	}

	cookieCfg, err := handler.NewCookieConfig(cfg.Auth)
	if err != nil {
		logger.Fatal("cookie config invalid", zap.Error(err))
	}

	rateLimit, err := handler.RateLimitMiddleware(counters, cfg.Security)
	if err != nil {
		logger.Fatal("rate limit config invalid", zap.Error(err))
	}

	authHandler := handler.NewAuthHandler(authSvc, usersSvc, cookieCfg)
	usersHandler := handler.NewUsersHandler(usersSvc, service.NewFreshnessGate(freshness))
	countriesHandler := handler.NewCountriesHandler(usersSvc)
	mailConfirmHandler := handler.NewMailConfirmHandler(mailConfirm)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(handler.CORSMiddleware(cfg.Server.AllowedOrigins, cfg.Server.AllowCredentials))
	router.Use(handler.DeviceIDMiddleware(cookieCfg))
	router.Use(rateLimit)

	router.GET("/", handler.Root)
	router.GET("/ping", handler.Ping)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api/v1")
	{
		api.POST("/auth/register", authHandler.Register)
		api.POST("/auth/login", authHandler.Login)
		api.POST("/auth/refresh", authHandler.Refresh)

		api.GET("/countries", countriesHandler.List)

		api.GET("/mail-confirm/confirm", mailConfirmHandler.Confirm)
		api.POST("/mail-confirm/resend", mailConfirmHandler.Resend)

		protected := api.Group("")
		protected.Use(handler.AuthMiddleware(codec, authSvc))
		{
			protected.POST("/auth/logout", authHandler.Logout)
			protected.GET("/users/me", usersHandler.GetMe)
			protected.PATCH("/users/me", usersHandler.UpdateMe)
		}
	}

	logger.Info("server starting", zap.String("port", cfg.Server.Port))
	if err := router.Run(":" + cfg.Server.Port); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}
