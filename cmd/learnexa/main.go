package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/learnexa/learnexa/internal/admin"
	"github.com/learnexa/learnexa/internal/app"
	"github.com/learnexa/learnexa/internal/auth"
	"github.com/learnexa/learnexa/internal/guard"
	"github.com/learnexa/learnexa/internal/identity/local"
	"github.com/learnexa/learnexa/internal/locale"
	"github.com/learnexa/learnexa/internal/observability"
	"github.com/learnexa/learnexa/internal/platform/cache"
	"github.com/learnexa/learnexa/internal/platform/db"
	"github.com/learnexa/learnexa/internal/profiles"
	"github.com/learnexa/learnexa/internal/roles"
	"github.com/learnexa/learnexa/internal/shared"
	"github.com/learnexa/learnexa/internal/site"
	"github.com/learnexa/learnexa/internal/view"
	"github.com/learnexa/learnexa/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	dbpool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{MaxConns: cfg.PGMaxConns})
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	sessionManager := shared.NewSessionManager(redisClient, "learnexa_session", cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)
	catalog := locale.MustLoadEmbedded()
	metrics := observability.NewMetrics()

	templates, err := view.NewEngine(view.WithDecorator(auth.PageDecorator(csrfManager, cfg.GuardSettleTimeout, logger)))
	if err != nil {
		logger.Error("parse templates", slog.Any("error", err))
		os.Exit(1)
	}

	broker := local.NewBroker(redisClient, logger)
	go func() {
		if err := broker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("session event broker", slog.Any("error", err))
			stop()
		}
	}()

	jobClient := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	roleService := roles.NewService(roles.NewRepository(dbpool), broker, logger)
	profileService := profiles.NewService(profiles.NewRepository(dbpool))
	adminService := admin.NewService(profileService, roleService)

	factory := local.NewFactory(local.Deps{
		Users:  local.NewRepository(dbpool),
		Tokens: local.NewTokens(cfg.TokenSecret, cfg.TokenTTL, cfg.TokenRefreshWindow),
		OTP: local.NewOTPStore(redisClient, local.OTPConfig{
			TTL:            cfg.OTPTTL,
			MaxAttempts:    cfg.OTPMaxAttempts,
			ResendInterval: cfg.OTPResendInterval,
		}),
		Bus:    broker,
		Jobs:   jobClient,
		Logger: logger,
	})

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:          logger,
		Config:          cfg,
		SessionManager:  sessionManager,
		CSRFManager:     csrfManager,
		Catalog:         catalog,
		ClientFactory:   factory,
		Roles:           roleService,
		Metrics:         metrics,
		SiteHandler:     site.NewHandler(logger, templates, jobClient),
		LocaleHandler:   locale.NewHandler(logger),
		AuthHandler:     auth.NewHandler(logger, templates, sessionManager, csrfManager, metrics, cfg.GuardSettleTimeout),
		ProfilesHandler: profiles.NewHandler(logger, profileService, templates),
		AdminHandler:    admin.NewHandler(logger, adminService, templates, shared.NewAuditLogger(dbpool)),
		Guard:           guard.New(logger, templates, cfg.GuardSettleTimeout, metrics),
		JobHandler:      jobs.NewHandler(inspector, logger),
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr), slog.String("env", cfg.AppEnv))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
