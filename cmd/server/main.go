package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"carecircle/internal/config"
	"carecircle/internal/database"
	"carecircle/internal/feed"
	"carecircle/internal/handlers"
	"carecircle/internal/live"
	"carecircle/internal/profile"
	"carecircle/internal/repository"
	"carecircle/internal/security"
	"carecircle/internal/service"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := config.NewLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	startup := handlers.NewStartupStatus(
		handlers.StepDatabase,
		handlers.StepMigrations,
		handlers.StepServices,
		handlers.StepServing,
	)

	// Initialize database with config (supports sqlite, postgres, mysql)
	startup.SetCurrentStep(handlers.StepDatabase)
	db, err := database.InitializeWithConfig(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()
	startup.CompleteStep(handlers.StepDatabase)
	logger.Info("database connection established", zap.String("type", cfg.DatabaseType))

	startup.SetCurrentStep(handlers.StepMigrations)
	if err := db.RunMigrations(ctx, cfg.MigrationsPath, logger); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	startup.CompleteStep(handlers.StepMigrations)

	startup.SetCurrentStep(handlers.StepServices)
	userRepo := repository.NewUserRepository(db)
	seniorRepo := repository.NewSeniorRepository(db)

	src := feed.New(repository.NewRecordRepository(db), repository.NewAssignmentRepository(db), feed.Options{
		Interval:  cfg.PollInterval,
		ChunkSize: cfg.QueryChunkSize,
		Logger:    logger.Named("feed"),
	})

	emailService, err := service.NewEmailService(ctx, cfg.SESRegion, cfg.SESFromEmail, "CareCircle", logger.Named("email"))
	if err != nil {
		return fmt.Errorf("failed to initialize email: %w", err)
	}

	policy := live.DegradeToEmpty
	if cfg.RetainOnError {
		policy = live.RetainLastGood
	}

	authService := service.NewAuthService(userRepo, security.NewTokenIssuer(cfg.TokenSecret, cfg.SessionDuration))
	dashboardService := service.NewDashboardService(src, src, profile.LookupFunc(seniorRepo.GetSenior), service.DashboardOptions{
		PreviewLimit: cfg.PreviewLimit,
		IdleTTL:      cfg.SessionIdleTTL,
		Policy:       policy,
		Notifier:     service.NewEmailAlertNotifier(userRepo, emailService),
		Logger:       logger.Named("dashboard"),
	})
	defer dashboardService.Close()
	careService := service.NewCareService(db)

	limiter := security.NewRateLimiter(10, time.Minute)
	defer limiter.Close()

	router := handlers.Router{
		Middleware: handlers.NewMiddleware(authService, limiter, logger),
		Auth:       handlers.NewAuthHandler(authService, logger),
		Dashboard:  handlers.NewDashboardHandler(dashboardService, logger),
		Care:       handlers.NewCareHandler(careService, logger),
		Health:     handlers.NewHealthHandler(startup, src.Stats, dashboardService.ActiveSessions),
		Logger:     logger.Named("http"),
	}
	startup.CompleteStep(handlers.StepServices)

	// streams watch this context, so cancelling it lets Shutdown finish
	baseCtx, cancelRequests := context.WithCancel(context.Background())
	defer cancelRequests()

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
		BaseContext:  func(net.Listener) context.Context { return baseCtx },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("server starting", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("server shutting down")
		cancelRequests()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	startup.MarkReady()
	return g.Wait()
}
