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

	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/rs/cors"

	"github.com/mtscoaima/aima-sub007/internal/auth"
	"github.com/mtscoaima/aima-sub007/internal/budget"
	"github.com/mtscoaima/aima-sub007/internal/commission"
	"github.com/mtscoaima/aima-sub007/internal/config"
	"github.com/mtscoaima/aima-sub007/internal/database"
	"github.com/mtscoaima/aima-sub007/internal/downline"
	"github.com/mtscoaima/aima-sub007/internal/handlers"
	"github.com/mtscoaima/aima-sub007/internal/ledger"
	"github.com/mtscoaima/aima-sub007/internal/referral"
	"github.com/mtscoaima/aima-sub007/internal/rewards"
	"github.com/mtscoaima/aima-sub007/internal/router"
	"github.com/mtscoaima/aima-sub007/internal/schema"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := database.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("Cannot reach PostgreSQL", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	slog.Info("Connected to PostgreSQL database successfully!")

	if err := database.Migrate(ctx, pool, logger); err != nil {
		slog.Error("Migrations failed", "error", err)
		os.Exit(1)
	}

	validator, err := schema.NewValidator()
	if err != nil {
		slog.Error("Schema validator init failed", "error", err)
		os.Exit(1)
	}

	tokens, err := auth.NewService(cfg.JWTSecret, 0)
	if err != nil {
		slog.Error("Auth init failed", "error", err)
		os.Exit(1)
	}

	// Ledger, referral graph, commission settings
	ledgerSvc := ledger.NewService(ledger.NewRepository(pool))
	referralRepo := referral.NewRepository(pool)
	referralSvc := referral.NewService(referralRepo, logger)
	resolver := referral.NewResolver(referralRepo, logger)
	settingsRepo := commission.NewSettingsRepo(pool, validator)
	settingsLoader := commission.NewLoader(settingsRepo, validator, logger)

	// Reward phase 2 runs as a River job
	distributor := rewards.NewDistributor(resolver, settingsLoader, ledgerSvc, validator, cfg.ChainMaxDepth, logger)
	workers := river.NewWorkers()
	river.AddWorker(workers, rewards.NewWorker(distributor, logger))

	riverClient, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: cfg.RiverMaxWorkers},
		},
		Workers: workers,
		Logger:  logger,
	})
	if err != nil {
		slog.Error("Failed to create River client", "error", err)
		os.Exit(1)
	}
	enqueuer := rewards.NewEnqueuer(riverClient, cfg.RewardMaxAttempts)

	controller := budget.NewController(pool, budget.NewCampaignRepository(pool), ledgerSvc, enqueuer, logger)
	aggregator := downline.NewAggregator(referralRepo, ledgerSvc, cfg.DownlineMaxDepth, cfg.DownlineTimeout, logger)

	api := router.New(router.Handlers{
		Campaigns: &handlers.CampaignHandler{Budget: controller, Logger: logger},
		Ledger:    &handlers.LedgerHandler{Ledger: ledgerSvc, Logger: logger},
		Referrals: &handlers.ReferralHandler{
			Downline:      aggregator,
			Referrals:     referralSvc,
			Rewards:       ledgerSvc,
			ChainMaxDepth: cfg.ChainMaxDepth,
			Logger:        logger,
		},
		Settings: &handlers.SettingsHandler{Source: settingsRepo, Store: settingsRepo, Validator: validator, Logger: logger},
	}, tokens)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		AllowCredentials: true,
	}).Handler(api)

	if err := riverClient.Start(ctx); err != nil {
		slog.Error("River client failed to start", "error", err)
		os.Exit(1)
	}

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           corsHandler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		slog.Info("Starting HTTP server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP shutdown", "error", err)
	}
	if err := riverClient.Stop(shutdownCtx); err != nil {
		slog.Error("River shutdown", "error", err)
	}
}
