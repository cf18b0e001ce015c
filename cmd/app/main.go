package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"subscription-billing/internal/config"
	"subscription-billing/internal/domain/ports/adapter"
	pg "subscription-billing/internal/infra/db/postgres"
	"subscription-billing/internal/infra/logging"
	"subscription-billing/internal/infra/metrics"
	"subscription-billing/internal/infra/notify"
	"subscription-billing/internal/infra/payment"
	"subscription-billing/internal/infra/receipt"
	red "subscription-billing/internal/infra/redis"
	"subscription-billing/internal/infra/sched"
	"subscription-billing/internal/infra/web"
	"subscription-billing/internal/usecase"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Warn().Msg("developer mode enabled")
	}

	metrics.MustRegister()

	// ---- Postgres ----
	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, cfg.Database.PoolSize)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres")
	}
	defer pool.Close()

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis")
	}
	defer redisClient.Close()
	locker := red.NewLocker(redisClient)

	// ---- Repositories ----
	accountRepo := pg.NewAccountRepo(pool)
	subRepo := pg.NewSubscriptionRepo(pool)
	txRepo := pg.NewTransactionRepo(pool)
	auditRepo := pg.NewAuditRepo(pool)
	notifLogRepo := pg.NewNotificationLogRepo(pool)
	tm := pg.NewTxManager(pool)

	// ---- Adapters ----
	var gateway adapter.BillingGateway
	if cfg.Payment.MercadoPago.AccessToken != "" {
		mp, err := payment.NewMercadoPagoGateway(
			cfg.Payment.MercadoPago.AccessToken,
			cfg.Payment.MercadoPago.NotificationURL,
			cfg.Payment.MercadoPago.Sandbox,
			time.Duration(cfg.Payment.MercadoPago.TimeoutSeconds)*time.Second,
		)
		if err != nil {
			logger.Fatal().Err(err).Msg("mercadopago gateway")
		}
		gateway = mp
	} else {
		logger.Warn().Msg("payment.mercadopago.access_token not set; checkout disabled")
	}

	verifier := receipt.NewAppleVerifier(
		cfg.Payment.Apple.SharedSecret,
		time.Duration(cfg.Payment.Apple.TimeoutSeconds)*time.Second,
	)

	var notifier adapter.TrialNotifier
	if cfg.Notifications.WebhookURL != "" {
		notifier = notify.NewWebhookNotifier(
			cfg.Notifications.WebhookURL,
			time.Duration(cfg.Notifications.TimeoutSeconds)*time.Second,
			logger,
		)
	} else {
		logger.Warn().Msg("notifications.webhook_url not set; trial notices are logged only")
	}

	// ---- Use cases ----
	audit := usecase.NewAuditEmitter(auditRepo, logger)
	activator := usecase.NewActivator(accountRepo, subRepo, logger)
	subUC := usecase.NewSubscriptionUseCase(accountRepo, subRepo, txRepo, tm, gateway, activator, audit, logger)
	receiptUC := usecase.NewReceiptUseCase(accountRepo, subRepo, txRepo, tm, verifier, audit, logger)
	reconcileUC := usecase.NewReconcileUseCase(accountRepo, subRepo, txRepo, tm, activator, audit, logger)
	trialUC := usecase.NewTrialUseCase(accountRepo, subRepo, notifLogRepo, tm, notifier, audit, cfg.Scheduler.NotifyThresholdDaysMax, logger)
	accessUC := usecase.NewAccessUseCase(accountRepo, subRepo, trialUC, audit, logger)
	statsUC := usecase.NewStatsUseCase(subRepo, txRepo, logger)

	// ---- HTTP server ----
	reconcileWindow := time.Duration(cfg.Scheduler.ReconcileWindowDays) * 24 * time.Hour
	reconcileGrace := time.Duration(cfg.Scheduler.ReconcileGraceMinutes) * time.Minute

	auth := web.NewAuthManager(cfg.Server.JWTSecret, 24*time.Hour)
	srv := web.NewServer(
		subUC, receiptUC, reconcileUC, accessUC,
		auth, audit, cfg.Server.AdminToken, cfg.Payment.MercadoPago.WebhookSecret,
		adapter.ReturnURLs{
			Success: cfg.Payment.MercadoPago.SuccessURL,
			Failure: cfg.Payment.MercadoPago.FailureURL,
			Pending: cfg.Payment.MercadoPago.PendingURL,
		},
		web.ReconcileWindow{Window: reconcileWindow, Grace: reconcileGrace},
		logger,
	)
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info().Str("addr", httpServer.Addr).Msg("http server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("http server")
		}
	}()

	// ---- Background workers ----
	trialWorker := sched.NewTrialWorker(cfg.Scheduler.TrialCheckInterval, trialUC, locker, logger)
	go func() { _ = trialWorker.Run(ctx) }()

	reconcileWorker := sched.NewReconcileWorker(cfg.Scheduler.ReconcileInterval, reconcileWindow, reconcileGrace, reconcileUC, statsUC, locker, logger)
	go func() { _ = reconcileWorker.Run(ctx) }()

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	logger.Info().Msg("shutdown requested")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}
}
