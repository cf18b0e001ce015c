package sched

import (
	"context"
	"errors"
	"time"

	"subscription-billing/internal/domain"
	"subscription-billing/internal/infra/redis"
	"subscription-billing/internal/usecase"

	"github.com/rs/zerolog"
)

const reconcileLockKey = "lock:payment-reconciler"

// ReconcileWorker periodically runs the full scan-and-repair pass over
// settled payments. It is the self-healing backstop for lost or failed
// webhook deliveries: the live path should make every pass a no-op.
type ReconcileWorker struct {
	interval    time.Duration
	window      time.Duration
	grace       time.Duration
	reconcileUC usecase.ReconcileUseCase
	stats       usecase.StatsUseCase // may be nil
	locker      redis.Locker
	log         *zerolog.Logger
}

func NewReconcileWorker(interval, window, grace time.Duration, reconcileUC usecase.ReconcileUseCase, stats usecase.StatsUseCase, locker redis.Locker, logger *zerolog.Logger) *ReconcileWorker {
	if interval <= 0 {
		interval = 30 * time.Minute
	}
	if window <= 0 {
		window = 7 * 24 * time.Hour
	}
	if grace <= 0 {
		grace = 30 * time.Minute
	}
	compLog := logger.With().Str("component", "ReconcileWorker").Logger()
	return &ReconcileWorker{
		interval:    interval,
		window:      window,
		grace:       grace,
		reconcileUC: reconcileUC,
		stats:       stats,
		locker:      locker,
		log:         &compLog,
	}
}

func (w *ReconcileWorker) Run(ctx context.Context) error {
	w.log.Info().
		Dur("interval", w.interval).
		Dur("window", w.window).
		Msg("starting reconcile worker")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("stopping reconcile worker")
			return ctx.Err()
		case <-ticker.C:
			w.runPass(ctx)
		}
	}
}

func (w *ReconcileWorker) runPass(ctx context.Context) {
	if w.locker != nil {
		token, err := w.locker.TryLock(ctx, reconcileLockKey, w.interval)
		if errors.Is(err, domain.ErrLockNotAcquired) {
			w.log.Debug().Msg("reconcile pass held by another instance, skipping")
			return
		}
		if err != nil {
			w.log.Error().Err(err).Msg("reconcile lock acquire failed")
			return
		}
		defer func() {
			if err := w.locker.Unlock(ctx, reconcileLockKey, token); err != nil {
				w.log.Error().Err(err).Msg("reconcile lock release failed")
			}
		}()
	}

	if w.stats != nil {
		if err := w.stats.Collect(ctx); err != nil {
			w.log.Error().Err(err).Msg("gauge refresh failed")
		}
	}

	res, err := w.reconcileUC.ProcessAllDivergent(ctx, w.window, w.grace)
	if err != nil {
		w.log.Error().Err(err).Msg("reconcile pass failed")
		return
	}
	if res.Total > 0 {
		w.log.Warn().
			Int("total", res.Total).
			Int("successful", res.Successful).
			Int("failed", res.Failed).
			Msg("reconcile pass repaired divergences")
	}
}
