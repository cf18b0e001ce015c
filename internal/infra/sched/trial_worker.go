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

const trialLockKey = "lock:trial-monitor"

// TrialWorker drives the trial lifecycle monitor on a fixed interval.
// Passes are serialized across instances with a redis lock; a held lock
// means another instance is already running this pass.
type TrialWorker struct {
	interval time.Duration
	trialUC  usecase.TrialUseCase
	locker   redis.Locker
	log      *zerolog.Logger
}

func NewTrialWorker(interval time.Duration, trialUC usecase.TrialUseCase, locker redis.Locker, logger *zerolog.Logger) *TrialWorker {
	if interval <= 0 {
		interval = time.Hour
	}
	compLog := logger.With().Str("component", "TrialWorker").Logger()
	return &TrialWorker{
		interval: interval,
		trialUC:  trialUC,
		locker:   locker,
		log:      &compLog,
	}
}

func (w *TrialWorker) Run(ctx context.Context) error {
	w.log.Info().Dur("interval", w.interval).Msg("starting trial worker")
	// Run once on startup, then on every tick
	w.runPass(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("stopping trial worker")
			return ctx.Err()
		case <-ticker.C:
			w.runPass(ctx)
		}
	}
}

func (w *TrialWorker) runPass(ctx context.Context) {
	if w.locker != nil {
		token, err := w.locker.TryLock(ctx, trialLockKey, w.interval)
		if errors.Is(err, domain.ErrLockNotAcquired) {
			w.log.Debug().Msg("trial pass held by another instance, skipping")
			return
		}
		if err != nil {
			w.log.Error().Err(err).Msg("trial lock acquire failed")
			return
		}
		defer func() {
			if err := w.locker.Unlock(ctx, trialLockKey, token); err != nil {
				w.log.Error().Err(err).Msg("trial lock release failed")
			}
		}()
	}

	res, err := w.trialUC.CheckAndNotify(ctx)
	if err != nil {
		w.log.Error().Err(err).Msg("trial pass failed")
		return
	}
	if res.Notified > 0 || res.Expired > 0 {
		w.log.Info().
			Int("notified", res.Notified).
			Int("expired", res.Expired).
			Msg("trial pass applied changes")
	}
}
