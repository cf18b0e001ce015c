// One-shot payment reconciliation: scans for settled payments whose
// entitlement never landed and repairs them. The same pass runs inside the
// service on a schedule; this binary exists for operators and cron.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"subscription-billing/internal/config"
	pg "subscription-billing/internal/infra/db/postgres"
	"subscription-billing/internal/infra/logging"
	"subscription-billing/internal/usecase"
)

func main() {
	dryRun := flag.Bool("dry-run", false, "list divergent payments without repairing them")

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, cfg.Database.PoolSize)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres")
	}
	defer pool.Close()

	accountRepo := pg.NewAccountRepo(pool)
	subRepo := pg.NewSubscriptionRepo(pool)
	txRepo := pg.NewTransactionRepo(pool)
	auditRepo := pg.NewAuditRepo(pool)
	tm := pg.NewTxManager(pool)

	audit := usecase.NewAuditEmitter(auditRepo, logger)
	activator := usecase.NewActivator(accountRepo, subRepo, logger)
	reconcileUC := usecase.NewReconcileUseCase(accountRepo, subRepo, txRepo, tm, activator, audit, logger)

	window := time.Duration(cfg.Scheduler.ReconcileWindowDays) * 24 * time.Hour
	grace := time.Duration(cfg.Scheduler.ReconcileGraceMinutes) * time.Minute

	if *dryRun {
		divergent, err := reconcileUC.FindDivergentPayments(ctx, window, grace)
		if err != nil {
			logger.Fatal().Err(err).Msg("scan")
		}
		fmt.Printf("divergent payments: %d\n", len(divergent))
		for _, d := range divergent {
			fmt.Printf("  %s account=%s plan=%s amount=%d settled=%s (%dd ago)\n",
				d.TransactionID, d.AccountID, d.Plan, d.Amount,
				d.CompletedAt.Format(time.RFC3339), d.DaysSinceCompletion)
		}
		return
	}

	result, err := reconcileUC.ProcessAllDivergent(ctx, window, grace)
	if err != nil {
		logger.Fatal().Err(err).Msg("reconcile")
	}
	fmt.Printf("reconciled: total=%d successful=%d failed=%d\n", result.Total, result.Successful, result.Failed)
	for _, e := range result.Errors {
		fmt.Printf("  error: %s\n", e)
	}
	if result.Failed > 0 {
		os.Exit(1)
	}
}
