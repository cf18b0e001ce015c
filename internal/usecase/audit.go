package usecase

import (
	"context"

	"subscription-billing/internal/domain/model"
	"subscription-billing/internal/domain/ports/repository"

	"github.com/rs/zerolog"
)

// AuditEmitter records structured billing events into the append-only
// sink. Audit writes must never break the flow that emits them: failures
// are logged and swallowed.
type AuditEmitter struct {
	repo repository.AuditRepository
	log  *zerolog.Logger
}

func NewAuditEmitter(repo repository.AuditRepository, logger *zerolog.Logger) *AuditEmitter {
	auditLog := logger.With().Str("component", "AuditEmitter").Logger()
	return &AuditEmitter{repo: repo, log: &auditLog}
}

func (e *AuditEmitter) Emit(ctx context.Context, eventType, accountID, transactionID string, payload map[string]any) {
	ev := model.NewAuditEvent(eventType, accountID, transactionID, payload)
	if err := e.repo.Append(ctx, nil, ev); err != nil {
		e.log.Error().Err(err).
			Str("event_type", eventType).
			Str("account_id", accountID).
			Msg("audit append failed")
	}
}
