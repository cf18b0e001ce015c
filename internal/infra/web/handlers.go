package web

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"subscription-billing/internal/domain"
	"subscription-billing/internal/domain/model"
	"subscription-billing/internal/domain/ports/adapter"
	"subscription-billing/internal/infra/metrics"
	"subscription-billing/internal/infra/payment"
	"subscription-billing/internal/usecase"
)

const maxBodyBytes = 1 << 20

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeDomainError maps the domain sentinels onto HTTP statuses.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: "not found"})
	case errors.Is(err, domain.ErrInvalidArgument),
		errors.Is(err, domain.ErrUnknownProduct),
		errors.Is(err, domain.ErrReceiptInvalid):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
	case errors.Is(err, domain.ErrAlreadyExists):
		writeJSON(w, http.StatusConflict, errorBody{Error: err.Error()})
	case errors.Is(err, domain.ErrProviderUnavailable):
		writeJSON(w, http.StatusBadGateway, errorBody{Error: "payment provider unavailable"})
	default:
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type checkoutRequest struct {
	Plan       string `json:"plan"`
	SuccessURL string `json:"success_url"`
	FailureURL string `json:"failure_url"`
	PendingURL string `json:"pending_url"`
}

type checkoutResponse struct {
	TransactionID string `json:"transaction_id"`
	PreferenceID  string `json:"preference_id"`
	RedirectURL   string `json:"redirect_url"`
	Amount        int64  `json:"amount"`
	Currency      string `json:"currency"`
}

func (s *Server) handleCreateCheckout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body"})
		return
	}

	urls := adapter.ReturnURLs{
		Success: req.SuccessURL,
		Failure: req.FailureURL,
		Pending: req.PendingURL,
	}
	if urls.Success == "" {
		urls.Success = s.returnURLs.Success
	}
	if urls.Failure == "" {
		urls.Failure = s.returnURLs.Failure
	}
	if urls.Pending == "" {
		urls.Pending = s.returnURLs.Pending
	}

	tx, redirect, err := s.subUC.CreateCheckout(r.Context(), accountIDFrom(r.Context()), model.PlanCode(req.Plan), urls)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, checkoutResponse{
		TransactionID: tx.ID,
		PreferenceID:  tx.ProviderPreferenceID,
		RedirectURL:   redirect,
		Amount:        tx.Amount,
		Currency:      tx.Currency,
	})
}

func (s *Server) handleGetStatus(w http.ResponseWriter, r *http.Request) {
	view, err := s.subUC.GetStatus(r.Context(), accountIDFrom(r.Context()))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleCancelSubscription(w http.ResponseWriter, r *http.Request) {
	immediate := r.URL.Query().Get("immediate") == "true"
	if err := s.subUC.CancelSubscription(r.Context(), accountIDFrom(r.Context()), immediate); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"canceled": true, "immediate": immediate})
}

type trialRequest struct {
	Plan string `json:"plan"`
	Days int    `json:"days"`
}

func (s *Server) handleStartTrial(w http.ResponseWriter, r *http.Request) {
	var req trialRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body"})
		return
	}
	if req.Plan == "" {
		req.Plan = string(model.PlanMonthly)
	}
	if req.Days <= 0 {
		req.Days = 7
	}

	sub, err := s.subUC.StartTrial(r.Context(), accountIDFrom(r.Context()), model.PlanCode(req.Plan), req.Days)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"status":    sub.Status,
		"plan":      sub.Plan,
		"trial_end": sub.TrialEnd,
	})
}

type appleReceiptRequest struct {
	ReceiptData string `json:"receipt_data"`
	ProductID   string `json:"product_id"`
	Sandbox     bool   `json:"sandbox"`
}

func (s *Server) handleAppleReceipt(w http.ResponseWriter, r *http.Request) {
	var req appleReceiptRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body"})
		return
	}
	if req.ReceiptData == "" || req.ProductID == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "receipt_data and product_id are required"})
		return
	}

	res, err := s.receiptUC.ProcessAppleReceipt(r.Context(), accountIDFrom(r.Context()), req.ReceiptData, req.ProductID, req.Sandbox)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// accessResponse is the 403 body: machine-readable reason plus the state
// that produced it.
type accessResponse struct {
	Allowed       bool   `json:"allowed"`
	Reason        string `json:"reason"`
	Status        string `json:"status"`
	TrialExpired  bool   `json:"trial_expired"`
	DaysRemaining int    `json:"days_remaining"`
}

func (s *Server) handleAccessCheck(w http.ResponseWriter, r *http.Request) {
	allowTrial := r.URL.Query().Get("allow_trial") != "false"

	var (
		decision *usecase.AccessDecision
		err      error
	)
	if r.URL.Query().Get("premium") == "true" {
		decision, err = s.accessUC.RequirePremium(r.Context(), accountIDFrom(r.Context()))
	} else {
		decision, err = s.accessUC.RequireActiveSubscription(r.Context(), accountIDFrom(r.Context()), allowTrial)
	}
	if err != nil && decision == nil {
		writeDomainError(w, err)
		return
	}

	resp := accessResponse{
		Allowed:       decision.Allowed,
		Reason:        decision.Reason,
		Status:        decision.Status,
		TrialExpired:  decision.TrialExpired,
		DaysRemaining: decision.DaysRemaining,
	}
	if decision.Allowed {
		writeJSON(w, http.StatusOK, resp)
		return
	}
	writeJSON(w, http.StatusForbidden, resp)
}

// handleMercadoPagoWebhook verifies the provider signature, translates the
// payload and hands it to the orchestrator. Unmatched events come back as
// 200 so the provider does not retry-storm irrelevant deliveries; only a
// genuine processing failure returns 5xx and invites a redelivery.
func (s *Server) handleMercadoPagoWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "unreadable body"})
		return
	}

	env, err := payment.ParseWebhook(body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "malformed webhook payload"})
		return
	}
	// Notification-mode deliveries carry the object id in the query string.
	if env.ProviderObjectID == "" {
		env.ProviderObjectID = r.URL.Query().Get("data.id")
	}
	if env.Kind == adapter.EventUnknown {
		if topic := r.URL.Query().Get("type"); topic != "" {
			env.Kind = payment.KindFromTopic(topic)
		}
	}

	if s.webhookSecret != "" {
		ok := payment.VerifyWebhookSignature(
			s.webhookSecret,
			r.Header.Get("x-signature"),
			r.Header.Get("x-request-id"),
			env.ProviderObjectID,
		)
		if !ok {
			s.log.Warn().
				Str("object_id", env.ProviderObjectID).
				Msg("webhook signature rejected")
			if s.audit != nil {
				s.audit.Emit(r.Context(), model.AuditWebhookRejected, "", "", map[string]any{
					"object_id":  env.ProviderObjectID,
					"kind":       string(env.Kind),
					"request_id": r.Header.Get("x-request-id"),
				})
			}
			metrics.IncWebhookEvent(string(env.Kind), "rejected")
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: "invalid signature"})
			return
		}
	}

	if err := s.subUC.HandleProviderEvent(r.Context(), env); err != nil {
		s.log.Error().Err(err).Str("object_id", env.ProviderObjectID).Msg("webhook processing failed")
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "processing failed"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleAccountLookup is the support-tooling entry point: resolve an
// account by email and return its subscription status.
func (s *Server) handleAccountLookup(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("email")
	if email == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "email query parameter is required"})
		return
	}
	view, err := s.subUC.GetStatusByEmail(r.Context(), email)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleListDivergent(w http.ResponseWriter, r *http.Request) {
	divergent, err := s.reconcileUC.FindDivergentPayments(r.Context(), s.reconcile.Window, s.reconcile.Grace)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"count": len(divergent),
		"items": divergent,
	})
}

func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	res, err := s.reconcileUC.ProcessAllDivergent(r.Context(), s.reconcile.Window, s.reconcile.Grace)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
