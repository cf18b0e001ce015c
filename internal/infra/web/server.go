package web

import (
	"context"
	"net/http"
	"time"

	"subscription-billing/internal/domain/ports/adapter"
	"subscription-billing/internal/infra/logging"
	"subscription-billing/internal/usecase"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

type ctxKey int

const ctxKeyAccountID ctxKey = iota

// ReconcileWindow bundles the operator-endpoint scan bounds.
type ReconcileWindow struct {
	Window time.Duration
	Grace  time.Duration
}

type Server struct {
	subUC       usecase.SubscriptionUseCase
	receiptUC   usecase.ReceiptUseCase
	reconcileUC usecase.ReconcileUseCase
	accessUC    usecase.AccessUseCase

	auth          *AuthManager
	audit         *usecase.AuditEmitter
	adminToken    string
	webhookSecret string
	returnURLs    adapter.ReturnURLs // checkout fallbacks when the request omits its own
	reconcile     ReconcileWindow
	log           *zerolog.Logger
}

func NewServer(
	subUC usecase.SubscriptionUseCase,
	receiptUC usecase.ReceiptUseCase,
	reconcileUC usecase.ReconcileUseCase,
	accessUC usecase.AccessUseCase,
	auth *AuthManager,
	audit *usecase.AuditEmitter,
	adminToken string,
	webhookSecret string,
	returnURLs adapter.ReturnURLs,
	reconcile ReconcileWindow,
	logger *zerolog.Logger,
) *Server {
	if reconcile.Window <= 0 {
		reconcile.Window = 7 * 24 * time.Hour
	}
	if reconcile.Grace <= 0 {
		reconcile.Grace = 30 * time.Minute
	}
	webLog := logger.With().Str("component", "WebServer").Logger()
	return &Server{
		subUC:         subUC,
		receiptUC:     receiptUC,
		reconcileUC:   reconcileUC,
		accessUC:      accessUC,
		auth:          auth,
		audit:         audit,
		adminToken:    adminToken,
		webhookSecret: webhookSecret,
		returnURLs:    returnURLs,
		reconcile:     reconcile,
		log:           &webLog,
	}
}

// Router assembles the full route tree.
func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(s.traceMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	// Provider webhooks authenticate by signature, not bearer token.
	r.Post("/webhooks/mercadopago", s.handleMercadoPagoWebhook)

	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(s.requireAccount)
			r.Post("/checkout", s.handleCreateCheckout)
			r.Get("/subscription", s.handleGetStatus)
			r.Delete("/subscription", s.handleCancelSubscription)
			r.Post("/subscription/trial", s.handleStartTrial)
			r.Post("/receipts/apple", s.handleAppleReceipt)
			r.Get("/access", s.handleAccessCheck)
		})
		r.Group(func(r chi.Router) {
			r.Use(s.requireAdmin)
			r.Get("/admin/accounts", s.handleAccountLookup)
			r.Get("/admin/divergent", s.handleListDivergent)
			r.Post("/admin/reconcile", s.handleReconcile)
		})
	})
	return r
}

// traceMiddleware stamps every request with a trace id, propagated through
// the context into all component logs.
func (s *Server) traceMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID := r.Header.Get("X-Request-Id")
		if traceID == "" {
			traceID = uuid.NewString()
		}
		ctx := logging.WithTraceID(r.Context(), traceID)
		w.Header().Set("X-Request-Id", traceID)

		started := time.Now()
		next.ServeHTTP(w, r.WithContext(ctx))
		s.log.Debug().
			Str("trace_id", traceID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("elapsed", time.Since(started)).
			Msg("request handled")
	})
}

// requireAccount authenticates the bearer token and puts the account id on
// the context.
func (s *Server) requireAccount(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := s.auth.ParseFromRequest(r)
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: "unauthorized"})
			return
		}
		ctx := context.WithValue(r.Context(), ctxKeyAccountID, claims.Subject)
		ctx = logging.WithAccountID(ctx, claims.Subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireAdmin guards operator endpoints with the static admin token.
func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.adminToken == "" {
			s.log.Error().Msg("admin token is not configured")
			writeJSON(w, http.StatusForbidden, errorBody{Error: "forbidden"})
			return
		}
		hdr := r.Header.Get("Authorization")
		if hdr != "Bearer "+s.adminToken {
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: "unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func accountIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(ctxKeyAccountID).(string)
	return id
}
