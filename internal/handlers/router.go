package handlers

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"aspire/internal/config"
	"aspire/internal/metrics"
	"aspire/internal/middleware"
	"aspire/internal/websocket"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Handler struct {
	cfg      config.Config
	logger   *slog.Logger
	ledger   Ledger
	costs    CostCatalog
	runner   FeatureRunner
	payments PaymentService
	drift    DriftReporter
	hub      *websocket.Hub
}

func New(cfg config.Config, logger *slog.Logger, ledger Ledger, costs CostCatalog, runner FeatureRunner, payments PaymentService, drift DriftReporter, hub *websocket.Hub) *Handler {
	return &Handler{
		cfg:      cfg,
		logger:   logger,
		ledger:   ledger,
		costs:    costs,
		runner:   runner,
		payments: payments,
		drift:    drift,
		hub:      hub,
	}
}

func (h *Handler) Routes() http.Handler {
	router := chi.NewRouter()
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(chimiddleware.Logger)
	router.Use(chimiddleware.Recoverer)
	router.Use(instrument)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{h.cfg.AllowedOrigins},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	router.Handle("/metrics", promhttp.Handler())
	router.Get("/ws/balances", h.WSBalances)

	router.Group(func(r chi.Router) {
		r.Use(middleware.Auth(h.cfg.JWTSecret))
		r.Use(middleware.ResolveAccount(h.ledger, h.logger))

		r.Get("/tokens", h.GetTokens)
		r.Get("/tokens/check", h.CheckTokens)
		r.Get("/tokens/transactions", h.ListTokenTransactions)
		r.Get("/tokens/self-check", h.SelfCheck)

		r.Get("/features/costs", h.ListFeatureCosts)
		r.Post("/features/{feature}/generate", h.GenerateFeature)

		r.Post("/payments/create-order", h.CreateOrder)
		r.Post("/payments/verify", h.VerifyPayment)
		r.Get("/payments", h.ListPayments)
	})

	router.Route("/admin", func(r chi.Router) {
		r.Use(middleware.Auth(h.cfg.JWTSecret))
		r.Use(middleware.RequireRole(middleware.RoleAdmin))
		r.Post("/feature-costs/seed", h.SeedFeatureCosts)
		r.Get("/reconcile", h.Reconcile)
	})
	return router
}

func instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		metrics.RequestDuration.
			WithLabelValues(route, r.Method, strconv.Itoa(ww.Status())).
			Observe(time.Since(start).Seconds())
	})
}
