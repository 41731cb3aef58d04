package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"wagerbot/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"
)

// Route paths Telegram and YooKassa are configured to call
const (
	TelegramWebhookPath = "/telegram/webhook/"
	YooKassaWebhookPath = "/telegram/yookassa-webhook/"
)

// WebhookObserver records webhook outcomes
type WebhookObserver interface {
	ObserveWebhook(source string, status string)
}

// HealthCheck reports whether a dependency is usable
type HealthCheck func(ctx context.Context) error

// Dependencies are the collaborators the HTTP surface dispatches to.
// Nil handlers leave their route unmounted.
type Dependencies struct {
	Payments        service.PaymentService
	TelegramWebhook http.Handler
	Metrics         http.Handler
	Observer        WebhookObserver
	Health          HealthCheck
}

// Server serves webhooks, health and metrics
type Server struct {
	httpServer *http.Server
}

// NewServer builds the router and binds it to addr
func NewServer(addr string, deps Dependencies) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           NewRouter(deps),
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// NewRouter wires every route onto a chi router
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/healthz", healthHandler(deps.Health))

	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics)
	}
	if deps.TelegramWebhook != nil {
		r.Method(http.MethodPost, TelegramWebhookPath, deps.TelegramWebhook)
	}
	if deps.Payments != nil {
		r.Post(YooKassaWebhookPath, NewYooKassaWebhook(deps.Payments, deps.Observer).ServeHTTP)
	}
	return r
}

// Start serves until Shutdown is called
func (s *Server) Start() error {
	log.WithField("addr", s.httpServer.Addr).Info("HTTP server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server failed: %w", err)
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func healthHandler(check HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			if err := check(r.Context()); err != nil {
				log.WithError(err).Warn("Health check failed")
				writeJSON(w, http.StatusServiceUnavailable, statusResponse{Status: "error", Message: "unavailable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, statusResponse{Status: "ok"})
	}
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		log.WithFields(log.Fields{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"durationMs": time.Since(start).Milliseconds(),
			"requestId":  middleware.GetReqID(r.Context()),
		}).Debug("HTTP request served")
	})
}

type statusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.WithError(err).Error("Failed to encode response")
	}
}
