package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	chathandler "github.com/speedauto/speedauto-assistant-go/internal/chat/handler"
	"github.com/speedauto/speedauto-assistant-go/internal/domain"
	"github.com/speedauto/speedauto-assistant-go/internal/infra/observability"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Pinger is the store health probe used by /healthz.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RouterConfig carries the HTTP-only settings.
type RouterConfig struct {
	CORSOrigins []string
	// JWTSecret habilita o bind de sessão via bearer token nas rotas de chat.
	JWTSecret string
}

// NewRouter creates the HTTP router with all routes and middleware.
// Routes follow the API contract consumed by the SpeedAuto dashboard.
func NewRouter(chat chathandler.Responder, store Pinger, metrics *observability.Metrics, cfg RouterConfig, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	// --- Middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.ZapLoggerMiddleware(logger))
	r.Use(observability.TracingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		MaxAge:         300,
	}))

	// --- Operational endpoints ---
	r.Get("/healthz", healthzHandler(store, logger))
	r.Get("/readyz", readyzHandler())
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	// =============================================
	// 💬 Chat
	// POST /api/chatbot  (contrato legado do widget)
	// POST /v1/chat
	// =============================================
	r.Group(func(r chi.Router) {
		r.Use(JWTSessionMiddleware(cfg.JWTSecret, logger))
		r.Post("/api/chatbot", chathandler.LegacyChatbotHandler(chat, logger))
		r.Post("/v1/chat", chathandler.ChatHandler(chat, logger))
	})

	// =============================================
	// 📊 Métricas do chatbot
	// GET /v1/metrics/chatbot
	// =============================================
	r.Get("/v1/metrics/chatbot", chatbotMetricsHandler(metrics))

	return r
}

// ============================================================
// Operacional
// ============================================================

func healthzHandler(store Pinger, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		now := time.Now().Format(time.RFC3339)

		services := []domain.ServiceHealth{
			{Name: "speedauto-api", Status: "healthy", LatencyMs: 0, LastChecked: now},
		}

		if store != nil {
			start := time.Now()
			err := store.Ping(ctx)
			latency := time.Since(start).Milliseconds()
			status := "healthy"
			if err != nil {
				status = "degraded"
				var circuitOpen *domain.ErrCircuitOpen
				if errors.As(err, &circuitOpen) {
					status = "unhealthy"
				}
				logger.Warn("healthz: store ping failed", zap.Error(err))
			}
			services = append(services, domain.ServiceHealth{
				Name: "store", Status: status, LatencyMs: latency, LastChecked: now,
			})
		}

		overallStatus := "healthy"
		for _, s := range services {
			if s.Status == "unhealthy" {
				overallStatus = "unhealthy"
				break
			}
			if s.Status == "degraded" {
				overallStatus = "degraded"
			}
		}

		writeJSON(w, http.StatusOK, domain.HealthStatus{
			Status:   overallStatus,
			Services: services,
		})
	}
}

func readyzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

func chatbotMetricsHandler(metrics *observability.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, metrics.GetChatbotSnapshot())
	}
}
