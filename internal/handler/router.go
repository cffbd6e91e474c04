package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/capitalize-ai/knowledge-graph/internal/middleware"
	"github.com/capitalize-ai/knowledge-graph/pkg/logger"
)

// RouterConfig carries the handlers and surface-level settings for NewRouter.
type RouterConfig struct {
	Chat      *ChatHandler
	Graph     *GraphHandler
	Knowledge *KnowledgeHandler
	Processor *ProcessorHandler
	Health    *HealthHandler

	Log               *logger.Logger
	AllowedOrigins    []string
	RateLimitRequests int // 0 disables rate limiting
	RateLimitWindow   time.Duration
}

// NewRouter builds the chi router with the global middleware stack and the
// full API surface.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(cfg.Log))
	r.Use(middleware.SecurityHeaders)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Requested-With"},
		ExposedHeaders:   []string{"X-Correlation-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		// Health endpoints sit outside the rate limit.
		r.Get("/ping", cfg.Health.Ping)
		r.Get("/health", cfg.Health.Health)

		r.Group(func(r chi.Router) {
			if cfg.RateLimitRequests > 0 {
				r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))
			}

			r.Route("/chat", func(r chi.Router) {
				r.Post("/send", cfg.Chat.Send)
				r.Post("/stream", cfg.Chat.Stream)
				r.Post("/pii-consent", cfg.Chat.PIIConsent)
				r.Get("/history/{userID}", cfg.Chat.History)
				r.Get("/context/{userID}", cfg.Chat.Context)
				r.Get("/status/{conversationID}", cfg.Chat.Status)
				r.Delete("/{conversationID}", cfg.Chat.Delete)
			})

			r.Route("/graph", func(r chi.Router) {
				r.Get("/user/{userID}/map", cfg.Graph.UserMap)
				r.Get("/user/{userID}/topics", cfg.Graph.UserTopics)
				r.Get("/user/{userID}/full", cfg.Graph.UserFull)
				r.Get("/global", cfg.Graph.Global)
				r.Get("/suggestions", cfg.Graph.Suggestions)
				r.Post("/link-topics", cfg.Graph.LinkTopics)
			})

			r.Route("/knowledge", func(r chi.Router) {
				r.Post("/search", cfg.Knowledge.Search)
				r.Post("/add", cfg.Knowledge.Add)
				r.Delete("/{insightID}", cfg.Knowledge.Delete)
				r.Get("/stats/{userID}", cfg.Knowledge.Stats)
			})

			r.Route("/processor", func(r chi.Router) {
				r.Post("/run", cfg.Processor.Run)
				r.Get("/pending", cfg.Processor.Pending)
				r.Get("/logs", cfg.Processor.Logs)
				r.Get("/stats", cfg.Processor.Stats)
			})
		})
	})

	return r
}
