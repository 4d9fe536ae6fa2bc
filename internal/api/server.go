// Package api is the HTTP surface of Screenline: the webhook ingress the
// telephony platform posts call events to, and a small JWT-protected admin
// API for inspecting live sessions and managing classifier pattern sets.
package api

import (
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/screenline/screenline/internal/api/middleware"
	"github.com/screenline/screenline/internal/classify"
	"github.com/screenline/screenline/internal/config"
	"github.com/screenline/screenline/internal/database"
	"github.com/screenline/screenline/internal/resolver"
	"github.com/screenline/screenline/internal/session"
)

// Server holds HTTP handler dependencies and the chi router.
type Server struct {
	router     *chi.Mux
	cfg        *config.Config
	store      session.Store
	resolver   *resolver.Resolver
	classifier *classify.Classifier
	patterns   database.PatternSetRepository
	metrics    http.Handler
	jwtSecret  []byte

	mu            sync.Mutex
	webhookCounts map[string]uint64
}

// NewServer creates the HTTP handler with all routes mounted. metrics is the
// Prometheus scrape handler; patterns may be nil when no pattern store is
// configured, disabling the pattern endpoints.
func NewServer(
	cfg *config.Config,
	store session.Store,
	res *resolver.Resolver,
	classifier *classify.Classifier,
	patterns database.PatternSetRepository,
	metrics http.Handler,
	jwtSecret []byte,
) *Server {
	s := &Server{
		router:        chi.NewRouter(),
		cfg:           cfg,
		store:         store,
		resolver:      res,
		classifier:    classifier,
		patterns:      patterns,
		metrics:       metrics,
		jwtSecret:     jwtSecret,
		webhookCounts: make(map[string]uint64),
	}

	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// WebhookCounts returns the number of accepted webhook events by kind. Used
// by the metrics collector.
func (s *Server) WebhookCounts() map[string]uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]uint64, len(s.webhookCounts))
	for k, v := range s.webhookCounts {
		out[k] = v
	}
	return out
}

func (s *Server) countWebhook(kind string) {
	s.mu.Lock()
	s.webhookCounts[kind]++
	s.mu.Unlock()
}

// routes configures all middleware and mounts all route groups.
func (s *Server) routes() {
	r := s.router

	// Global middleware stack.
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.StructuredLogger)
	r.Use(middleware.Recoverer)

	// Webhook ingress. The platform retries on non-2xx, so handlers answer
	// 200 for every accepted event even when it resolves nothing.
	r.Route("/webhooks", func(r chi.Router) {
		r.Use(middleware.RateLimit(middleware.NewIPRateLimiter(middleware.WebhookRateLimitConfig())))
		r.Post("/lifecycle", s.handleLifecycleWebhook)
		r.Post("/amd", s.handleMachineDetectionWebhook)
		r.Post("/transcript", s.handleTranscriptWebhook)
	})

	// Admin API.
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.RateLimit(middleware.NewIPRateLimiter(middleware.AdminRateLimitConfig())))

		r.Get("/health", s.handleHealth)
		r.Post("/auth/token", s.handleAuthToken)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAdminAuth(s.jwtSecret))

			r.Get("/config", s.handleConfig)
			r.Get("/sessions", s.handleSessions)
			r.Get("/sessions/{callID}", s.handleSession)

			r.Route("/patterns", func(r chi.Router) {
				r.Get("/", s.handleGetPatterns)
				r.Put("/", s.handlePutPatterns)
				r.Get("/revisions", s.handlePatternRevisions)
				r.Post("/revisions/{version}/activate", s.handleActivatePatternRevision)
			})
		})
	})

	r.Get("/metrics", s.metrics.ServeHTTP)
}
