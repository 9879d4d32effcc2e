package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/Makar0n1/art-automation/pkg/config"
	"github.com/Makar0n1/art-automation/pkg/gateway"
	"github.com/Makar0n1/art-automation/pkg/health"
	"github.com/Makar0n1/art-automation/pkg/metrics"
	"github.com/Makar0n1/art-automation/pkg/queue"
	"github.com/Makar0n1/art-automation/pkg/storage"
	"github.com/Makar0n1/art-automation/pkg/vault"
)

// Server is the HTTP surface: authentication, credential management,
// project and generation CRUD, and the websocket upgrade endpoint.
type Server struct {
	store   storage.Store
	vault   *vault.Vault
	queue   *queue.Queue
	gateway *gateway.Gateway
	checker *health.Checker
	tokens  *TokenIssuer
	limiter *ipLimiter

	trustedProxy   bool
	llmModel       string
	vectorStoreURL string
}

// NewServer wires the HTTP surface.
func NewServer(cfg *config.Config, store storage.Store, v *vault.Vault, q *queue.Queue, gw *gateway.Gateway, checker *health.Checker) *Server {
	return &Server{
		store:          store,
		vault:          v,
		queue:          q,
		gateway:        gw,
		checker:        checker,
		tokens:         NewTokenIssuer(cfg.JWTSecret, cfg.TokenTTL),
		limiter:        newIPLimiter(),
		trustedProxy:   cfg.TrustedProxy,
		llmModel:       cfg.LLMModel,
		vectorStoreURL: cfg.VectorStoreURL,
	}
}

// Tokens exposes the issuer so the gateway can share token verification.
func (s *Server) Tokens() *TokenIssuer {
	return s.tokens
}

// Router builds the full route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Use(instrument)
	r.Use(limitBody)

	r.Route("/api", func(r chi.Router) {
		r.Use(s.rateLimit)

		r.Post("/auth/login", s.handleLogin)
		r.Get("/health", s.handleHealth)
		r.Method(http.MethodGet, "/metrics", metrics.Handler())

		r.Group(func(r chi.Router) {
			r.Use(s.requireAuth)

			r.Get("/auth/me", s.handleMe)
			r.Post("/auth/refresh", s.handleRefresh)
			r.Put("/auth/password", s.handleChangePassword)
			r.Put("/auth/pin", s.handleSetPin)
			r.Get("/auth/pin-status", s.handlePinStatus)

			r.Get("/settings/api-keys", s.handleListKeys)
			r.Get("/settings/api-keys/masked", s.handleListKeys)
			r.Post("/settings/api-keys/verify-pin", s.handleVerifyPin)
			r.Put("/settings/api-keys/{provider}", s.handleSetKey)
			r.Post("/settings/api-keys/{provider}/test", s.handleTestKey)

			r.Post("/projects", s.handleCreateProject)
			r.Get("/projects", s.handleListProjects)
			r.Get("/projects/{id}", s.handleGetProject)
			r.Put("/projects/{id}", s.handleUpdateProject)
			r.Delete("/projects/{id}", s.handleDeleteProject)

			r.Post("/projects/{id}/generations", s.handleCreateGeneration)
			r.Get("/projects/{id}/generations", s.handleListProjectGenerations)

			r.Get("/generations", s.handleListGenerations)
			r.Get("/generations/queue/stats", s.handleQueueStats)
			r.Get("/generations/{id}", s.handleGetGeneration)
			r.Get("/generations/{id}/logs", s.handleGetLogs)
			r.Post("/generations/{id}/continue", s.handleContinueGeneration)
			r.Delete("/generations/{id}", s.handleDeleteGeneration)
		})
	})

	// Websocket handshake carries its own token; the bearer middleware
	// does not apply.
	r.Get("/socket", s.gateway.ServeHTTP)

	return r
}
