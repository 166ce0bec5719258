// Package server exposes the game service over HTTP and WebSocket.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"RiskArena/internal/auth"
	"RiskArena/internal/game"
)

// Config holds server configuration.
type Config struct {
	Addr           string
	Log            zerolog.Logger
	Games          *game.Service
	Auth           *auth.Issuer
	AllowedOrigins []string
	RequestTimeout time.Duration
	DevMode        bool
}

// Server represents the HTTP server.
type Server struct {
	router  *chi.Mux
	server  *http.Server
	log     zerolog.Logger
	games   *game.Service
	auth    *auth.Issuer
	origins []string
	now     func() time.Time
}

// New creates a new HTTP server.
func New(cfg Config) *Server {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"*"}
	}
	s := &Server{
		router:  chi.NewRouter(),
		log:     cfg.Log.With().Str("component", "server").Logger(),
		games:   cfg.Games,
		auth:    cfg.Auth,
		origins: cfg.AllowedOrigins,
		now:     time.Now,
	}

	s.setupMiddleware()
	s.setupRoutes(cfg.RequestTimeout, cfg.DevMode)

	// No WriteTimeout: subscriptions are long-lived. Plain requests are
	// bounded by the Timeout middleware instead.
	s.server = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))
}

func (s *Server) setupRoutes(timeout time.Duration, devMode bool) {
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		// Long-lived; authenticated through the token query parameter.
		r.With(s.auth.Middleware, s.requireGameToken).Get("/games/{id}/subscribe", s.handleSubscribe)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(timeout))
			if !devMode {
				r.Use(middleware.Compress(5))
			}

			r.Get("/countries", s.handleCountries)
			r.Get("/countries/{iso}/preview", s.handlePreview)
			r.Post("/games", s.handleCreateGame)
			r.Post("/games/join", s.handleJoinGame)

			r.Group(func(r chi.Router) {
				r.Use(s.auth.Middleware)
				r.Route("/games/{id}", func(r chi.Router) {
					r.Use(s.requireGameToken)
					r.Get("/", s.handleGetGame)
					r.Get("/leaderboard", s.handleLeaderboard)
					r.Post("/start", s.handleStart)
					r.Post("/next", s.handleNext)
					r.Post("/finish", s.handleFinish)
					r.Post("/reset", s.handleReset)
					r.Post("/rounds/{round}/submissions", s.handleSubmit)
					r.Post("/rounds/{round}/close", s.handleCloseRound)
				})
			})
		})
	})
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.router }

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}

// requireGameToken rejects tokens issued for a different game.
func (s *Server) requireGameToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, _ := auth.FromContext(r.Context())
		if id.GameID != chi.URLParam(r, "id") {
			s.writeError(w, http.StatusForbidden, "token is for another game")
			return
		}
		next.ServeHTTP(w, r)
	})
}
