// Package server sets up the HTTP server, router, and all route definitions.
//
// This is the composition root: every service, repository and handler is
// constructed and wired here, in one place, rather than scattered across
// the codebase. main.go only reads configuration and calls New + Start.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/agenticbook/docschat/internal/auth"
	"github.com/agenticbook/docschat/internal/handler"
	"github.com/agenticbook/docschat/internal/middleware"
	"github.com/agenticbook/docschat/internal/ratelimit"
	sqliteRepo "github.com/agenticbook/docschat/internal/repository/sqlite"
	"github.com/agenticbook/docschat/internal/service"
)

// Config holds server configuration, loaded from the environment in
// cmd/server/main.go.
type Config struct {
	Port        int
	DBPath      string
	FrontendURL string

	// Credential engine. JWTSecret is mandatory — auth endpoints cannot
	// run without a signing key, so an empty secret fails New.
	JWTSecret  string
	AccessTTL  time.Duration
	RefreshTTL time.Duration

	// Google OAuth. All three empty disables the provider; the OAuth
	// endpoints then answer 500 misconfigured.
	GoogleClientID     string
	GoogleClientSecret string
	GoogleCallbackURL  string

	// API keys for non-browser clients of /api/chat. DevMode additionally
	// unlocks the accept-any-key fallback when the list is empty —
	// never set it in production.
	APIKeys []string
	DevMode bool

	// Rate limiter thresholds (zero → package defaults).
	RatePerMinute int
	RatePerHour   int
}

// Server owns the router, the database connection, and the graceful
// shutdown lifecycle.
type Server struct {
	router *chi.Mux
	config Config
	logger *slog.Logger
	db     *sqliteRepo.DB
}

// New assembles the full dependency graph.
//
// MISCONFIGURATION IS FATAL HERE, NOT AT REQUEST TIME:
// a missing JWT secret means no endpoint requiring credentials can ever
// succeed, so the server refuses to start rather than serving a broken
// API. The empty-API-key case is different — chat can still serve bearer
// users — so that one only fails the key fallback per request.
func New(cfg Config, logger *slog.Logger, responder handler.Responder) (*Server, error) {
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("server: JWT_SECRET is required")
	}

	db, err := sqliteRepo.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		db:     db,
	}

	if err := s.setupRoutes(responder); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting up routes: %w", err)
	}

	return s, nil
}

// setupRoutes wires middleware, services and handlers to URL patterns.
func (s *Server) setupRoutes(responder handler.Responder) error {
	// Global middleware — order matters: RealIP must run before anything
	// that keys on the client address (the rate limiter).
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.Logger(s.logger))

	// Credential engine.
	tokens, err := auth.NewTokenService(s.config.JWTSecret, s.config.AccessTTL)
	if err != nil {
		return fmt.Errorf("creating token service: %w", err)
	}
	refresh := auth.NewRefreshService(s.config.RefreshTTL)
	passwords := auth.NewPasswordService()
	apiKeys := auth.NewAPIKeySet(s.config.APIKeys, s.config.DevMode)

	// Identity provider (optional).
	var provider handler.OAuthProvider
	if s.config.GoogleClientID != "" && s.config.GoogleClientSecret != "" {
		provider = auth.NewGoogleProvider(
			s.config.GoogleClientID,
			s.config.GoogleClientSecret,
			s.config.GoogleCallbackURL,
		)
	}

	// Rate limiter — one instance shared by the auth middleware and the
	// chat handler, explicitly constructed and injected (no globals).
	limiter := ratelimit.NewMemoryLimiter(s.config.RatePerMinute, s.config.RatePerHour)

	authService := service.NewAuthService(s.db, s.db, s.db, tokens, refresh, passwords, s.logger)
	authHandler := handler.NewAuthHandler(authService, provider, s.config.FrontendURL, !s.config.DevMode, s.logger)
	chatHandler := handler.NewChatHandler(responder, s.db, limiter, s.logger)

	s.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	s.router.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			// Unauthenticated mutating endpoints are IP-throttled.
			r.Group(func(r chi.Router) {
				r.Use(ratelimit.Middleware(limiter, s.logger))
				r.Post("/register", authHandler.HandleRegister)
				r.Post("/login", authHandler.HandleLogin)
			})

			r.Post("/refresh", authHandler.HandleRefresh)
			r.Get("/google", authHandler.HandleOAuthStart)
			r.Get("/google/callback", authHandler.HandleOAuthCallback)

			// Strict bearer-only policy: user-identity endpoints.
			r.Group(func(r chi.Router) {
				r.Use(auth.RequireUser(tokens))
				r.Post("/logout", authHandler.HandleLogout)
				r.Get("/me", authHandler.HandleMe)
			})
		})

		// Bearer-or-key policy: the chat surface serves both signed-in
		// users and API-key clients.
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireClient(tokens, apiKeys))
			r.Post("/chat", chatHandler.HandleChat)
			r.Get("/history/{sessionID}", chatHandler.HandleHistory)
		})
	})

	return nil
}

// Start runs the HTTP server until SIGINT/SIGTERM, then drains in-flight
// requests (30s budget) and closes the database so the WAL is flushed.
func (s *Server) Start() error {
	defer s.db.Close()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("database", s.config.DBPath),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
