// Package core provides the API chassis for the TalentSphere background
// services. It builds a chi router with the cross-cutting middleware chain
// (recovery, request IDs, logging, timeouts, auth) so domain handlers only
// deal with their own routes.
package core

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"talentsphere/internal/config"
	"talentsphere/internal/types"
)

// Authenticator resolves a bearer token to an Actor. The production
// implementation validates session tokens against the platform's auth
// backend; tests inject fakes.
type Authenticator interface {
	ResolveToken(ctx context.Context, token string) (*types.Actor, error)
}

// RouteRegistrar mounts one handler group onto the router. Populated by the
// application entry point to avoid import cycles between core and handlers.
type RouteRegistrar func(r chi.Router)

// Server holds the dependencies shared by every request: configuration, the
// structured logger, and the token resolver.
type Server struct {
	Config        *config.Config
	Logger        *slog.Logger
	Authenticator Authenticator

	// RouteRegistrars are mounted under /v1 by MountRoutes.
	RouteRegistrars []RouteRegistrar

	// HealthHandler serves GET /health when set.
	HealthHandler http.HandlerFunc

	// CleanupHealthHandler serves the unauthenticated GET /cleanup/health
	// liveness probe when set.
	CleanupHealthHandler http.HandlerFunc

	// EmailEventsHandler serves the provider engagement webhook when set.
	// Providers authenticate with signed payloads, not bearer tokens, so the
	// route sits outside /v1.
	EmailEventsHandler http.HandlerFunc

	router *chi.Mux
}

// NewServer validates the critical dependencies and prepares the router. The
// caller mounts routes afterwards; the separation lets tests customize
// registration.
func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}

	return &Server{
		Config: cfg,
		Logger: logger,
		router: chi.NewRouter(),
	}, nil
}

// MountRoutes registers the global middleware chain, the /v1 handler groups,
// and the unauthenticated health endpoint.
//
// Middleware ordering: Recoverer outermost so every panic is caught, then
// request ID (logging needs it), timeout, logging, auth innermost.
func (s *Server) MountRoutes() {
	s.router.Use(s.Recoverer)
	s.router.Use(RequestIDMiddleware)
	s.router.Use(ContextTimeoutMiddleware(s.Config.Server.RequestTimeout))
	s.router.Use(RequestLogger(s.Logger, defaultRedactedHeaders))

	if s.HealthHandler != nil {
		s.router.Get("/health", s.HealthHandler)
	}
	if s.CleanupHealthHandler != nil {
		s.router.Get("/cleanup/health", s.CleanupHealthHandler)
	}
	if s.EmailEventsHandler != nil {
		s.router.Post("/email/events", s.EmailEventsHandler)
	}

	s.router.Route("/v1", func(r chi.Router) {
		r.Use(s.AuthMiddleware)
		for _, registrar := range s.RouteRegistrars {
			registrar(r)
		}
	})
}

// Handler returns the http.Handler for the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Router returns the underlying chi.Mux for tests and route inspection.
func (s *Server) Router() *chi.Mux {
	return s.router
}
