// Package http provides the HTTP delivery layer for the shortlink service.
// This package contains the HTTP handlers and related types used for processing
// incoming requests, redirecting visitors and formatting responses.
package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httplog/v2"
	"github.com/go-playground/validator/v10"
	httpSwagger "github.com/swaggo/http-swagger"
)

// Config holds the settings the handlers need to build links and redirects.
type Config struct {
	BaseURL     string
	FrontendURL string
	SlugLength  int
}

// NewRouter initializes and returns a new Chi router configured with middleware and routes for the shortlink API.
func NewRouter(logger *httplog.Logger, cfg Config, urlUseCase urlUseCase, cache cacheStatser) *chi.Mux {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"POST", "GET", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Accept"},
		AllowCredentials: false,
		MaxAge:           84600,
	}))
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(httplog.RequestLogger(logger))
	r.Use(recoverer)

	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/docs/swagger.yml"),
	))

	r.Get("/docs/swagger.yml", func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, "./docs/swagger.yml")
	})

	h := newURLHandler(urlUseCase, validator.New(), cfg)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/ping", handlePing)
		r.Post("/shorten", h.shortenURL)
		r.Get("/analytics/{slug}", h.getAnalytics)

		ch := &cacheHandler{cache: cache}
		r.Get("/cache/stats", ch.getStats)
	})

	r.Get("/{slug}", h.redirect)

	return r
}
