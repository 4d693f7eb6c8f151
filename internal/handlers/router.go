package handlers

import (
	"net/http"
	"slices"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"vantage/internal/middleware"
	"vantage/internal/store"
)

// RouterOptions carries the optional pieces of the HTTP stack.
type RouterOptions struct {
	// Limiter throttles /api per client IP. Nil disables rate limiting.
	Limiter store.Limiter
	// AllowedOrigins enables CORS for other sites. Empty keeps the API
	// same-origin; "*" allows anyone but never with credentials.
	AllowedOrigins []string
	// AdminKey guards /admin. Empty leaves the admin routes unmounted.
	AdminKey string
	// TrustedProxies are the peers whose forwarding headers are believed.
	TrustedProxies middleware.TrustedProxies
}

// NewRouter wires the API behind client IP resolution, request logging,
// CORS, rate limiting and sessions.
func NewRouter(api *API, sessions *middleware.Sessions, opts RouterOptions) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.ClientIP(opts.TrustedProxies))
	r.Use(middleware.RequestLogger)
	r.Use(chimw.Recoverer)
	if len(opts.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: opts.AllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type"},
			// The session cookie identifies the visitor, so only named
			// origins may send it.
			AllowCredentials: !slices.Contains(opts.AllowedOrigins, "*"),
			MaxAge:           300,
		}))
	}

	r.Get("/health", api.Health)

	r.Group(func(r chi.Router) {
		if opts.Limiter != nil {
			r.Use(middleware.RateLimiter(opts.Limiter))
		}
		r.Use(sessions.Middleware)
		r.Mount("/api", api.Routes())
	})

	if opts.AdminKey != "" {
		r.Group(func(r chi.Router) {
			r.Use(middleware.APIKey(opts.AdminKey))
			r.Mount("/admin", api.AdminRoutes())
		})
	}
	return r
}
