// Package api exposes the resolver over HTTP: catalog search and detail
// reads for the correction UI, and the verify/fix/resolve write endpoints.
package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/touken-lab/meikan/internal/catalog"
	"github.com/touken-lab/meikan/internal/fault"
	"github.com/touken-lab/meikan/internal/resolution"
)

// Config holds the HTTP server settings.
type Config struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	ReadToken      string   `yaml:"read_token" mapstructure:"read_token"`
	AdminToken     string   `yaml:"admin_token" mapstructure:"admin_token"`
	SearchRate     float64  `yaml:"search_rate" mapstructure:"search_rate"`
	SearchBurst    int      `yaml:"search_burst" mapstructure:"search_burst"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// Server wires handlers to the resolver services.
type Server struct {
	lookup  *catalog.Lookup
	catalog catalog.Store
	svc     *resolution.Service
	cfg     Config
	limiter *rate.Limiter
}

// New creates a Server.
func New(lookup *catalog.Lookup, cat catalog.Store, svc *resolution.Service, cfg Config) *Server {
	if cat == nil {
		cat = catalog.Unprovisioned{}
	}
	r := cfg.SearchRate
	if r <= 0 {
		r = 20
	}
	burst := cfg.SearchBurst
	if burst <= 0 {
		burst = 40
	}
	return &Server{
		lookup:  lookup,
		catalog: cat,
		svc:     svc,
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(r), burst),
	}
}

// Router builds the chi routing tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	origins := s.cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(s.requireToken(false))
			r.With(s.searchThrottle).Get("/artisans/search", s.handleSearch)
			r.Get("/artisans/{code}", s.handleArtisan)
			r.Get("/listings/{id}/resolution", s.handleGetResolution)
			r.Get("/listings/{id}/audit", s.handleAudit)
		})

		r.Group(func(r chi.Router) {
			r.Use(s.requireToken(true))
			r.Post("/listings/{id}/verify", s.handleVerify)
			r.Post("/listings/{id}/artisan", s.handleFixArtisan)
			r.Post("/listings/{id}/visibility", s.handleToggleVisibility)
			r.Post("/resolve", s.handleResolve)
		})
	})

	return r
}

// requireToken authenticates bearer tokens. Reads accept either token;
// writes require the admin token. A recognized read token on a write route
// is a 403, anything else missing or unrecognized is a 401.
func (s *Server) requireToken(admin bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				writeError(w, fault.Unauthorized("missing bearer token"))
				return
			}

			validRead := s.cfg.ReadToken != "" && token == s.cfg.ReadToken
			validAdmin := s.cfg.AdminToken != "" && token == s.cfg.AdminToken

			switch {
			case validAdmin:
				next.ServeHTTP(w, r)
			case validRead && !admin:
				next.ServeHTTP(w, r)
			case validRead && admin:
				writeError(w, fault.Forbidden("write authorization required"))
			default:
				writeError(w, fault.Unauthorized("unrecognized token"))
			}
		})
	}
}

// searchThrottle applies the shared search rate limit.
func (s *Server) searchThrottle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			w.Header().Set("Retry-After", "1")
			http.Error(w, `{"error":"rate limit exceeded","reason":"throttled"}`, http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(h) > len(prefix) && strings.EqualFold(h[:len(prefix)], prefix) {
		return strings.TrimSpace(h[len(prefix):])
	}
	return ""
}

// requestLogger logs each request with latency at debug level.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		zap.L().Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	})
}
