// Package server exposes farm fields and NDVI snapshots over HTTP.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/sells-group/farmndvi/internal/model"
	"github.com/sells-group/farmndvi/internal/store"
)

// Snapshots serves cached farm snapshots. *ndvi.Cache satisfies it.
type Snapshots interface {
	Get(ctx context.Context, farmID, farmName string, forceRefresh bool) (*model.FarmSnapshot, error)
	Peek(farmID string) (*model.FarmSnapshot, bool)
}

// Server holds the dependencies of the HTTP handlers.
type Server struct {
	store          store.Store
	snapshots      Snapshots
	allowedOrigins []string
	fieldsTimeout  time.Duration
	ndviTimeout    time.Duration
}

// Option configures a Server.
type Option func(*Server)

// WithAllowedOrigins sets the CORS allow-list.
func WithAllowedOrigins(origins []string) Option {
	return func(s *Server) {
		if len(origins) > 0 {
			s.allowedOrigins = origins
		}
	}
}

// WithNDVITimeout bounds snapshot requests, which may aggregate.
func WithNDVITimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.ndviTimeout = d
		}
	}
}

// New creates a Server.
func New(st store.Store, snapshots Snapshots, opts ...Option) *Server {
	s := &Server{
		store:          st,
		snapshots:      snapshots,
		allowedOrigins: []string{"http://localhost:3000", "http://localhost:5173", "http://127.0.0.1:5173"},
		fieldsTimeout:  10 * time.Second,
		ndviTimeout:    2 * time.Minute,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Routes wires middleware and endpoints.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.allowedOrigins,
		AllowedMethods: []string{"GET", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/farms/{farmId}", func(fr chi.Router) {
		fr.Get("/ndvi", s.handleSnapshot)
		fr.Route("/fields", func(fr chi.Router) {
			fr.Get("/", s.handleListFields)
			fr.Put("/", s.handleReplaceFields)
			fr.Delete("/{fieldId}", s.handleDeleteField)
			fr.Get("/{fieldId}/series", s.handleSeries)
			fr.Get("/{fieldId}/stats", s.handleStats)
		})
	})

	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("http: encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
