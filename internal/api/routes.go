package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTPObserver records served requests.
type HTTPObserver interface {
	ObserveHTTP(method, route, status string, d time.Duration)
}

// RouterOptions configure middleware and the metrics endpoint.
type RouterOptions struct {
	RequestTimeout time.Duration
	CORSOrigins    string
	Gatherer       prometheus.Gatherer
	Observer       HTTPObserver
}

// NewRouter mounts the API at / and /api.
func NewRouter(h *Handler, opts RouterOptions) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	if opts.RequestTimeout > 0 {
		r.Use(middleware.Timeout(opts.RequestTimeout))
	}
	r.Use(CORSMiddleware(opts.CORSOrigins))
	if opts.Observer != nil {
		r.Use(MetricsMiddleware(opts.Observer))
	}

	gatherer := opts.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	mount := func(r chi.Router) {
		r.Post("/predict/", h.HandlePredict)
		r.Post("/predict", h.HandlePredict)
		r.Get("/health/", h.HandleHealth)
		r.Get("/health", h.HandleHealth)
	}
	mount(r)
	r.Route("/api", mount)

	return r
}

// CORSMiddleware sets permissive CORS headers for the configured origins.
func CORSMiddleware(allowedOrigins string) func(next http.Handler) http.Handler {
	if allowedOrigins == "" {
		allowedOrigins = "*"
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", allowedOrigins)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// MetricsMiddleware records method, route pattern, status and latency.
func MetricsMiddleware(obs HTTPObserver) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(wrapped, r)

			route := r.URL.Path
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if pattern := rctx.RoutePattern(); pattern != "" {
					route = pattern
				}
			}
			obs.ObserveHTTP(r.Method, route, strconv.Itoa(wrapped.statusCode), time.Since(start))
		})
	}
}
