package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpReqs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pennant_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"route", "method", "status"},
	)
	httpDur = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pennant_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method"},
	)

	// Evaluations counts flag decisions by flag type and whether the
	// decision fired.
	Evaluations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pennant_evaluations_total",
			Help: "Flag evaluations by flag type and outcome",
		},
		[]string{"type", "fired"},
	)

	DocumentCacheHits = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pennant_document_cache_hits_total",
		Help: "Tenant document cache hits",
	})
	DocumentCacheMisses = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pennant_document_cache_misses_total",
		Help: "Tenant document cache misses",
	})

	ExposuresPublished = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pennant_exposure_events_published_total",
		Help: "Exposure events published to the event bus",
	})
	ExposuresDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pennant_exposure_events_dropped_total",
		Help: "Exposure events dropped before reaching the event bus",
	})
)

func Init() {
	prometheus.MustRegister(httpReqs, httpDur, Evaluations,
		DocumentCacheHits, DocumentCacheMisses,
		ExposuresPublished, ExposuresDropped)
}

// CountEvaluation records a single flag decision.
func CountEvaluation(flagType string, fired bool) {
	Evaluations.WithLabelValues(flagType, strconv.FormatBool(fired)).Inc()
}

func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(ww, r)

		// The route pattern is only known once routing has happened.
		route := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}

		httpReqs.WithLabelValues(route, r.Method, strconv.Itoa(ww.status)).Inc()
		httpDur.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
