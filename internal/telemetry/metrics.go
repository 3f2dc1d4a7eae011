package telemetry

import (
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
)

// Workflow outcome label values.
const (
	OutcomeMatched          = "matched"
	OutcomeNoMatch          = "no_match"
	OutcomeConditionsFailed = "conditions_failed"
	OutcomeError            = "error"
)

var (
	httpReqs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"route", "method", "status"},
	)
	httpDur = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method"},
	)

	WorkflowRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "workflow_requests_total",
			Help: "Workflow requests by outcome",
		},
		[]string{"outcome"},
	)
	EffectsApplied = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "workflow_effects_applied_total",
			Help: "Effects applied by kind",
		},
		[]string{"kind"},
	)
	LockWait = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "workflow_lock_wait_seconds",
		Help:    "Time spent waiting for the per-scenario lock",
		Buckets: []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 5},
	})
	WebhookDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_deliveries_total",
			Help: "Webhook deliveries by outcome (success, failure, dropped)",
		},
		[]string{"outcome"},
	)

	initOnce sync.Once
)

// Init registers the collectors with the default registry. Safe to call more
// than once.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(httpReqs, httpDur, WorkflowRequests, EffectsApplied, LockWait, WebhookDeliveries)
	})
}

func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(ww, r)

		// the route pattern is only known once chi has routed the request
		route := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}

		httpReqs.WithLabelValues(route, r.Method, http.StatusText(ww.status)).Inc()
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

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
