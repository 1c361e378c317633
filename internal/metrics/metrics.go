package metrics

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "contentapi_http_requests_total",
		Help: "Total number of HTTP requests processed.",
	}, []string{"method", "route"})

	httpErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "contentapi_http_errors_total",
		Help: "Total number of HTTP requests resulting in server errors.",
	}, []string{"method", "route", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "contentapi_http_request_duration_seconds",
		Help:    "Histogram of latencies for HTTP requests.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})

	dbLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "contentapi_db_latency_seconds",
		Help:    "Histogram of database operation latencies.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "route"})

	dataIntegrityIssues = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "contentapi_data_integrity_issues_total",
		Help: "Content items excluded or flagged because of inconsistent store data.",
	}, []string{"kind"})

	occurrencesSynthesized = promauto.NewCounter(prometheus.CounterOpts{
		Name: "contentapi_occurrences_synthesized_total",
		Help: "Event occurrences generated from recurrence rules because the store had none.",
	})

	itemsServed = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "contentapi_items_served",
		Help:    "Number of items returned per modified-content response.",
		Buckets: []float64{0, 1, 5, 10, 50, 100, 500, 1000, 5000},
	}, []string{"type"})

	rateLimited = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "contentapi_rate_limited_total",
		Help: "Requests rejected by the per-client rate limiter.",
	}, []string{"route"})
)

// Middleware records request metrics labelled with the chi route pattern.
func Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			start := time.Now()
			next.ServeHTTP(ww, r)

			// chi only knows the full pattern once routing has finished.
			route := routePattern(r)
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			statusCode := strconv.Itoa(status)

			httpRequestsTotal.WithLabelValues(r.Method, route).Inc()
			httpRequestDuration.WithLabelValues(r.Method, route, statusCode).Observe(time.Since(start).Seconds())
			if status >= http.StatusInternalServerError {
				httpErrorsTotal.WithLabelValues(r.Method, route, statusCode).Inc()
			}
		})
	}
}

// Handler exposes the Prometheus metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveDBLatency records database latency for a given operation, associating it with the request route when available.
func ObserveDBLatency(ctx context.Context, operation string, start time.Time) {
	dbLatency.WithLabelValues(operation, RouteFromContext(ctx)).Observe(time.Since(start).Seconds())
}

// RecordDataIntegrityIssue counts one diagnostic of the given kind.
func RecordDataIntegrityIssue(kind string) {
	dataIntegrityIssues.WithLabelValues(kind).Inc()
}

func RecordSynthesizedOccurrences(n int) {
	if n > 0 {
		occurrencesSynthesized.Add(float64(n))
	}
}

func ObserveItemsServed(contentType string, n int) {
	itemsServed.WithLabelValues(contentType).Observe(float64(n))
}

func RecordRateLimited(r *http.Request) {
	rateLimited.WithLabelValues(routePattern(r)).Inc()
}

// RouteFromContext returns the chi route pattern of the current request, or "unknown".
func RouteFromContext(ctx context.Context) string {
	if rctx := chi.RouteContext(ctx); rctx != nil {
		if pattern := strings.TrimSpace(rctx.RoutePattern()); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}

func routePattern(r *http.Request) string {
	if route := RouteFromContext(r.Context()); route != "unknown" {
		return route
	}
	return r.URL.Path
}
