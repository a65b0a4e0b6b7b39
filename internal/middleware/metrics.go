package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// unmatchedRoute labels requests that matched no route.
const unmatchedRoute = "unmatched"

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "catalog",
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests by route, status and response cache result",
		},
		[]string{"method", "route", "status", "cache"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "catalog",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	httpRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "catalog",
			Name:      "http_requests_in_flight",
			Help:      "Number of HTTP requests currently being processed",
		},
	)

	oversizedBodiesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "catalog",
			Name:      "http_oversized_bodies_total",
			Help:      "Request bodies rejected for exceeding the size limit",
		},
		[]string{"route"},
	)

	panicsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "catalog",
			Name:      "http_panics_total",
			Help:      "Handler panics recovered",
		},
	)
)

// Metrics records request counts, durations and in-flight requests. The
// count carries the X-Cache result of cached listing and stats routes.
func Metrics() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := newRecorder(w)

			httpRequestsInFlight.Inc()
			defer httpRequestsInFlight.Dec()

			next.ServeHTTP(rec, r)

			route := routeLabel(r)
			httpRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rec.status), rec.cacheResult()).Inc()
			httpRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		})
	}
}

// routeLabel returns the matched route template, so item IDs do not become
// label values. Requests that matched no route share one label.
func routeLabel(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tmpl, err := route.GetPathTemplate(); err == nil {
			return tmpl
		}
	}
	return unmatchedRoute
}
