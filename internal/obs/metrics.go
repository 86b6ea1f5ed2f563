package obs

import (
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "gateway_http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_http_requests_total",
			Help: "Total number of HTTP requests handled by the gateway.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gateway_http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	upstreamRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_upstream_requests_total",
			Help: "Total number of requests issued to the upstream CMS API.",
		},
		[]string{"method", "endpoint", "status"},
	)

	upstreamRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gateway_upstream_request_duration_seconds",
			Help:    "Upstream request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	tokenRefreshTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_token_refresh_total",
			Help: "Token refresh attempts by outcome.",
		},
		[]string{"outcome"},
	)

	idleLogoutsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gateway_idle_logouts_total",
		Help: "Sessions terminated by the idle-timeout monitor.",
	})
)

// Init registers all gateway metrics with the default registry.
func Init() {
	prometheus.MustRegister(
		httpInFlight,
		httpRequestsTotal,
		httpRequestDuration,
		upstreamRequestsTotal,
		upstreamRequestDuration,
		tokenRefreshTotal,
		idleLogoutsTotal,
	)
}

func Handler() http.Handler {
	return promhttp.Handler()
}

var idSegment = regexp.MustCompile(`/\d+`)

// ObserveUpstream records one upstream call. Numeric path segments are
// collapsed so request IDs don't explode label cardinality.
func ObserveUpstream(method, endpoint string, status int, duration time.Duration) {
	ep := idSegment.ReplaceAllString(endpoint, "/:id")
	upstreamRequestsTotal.WithLabelValues(method, ep, strconv.Itoa(status)).Inc()
	upstreamRequestDuration.WithLabelValues(method, ep).Observe(duration.Seconds())
}

func ObserveTokenRefresh(outcome string) {
	tokenRefreshTotal.WithLabelValues(outcome).Inc()
}

func ObserveIdleLogout() {
	idleLogoutsTotal.Inc()
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

// Instrument wraps a handler with request count, latency and in-flight gauges.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httpInFlight.Inc()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: 200}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)
		path := idSegment.ReplaceAllString(r.URL.Path, "/:id")

		httpRequestsTotal.WithLabelValues(r.Method, path, status).Inc()
		httpRequestDuration.WithLabelValues(r.Method, path, status).Observe(duration)
		httpInFlight.Dec()
	})
}
