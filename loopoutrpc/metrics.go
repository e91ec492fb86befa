package loopoutrpc

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "loopout",
			Subsystem: "rpc",
			Name:      "request_duration_seconds",
			Help:      "Latency of loop-out HTTP API requests.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"route", "status"},
	)

	requestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "loopout",
			Subsystem: "rpc",
			Name:      "requests_in_flight",
			Help:      "Number of loop-out HTTP API requests currently being served.",
		},
	)
)

func init() {
	prometheus.MustRegister(requestDuration, requestsInFlight)
}

// statusRecorder captures the status code a handler writes, since
// http.ResponseWriter doesn't expose it after the fact.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// instrument wraps next with per-route request duration and in-flight
// gauges, the same pair of metrics lnd exports for its own gRPC interceptor
// chain (request count is derivable from the histogram's sample count, so
// it isn't tracked separately).
func instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestsInFlight.Inc()
		defer requestsInFlight.Dec()

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		requestDuration.WithLabelValues(r.URL.Path, strconv.Itoa(rec.status)).
			Observe(time.Since(start).Seconds())
	})
}

// metricsHandler exposes the registered collectors for scraping.
func metricsHandler() http.Handler {
	return promhttp.Handler()
}
