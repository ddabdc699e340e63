package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "gas_station",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gas_station",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "gas_station",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	sponsorships = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gas_station",
			Subsystem: "sponsor",
			Name:      "requests_total",
			Help:      "Total number of sponsorship attempts.",
		},
		[]string{"status"},
	)

	sponsorshipDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "gas_station",
			Subsystem: "sponsor",
			Name:      "request_duration_seconds",
			Help:      "Duration of sponsorship attempts.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"status"},
	)

	rateLimitRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gas_station",
			Subsystem: "admission",
			Name:      "rejections_total",
			Help:      "Total number of requests rejected by rate limiting.",
		},
		[]string{"tier"},
	)

	sponsorBalance = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "gas_station",
			Subsystem: "sponsor",
			Name:      "balance_mist",
			Help:      "Last observed sponsor balance in MIST.",
		},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		sponsorships,
		sponsorshipDuration,
		rateLimitRejections,
		sponsorBalance,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps the provided handler with HTTP metrics collection.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		duration := time.Since(start)
		path := canonicalPath(r.URL.Path)
		method := strings.ToUpper(r.Method)

		httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	})
}

// RecordSponsorship records one sponsorship attempt.
func RecordSponsorship(status string, duration time.Duration) {
	if duration <= 0 {
		duration = time.Millisecond
	}
	sponsorships.WithLabelValues(status).Inc()
	sponsorshipDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// RecordRateLimitRejection records one rejected request by tier.
func RecordRateLimitRejection(tier string) {
	if tier == "" {
		tier = "unknown"
	}
	rateLimitRejections.WithLabelValues(tier).Inc()
}

// SetSponsorBalance updates the sponsor balance gauge.
func SetSponsorBalance(mist uint64) {
	sponsorBalance.Set(float64(mist))
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

func canonicalPath(raw string) string {
	if raw == "" || raw == "/" {
		return "/"
	}
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return "/"
	}
	parts := strings.Split(trimmed, "/")
	if parts[0] != "v1" {
		return "/" + parts[0]
	}
	if len(parts) == 1 {
		return "/v1"
	}
	return "/v1/" + parts[1]
}
