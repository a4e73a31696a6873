package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scopego_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"route", "method", "code"},
	)

	httpDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scopego_http_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method"},
	)

	guideCyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scopego_guide_cycles_total",
			Help: "Guide loop cycles by outcome (no_frame, no_star, centered, corrected).",
		},
		[]string{"outcome"},
	)

	guideCorrectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scopego_guide_corrections_total",
			Help: "Correction sequences sent to the mount.",
		},
		[]string{"axis", "direction"},
	)

	captureAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scopego_capture_attempts_total",
			Help: "Frame capture attempts per strategy and result.",
		},
		[]string{"strategy", "result"},
	)

	calibrationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scopego_calibrations_total",
			Help: "Rotation calibrations by result (ok or failure reason).",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(httpRequestsTotal)
	prometheus.MustRegister(httpDurationSeconds)
	prometheus.MustRegister(guideCyclesTotal)
	prometheus.MustRegister(guideCorrectionsTotal)
	prometheus.MustRegister(captureAttemptsTotal)
	prometheus.MustRegister(calibrationsTotal)
}

// GuideCycle counts one guide loop cycle.
func GuideCycle(outcome string) {
	guideCyclesTotal.WithLabelValues(outcome).Inc()
}

// GuideCorrection counts one correction sequence.
func GuideCorrection(axis, direction string) {
	guideCorrectionsTotal.WithLabelValues(axis, direction).Inc()
}

// CaptureAttempt counts one capture strategy attempt.
func CaptureAttempt(strategy string, ok bool) {
	result := "ok"
	if !ok {
		result = "error"
	}
	captureAttemptsTotal.WithLabelValues(strategy, result).Inc()
}

// Calibration counts one calibration run.
func Calibration(result string) {
	calibrationsTotal.WithLabelValues(result).Inc()
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Flush keeps SSE streaming working through the middleware.
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// routeLabel uses the matched ServeMux pattern so that query strings and
// unknown paths do not blow up label cardinality.
func routeLabel(r *http.Request) string {
	if r.Pattern == "" {
		return "other"
	}
	return r.Pattern
}

// Middleware records request count and duration for each request.
// The route label is read after the mux has matched the request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		duration := time.Since(start).Seconds()
		code := strconv.Itoa(rw.statusCode)
		route := routeLabel(r)

		httpRequestsTotal.WithLabelValues(route, r.Method, code).Inc()
		httpDurationSeconds.WithLabelValues(route, r.Method).Observe(duration)
	})
}
