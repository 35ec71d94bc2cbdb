package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "graphrag"

type HTTPServerMetrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	answerRequestsTotal     *prometheus.CounterVec
	answerModeRequestsTotal *prometheus.CounterVec
	rerankFallbackTotal     *prometheus.CounterVec
	answerDuration          *prometheus.HistogramVec
	batchRowsTotal          *prometheus.CounterVec
	batchRunsTotal          *prometheus.CounterVec
	evaluationRunsTotal     *prometheus.CounterVec
	breakerState            *prometheus.GaugeVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	answerRequestsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rag",
			Name:      "answer_requests_total",
			Help:      "Total answer requests by outcome status.",
		},
		[]string{"service", "endpoint", "status"},
	)
	answerModeRequestsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rag",
			Name:      "mode_requests_total",
			Help:      "Total answered requests by answer mode.",
		},
		[]string{"service", "endpoint", "mode"},
	)
	rerankFallbackTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rag",
			Name:      "rerank_fallback_total",
			Help:      "Total requests where online rerank fell back to lexical rerank.",
		},
		[]string{"service", "endpoint"},
	)
	answerDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "rag",
			Name:      "answer_duration_seconds",
			Help:      "Answer orchestration duration in seconds.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 80},
		},
		[]string{"service", "endpoint"},
	)
	batchRowsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "batch",
			Name:      "rows_total",
			Help:      "Total batch rows answered.",
		},
		[]string{"service"},
	)
	batchRunsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "batch",
			Name:      "runs_total",
			Help:      "Total synchronous batch runs by status.",
		},
		[]string{"service", "status"},
	)
	evaluationRunsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "evaluation",
			Name:      "runs_total",
			Help:      "Total evaluation runs by status.",
		},
		[]string{"service", "status"},
	)
	breakerState := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "resilience",
			Name:      "breaker_state",
			Help:      "Circuit breaker state per upstream operation (0 closed, 1 half-open, 2 open).",
		},
		[]string{"service", "operation"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		answerRequestsTotal,
		answerModeRequestsTotal,
		rerankFallbackTotal,
		answerDuration,
		batchRowsTotal,
		batchRunsTotal,
		evaluationRunsTotal,
		breakerState,
	)

	return &HTTPServerMetrics{
		registry:                registry,
		requestTotal:            requestTotal,
		requestDuration:         requestDuration,
		requestInFlight:         requestInFlight,
		answerRequestsTotal:     answerRequestsTotal,
		answerModeRequestsTotal: answerModeRequestsTotal,
		rerankFallbackTotal:     rerankFallbackTotal,
		answerDuration:          answerDuration,
		batchRowsTotal:          batchRowsTotal,
		batchRunsTotal:          batchRunsTotal,
		evaluationRunsTotal:     evaluationRunsTotal,
		breakerState:            breakerState,
	}
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *HTTPServerMetrics) Middleware(service string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		path := normalizePath(r.URL.Path)
		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		m.requestTotal.WithLabelValues(
			service,
			r.Method,
			path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(service, r.Method, path).Observe(time.Since(start).Seconds())
	})
}

func normalizePath(path string) string {
	switch {
	case strings.HasPrefix(path, "/v1/batch/runs/"):
		return "/v1/batch/runs/{run_id}"
	default:
		return path
	}
}

// RecordAnswer counts one answer request. modes is only counted for answered requests.
func (m *HTTPServerMetrics) RecordAnswer(service, endpoint, status string, modes []string, fallback bool, duration time.Duration) {
	if status == "" {
		status = "unknown"
	}
	m.answerRequestsTotal.WithLabelValues(service, endpoint, status).Inc()
	m.answerDuration.WithLabelValues(service, endpoint).Observe(duration.Seconds())
	if status == "error" || status == "rejected" {
		return
	}
	for _, mode := range modes {
		m.answerModeRequestsTotal.WithLabelValues(service, endpoint, mode).Inc()
	}
	if fallback {
		m.rerankFallbackTotal.WithLabelValues(service, endpoint).Inc()
	}
}

func (m *HTTPServerMetrics) RecordBatchRun(service, status string, rows int) {
	if status == "" {
		status = "unknown"
	}
	m.batchRunsTotal.WithLabelValues(service, status).Inc()
	if rows > 0 {
		m.batchRowsTotal.WithLabelValues(service).Add(float64(rows))
	}
}

func (m *HTTPServerMetrics) RecordEvaluation(service, status string) {
	if status == "" {
		status = "unknown"
	}
	m.evaluationRunsTotal.WithLabelValues(service, status).Inc()
}

// ObserveBreakerStates exports the gobreaker state names reported by the resilience executor.
func (m *HTTPServerMetrics) ObserveBreakerStates(service string, states map[string]string) {
	for operation, state := range states {
		value := 0.0
		switch state {
		case "half-open":
			value = 1
		case "open":
			value = 2
		}
		m.breakerState.WithLabelValues(service, operation).Set(value)
	}
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Flush() {
	flusher, ok := w.ResponseWriter.(http.Flusher)
	if ok {
		flusher.Flush()
	}
}

func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not implement http.Hijacker")
	}
	return hijacker.Hijack()
}

func (w *statusRecorder) Push(target string, opts *http.PushOptions) error {
	pusher, ok := w.ResponseWriter.(http.Pusher)
	if !ok {
		return http.ErrNotSupported
	}
	return pusher.Push(target, opts)
}
