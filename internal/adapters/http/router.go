package httpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/kirillkom/graphrag-assistant/internal/config"
	"github.com/kirillkom/graphrag-assistant/internal/core/domain"
	"github.com/kirillkom/graphrag-assistant/internal/core/ports"
	"github.com/kirillkom/graphrag-assistant/internal/observability/metrics"
)

const serviceName = "api"

// Dependencies are the inbound services served over HTTP. Metrics and BreakerStates are optional.
type Dependencies struct {
	Answer       ports.AnswerService
	PromptConfig ports.PromptConfigReader
	Batch        ports.BatchService
	Evaluation   ports.EvaluationService
	Runs         ports.BatchRunService

	Metrics       *metrics.HTTPServerMetrics
	BreakerStates func() map[string]string
	Logger        *slog.Logger
}

type Router struct {
	deps Dependencies

	rateLimitRPS      float64
	rateLimitBurst    int
	backpressureMax   int
	backpressureWait  time.Duration
	requestValidation bool
	maxUploadBytes    int64
}

func NewRouter(cfg config.Config, deps Dependencies) *Router {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	maxUpload := cfg.APIMaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = 20 << 20
	}
	return &Router{
		deps:              deps,
		rateLimitRPS:      cfg.APIRateLimitRPS,
		rateLimitBurst:    cfg.APIRateLimitBurst,
		backpressureMax:   cfg.APIBackpressureMax,
		backpressureWait:  cfg.APIBackpressureWait,
		requestValidation: cfg.APIRequestValidation,
		maxUploadBytes:    maxUpload,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	mux.HandleFunc("POST /v1/rag/answer", rt.ragAnswer)
	mux.HandleFunc("GET /v1/prompt-config", rt.promptConfig)
	mux.HandleFunc("POST /v1/batch/questions", rt.uploadQuestions)
	mux.HandleFunc("GET /v1/batch/preview", rt.previewBatch)
	mux.HandleFunc("GET /v1/batch/template", rt.downloadTemplate)
	mux.HandleFunc("POST /v1/batch/answers", rt.runBatch)
	mux.HandleFunc("GET /v1/batch/answers/file", rt.downloadAnswers)
	mux.HandleFunc("POST /v1/batch/runs", rt.submitBatchRun)
	mux.HandleFunc("GET /v1/batch/runs/{id}", rt.getBatchRun)
	mux.HandleFunc("GET /v1/evaluations/metrics", rt.listMetrics)
	mux.HandleFunc("POST /v1/evaluations", rt.evaluate)
	if rt.deps.Metrics != nil {
		mux.Handle("GET /metrics", rt.metricsHandler())
	}

	var handler http.Handler = mux
	if rt.requestValidation {
		validate, err := newValidationMiddleware(context.Background())
		if err != nil {
			rt.deps.Logger.Error("openapi validation disabled", "error", err)
		} else {
			handler = validate(handler)
		}
	}
	handler = backpressureMiddleware(handler, rt.backpressureMax, rt.backpressureWait)
	handler = rateLimitMiddleware(handler, rt.rateLimitRPS, rt.rateLimitBurst)
	if rt.deps.Metrics != nil {
		handler = rt.deps.Metrics.Middleware(serviceName, handler)
	}
	handler = accessLogMiddleware(handler)
	return requestIDMiddleware(handler)
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) metricsHandler() http.Handler {
	base := rt.deps.Metrics.Handler()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rt.deps.BreakerStates != nil {
			rt.deps.Metrics.ObserveBreakerStates(serviceName, rt.deps.BreakerStates())
		}
		base.ServeHTTP(w, r)
	})
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		return domain.WrapError(domain.ErrInvalidInput, "decode request", fmt.Errorf("invalid json: %w", err))
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := mapErrorToHTTPStatus(err)
	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		status = http.StatusRequestEntityTooLarge
	}
	if status >= http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "request failed", "request_id", requestIDFromContext(r.Context()), "path", r.URL.Path, "error", err)
	}
	writeJSON(w, status, errorResponse{
		Error:     domain.UserMessage(err),
		RequestID: requestIDFromContext(r.Context()),
	})
}
