package httpadapter

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/kirillkom/graphrag-assistant/internal/core/domain"
)

const (
	xlsxContentType   = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	answersFilename   = "questions_answers.xlsx"
	templateFilename  = "questions_template.xlsx"
	uploadFormField   = "file"
	endpointRAGAnswer = "rag_answer"
)

func (rt *Router) ragAnswer(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	var body answerRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	req, err := body.toDomain()
	if err != nil {
		writeError(w, r, err)
		return
	}

	outcome, err := rt.deps.Answer.Answer(r.Context(), req)
	if err != nil {
		rt.recordAnswer("error", req.Modes, false, started)
		writeError(w, r, err)
		return
	}
	rt.recordAnswer(string(outcome.Status), req.Modes, outcome.Result.RerankFallback, started)
	writeJSON(w, http.StatusOK, toAnswerResponse(outcome))
}

func (rt *Router) recordAnswer(status string, modes domain.ModeFlags, fallback bool, started time.Time) {
	if rt.deps.Metrics == nil {
		return
	}
	active := modes.Active()
	names := make([]string, 0, len(active))
	for _, mode := range active {
		names = append(names, string(mode))
	}
	rt.deps.Metrics.RecordAnswer(serviceName, endpointRAGAnswer, status, names, fallback, time.Since(started))
}

func (rt *Router) promptConfig(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, rt.deps.PromptConfig.Snapshot())
}

func (rt *Router) uploadQuestions(w http.ResponseWriter, r *http.Request) {
	lineCount, err := lineCountParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, rt.maxUploadBytes)
	if err := r.ParseMultipartForm(rt.maxUploadBytes); err != nil {
		writeError(w, r, domain.WrapError(domain.ErrInvalidInput, "parse multipart form", err))
		return
	}
	file, header, err := r.FormFile(uploadFormField)
	if err != nil {
		writeError(w, r, domain.WrapError(domain.ErrInvalidInput, "read form file", fmt.Errorf("field %q is required: %w", uploadFormField, err)))
		return
	}
	defer file.Close()

	result, err := rt.deps.Batch.UploadQuestions(r.Context(), header.Filename, file, lineCount)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, uploadResponse{
		Rows:     result.Rows,
		Preview:  toTableView(result.Preview),
		Warnings: result.Warnings,
	})
}

func (rt *Router) previewBatch(w http.ResponseWriter, r *http.Request) {
	lineCount, err := lineCountParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	doc, err := rt.deps.Batch.Preview(r.Context(), lineCount)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTableView(doc))
}

func (rt *Router) downloadTemplate(w http.ResponseWriter, r *http.Request) {
	rc, err := rt.deps.Batch.OpenTemplate(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	serveSpreadsheet(w, r, rc, templateFilename)
}

func (rt *Router) downloadAnswers(w http.ResponseWriter, r *http.Request) {
	rc, err := rt.deps.Batch.OpenAnswers(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	serveSpreadsheet(w, r, rc, answersFilename)
}

func serveSpreadsheet(w http.ResponseWriter, r *http.Request, rc io.ReadCloser, filename string) {
	defer rc.Close()
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		slog.WarnContext(r.Context(), "spreadsheet download interrupted", "request_id", requestIDFromContext(r.Context()), "file", filename, "error", err)
	}
}

func (rt *Router) runBatch(w http.ResponseWriter, r *http.Request) {
	var body batchRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	params, err := body.toDomain()
	if err != nil {
		writeError(w, r, err)
		return
	}

	result, err := rt.deps.Batch.Run(r.Context(), params, nil)
	if err != nil {
		rt.recordBatch("error", 0)
		writeError(w, r, err)
		return
	}
	status := batchStatus(result)
	rt.recordBatch(string(status), documentRows(result.Document))
	writeJSON(w, http.StatusOK, batchResponse{
		Status:   status,
		Preview:  toTableView(result.Preview),
		Location: result.Location,
		Warnings: result.Warnings,
	})
}

func batchStatus(result domain.BatchResult) domain.OutcomeStatus {
	switch {
	case result.Rejected:
		return domain.OutcomeRejected
	case slices.Contains(result.Warnings, domain.WarningRerankFallback):
		return domain.OutcomeFallback
	default:
		return domain.OutcomeAnswered
	}
}

func documentRows(doc *domain.BatchDocument) int {
	if doc == nil {
		return 0
	}
	return doc.Len()
}

func (rt *Router) recordBatch(status string, rows int) {
	if rt.deps.Metrics != nil {
		rt.deps.Metrics.RecordBatchRun(serviceName, status, rows)
	}
}

func (rt *Router) submitBatchRun(w http.ResponseWriter, r *http.Request) {
	if rt.deps.Runs == nil {
		writeError(w, r, domain.WrapError(domain.ErrTemporary, "submit batch run", errors.New("async batch runs are not configured")))
		return
	}
	var body batchRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	params, err := body.toDomain()
	if err != nil {
		writeError(w, r, err)
		return
	}
	run, err := rt.deps.Runs.Submit(r.Context(), params)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Location", "/v1/batch/runs/"+run.ID)
	writeJSON(w, http.StatusAccepted, run)
}

func (rt *Router) getBatchRun(w http.ResponseWriter, r *http.Request) {
	if rt.deps.Runs == nil {
		writeError(w, r, domain.WrapError(domain.ErrNotFound, "get batch run", errors.New("async batch runs are not configured")))
		return
	}
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		writeError(w, r, domain.WrapError(domain.ErrInvalidInput, "get batch run", errors.New("run id is required")))
		return
	}
	run, err := rt.deps.Runs.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (rt *Router) listMetrics(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"metrics": rt.deps.Evaluation.MetricNames()})
}

func (rt *Router) evaluate(w http.ResponseWriter, r *http.Request) {
	var body evaluationRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	rows, err := rt.deps.Evaluation.Evaluate(r.Context(), body.Metrics, body.RowLimit)
	if err != nil {
		rt.recordEvaluation("error")
		writeError(w, r, err)
		return
	}
	rt.recordEvaluation("ok")

	metrics := body.Metrics
	if len(rows) > 0 {
		metrics = rows[0].Metrics
	}
	writeJSON(w, http.StatusOK, evaluationResponse{Metrics: metrics, Rows: rows})
}

func (rt *Router) recordEvaluation(status string) {
	if rt.deps.Metrics != nil {
		rt.deps.Metrics.RecordEvaluation(serviceName, status)
	}
}
