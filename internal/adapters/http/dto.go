package httpadapter

import (
	"github.com/kirillkom/graphrag-assistant/internal/core/domain"
)

type fusionRequest struct {
	GraphRatio        float64 `json:"graph_ratio"`
	RerankMethod      string  `json:"rerank_method"`
	NearNeighborFirst bool    `json:"near_neighbor_first"`
	RerankHint        string  `json:"rerank_hint"`
}

func (f fusionRequest) toDomain() (domain.FusionParams, error) {
	method, err := domain.ParseRerankMethod(f.RerankMethod)
	if err != nil {
		return domain.FusionParams{}, err
	}
	return domain.FusionParams{
		GraphRatio:        f.GraphRatio,
		RerankMethod:      method,
		NearNeighborFirst: f.NearNeighborFirst,
		RerankHint:        f.RerankHint,
	}, nil
}

type answerRequest struct {
	Question     string           `json:"question"`
	Modes        domain.ModeFlags `json:"modes"`
	Fusion       fusionRequest    `json:"fusion"`
	AnswerPrompt string           `json:"answer_prompt"`
}

func (r answerRequest) toDomain() (domain.AnswerRequest, error) {
	fusion, err := r.Fusion.toDomain()
	if err != nil {
		return domain.AnswerRequest{}, err
	}
	return domain.AnswerRequest{
		Question:       r.Question,
		Modes:          r.Modes,
		Fusion:         fusion,
		PromptTemplate: r.AnswerPrompt,
	}, nil
}

type answerResponse struct {
	Status         domain.OutcomeStatus `json:"status"`
	Answers        domain.Answers       `json:"answers"`
	Contexts       domain.ContextBundle `json:"contexts"`
	RerankFallback bool                 `json:"rerank_fallback"`
	Warnings       []string             `json:"warnings,omitempty"`
}

func toAnswerResponse(outcome domain.AnswerOutcome) answerResponse {
	return answerResponse{
		Status:         outcome.Status,
		Answers:        outcome.Result.Answers,
		Contexts:       outcome.Result.Contexts,
		RerankFallback: outcome.Result.RerankFallback,
		Warnings:       outcome.Warnings,
	}
}

type batchRequest struct {
	Modes        domain.ModeFlags `json:"modes"`
	Fusion       fusionRequest    `json:"fusion"`
	AnswerPrompt string           `json:"answer_prompt"`
	PreviewLines int              `json:"answer_max_line_count"`
}

func (r batchRequest) toDomain() (domain.BatchParams, error) {
	fusion, err := r.Fusion.toDomain()
	if err != nil {
		return domain.BatchParams{}, err
	}
	return domain.BatchParams{
		Modes:          r.Modes,
		Fusion:         fusion,
		PromptTemplate: r.AnswerPrompt,
		PreviewLines:   r.PreviewLines,
	}, nil
}

// tableView is the JSON form of a batch document: ordered headers plus row-major cells.
type tableView struct {
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows"`
}

func toTableView(doc *domain.BatchDocument) tableView {
	view := tableView{Columns: []string{}, Rows: [][]string{}}
	if doc == nil {
		return view
	}
	view.Columns = append(view.Columns, doc.Columns...)
	for i := range doc.Rows {
		row := make([]string, len(doc.Columns))
		for j, col := range doc.Columns {
			row[j] = doc.Value(i, col)
		}
		view.Rows = append(view.Rows, row)
	}
	return view
}

type uploadResponse struct {
	Rows     int       `json:"rows"`
	Preview  tableView `json:"preview"`
	Warnings []string  `json:"warnings,omitempty"`
}

type batchResponse struct {
	Status   domain.OutcomeStatus `json:"status"`
	Preview  tableView            `json:"preview"`
	Location string               `json:"location,omitempty"`
	Warnings []string             `json:"warnings,omitempty"`
}

type evaluationRequest struct {
	Metrics  []string `json:"metrics"`
	RowLimit int      `json:"row_limit"`
}

type evaluationResponse struct {
	Metrics []string               `json:"metrics"`
	Rows    []domain.EvaluationRow `json:"rows"`
}

type errorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}
