package domain

// EvalSample is one (question, answer, contexts, ground truth) quadruple.
type EvalSample struct {
	Question    string   `json:"question"`
	Answer      string   `json:"answer"`
	Contexts    []string `json:"contexts"`
	GroundTruth string   `json:"ground_truth"`
}

// EvaluationRow holds the mean metric scores of one answer mode.
type EvaluationRow struct {
	Method  string             `json:"method"`
	Metrics []string           `json:"metrics"`
	Scores  map[string]float64 `json:"scores"`
}
