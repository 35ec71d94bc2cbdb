package domain

type AnswerMode string

const (
	ModeRaw         AnswerMode = "raw"
	ModeVectorOnly  AnswerMode = "vector_only"
	ModeGraphOnly   AnswerMode = "graph_only"
	ModeGraphVector AnswerMode = "graph_vector"
)

// AllModes lists answer modes in synthesis order.
var AllModes = []AnswerMode{ModeRaw, ModeVectorOnly, ModeGraphOnly, ModeGraphVector}

type ModeFlags struct {
	Raw         bool `json:"raw"`
	VectorOnly  bool `json:"vector_only"`
	GraphOnly   bool `json:"graph_only"`
	GraphVector bool `json:"graph_vector"`
}

func (f ModeFlags) Any() bool {
	return f.Raw || f.VectorOnly || f.GraphOnly || f.GraphVector
}

func (f ModeFlags) VectorSearch() bool {
	return f.VectorOnly || f.GraphVector
}

func (f ModeFlags) GraphSearch() bool {
	return f.GraphOnly || f.GraphVector
}

func (f ModeFlags) Enabled(mode AnswerMode) bool {
	switch mode {
	case ModeRaw:
		return f.Raw
	case ModeVectorOnly:
		return f.VectorOnly
	case ModeGraphOnly:
		return f.GraphOnly
	case ModeGraphVector:
		return f.GraphVector
	default:
		return false
	}
}

// Active returns the enabled modes in synthesis order.
func (f ModeFlags) Active() []AnswerMode {
	out := make([]AnswerMode, 0, len(AllModes))
	for _, mode := range AllModes {
		if f.Enabled(mode) {
			out = append(out, mode)
		}
	}
	return out
}

type AnswerRequest struct {
	Question       string       `json:"question"`
	Modes          ModeFlags    `json:"modes"`
	Fusion         FusionParams `json:"fusion"`
	PromptTemplate string       `json:"answer_prompt"`
}

// ContextBundle holds the context set supplied to synthesis for each retrieval mode.
// A nil slice means the mode was inactive.
type ContextBundle struct {
	VectorContexts      []string `json:"vector_contexts"`
	GraphContexts       []string `json:"graph_contexts"`
	GraphVectorContexts []string `json:"graph_vector_contexts"`
}

func (b ContextBundle) ForMode(mode AnswerMode) []string {
	switch mode {
	case ModeVectorOnly:
		return b.VectorContexts
	case ModeGraphOnly:
		return b.GraphContexts
	case ModeGraphVector:
		return b.GraphVectorContexts
	default:
		return nil
	}
}

type Answers struct {
	Raw         string `json:"raw"`
	VectorOnly  string `json:"vector_only"`
	GraphOnly   string `json:"graph_only"`
	GraphVector string `json:"graph_vector"`
}

func (a Answers) ForMode(mode AnswerMode) string {
	switch mode {
	case ModeRaw:
		return a.Raw
	case ModeVectorOnly:
		return a.VectorOnly
	case ModeGraphOnly:
		return a.GraphOnly
	case ModeGraphVector:
		return a.GraphVector
	default:
		return ""
	}
}

func (a *Answers) Set(mode AnswerMode, text string) {
	switch mode {
	case ModeRaw:
		a.Raw = text
	case ModeVectorOnly:
		a.VectorOnly = text
	case ModeGraphOnly:
		a.GraphOnly = text
	case ModeGraphVector:
		a.GraphVector = text
	}
}

type AnswerResult struct {
	Answers        Answers       `json:"answers"`
	Contexts       ContextBundle `json:"contexts"`
	RerankFallback bool          `json:"rerank_fallback"`
}

type OutcomeStatus string

const (
	OutcomeAnswered OutcomeStatus = "answered"
	OutcomeFallback OutcomeStatus = "fallback"
	OutcomeRejected OutcomeStatus = "rejected"
)

const (
	WarningNoModeSelected = "Please select at least one generate mode."
	WarningRerankFallback = "Online reranker fails, automatically switches to local lexical rerank."
	WarningEmptyUpload    = "No data in the file."
)

// AnswerOutcome separates validation rejections and rerank fallbacks from real failures,
// which are returned as errors.
type AnswerOutcome struct {
	Status   OutcomeStatus `json:"status"`
	Result   AnswerResult  `json:"result"`
	Warnings []string      `json:"warnings,omitempty"`
}

func RejectedOutcome(warning string) AnswerOutcome {
	return AnswerOutcome{Status: OutcomeRejected, Warnings: []string{warning}}
}
