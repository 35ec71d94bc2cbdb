package domain

const (
	PlaceholderContext = "{context_str}"
	PlaceholderQuery   = "{query_str}"

	DefaultQuestion = "Tell me about Sarah."

	DefaultAnswerTemplate = `You are an expert in knowledge graphs and natural language processing.
Answer the query precisely using the context below.

Context information:
---------------------
{context_str}
---------------------
Answer the query in a concise and professional manner without inventing facts that are not in the context.
If the context is insufficient, say it directly.
Query: {query_str}
Answer:`
)

// PromptConfig is the persisted question/prompt snapshot.
type PromptConfig struct {
	DefaultQuestion  string `json:"default_question" yaml:"default_question"`
	AnswerPrompt     string `json:"answer_prompt" yaml:"answer_prompt"`
	CustomRerankInfo string `json:"custom_rerank_info" yaml:"custom_rerank_info"`
}

func DefaultPromptConfig() PromptConfig {
	return PromptConfig{
		DefaultQuestion: DefaultQuestion,
		AnswerPrompt:    DefaultAnswerTemplate,
	}
}

// WithDefaults fills empty question/prompt fields. The rerank hint may legitimately be empty.
func (c PromptConfig) WithDefaults() PromptConfig {
	def := DefaultPromptConfig()
	if c.DefaultQuestion == "" {
		c.DefaultQuestion = def.DefaultQuestion
	}
	if c.AnswerPrompt == "" {
		c.AnswerPrompt = def.AnswerPrompt
	}
	return c
}
