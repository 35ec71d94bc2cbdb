package ollama

import "fmt"

func buildKeywordPrompt(question string, maxKeywords int) string {
	if maxKeywords <= 0 {
		maxKeywords = 5
	}
	return fmt.Sprintf(`Extract at most %d keywords from the question below for a knowledge graph lookup.
Prefer entity names (people, places, organizations) and key concepts, keep their original spelling.
Return strict JSON object {"keywords": ["..."]}. No markdown, no extra keys.

Question:
%s`, maxKeywords, question)
}
