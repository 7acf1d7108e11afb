package ingestion_engine

import "strings"

// DefaultMaxTokens is the chunk size used when none is configured.
const DefaultMaxTokens = 500

// ChunkText splits text on whitespace and groups consecutive words into
// chunks of at most maxTokens words, joined by single spaces.
func ChunkText(text string, maxTokens int) []string {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	words := strings.Fields(text)
	chunks := make([]string, 0, (len(words)+maxTokens-1)/maxTokens)
	for start := 0; start < len(words); start += maxTokens {
		end := start + maxTokens
		if end > len(words) {
			end = len(words)
		}
		chunks = append(chunks, strings.Join(words[start:end], " "))
	}
	return chunks
}

// CountTokens is the word count of s.
func CountTokens(s string) int {
	return len(strings.Fields(s))
}
