package agent

import "strings"

// DefaultChunkMaxChars is the target chunk size for streamed chat replies.
const DefaultChunkMaxChars = 50

// SplitChunks breaks text into sentence-aware pieces of at most maxChars,
// except when a single sentence alone exceeds the limit, in which case that
// sentence becomes its own chunk. Joining the chunks with single spaces
// reproduces the input text.
func SplitChunks(text string, maxChars int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if maxChars <= 0 {
		maxChars = DefaultChunkMaxChars
	}

	sentences := strings.SplitAfter(text, ". ")
	var chunks []string
	var current string

	for _, sentence := range sentences {
		if sentence == "" {
			continue
		}
		if current != "" && len(current)+len(sentence) > maxChars {
			chunks = append(chunks, strings.TrimSpace(current))
			current = ""
		}
		current += sentence
	}
	if current != "" {
		chunks = append(chunks, strings.TrimSpace(current))
	}

	if len(chunks) == 0 {
		return []string{text}
	}
	return chunks
}
