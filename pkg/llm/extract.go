package llm

import (
	"fmt"
	"strings"
)

// NotMentioned is the sentinel value the extraction prompt instructs the model
// to emit for fields the transcript never covers.
const NotMentioned = "Not Mentioned"

// Field is one entity to pull out of a transcript, with the question that
// defines it.
type Field struct {
	Name     string
	Question string
}

// ExtractionPrompt builds a prompt that asks the model to answer each field's
// question from the transcript and reply with a JSON object shaped like
// {"Field": {"value": "..."}}. Responses may arrive wrapped in a markdown
// fence; callers strip it with StripJSONFence before decoding.
func ExtractionPrompt(transcript string, fields []Field) string {
	var b strings.Builder
	b.WriteString("You are extracting structured details from a customer service conversation.\n")
	b.WriteString("Read the transcript and answer each question using only what the transcript states.\n\n")
	b.WriteString("Transcript:\n")
	b.WriteString(transcript)
	b.WriteString("\n\nQuestions:\n")
	for _, f := range fields {
		fmt.Fprintf(&b, "- %s: %s\n", f.Name, f.Question)
	}
	b.WriteString("\nReply with a single JSON object keyed by the question names, where each value is an object with a \"value\" key.\n")
	fmt.Fprintf(&b, "If the transcript does not mention an answer, use the exact string %q.\n", NotMentioned)
	b.WriteString("Do not add commentary outside the JSON object.\n")
	return b.String()
}

// StripJSONFence removes a surrounding ```json markdown fence if present.
func StripJSONFence(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
