package agent

import (
	"fmt"
	"os"
	"strings"
	"time"
	"unicode"
)

// ContactInfo identifies the remote party. Phone is required for voice
// sessions and optional for chat.
type ContactInfo struct {
	Name  string
	Phone string
}

// PromptLoadError reports a prompt template that could not be read.
type PromptLoadError struct {
	Path string
	Err  error
}

func (e *PromptLoadError) Error() string {
	return fmt.Sprintf("load prompt template %s: %v", e.Path, e.Err)
}

func (e *PromptLoadError) Unwrap() error { return e.Err }

// LoadPrompt reads the template at path and substitutes the placeholders
// {{phone_string}}, {{phone_numeric}}, {{current_time}}, and {{name}}.
func LoadPrompt(path string, contact ContactInfo, now time.Time) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", &PromptLoadError{Path: path, Err: err}
	}

	phone := contact.Phone
	if phone == "" {
		phone = "unknown"
	}
	name := contact.Name
	if name == "" {
		name = "there"
	}

	prompt := string(raw)
	prompt = strings.ReplaceAll(prompt, "{{phone_string}}", ConversationalNumber(phone))
	prompt = strings.ReplaceAll(prompt, "{{phone_numeric}}", phone)
	prompt = strings.ReplaceAll(prompt, "{{current_time}}", now.Format("2006-01-02 15:04"))
	prompt = strings.ReplaceAll(prompt, "{{name}}", name)
	return prompt, nil
}

var digitWords = map[rune]string{
	'0': "zero", '1': "one", '2': "two", '3': "three", '4': "four",
	'5': "five", '6': "six", '7': "seven", '8': "eight", '9': "nine",
}

// ConversationalNumber renders a phone number digit by digit so TTS reads it
// the way a person would dictate it. A leading or embedded + is spoken as
// "plus"; other non-digit characters are dropped.
func ConversationalNumber(phone string) string {
	var words []string
	for _, r := range phone {
		if r == '+' {
			words = append(words, "plus")
			continue
		}
		if w, ok := digitWords[r]; ok {
			words = append(words, w)
		}
	}
	if len(words) == 0 {
		return phone
	}
	return strings.Join(words, " ")
}

// Symbols the LLM emits that TTS engines read out literally.
var spokenSymbols = [][2]string{
	{"&", " and "},
	{"%", " percent"},
	{"@", " at "},
	{"~", " approximately "},
}

// SanitizeForSpeech strips markdown the LLM tends to emit so synthesized
// speech does not read out formatting characters.
func SanitizeForSpeech(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimLeft(line, " ")
		trimmed = strings.TrimLeft(trimmed, "#")
		trimmed = strings.TrimPrefix(trimmed, "- ")
		trimmed = strings.TrimPrefix(trimmed, "* ")
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(trimmed)
	}

	cleaned := b.String()
	cleaned = strings.ReplaceAll(cleaned, "**", "")
	cleaned = strings.ReplaceAll(cleaned, "*", "")
	cleaned = strings.ReplaceAll(cleaned, "`", "")
	cleaned = strings.ReplaceAll(cleaned, "_", " ")
	for _, sym := range spokenSymbols {
		cleaned = strings.ReplaceAll(cleaned, sym[0], sym[1])
	}

	// Collapse runs of whitespace left behind by the stripping.
	fields := strings.FieldsFunc(cleaned, unicode.IsSpace)
	return strings.Join(fields, " ")
}
