package agent

import (
	"strings"
	"testing"
)

func TestSplitChunksRoundTrip(t *testing.T) {
	text := "Thanks for calling. Your service slot is booked for Tuesday. A confirmation message is on its way. Anything else I can help with?"
	chunks := SplitChunks(text, 50)

	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for _, c := range chunks {
		if len(c) > 50 {
			t.Fatalf("chunk %q exceeds 50 chars", c)
		}
	}
	if got := strings.Join(chunks, " "); got != text {
		t.Fatalf("joined chunks = %q, want %q", got, text)
	}
}

func TestSplitChunksLongSentence(t *testing.T) {
	text := "This single sentence runs well past the configured chunk limit without a boundary"
	chunks := SplitChunks(text, 20)
	if len(chunks) != 1 || chunks[0] != text {
		t.Fatalf("chunks = %v", chunks)
	}
}

func TestSplitChunksShortText(t *testing.T) {
	chunks := SplitChunks("Noted.", 50)
	if len(chunks) != 1 || chunks[0] != "Noted." {
		t.Fatalf("chunks = %v", chunks)
	}
}

func TestSplitChunksEmpty(t *testing.T) {
	if chunks := SplitChunks("   ", 50); chunks != nil {
		t.Fatalf("chunks = %v, want nil", chunks)
	}
}
