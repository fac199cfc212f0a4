package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/vaani-ai/vaani-live/pkg/retrieval"
	"github.com/vaani-ai/vaani-live/pkg/transcript"
)

type captureSender struct {
	mu   sync.Mutex
	sent []string
}

func (s *captureSender) SendMessage(ctx context.Context, content, messageType string) {
	s.mu.Lock()
	s.sent = append(s.sent, messageType+": "+content)
	s.mu.Unlock()
}

func noSleep(ctx context.Context, d time.Duration) {}

func testDeps() Dependencies {
	return Dependencies{Sleep: noSleep}
}

func newTestCore(t *testing.T, deps Dependencies) *Core {
	t.Helper()
	path := writePrompt(t, "You are a service assistant for {{name}}.")
	state := NewSessionState("room-1")
	state.MarkStarted()
	core, err := NewCore("Gikagraph", ContactInfo{Name: "Asha", Phone: "+917055888820"}, state, path, ModalityChat, deps)
	if err != nil {
		t.Fatalf("new core: %v", err)
	}
	core.setSender(&captureSender{})
	return core
}

func TestSearchKnowledgeBaseDeduplicates(t *testing.T) {
	deps := testDeps()
	deps.Enricher = retrieval.EnricherFunc(func(ctx context.Context, query string) ([]string, error) {
		return []string{"frag-a", "frag-b", "frag-c"}, nil
	})
	core := newTestCore(t, deps)
	ctx := context.Background()

	first := core.SearchKnowledgeBase(ctx, "pricing")
	if !strings.Contains(first, "frag-a") || !strings.Contains(first, "frag-b") {
		t.Fatalf("first result = %q", first)
	}
	// Capped at two new fragments per call.
	if strings.Contains(first, "frag-c") {
		t.Fatalf("first result leaked a third fragment: %q", first)
	}

	second := core.SearchKnowledgeBase(ctx, "pricing")
	if strings.Contains(second, "frag-a") || strings.Contains(second, "frag-b") {
		t.Fatalf("second result repeated seen fragments: %q", second)
	}
	if !strings.Contains(second, "frag-c") {
		t.Fatalf("second result = %q", second)
	}

	third := core.SearchKnowledgeBase(ctx, "pricing")
	if !strings.Contains(third, "No new context found") {
		t.Fatalf("third result = %q", third)
	}
}

func TestSearchKnowledgeBaseFailureFallback(t *testing.T) {
	deps := testDeps()
	deps.Enricher = retrieval.EnricherFunc(func(ctx context.Context, query string) ([]string, error) {
		return nil, errors.New("index offline")
	})
	core := newTestCore(t, deps)

	got := core.SearchKnowledgeBase(context.Background(), "pricing")
	if got != "Search temporarily unavailable. Please try again." {
		t.Fatalf("fallback = %q", got)
	}
}

type scriptedRunner struct {
	response string
	err      error
}

func (r scriptedRunner) Run(ctx context.Context, prompt string) (string, error) {
	return r.response, r.err
}

func extractionResponse(values map[string]string) string {
	var parts []string
	for _, f := range validationEntities {
		v, ok := values[f.Name]
		if !ok {
			v = "Not Mentioned"
		}
		parts = append(parts, fmt.Sprintf("%q: {\"value\": %q}", f.Name, v))
	}
	return "```json\n{" + strings.Join(parts, ", ") + "}\n```"
}

func TestValidateCustomerDetailsComplete(t *testing.T) {
	deps := testDeps()
	deps.Transcript = transcript.NewManager()
	deps.Runner = scriptedRunner{response: extractionResponse(map[string]string{
		"Name":                "Asha",
		"Mobile_Number":       "+917055888820",
		"Approximate_Mileage": "42000",
		"Location_Area":       "Indiranagar",
		"Specific_Location":   "100 Feet Road",
	})}
	core := newTestCore(t, deps)

	got := core.ValidateCustomerDetails(context.Background())
	if !strings.Contains(got, "All details validated") {
		t.Fatalf("result = %q", got)
	}
}

func TestValidateCustomerDetailsMissingSubset(t *testing.T) {
	deps := testDeps()
	deps.Runner = scriptedRunner{response: extractionResponse(map[string]string{
		"Name":          "Asha",
		"Mobile_Number": "+917055888820",
	})}
	core := newTestCore(t, deps)

	got := core.ValidateCustomerDetails(context.Background())
	for _, missing := range []string{"Approximate_Mileage", "Location_Area", "Specific_Location"} {
		if !strings.Contains(got, missing) {
			t.Fatalf("directive lacks %s: %q", missing, got)
		}
	}
	for _, present := range []string{"Name:", "Mobile_Number:"} {
		if strings.Contains(got, present) {
			t.Fatalf("directive asks about present entity %s: %q", present, got)
		}
	}
}

func TestValidateCustomerDetailsParseFailure(t *testing.T) {
	deps := testDeps()
	deps.Runner = scriptedRunner{response: "I could not produce JSON, sorry."}
	core := newTestCore(t, deps)

	if got := core.ValidateCustomerDetails(context.Background()); got != "noted" {
		t.Fatalf("result = %q", got)
	}
}

func TestBookAppointment(t *testing.T) {
	core := newTestCore(t, testDeps())
	got := core.BookAppointment(context.Background())
	if !strings.Contains(got, "book an appointment") {
		t.Fatalf("result = %q", got)
	}
}

func TestRecordSessionEndOnce(t *testing.T) {
	var mu sync.Mutex
	var persisted []string

	deps := testDeps()
	deps.PersistEnd = func(ctx context.Context, reason string) error {
		mu.Lock()
		persisted = append(persisted, reason)
		mu.Unlock()
		return nil
	}
	core := newTestCore(t, deps)
	ctx := context.Background()

	// Concurrent termination triggers race for the guard.
	var wg sync.WaitGroup
	for _, reason := range []string{
		EndReasonCallEnded, EndReasonRoomDisconnected, EndReasonShutdown, EndReasonInactivity,
	} {
		wg.Add(1)
		go func(r string) {
			defer wg.Done()
			core.RecordSessionEnd(ctx, r)
		}(reason)
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if len(persisted) != 1 {
		t.Fatalf("persisted %d times: %v", len(persisted), persisted)
	}
}

func TestRecordSessionEndRequiresStart(t *testing.T) {
	deps := testDeps()
	deps.PersistEnd = func(ctx context.Context, reason string) error {
		t.Fatal("persisted end for a session that never started")
		return nil
	}
	path := writePrompt(t, "prompt")
	core, err := NewCore("Gikagraph", ContactInfo{}, NewSessionState("room-1"), path, ModalityChat, deps)
	if err != nil {
		t.Fatalf("new core: %v", err)
	}
	core.RecordSessionEnd(context.Background(), EndReasonCallEnded)
	if core.State().EndRecorded() {
		t.Fatal("end recorded without session start")
	}
}

func TestRecordSessionEndPersistFailureKeepsFlag(t *testing.T) {
	calls := 0
	deps := testDeps()
	deps.PersistEnd = func(ctx context.Context, reason string) error {
		calls++
		return errors.New("db down")
	}
	core := newTestCore(t, deps)
	ctx := context.Background()

	core.RecordSessionEnd(ctx, EndReasonCallEnded)
	core.RecordSessionEnd(ctx, EndReasonRoomDisconnected)

	if calls != 1 {
		t.Fatalf("persist attempted %d times, want 1", calls)
	}
	if !core.State().EndRecorded() {
		t.Fatal("flag cleared after persistence failure")
	}
}
