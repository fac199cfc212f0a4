package transcript

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/vaani-ai/vaani-live/pkg/store"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestManagerAppendAndSnapshot(t *testing.T) {
	m := NewManager()
	m.Now = fixedClock(time.Date(2026, 3, 1, 10, 0, 1, 0, time.UTC))

	m.Append(RoleUser, "Hi, my Creta needs a service.")
	m.Now = fixedClock(time.Date(2026, 3, 1, 10, 0, 7, 0, time.UTC))
	m.Append(RoleAgent, "Happy to help with that.")
	m.Append(RoleUser, "   ")

	got := m.Snapshot()
	want := "[10:00:01] USER: Hi, my Creta needs a service.\n[10:00:07] AGENT: Happy to help with that."
	if got != want {
		t.Fatalf("snapshot = %q, want %q", got, want)
	}
	if m.Len() != 2 {
		t.Fatalf("len = %d, want 2", m.Len())
	}
}

func TestManagerPersist(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	if err := st.InsertCallStart(ctx, store.Call{CallID: "call_1", UserID: 1}); err != nil {
		t.Fatalf("insert call: %v", err)
	}

	m := NewManager()
	m.Append(RoleUser, "hello")
	if err := m.Persist(ctx, st, "call_1"); err != nil {
		t.Fatalf("persist: %v", err)
	}

	c, err := st.GetCall(ctx, "call_1")
	if err != nil {
		t.Fatalf("get call: %v", err)
	}
	if !strings.Contains(c.CallTranscription, "USER: hello") {
		t.Fatalf("transcription = %q", c.CallTranscription)
	}
}

func TestManagerPersistEmptySkips(t *testing.T) {
	m := NewManager()
	// No store interaction should occur. A nil persister would panic if it did.
	if err := m.Persist(context.Background(), nil, "call_1"); err != nil {
		t.Fatalf("persist empty: %v", err)
	}
}
