package store

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryChatSessionLifecycle(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	err := m.CreateChatSession(ctx, ChatSession{
		SessionID: "chat_42",
		UserID:    7,
		RoomID:    "room_chat_42",
		StartedAt: started,
	})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	s, err := m.GetChatSession(ctx, "chat_42")
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if s.Status != SessionStatusActive || !s.IsActive {
		t.Fatalf("new session status = %q active=%v, want active", s.Status, s.IsActive)
	}
	if !s.LastActivityAt.Equal(started) {
		t.Fatalf("last activity = %v, want %v", s.LastActivityAt, started)
	}

	touched := started.Add(2 * time.Minute)
	if err := m.TouchChatSession(ctx, "chat_42", touched); err != nil {
		t.Fatalf("touch session: %v", err)
	}
	if err := m.InsertChatMessage(ctx, ChatMessage{
		SessionID:   "chat_42",
		MessageID:   "msg_1",
		MessageType: "user_message",
		Content:     "hello",
		Sender:      "user",
		Timestamp:   touched,
	}); err != nil {
		t.Fatalf("insert message: %v", err)
	}
	if err := m.InsertChatMessage(ctx, ChatMessage{SessionID: "chat_42", MessageID: "msg_1"}); err == nil {
		t.Fatal("duplicate message id accepted")
	}

	ended := started.Add(5 * time.Minute)
	if err := m.EndChatSession(ctx, "chat_42", SessionStatusEnded, ended); err != nil {
		t.Fatalf("end session: %v", err)
	}
	s, err = m.GetChatSession(ctx, "chat_42")
	if err != nil {
		t.Fatalf("get ended session: %v", err)
	}
	if s.IsActive || s.Status != SessionStatusEnded || s.EndedAt == nil || !s.EndedAt.Equal(ended) {
		t.Fatalf("ended session = %+v", s)
	}
	if !s.LastActivityAt.Equal(touched) {
		t.Fatalf("last activity = %v, want %v", s.LastActivityAt, touched)
	}

	msgs, err := m.ListChatMessages(ctx, "chat_42", 10)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Content != "hello" {
		t.Fatalf("messages = %+v", msgs)
	}
}

func TestMemoryInsertChatMessageUnknownSession(t *testing.T) {
	m := NewMemory()
	err := m.InsertChatMessage(context.Background(), ChatMessage{SessionID: "nope", MessageID: "m"})
	if err == nil {
		t.Fatal("message without session accepted")
	}
}

func TestMemoryCallDuration(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if err := m.InsertCallStart(ctx, Call{
		CallID:        "call_1",
		UserID:        7,
		CallStartedAt: started,
		CallStatus:    "in-progress",
	}); err != nil {
		t.Fatalf("insert call: %v", err)
	}
	if err := m.EndCall(ctx, "call_1", "completed", started.Add(90*time.Second)); err != nil {
		t.Fatalf("end call: %v", err)
	}
	c, err := m.GetCall(ctx, "call_1")
	if err != nil {
		t.Fatalf("get call: %v", err)
	}
	if c.CallDuration == nil || *c.CallDuration != 90 {
		t.Fatalf("duration = %v, want 90", c.CallDuration)
	}
	if c.CallStatus != "completed" {
		t.Fatalf("status = %q", c.CallStatus)
	}

	if err := m.EndCall(ctx, "missing", "completed", started); !errors.Is(err, ErrNotFound) {
		t.Fatalf("end missing call err = %v, want ErrNotFound", err)
	}
}

func TestMemorySummary(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for i, d := range []time.Duration{60 * time.Second, 120 * time.Second} {
		id := string(rune('a' + i))
		if err := m.InsertCallStart(ctx, Call{CallID: id, UserID: 7, CallStartedAt: base}); err != nil {
			t.Fatalf("insert call: %v", err)
		}
		if err := m.EndCall(ctx, id, "completed", base.Add(d)); err != nil {
			t.Fatalf("end call: %v", err)
		}
	}
	// Other user and pre-window records both stay out of the summary.
	if err := m.InsertCallStart(ctx, Call{CallID: "other", UserID: 8, CallStartedAt: base}); err != nil {
		t.Fatalf("insert call: %v", err)
	}
	if err := m.InsertCallStart(ctx, Call{CallID: "old", UserID: 7, CallStartedAt: base.Add(-48 * time.Hour)}); err != nil {
		t.Fatalf("insert call: %v", err)
	}

	if err := m.CreateChatSession(ctx, ChatSession{SessionID: "c1", UserID: 7, StartedAt: base}); err != nil {
		t.Fatalf("create session: %v", err)
	}
	if err := m.CreateChatSession(ctx, ChatSession{SessionID: "c2", UserID: 7, StartedAt: base}); err != nil {
		t.Fatalf("create session: %v", err)
	}
	if err := m.EndChatSession(ctx, "c2", SessionStatusEnded, base.Add(time.Minute)); err != nil {
		t.Fatalf("end session: %v", err)
	}

	sum, err := m.Summary(ctx, 7, base.Add(-time.Hour))
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if sum.TotalCalls != 2 || sum.TotalChats != 2 || sum.ActiveChats != 1 {
		t.Fatalf("summary = %+v", sum)
	}
	if sum.AvgCallDuration != 90 {
		t.Fatalf("avg duration = %v, want 90", sum.AvgCallDuration)
	}
}
