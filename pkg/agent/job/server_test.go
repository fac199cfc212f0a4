package job

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vaani-ai/vaani-live/pkg/agent"
	"github.com/vaani-ai/vaani-live/pkg/config"
	"github.com/vaani-ai/vaani-live/pkg/llm"
	"github.com/vaani-ai/vaani-live/pkg/room"
	"github.com/vaani-ai/vaani-live/pkg/store"
	"github.com/vaani-ai/vaani-live/pkg/telephony"
)

func dialSession(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/session"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn
}

func TestSessionHandlerChatConversation(t *testing.T) {
	st := store.NewMemory()
	c := newTestCoordinator(t, st)
	srv := httptest.NewServer(SessionHandler{Coordinator: c})
	defer srv.Close()

	conn := dialSession(t, srv)
	defer conn.Close()

	err := conn.WriteJSON(map[string]any{
		"room":     "room_ws_1",
		"identity": "chat_user",
		"user_id":  7,
		"metadata": map[string]any{"modality": "chat", "session_id": "chat_ws_1", "name": "Asha"},
	})
	if err != nil {
		t.Fatalf("send hello: %v", err)
	}

	readEnvelope := func() room.Envelope {
		t.Helper()
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, frame, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read frame: %v", err)
		}
		env, err := room.DecodeEnvelope(frame)
		if err != nil {
			t.Fatalf("decode frame %s: %v", frame, err)
		}
		return env
	}

	welcome := readEnvelope()
	if welcome.Type != room.TypeText || !strings.Contains(welcome.Content, "customer service") {
		t.Fatalf("welcome = %+v", welcome)
	}

	out, err := room.NewEnvelope(room.TypeUserMessage, "hello there", room.SenderUser).Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, out); err != nil {
		t.Fatalf("send user message: %v", err)
	}

	var sawChunk, sawComplete bool
	for !sawComplete {
		env := readEnvelope()
		switch env.Type {
		case room.TypeTextChunk:
			sawChunk = true
		case room.TypeTextComplete:
			sawComplete = true
		}
	}
	if !sawChunk {
		t.Fatal("no text chunks before completion")
	}

	// Closing the socket ends the session on the server side.
	conn.Close()
	waitFor(t, "session end", func() bool {
		s, err := st.GetChatSession(context.Background(), "chat_ws_1")
		if err != nil {
			t.Fatalf("get session: %v", err)
		}
		return s.Status == store.SessionStatusEnded
	})
}

func TestSessionHandlerVoiceSIPCall(t *testing.T) {
	st := store.NewMemory()
	speech := &fakeSpeech{}

	cfg := testConfig(t)
	cfg.Mode = config.ModeSIP
	c, err := New(Dependencies{
		Config: cfg,
		Store:  st,
		SIP:    &telephony.SIPConnector{Timeout: 2 * time.Second},
		Runner: llm.RunnerFunc(func(ctx context.Context, prompt string) (string, error) {
			return "ok", nil
		}),
		NewSpeech: func(ctx context.Context, r room.Room, opts SpeechOptions) (agent.SpeechSession, error) {
			return speech, nil
		},
	})
	if err != nil {
		t.Fatalf("new coordinator: %v", err)
	}

	srv := httptest.NewServer(SessionHandler{Coordinator: c})
	defer srv.Close()

	conn := dialSession(t, srv)
	defer conn.Close()

	err = conn.WriteJSON(map[string]any{
		"room":     "room_sip_1",
		"identity": "sip_+15551234567",
		"user_id":  7,
		"metadata": map[string]any{"call_type": "inbound", "phone": "+15551234567"},
	})
	if err != nil {
		t.Fatalf("send hello: %v", err)
	}

	// The telephone participant is resolved from the accepted socket, so the
	// session starts without waiting out the SIP join timeout.
	waitFor(t, "welcome spoken", speech.saidAnything)

	call, err := st.GetCall(context.Background(), "room_sip_1")
	if err != nil {
		t.Fatalf("get call: %v", err)
	}
	if call.CallStatus != "started" || call.CallFrom != "+15551234567" {
		t.Fatalf("call = %+v", call)
	}

	conn.Close()
	waitFor(t, "call end", func() bool {
		call, err := st.GetCall(context.Background(), "room_sip_1")
		if err != nil {
			t.Fatalf("get ended call: %v", err)
		}
		return call.CallStatus == "completed"
	})
}

func TestSessionHandlerRejectsMalformedHello(t *testing.T) {
	st := store.NewMemory()
	c := newTestCoordinator(t, st)
	srv := httptest.NewServer(SessionHandler{Coordinator: c})
	defer srv.Close()

	conn := dialSession(t, srv)
	defer conn.Close()

	if err := conn.WriteMessage(websocket.TextMessage, []byte("not json")); err != nil {
		t.Fatalf("send: %v", err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.ClosePolicyViolation) {
		t.Fatalf("err = %v, want policy violation close", err)
	}
}

func TestSessionHandlerRejectsBadJob(t *testing.T) {
	st := store.NewMemory()
	c := newTestCoordinator(t, st)
	srv := httptest.NewServer(SessionHandler{Coordinator: c})
	defer srv.Close()

	conn := dialSession(t, srv)
	defer conn.Close()

	// Outbound voice without a phone number cannot be classified.
	err := conn.WriteJSON(map[string]any{
		"room":     "room_ws_2",
		"metadata": map[string]any{"name": "Asha"},
	})
	if err != nil {
		t.Fatalf("send hello: %v", err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.ClosePolicyViolation) {
		t.Fatalf("err = %v, want policy violation close", err)
	}
}
