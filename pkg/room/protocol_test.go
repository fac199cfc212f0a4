package room

import (
	"errors"
	"testing"
)

func TestDecodeEnvelope_UserMessage(t *testing.T) {
	env, err := DecodeEnvelope([]byte(`{"type":"user_message","content":"hello","sender":"user"}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.Type != TypeUserMessage {
		t.Fatalf("type=%q, want user_message", env.Type)
	}
	if env.Content != "hello" {
		t.Fatalf("content=%q, want hello", env.Content)
	}
}

func TestDecodeEnvelope_RejectsInvalidJSON(t *testing.T) {
	_, err := DecodeEnvelope([]byte(`{not json`))
	if err == nil {
		t.Fatalf("expected error for invalid json")
	}
	var decodeErr *DecodeError
	if !errors.As(err, &decodeErr) {
		t.Fatalf("expected *DecodeError, got %T", err)
	}
	if decodeErr.Code != "bad_envelope" {
		t.Fatalf("code=%q, want bad_envelope", decodeErr.Code)
	}
}

func TestDecodeEnvelope_RejectsMissingType(t *testing.T) {
	_, err := DecodeEnvelope([]byte(`{"content":"x"}`))
	if err == nil {
		t.Fatalf("expected error for missing type")
	}
}

func TestEnvelope_EncodeRoundTrip(t *testing.T) {
	env := NewEnvelope(TypeTextChunk, "partial reply", SenderAgent)
	data, err := env.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	back, err := DecodeEnvelope(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if back.Type != env.Type || back.Content != env.Content || back.Sender != env.Sender {
		t.Fatalf("round trip mismatch: %+v vs %+v", back, env)
	}
	if back.Timestamp == "" {
		t.Fatalf("timestamp should be stamped")
	}
}
