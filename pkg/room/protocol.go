package room

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Envelope message types carried over the chat data topic.
const (
	TypeUserMessage  = "user_message"
	TypeText         = "text"
	TypeTextChunk    = "text_chunk"
	TypeTextComplete = "text_complete"
	TypeToolStart    = "tool_start"
	TypeToolSuccess  = "tool_success"
	TypeToolError    = "tool_error"
	TypeSystem       = "system"
)

// Envelope senders.
const (
	SenderUser   = "user"
	SenderAgent  = "agent"
	SenderSystem = "system"
)

// DecodeError describes a malformed inbound envelope.
type DecodeError struct {
	Code    string
	Message string
	Param   string
}

func (e *DecodeError) Error() string {
	if e == nil {
		return ""
	}
	if strings.TrimSpace(e.Param) == "" {
		return e.Message
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Param)
}

func badEnvelope(message, param string) *DecodeError {
	return &DecodeError{Code: "bad_envelope", Message: message, Param: param}
}

// Envelope is the JSON payload exchanged on the chat data topic.
type Envelope struct {
	Type      string `json:"type"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
	Sender    string `json:"sender"`
}

// NewEnvelope builds an outbound envelope stamped with the current time.
func NewEnvelope(msgType, content, sender string) Envelope {
	return Envelope{
		Type:      msgType,
		Content:   content,
		Timestamp: time.Now().Format(time.RFC3339),
		Sender:    sender,
	}
}

func (e Envelope) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// DecodeEnvelope parses an inbound data payload. Unknown types decode fine;
// callers decide which types they process.
func DecodeEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, badEnvelope(fmt.Sprintf("invalid envelope json: %v", err), "")
	}
	if strings.TrimSpace(env.Type) == "" {
		return Envelope{}, badEnvelope("envelope type is required", "type")
	}
	return env, nil
}
