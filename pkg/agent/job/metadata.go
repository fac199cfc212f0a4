// Package job routes incoming jobs to the right agent variant: it classifies
// opaque job metadata, builds the session, wires termination triggers, and
// owns the shutdown path.
package job

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/vaani-ai/vaani-live/pkg/agent"
)

// Default agent display names per classified direction.
const (
	OutboundAgentName = "Outbound Service Agent"
	InboundAgentName  = "Inbound Service Agent"
	ChatAgentName     = "Chat Service Agent"
)

// Directions a classified job can take.
const (
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"
)

// ParseError reports job metadata that is not valid JSON.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid JSON in job metadata: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// MissingFieldError lists required metadata fields that are absent.
type MissingFieldError struct {
	Fields []string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("missing required fields in metadata: %s", strings.Join(e.Fields, ", "))
}

// Classification is the routing decision derived from job metadata.
type Classification struct {
	Modality  string
	Direction string
	AgentName string
	Contact   agent.ContactInfo
	SessionID string
	Voice     string
}

type rawMetadata struct {
	Modality  string `json:"modality"`
	CallType  string `json:"call_type"`
	Direction string `json:"direction"`
	Phone     string `json:"phone"`
	Name      string `json:"name"`
	Voice     string `json:"voice"`
	SessionID string `json:"session_id"`
	AgentName string `json:"agent_name"`
}

// Classify determines modality and call direction from raw job metadata.
// Empty metadata is a legacy inbound voice call with an unknown contact.
// Outbound calls require a phone field.
func Classify(raw string) (Classification, error) {
	if strings.TrimSpace(raw) == "" {
		return Classification{
			Modality:  agent.ModalityVoice,
			Direction: DirectionInbound,
			AgentName: InboundAgentName,
			Contact:   agent.ContactInfo{Phone: "unknown"},
		}, nil
	}

	var md rawMetadata
	if err := json.Unmarshal([]byte(raw), &md); err != nil {
		return Classification{}, &ParseError{Err: err}
	}

	contact := agent.ContactInfo{Name: md.Name, Phone: md.Phone}

	switch {
	case md.Modality == agent.ModalityChat:
		if contact.Phone == "" {
			contact.Phone = "chat_session"
		}
		name := md.AgentName
		if name == "" {
			name = ChatAgentName
		}
		return Classification{
			Modality:  agent.ModalityChat,
			AgentName: name,
			Contact:   contact,
			SessionID: md.SessionID,
			Voice:     md.Voice,
		}, nil

	case md.CallType == DirectionInbound || md.Direction == DirectionInbound:
		if contact.Phone == "" {
			contact.Phone = "unknown"
		}
		return Classification{
			Modality:  agent.ModalityVoice,
			Direction: DirectionInbound,
			AgentName: InboundAgentName,
			Contact:   contact,
			Voice:     md.Voice,
		}, nil

	default:
		if md.Phone == "" {
			return Classification{}, &MissingFieldError{Fields: []string{"phone"}}
		}
		return Classification{
			Modality:  agent.ModalityVoice,
			Direction: DirectionOutbound,
			AgentName: OutboundAgentName,
			Contact:   contact,
			Voice:     md.Voice,
		}, nil
	}
}
