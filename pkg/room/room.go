// Package room abstracts the real-time media/data transport the agents talk
// through. A Room carries structured data packets on named topics and surfaces
// participant lifecycle events; implementations wrap a concrete transport
// (websocket, or an in-process pipe for console mode and tests).
package room

import "context"

// TopicChat is the data topic all conversational envelopes travel on.
const TopicChat = "chat_message"

// Participant identifies a remote party in a room.
type Participant struct {
	Identity         string
	DisconnectReason string
}

// DataPacket is an inbound payload received from a participant.
type DataPacket struct {
	Payload             []byte
	Topic               string
	ParticipantIdentity string
}

// Room is the transport surface the agent layer depends on. Event handler
// registration is not synchronized with delivery: register everything before
// the room starts pumping events.
type Room interface {
	Name() string

	// PublishData sends a payload on the given topic. Implementations must
	// return an error (not panic) when the transport is gone.
	PublishData(ctx context.Context, payload []byte, topic string) error

	// Disconnect force-closes the transport. Idempotent.
	Disconnect(ctx context.Context) error

	// SetLocalAttributes stamps key/value attributes on the local participant.
	SetLocalAttributes(ctx context.Context, attrs map[string]string) error

	OnParticipantConnected(fn func(Participant))
	OnParticipantDisconnected(fn func(Participant))
	OnDataReceived(fn func(DataPacket))
	OnDisconnected(fn func())
}
