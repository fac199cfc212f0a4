package room

import (
	"context"
	"fmt"
	"sync"
)

// MemoryRoom is an in-process Room used in console mode and tests. Published
// payloads are captured; inbound packets and lifecycle events are injected by
// the caller.
type MemoryRoom struct {
	name string

	mu             sync.Mutex
	published      []Published
	attrs          map[string]string
	onParticipant  []func(Participant)
	onPartDisc     []func(Participant)
	onData         []func(DataPacket)
	onDisconnected []func()
	disconnected   bool
}

// Published is one captured outbound payload.
type Published struct {
	Payload []byte
	Topic   string
}

func NewMemoryRoom(name string) *MemoryRoom {
	return &MemoryRoom{name: name, attrs: make(map[string]string)}
}

func (r *MemoryRoom) Name() string { return r.name }

func (r *MemoryRoom) PublishData(ctx context.Context, payload []byte, topic string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.disconnected {
		return fmt.Errorf("room %q is closed", r.name)
	}
	r.published = append(r.published, Published{Payload: append([]byte{}, payload...), Topic: topic})
	return nil
}

func (r *MemoryRoom) Disconnect(ctx context.Context) error {
	_ = ctx
	r.mu.Lock()
	if r.disconnected {
		r.mu.Unlock()
		return nil
	}
	r.disconnected = true
	handlers := append([]func(){}, r.onDisconnected...)
	r.mu.Unlock()

	for _, fn := range handlers {
		fn()
	}
	return nil
}

func (r *MemoryRoom) SetLocalAttributes(ctx context.Context, attrs map[string]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for k, v := range attrs {
		r.attrs[k] = v
	}
	return nil
}

func (r *MemoryRoom) OnParticipantConnected(fn func(Participant)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onParticipant = append(r.onParticipant, fn)
}

func (r *MemoryRoom) OnParticipantDisconnected(fn func(Participant)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onPartDisc = append(r.onPartDisc, fn)
}

func (r *MemoryRoom) OnDataReceived(fn func(DataPacket)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onData = append(r.onData, fn)
}

func (r *MemoryRoom) OnDisconnected(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onDisconnected = append(r.onDisconnected, fn)
}

// InjectParticipant fires participant-connected handlers.
func (r *MemoryRoom) InjectParticipant(p Participant) {
	r.mu.Lock()
	handlers := append([]func(Participant){}, r.onParticipant...)
	r.mu.Unlock()
	for _, fn := range handlers {
		fn(p)
	}
}

// InjectParticipantDisconnect fires participant-disconnected handlers.
func (r *MemoryRoom) InjectParticipantDisconnect(p Participant) {
	r.mu.Lock()
	handlers := append([]func(Participant){}, r.onPartDisc...)
	r.mu.Unlock()
	for _, fn := range handlers {
		fn(p)
	}
}

// InjectData fires data-received handlers with the given payload.
func (r *MemoryRoom) InjectData(payload []byte, identity string) {
	r.mu.Lock()
	handlers := append([]func(DataPacket){}, r.onData...)
	r.mu.Unlock()
	pkt := DataPacket{Payload: payload, Topic: TopicChat, ParticipantIdentity: identity}
	for _, fn := range handlers {
		fn(pkt)
	}
}

// Published returns captured outbound payloads.
func (r *MemoryRoom) Sent() []Published {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Published{}, r.published...)
}

// Attributes returns a copy of the local attributes.
func (r *MemoryRoom) Attributes() map[string]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]string, len(r.attrs))
	for k, v := range r.attrs {
		out[k] = v
	}
	return out
}

// Disconnected reports whether the room was force-closed.
func (r *MemoryRoom) Disconnected() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.disconnected
}
