// Package agent implements the conversational core shared by the voice and
// chat variants: prompt preparation, the tool contract, and idempotent
// session-end recording.
package agent

import (
	"sync"
	"sync/atomic"
	"time"
)

// Terminal reasons recorded when a session ends.
const (
	EndReasonCallEnded        = "Call ended"
	EndReasonChatEnded        = "Chat ended"
	EndReasonAnsweringMachine = "Answering machine detected"
	EndReasonRoomDisconnected = "Room disconnected"
	EndReasonShutdown         = "System shutdown"
	EndReasonInactivity       = "Session timed out due to inactivity"
)

// SessionState tracks one call or chat lifetime. Every termination path
// funnels through MarkEndRecorded, which flips exactly once.
type SessionState struct {
	roomName  string
	startTime time.Time

	mu          sync.Mutex
	participant string

	callStarted atomic.Bool
	endRecorded atomic.Bool
}

func NewSessionState(roomName string) *SessionState {
	return &SessionState{
		roomName:  roomName,
		startTime: time.Now(),
	}
}

func (s *SessionState) RoomName() string     { return s.roomName }
func (s *SessionState) StartTime() time.Time { return s.startTime }

func (s *SessionState) SetParticipant(identity string) {
	s.mu.Lock()
	s.participant = identity
	s.mu.Unlock()
}

func (s *SessionState) Participant() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.participant
}

// MarkStarted records that media or session setup completed. Never reset.
func (s *SessionState) MarkStarted() {
	s.callStarted.Store(true)
}

func (s *SessionState) Started() bool {
	return s.callStarted.Load()
}

// MarkEndRecorded flips the end-recorded guard and reports whether this
// caller won the transition. Termination triggers fire from independent
// goroutines, so the flag is a compare-and-swap.
func (s *SessionState) MarkEndRecorded() bool {
	return s.endRecorded.CompareAndSwap(false, true)
}

func (s *SessionState) EndRecorded() bool {
	return s.endRecorded.Load()
}
