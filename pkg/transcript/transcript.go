// Package transcript accumulates conversation turns for a session and writes
// the finished transcript to the call record.
package transcript

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// Roles recorded in transcript lines.
const (
	RoleUser  = "USER"
	RoleAgent = "AGENT"
)

// Persister stores the finished transcript for a call.
type Persister interface {
	UpdateCallTranscription(ctx context.Context, callID, transcription string) error
}

// Manager collects the turns of one session. Safe for concurrent use.
type Manager struct {
	mu    sync.Mutex
	turns []string

	// Now is the clock used for turn timestamps. Defaults to time.Now.
	Now func() time.Time
}

func NewManager() *Manager {
	return &Manager{Now: time.Now}
}

// Append records one turn as "[HH:MM:SS] ROLE: text".
func (m *Manager) Append(role, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	now := time.Now
	if m.Now != nil {
		now = m.Now
	}
	line := fmt.Sprintf("[%s] %s: %s", now().Format("15:04:05"), role, text)

	m.mu.Lock()
	m.turns = append(m.turns, line)
	m.mu.Unlock()
}

// Snapshot returns the transcript accumulated so far.
func (m *Manager) Snapshot() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return strings.Join(m.turns, "\n")
}

// Len reports the number of recorded turns.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.turns)
}

// Persist writes the transcript to the call record. An empty transcript is
// skipped.
func (m *Manager) Persist(ctx context.Context, p Persister, callID string) error {
	text := m.Snapshot()
	if text == "" {
		slog.Debug("transcript empty, skipping persistence", "call_id", callID)
		return nil
	}
	if err := p.UpdateCallTranscription(ctx, callID, text); err != nil {
		return fmt.Errorf("persist transcript for call %s: %w", callID, err)
	}
	return nil
}
