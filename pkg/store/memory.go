package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Memory is an in-process Store for console mode and tests.
type Memory struct {
	mu         sync.Mutex
	nextID     int64
	users      map[string]User
	models     map[string]Model
	calls      map[string]Call
	chats      map[string]ChatSession
	messages   map[string][]ChatMessage
	messageIDs map[string]struct{}
	feedback   []Feedback
}

func NewMemory() *Memory {
	return &Memory{
		users:      make(map[string]User),
		models:     make(map[string]Model),
		calls:      make(map[string]Call),
		chats:      make(map[string]ChatSession),
		messages:   make(map[string][]ChatMessage),
		messageIDs: make(map[string]struct{}),
	}
}

func (m *Memory) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *Memory) CreateUser(ctx context.Context, username, password string) (User, error) {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.users[username]; exists {
		return User{}, fmt.Errorf("username %q already exists", username)
	}
	u := User{ID: m.id(), Username: username, Password: password}
	m.users[username] = u
	return u, nil
}

func (m *Memory) GetUserByUsername(ctx context.Context, username string) (User, error) {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[username]
	if !ok {
		return User{}, ErrNotFound
	}
	return u, nil
}

func (m *Memory) CreateModel(ctx context.Context, mdl Model) error {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.models[mdl.ModelID]; exists {
		return fmt.Errorf("model %q already exists", mdl.ModelID)
	}
	m.models[mdl.ModelID] = mdl
	return nil
}

func (m *Memory) UpdateModel(ctx context.Context, mdl Model) error {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.models[mdl.ModelID]; !exists {
		return ErrNotFound
	}
	m.models[mdl.ModelID] = mdl
	return nil
}

func (m *Memory) GetModel(ctx context.Context, modelID string) (Model, error) {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	mdl, ok := m.models[modelID]
	if !ok {
		return Model{}, ErrNotFound
	}
	return mdl, nil
}

func (m *Memory) ListModelsByClient(ctx context.Context, clientName string) ([]Model, error) {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Model
	for _, mdl := range m.models {
		if mdl.ClientName == clientName {
			out = append(out, mdl)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ModelID < out[j].ModelID })
	return out, nil
}

func (m *Memory) InsertCallStart(ctx context.Context, c Call) error {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.calls[c.CallID]; exists {
		return fmt.Errorf("call %q already exists", c.CallID)
	}
	c.ID = m.id()
	if c.CallStartedAt.IsZero() {
		c.CallStartedAt = time.Now().UTC()
	}
	m.calls[c.CallID] = c
	return nil
}

func (m *Memory) EndCall(ctx context.Context, callID, status string, endedAt time.Time) error {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.calls[callID]
	if !ok {
		return ErrNotFound
	}
	c.CallStatus = status
	c.CallEndedAt = &endedAt
	duration := endedAt.Sub(c.CallStartedAt).Seconds()
	c.CallDuration = &duration
	m.calls[callID] = c
	return nil
}

func (m *Memory) UpdateCallTranscription(ctx context.Context, callID, transcription string) error {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.calls[callID]
	if !ok {
		return ErrNotFound
	}
	c.CallTranscription = transcription
	m.calls[callID] = c
	return nil
}

func (m *Memory) UpdateCallPostProcessing(ctx context.Context, callID string, entities, quality map[string]any) error {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.calls[callID]
	if !ok {
		return ErrNotFound
	}
	c.CallEntities = entities
	c.CallQuality = quality
	m.calls[callID] = c
	return nil
}

func (m *Memory) GetCall(ctx context.Context, callID string) (Call, error) {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.calls[callID]
	if !ok {
		return Call{}, ErrNotFound
	}
	return c, nil
}

func (m *Memory) ListCallsByUser(ctx context.Context, userID int64, clientName string) ([]Call, error) {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Call
	for _, c := range m.calls {
		if c.UserID != userID {
			continue
		}
		if clientName != "" {
			mdl, ok := m.models[c.ModelID]
			if !ok || mdl.ClientName != clientName {
				continue
			}
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CallStartedAt.After(out[j].CallStartedAt) })
	return out, nil
}

func (m *Memory) CreateChatSession(ctx context.Context, s ChatSession) error {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.chats[s.SessionID]; exists {
		return fmt.Errorf("chat session %q already exists", s.SessionID)
	}
	s.ID = m.id()
	now := time.Now().UTC()
	if s.StartedAt.IsZero() {
		s.StartedAt = now
	}
	if s.LastActivityAt.IsZero() {
		s.LastActivityAt = s.StartedAt
	}
	if s.Status == "" {
		s.Status = SessionStatusActive
	}
	s.IsActive = s.Status == SessionStatusActive
	m.chats[s.SessionID] = s
	return nil
}

func (m *Memory) EndChatSession(ctx context.Context, sessionID, status string, endedAt time.Time) error {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.chats[sessionID]
	if !ok {
		return ErrNotFound
	}
	s.Status = status
	s.IsActive = false
	s.EndedAt = &endedAt
	m.chats[sessionID] = s
	return nil
}

func (m *Memory) TouchChatSession(ctx context.Context, sessionID string, at time.Time) error {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.chats[sessionID]
	if !ok {
		return ErrNotFound
	}
	s.LastActivityAt = at
	m.chats[sessionID] = s
	return nil
}

func (m *Memory) GetChatSession(ctx context.Context, sessionID string) (ChatSession, error) {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.chats[sessionID]
	if !ok {
		return ChatSession{}, ErrNotFound
	}
	return s, nil
}

func (m *Memory) ListChatSessionsByUser(ctx context.Context, userID int64) ([]ChatSession, error) {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []ChatSession
	for _, s := range m.chats {
		if s.UserID == userID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return out, nil
}

func (m *Memory) InsertChatMessage(ctx context.Context, msg ChatMessage) error {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.chats[msg.SessionID]; !exists {
		return fmt.Errorf("chat session %q does not exist", msg.SessionID)
	}
	if _, dup := m.messageIDs[msg.MessageID]; dup {
		return fmt.Errorf("message %q already exists", msg.MessageID)
	}
	msg.ID = m.id()
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	m.messageIDs[msg.MessageID] = struct{}{}
	m.messages[msg.SessionID] = append(m.messages[msg.SessionID], msg)
	return nil
}

func (m *Memory) ListChatMessages(ctx context.Context, sessionID string, limit int) ([]ChatMessage, error) {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	msgs := m.messages[sessionID]
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[:limit]
	}
	return append([]ChatMessage{}, msgs...), nil
}

func (m *Memory) InsertFeedback(ctx context.Context, f Feedback) error {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	f.ID = m.id()
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now().UTC()
	}
	m.feedback = append(m.feedback, f)
	return nil
}

func (m *Memory) Summary(ctx context.Context, userID int64, since time.Time) (DashboardSummary, error) {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	var out DashboardSummary
	var durationSum float64
	var durationCount int64
	for _, c := range m.calls {
		if c.UserID != userID || c.CallStartedAt.Before(since) {
			continue
		}
		out.TotalCalls++
		if c.CallDuration != nil {
			durationSum += *c.CallDuration
			durationCount++
		}
	}
	for _, s := range m.chats {
		if s.UserID != userID || s.StartedAt.Before(since) {
			continue
		}
		out.TotalChats++
		if s.IsActive {
			out.ActiveChats++
		}
	}
	if durationCount > 0 {
		out.AvgCallDuration = durationSum / float64(durationCount)
	}
	return out, nil
}
