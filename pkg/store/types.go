// Package store persists call, chat, and account records. The agent core only
// depends on the narrow Store interface; implementations back it with Postgres
// or process memory.
package store

import "time"

// Chat session status values.
const (
	SessionStatusActive  = "active"
	SessionStatusEnded   = "ended"
	SessionStatusTimeout = "timeout"
)

type User struct {
	ID       int64
	Username string
	Password string
}

type Model struct {
	ModelID    string
	ModelName  string
	ClientName string
}

type Call struct {
	ID            int64
	CallID        string
	ModelID       string
	UserID        int64
	Name          string
	CallFrom      string
	CallTo        string
	CallType      string
	CallStartedAt time.Time
	CallEndedAt   *time.Time
	CallDuration  *float64
	CallStatus    string
	CallMetadata  map[string]any

	CallSummary       string
	CallTranscription string
	CallRecordingURL  string
	CallQuality       map[string]any
	CallEntities      map[string]any
}

type ChatSession struct {
	ID             int64
	SessionID      string
	UserID         int64
	RoomID         string
	ParticipantID  string
	AgentID        string
	AgentName      string
	CustomerName   string
	Status         string
	IsActive       bool
	StartedAt      time.Time
	EndedAt        *time.Time
	LastActivityAt time.Time
	Metadata       map[string]any
}

type ChatMessage struct {
	ID          int64
	SessionID   string
	MessageID   string
	MessageType string
	Content     string
	Sender      string
	Timestamp   time.Time
	Metadata    map[string]any
}

type Feedback struct {
	ID            int64
	UserID        int64
	FeedbackText  string
	FeltNeutral   int
	ResponseSpeed int
	Interruptions int
	CreatedAt     time.Time
}

// DashboardSummary aggregates activity for the dashboard endpoint.
type DashboardSummary struct {
	TotalCalls      int64
	TotalChats      int64
	ActiveChats     int64
	AvgCallDuration float64
}
