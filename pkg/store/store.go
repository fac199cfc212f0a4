package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a lookup by id matches nothing.
var ErrNotFound = errors.New("store: not found")

// Store is the persistence contract the agent core and the API depend on.
// Implementations expose insert / update-by-id / query-by-id operations only.
type Store interface {
	// Users.
	CreateUser(ctx context.Context, username, password string) (User, error)
	GetUserByUsername(ctx context.Context, username string) (User, error)

	// Models.
	CreateModel(ctx context.Context, m Model) error
	UpdateModel(ctx context.Context, m Model) error
	GetModel(ctx context.Context, modelID string) (Model, error)
	ListModelsByClient(ctx context.Context, clientName string) ([]Model, error)

	// Calls.
	InsertCallStart(ctx context.Context, c Call) error
	EndCall(ctx context.Context, callID, status string, endedAt time.Time) error
	UpdateCallTranscription(ctx context.Context, callID, transcription string) error
	UpdateCallPostProcessing(ctx context.Context, callID string, entities, quality map[string]any) error
	GetCall(ctx context.Context, callID string) (Call, error)
	ListCallsByUser(ctx context.Context, userID int64, clientName string) ([]Call, error)

	// Chat sessions.
	CreateChatSession(ctx context.Context, s ChatSession) error
	EndChatSession(ctx context.Context, sessionID, status string, endedAt time.Time) error
	TouchChatSession(ctx context.Context, sessionID string, at time.Time) error
	GetChatSession(ctx context.Context, sessionID string) (ChatSession, error)
	ListChatSessionsByUser(ctx context.Context, userID int64) ([]ChatSession, error)

	// Chat messages.
	InsertChatMessage(ctx context.Context, m ChatMessage) error
	ListChatMessages(ctx context.Context, sessionID string, limit int) ([]ChatMessage, error)

	// Feedback.
	InsertFeedback(ctx context.Context, f Feedback) error

	// Dashboard aggregates.
	Summary(ctx context.Context, userID int64, since time.Time) (DashboardSummary, error)
}
