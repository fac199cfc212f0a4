package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres backs Store with a pgx connection pool.
type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(ctx context.Context, databaseURL string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

func (p *Postgres) Close() {
	p.pool.Close()
}

func (p *Postgres) CreateUser(ctx context.Context, username, password string) (User, error) {
	var u User
	err := p.pool.QueryRow(ctx,
		`INSERT INTO users (username, password) VALUES ($1, $2) RETURNING id, username, password`,
		username, password).Scan(&u.ID, &u.Username, &u.Password)
	if err != nil {
		return User{}, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}

func (p *Postgres) GetUserByUsername(ctx context.Context, username string) (User, error) {
	var u User
	err := p.pool.QueryRow(ctx,
		`SELECT id, username, password FROM users WHERE username = $1`,
		username).Scan(&u.ID, &u.Username, &u.Password)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (p *Postgres) CreateModel(ctx context.Context, m Model) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO models (model_id, model_name, client_name) VALUES ($1, $2, $3)`,
		m.ModelID, m.ModelName, m.ClientName)
	if err != nil {
		return fmt.Errorf("create model: %w", err)
	}
	return nil
}

func (p *Postgres) UpdateModel(ctx context.Context, m Model) error {
	tag, err := p.pool.Exec(ctx,
		`UPDATE models SET model_name = $2, client_name = $3 WHERE model_id = $1`,
		m.ModelID, m.ModelName, m.ClientName)
	if err != nil {
		return fmt.Errorf("update model: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) GetModel(ctx context.Context, modelID string) (Model, error) {
	var m Model
	err := p.pool.QueryRow(ctx,
		`SELECT model_id, model_name, client_name FROM models WHERE model_id = $1`,
		modelID).Scan(&m.ModelID, &m.ModelName, &m.ClientName)
	if errors.Is(err, pgx.ErrNoRows) {
		return Model{}, ErrNotFound
	}
	if err != nil {
		return Model{}, fmt.Errorf("get model: %w", err)
	}
	return m, nil
}

func (p *Postgres) ListModelsByClient(ctx context.Context, clientName string) ([]Model, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT model_id, model_name, client_name FROM models WHERE client_name = $1 ORDER BY model_id`,
		clientName)
	if err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}
	defer rows.Close()

	var out []Model
	for rows.Next() {
		var m Model
		if err := rows.Scan(&m.ModelID, &m.ModelName, &m.ClientName); err != nil {
			return nil, fmt.Errorf("scan model: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (p *Postgres) InsertCallStart(ctx context.Context, c Call) error {
	if c.CallStartedAt.IsZero() {
		c.CallStartedAt = time.Now().UTC()
	}
	_, err := p.pool.Exec(ctx,
		`INSERT INTO calls (call_id, model_id, user_id, name, call_from, call_to, call_type,
			call_started_at, call_status, call_metadata)
		 VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6, $7, $8, $9, $10)`,
		c.CallID, c.ModelID, c.UserID, c.Name, c.CallFrom, c.CallTo, c.CallType,
		c.CallStartedAt, c.CallStatus, c.CallMetadata)
	if err != nil {
		return fmt.Errorf("insert call start: %w", err)
	}
	return nil
}

func (p *Postgres) EndCall(ctx context.Context, callID, status string, endedAt time.Time) error {
	tag, err := p.pool.Exec(ctx,
		`UPDATE calls
		 SET call_status = $2,
		     call_ended_at = $3,
		     call_duration = EXTRACT(EPOCH FROM ($3 - call_started_at))
		 WHERE call_id = $1`,
		callID, status, endedAt)
	if err != nil {
		return fmt.Errorf("end call: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) UpdateCallTranscription(ctx context.Context, callID, transcription string) error {
	tag, err := p.pool.Exec(ctx,
		`UPDATE calls SET call_transcription = $2 WHERE call_id = $1`,
		callID, transcription)
	if err != nil {
		return fmt.Errorf("update transcription: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) UpdateCallPostProcessing(ctx context.Context, callID string, entities, quality map[string]any) error {
	tag, err := p.pool.Exec(ctx,
		`UPDATE calls SET call_entity = $2, call_conversation_quality = $3 WHERE call_id = $1`,
		callID, entities, quality)
	if err != nil {
		return fmt.Errorf("update call post-processing: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

const callColumns = `id, call_id, COALESCE(model_id, ''), COALESCE(user_id, 0), COALESCE(name, ''),
	COALESCE(call_from, ''), COALESCE(call_to, ''), COALESCE(call_type, ''), call_started_at,
	call_ended_at, call_duration, COALESCE(call_status, ''), call_metadata,
	COALESCE(call_summary, ''), COALESCE(call_transcription, ''), COALESCE(call_recording_url, ''),
	call_conversation_quality, call_entity`

func scanCall(row pgx.Row) (Call, error) {
	var c Call
	err := row.Scan(&c.ID, &c.CallID, &c.ModelID, &c.UserID, &c.Name,
		&c.CallFrom, &c.CallTo, &c.CallType, &c.CallStartedAt,
		&c.CallEndedAt, &c.CallDuration, &c.CallStatus, &c.CallMetadata,
		&c.CallSummary, &c.CallTranscription, &c.CallRecordingURL,
		&c.CallQuality, &c.CallEntities)
	return c, err
}

func (p *Postgres) GetCall(ctx context.Context, callID string) (Call, error) {
	row := p.pool.QueryRow(ctx,
		`SELECT `+callColumns+` FROM calls WHERE call_id = $1`, callID)
	c, err := scanCall(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Call{}, ErrNotFound
	}
	if err != nil {
		return Call{}, fmt.Errorf("get call: %w", err)
	}
	return c, nil
}

func (p *Postgres) ListCallsByUser(ctx context.Context, userID int64, clientName string) ([]Call, error) {
	query := `SELECT ` + callColumns + ` FROM calls WHERE user_id = $1`
	args := []any{userID}
	if clientName != "" {
		query = `SELECT ` + callColumns + ` FROM calls
			WHERE user_id = $1 AND model_id IN (SELECT model_id FROM models WHERE client_name = $2)`
		args = append(args, clientName)
	}
	query += ` ORDER BY call_started_at DESC`

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list calls: %w", err)
	}
	defer rows.Close()

	var out []Call
	for rows.Next() {
		c, err := scanCall(rows)
		if err != nil {
			return nil, fmt.Errorf("scan call: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (p *Postgres) CreateChatSession(ctx context.Context, s ChatSession) error {
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
	_, err := p.pool.Exec(ctx,
		`INSERT INTO chat_sessions (session_id, user_id, room_id, participant_id, agent_id,
			agent_name, customer_name, status, is_active, started_at, last_activity_at, session_metadata)
		 VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7, $8, $9, $10, $11, $12)`,
		s.SessionID, s.UserID, s.RoomID, s.ParticipantID, s.AgentID,
		s.AgentName, s.CustomerName, s.Status, s.Status == SessionStatusActive,
		s.StartedAt, s.LastActivityAt, s.Metadata)
	if err != nil {
		return fmt.Errorf("create chat session: %w", err)
	}
	return nil
}

func (p *Postgres) EndChatSession(ctx context.Context, sessionID, status string, endedAt time.Time) error {
	tag, err := p.pool.Exec(ctx,
		`UPDATE chat_sessions SET status = $2, is_active = FALSE, ended_at = $3 WHERE session_id = $1`,
		sessionID, status, endedAt)
	if err != nil {
		return fmt.Errorf("end chat session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) TouchChatSession(ctx context.Context, sessionID string, at time.Time) error {
	tag, err := p.pool.Exec(ctx,
		`UPDATE chat_sessions SET last_activity_at = $2 WHERE session_id = $1`,
		sessionID, at)
	if err != nil {
		return fmt.Errorf("touch chat session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

const chatSessionColumns = `id, session_id, COALESCE(user_id, 0), room_id, participant_id,
	COALESCE(agent_id, ''), agent_name, customer_name, status, is_active,
	started_at, ended_at, last_activity_at, session_metadata`

func scanChatSession(row pgx.Row) (ChatSession, error) {
	var s ChatSession
	err := row.Scan(&s.ID, &s.SessionID, &s.UserID, &s.RoomID, &s.ParticipantID,
		&s.AgentID, &s.AgentName, &s.CustomerName, &s.Status, &s.IsActive,
		&s.StartedAt, &s.EndedAt, &s.LastActivityAt, &s.Metadata)
	return s, err
}

func (p *Postgres) GetChatSession(ctx context.Context, sessionID string) (ChatSession, error) {
	row := p.pool.QueryRow(ctx,
		`SELECT `+chatSessionColumns+` FROM chat_sessions WHERE session_id = $1`, sessionID)
	s, err := scanChatSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return ChatSession{}, ErrNotFound
	}
	if err != nil {
		return ChatSession{}, fmt.Errorf("get chat session: %w", err)
	}
	return s, nil
}

func (p *Postgres) ListChatSessionsByUser(ctx context.Context, userID int64) ([]ChatSession, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT `+chatSessionColumns+` FROM chat_sessions WHERE user_id = $1 ORDER BY started_at DESC`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("list chat sessions: %w", err)
	}
	defer rows.Close()

	var out []ChatSession
	for rows.Next() {
		s, err := scanChatSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan chat session: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (p *Postgres) InsertChatMessage(ctx context.Context, m ChatMessage) error {
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now().UTC()
	}
	_, err := p.pool.Exec(ctx,
		`INSERT INTO chat_messages (session_id, message_id, message_type, content, sender, timestamp, message_metadata)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		m.SessionID, m.MessageID, m.MessageType, m.Content, m.Sender, m.Timestamp, m.Metadata)
	if err != nil {
		return fmt.Errorf("insert chat message: %w", err)
	}
	return nil
}

func (p *Postgres) ListChatMessages(ctx context.Context, sessionID string, limit int) ([]ChatMessage, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := p.pool.Query(ctx,
		`SELECT id, session_id, message_id, message_type, content, sender, timestamp, message_metadata
		 FROM chat_messages WHERE session_id = $1 ORDER BY timestamp ASC LIMIT $2`,
		sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("list chat messages: %w", err)
	}
	defer rows.Close()

	var out []ChatMessage
	for rows.Next() {
		var m ChatMessage
		if err := rows.Scan(&m.ID, &m.SessionID, &m.MessageID, &m.MessageType,
			&m.Content, &m.Sender, &m.Timestamp, &m.Metadata); err != nil {
			return nil, fmt.Errorf("scan chat message: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (p *Postgres) InsertFeedback(ctx context.Context, f Feedback) error {
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now().UTC()
	}
	_, err := p.pool.Exec(ctx,
		`INSERT INTO feedback (user_id, feedback_text, felt_neutral, response_speed, interruptions, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		f.UserID, f.FeedbackText, f.FeltNeutral, f.ResponseSpeed, f.Interruptions, f.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert feedback: %w", err)
	}
	return nil
}

func (p *Postgres) Summary(ctx context.Context, userID int64, since time.Time) (DashboardSummary, error) {
	var out DashboardSummary
	err := p.pool.QueryRow(ctx,
		`SELECT COUNT(*), COALESCE(AVG(call_duration), 0)
		 FROM calls WHERE user_id = $1 AND call_started_at >= $2`,
		userID, since).Scan(&out.TotalCalls, &out.AvgCallDuration)
	if err != nil {
		return DashboardSummary{}, fmt.Errorf("summarize calls: %w", err)
	}
	err = p.pool.QueryRow(ctx,
		`SELECT COUNT(*), COUNT(*) FILTER (WHERE is_active)
		 FROM chat_sessions WHERE user_id = $1 AND started_at >= $2`,
		userID, since).Scan(&out.TotalChats, &out.ActiveChats)
	if err != nil {
		return DashboardSummary{}, fmt.Errorf("summarize chats: %w", err)
	}
	return out, nil
}
