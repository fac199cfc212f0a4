package agent

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vaani-ai/vaani-live/pkg/room"
	"github.com/vaani-ai/vaani-live/pkg/store"
	"github.com/vaani-ai/vaani-live/pkg/transcript"
)

// ChatAgent binds the shared core to a data-channel room. Unlike voice, the
// transport is injected after construction because chat rooms are bound once
// the conversational session is already running.
type ChatAgent struct {
	*Core

	mu          sync.Mutex
	room        room.Room
	sessionID   string
	participant string

	messages store.Store

	// OnActivity is invoked with the session id for every inbound user
	// message. Wired to the timeout tracker and the persisted
	// last_activity_at bump.
	OnActivity func(sessionID string)

	// ChunkMaxChars and ChunkDelay shape reply streaming.
	ChunkMaxChars int
	ChunkDelay    time.Duration
}

func NewChatAgent(agentName string, contact ContactInfo, state *SessionState, promptPath string, messages store.Store, deps Dependencies) (*ChatAgent, error) {
	core, err := NewCore(agentName, contact, state, promptPath, ModalityChat, deps)
	if err != nil {
		return nil, err
	}
	a := &ChatAgent{
		Core:          core,
		messages:      messages,
		ChunkMaxChars: DefaultChunkMaxChars,
		ChunkDelay:    100 * time.Millisecond,
	}
	core.setSender(a)
	return a, nil
}

func (a *ChatAgent) SetRoom(r room.Room) {
	a.mu.Lock()
	a.room = r
	a.mu.Unlock()
}

func (a *ChatAgent) SetParticipant(identity string) {
	a.mu.Lock()
	a.participant = identity
	a.mu.Unlock()
	a.State().SetParticipant(identity)
}

func (a *ChatAgent) SessionID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sessionID
}

// RegisterSession creates the persisted chat-session record and activates
// message persistence under its id.
func (a *ChatAgent) RegisterSession(ctx context.Context, sessionID string, userID int64) error {
	if a.messages == nil {
		return errors.New("no store configured for chat session registration")
	}
	err := a.messages.CreateChatSession(ctx, store.ChatSession{
		SessionID:     sessionID,
		UserID:        userID,
		RoomID:        a.State().RoomName(),
		ParticipantID: a.State().Participant(),
		AgentName:     a.Name(),
		CustomerName:  a.Contact().Name,
	})
	if err != nil {
		return err
	}
	a.mu.Lock()
	a.sessionID = sessionID
	a.mu.Unlock()
	a.State().MarkStarted()
	return nil
}

// SendMessage publishes an envelope on the chat topic and, when a session is
// registered, persists it. Transport absence is a logged no-op.
func (a *ChatAgent) SendMessage(ctx context.Context, content, messageType string) {
	a.mu.Lock()
	r := a.room
	sessionID := a.sessionID
	a.mu.Unlock()

	if r == nil {
		a.deps.Logger.Warn("cannot send message: room not available", "type", messageType)
		return
	}

	env := room.NewEnvelope(messageType, content, room.SenderAgent)
	payload, err := env.Encode()
	if err != nil {
		a.deps.Logger.Error("failed to encode message", "error", err)
		return
	}
	if err := r.PublishData(ctx, payload, room.TopicChat); err != nil {
		a.deps.Logger.Warn("failed to send message", "type", messageType, "error", err)
		return
	}

	if sessionID != "" && a.messages != nil && messageType != room.TypeTextChunk && messageType != room.TypeTextComplete {
		a.persistMessage(ctx, sessionID, messageType, content, room.SenderAgent)
	}
}

func (a *ChatAgent) persistMessage(ctx context.Context, sessionID, messageType, content, sender string) {
	err := a.messages.InsertChatMessage(ctx, store.ChatMessage{
		SessionID:   sessionID,
		MessageID:   uuid.NewString(),
		MessageType: messageType,
		Content:     content,
		Sender:      sender,
		Timestamp:   a.deps.Now(),
	})
	if err != nil {
		a.deps.Logger.Error("failed to persist chat message",
			"session_id", sessionID, "type", messageType, "error", err)
	}
}

// OnEnter sends the welcome line and stamps the room attribute.
func (a *ChatAgent) OnEnter(ctx context.Context) {
	a.SendMessage(ctx, welcomeMessage, room.TypeText)

	a.mu.Lock()
	r := a.room
	a.mu.Unlock()
	if r != nil {
		if err := r.SetLocalAttributes(ctx, map[string]string{"agent": a.Name()}); err != nil {
			a.deps.Logger.Warn("failed to set agent attribute", "error", err)
		}
	}
}

// OnDataReceived decodes an inbound packet. Only user_message envelopes are
// processed; everything else is logged and dropped.
func (a *ChatAgent) OnDataReceived(ctx context.Context, pkt room.DataPacket) {
	env, err := room.DecodeEnvelope(pkt.Payload)
	if err != nil {
		a.deps.Logger.Error("error processing data packet", "error", err)
		return
	}
	if env.Type != room.TypeUserMessage {
		a.deps.Logger.Debug("ignoring envelope", "type", env.Type)
		return
	}

	a.mu.Lock()
	sessionID := a.sessionID
	a.mu.Unlock()

	if a.OnActivity != nil && sessionID != "" {
		a.OnActivity(sessionID)
	}
	if sessionID != "" && a.messages != nil {
		a.persistMessage(ctx, sessionID, room.TypeUserMessage, env.Content, room.SenderUser)
	}
	a.HandleUserMessage(ctx, env.Content)
}

// HandleUserMessage appends the turn to the transcript, runs the LLM with the
// conversation history as context, and streams the reply.
func (a *ChatAgent) HandleUserMessage(ctx context.Context, message string) {
	a.deps.Logger.Info("processing user message", "chars", len(message))
	a.deps.Transcript.Append(transcript.RoleUser, message)

	if a.deps.Runner == nil {
		a.deps.Logger.Error("no prompt runner configured")
		a.SendMessage(ctx, "I'm sorry, I encountered an error. Please try again.", room.TypeText)
		return
	}

	history := a.deps.Transcript.Snapshot()
	prompt := a.Instructions() + "\n\n" + history + "\nUser: " + message + "\nAssistant:"

	response, err := a.deps.Runner.Run(ctx, prompt)
	if err != nil {
		a.deps.Logger.Error("error handling user message", "error", err)
		a.SendMessage(ctx, "I'm sorry, I encountered an error. Please try again.", room.TypeText)
		return
	}

	a.deps.Transcript.Append(transcript.RoleAgent, response)
	a.StreamResponse(ctx, response)
}

// StreamResponse sends the reply as sanitized text_chunk envelopes with a
// small inter-chunk delay, then an empty text_complete marker.
func (a *ChatAgent) StreamResponse(ctx context.Context, text string) {
	if text == "" {
		return
	}
	cleaned := SanitizeForSpeech(text)
	for _, chunk := range SplitChunks(cleaned, a.ChunkMaxChars) {
		a.SendMessage(ctx, chunk, room.TypeTextChunk)
		a.deps.Sleep(ctx, a.ChunkDelay)
	}
	a.SendMessage(ctx, "", room.TypeTextComplete)

	a.mu.Lock()
	sessionID := a.sessionID
	a.mu.Unlock()
	if sessionID != "" && a.messages != nil {
		a.persistMessage(ctx, sessionID, room.TypeText, cleaned, room.SenderAgent)
	}
}

// EndSession records the chat end, says goodbye, waits briefly for delivery,
// and disconnects the room.
func (a *ChatAgent) EndSession(ctx context.Context) string {
	a.mu.Lock()
	participant := a.participant
	r := a.room
	a.mu.Unlock()

	a.deps.Logger.Info("chat agent initiated session end", "participant", participant)

	a.RecordSessionEnd(ctx, EndReasonChatEnded)

	a.SendMessage(ctx, goodbyeMessage, room.TypeText)
	a.deps.Sleep(ctx, time.Second)

	if r != nil {
		if err := r.Disconnect(ctx); err != nil {
			a.deps.Logger.Warn("room disconnect failed", "error", err)
		}
	}
	return "Noted"
}
