package job

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vaani-ai/vaani-live/pkg/agent"
	"github.com/vaani-ai/vaani-live/pkg/agent/tracker"
	"github.com/vaani-ai/vaani-live/pkg/config"
	"github.com/vaani-ai/vaani-live/pkg/llm"
	"github.com/vaani-ai/vaani-live/pkg/retrieval"
	"github.com/vaani-ai/vaani-live/pkg/room"
	"github.com/vaani-ai/vaani-live/pkg/store"
	"github.com/vaani-ai/vaani-live/pkg/telephony"
	"github.com/vaani-ai/vaani-live/pkg/transcript"
)

// Dependencies carries everything the coordinator needs to assemble a
// session. NewSpeech supplies the voice conversational runtime; nil disables
// voice jobs (chat-only deployments).
type Dependencies struct {
	Config   *config.Config
	Logger   *slog.Logger
	Store    store.Store
	Tracker  *tracker.Tracker
	Runner   llm.Runner
	Enricher retrieval.Enricher
	SIP      *telephony.SIPConnector

	NewSpeech func(ctx context.Context, r room.Room, opts SpeechOptions) (agent.SpeechSession, error)

	NewSessionID func() string
	Now          func() time.Time
}

// SpeechOptions carries per-call runtime settings for the speech factory,
// resolved from config and job metadata.
type SpeechOptions struct {
	Voice           string
	RecordAudio     bool
	BackgroundAudio bool
}

// Job is one incoming session request.
type Job struct {
	Room     room.Room
	Metadata string
	UserID   int64
}

type running struct {
	state       *agent.SessionState
	record      func(ctx context.Context, reason string)
	cancelWatch context.CancelFunc
	watchDone   chan struct{}
}

// Coordinator classifies jobs and runs their sessions until a terminal event.
type Coordinator struct {
	deps Dependencies

	mu     sync.Mutex
	active map[string]*running
}

func New(deps Dependencies) (*Coordinator, error) {
	if deps.Config == nil {
		return nil, fmt.Errorf("coordinator requires a config")
	}
	if deps.Store == nil {
		return nil, fmt.Errorf("coordinator requires a store")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Tracker == nil {
		deps.Tracker = tracker.New(tracker.Config{
			InactivityTimeout: deps.Config.InactivityTimeout,
			WarningBefore:     deps.Config.WarningBeforeTimeout,
			Logger:            deps.Logger,
		})
	}
	if deps.SIP == nil {
		deps.SIP = &telephony.SIPConnector{}
	}
	if deps.NewSessionID == nil {
		deps.NewSessionID = func() string { return "chat_" + uuid.NewString() }
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Coordinator{deps: deps, active: make(map[string]*running)}, nil
}

// Tracker exposes the session registry for transports that bump activity.
func (c *Coordinator) Tracker() *tracker.Tracker { return c.deps.Tracker }

// Handle classifies the job and runs the right agent variant against the
// room. Classification and prompt errors abort before any transport wiring.
func (c *Coordinator) Handle(ctx context.Context, j Job) error {
	cls, err := Classify(j.Metadata)
	if err != nil {
		return fmt.Errorf("classify job for room %s: %w", j.Room.Name(), err)
	}
	c.deps.Logger.Info("job classified",
		"room", j.Room.Name(), "modality", cls.Modality, "direction", cls.Direction)

	state := agent.NewSessionState(j.Room.Name())

	if cls.Modality == agent.ModalityChat {
		return c.handleChat(ctx, j, cls, state)
	}
	return c.handleVoice(ctx, j, cls, state)
}

func (c *Coordinator) agentDeps(tm *transcript.Manager) agent.Dependencies {
	return agent.Dependencies{
		Logger:        c.deps.Logger,
		Runner:        c.deps.Runner,
		Enricher:      c.deps.Enricher,
		Transcript:    tm,
		Now:           c.deps.Now,
		ShowToolCalls: c.deps.Config.ShowToolCallInChat,
	}
}

func (c *Coordinator) handleChat(ctx context.Context, j Job, cls Classification, state *agent.SessionState) error {
	sessionID := cls.SessionID
	if sessionID == "" {
		sessionID = c.deps.NewSessionID()
	}

	tm := transcript.NewManager()
	deps := c.agentDeps(tm)
	deps.PersistEnd = c.chatPersistEnd(sessionID)

	a, err := agent.NewChatAgent(cls.AgentName, cls.Contact, state, c.deps.Config.PromptPath, c.deps.Store, deps)
	if err != nil {
		return fmt.Errorf("build chat agent for %s: %w", sessionID, err)
	}
	a.ChunkMaxChars = c.deps.Config.ChatChunkMaxChars
	a.ChunkDelay = c.deps.Config.ChatChunkDelay

	// Chat starts the conversational session first and binds the room after;
	// there is no telephony participant to wait for.
	state.SetParticipant("chat_user")
	if err := a.RegisterSession(ctx, sessionID, j.UserID); err != nil {
		return fmt.Errorf("register chat session %s: %w", sessionID, err)
	}
	a.SetRoom(j.Room)

	a.OnActivity = func(sid string) {
		c.deps.Tracker.UpdateActivity(sid)
		go func() {
			touchCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := c.deps.Store.TouchChatSession(touchCtx, sid, c.deps.Now()); err != nil {
				c.deps.Logger.Error("failed to bump session activity", "session_id", sid, "error", err)
			}
		}()
	}

	record := func(ctx context.Context, reason string) {
		c.deps.Tracker.Unregister(sessionID)
		a.RecordSessionEnd(ctx, reason)
		c.deregister(j.Room.Name())
	}
	run := c.register(j.Room.Name(), state, record)

	c.deps.Tracker.Register(sessionID, j.UserID, tracker.Handle{
		Warn: func(ctx context.Context, msg string) error {
			a.SendMessage(ctx, msg, room.TypeSystem)
			return nil
		},
		ForceEnd: func(ctx context.Context, reason string) {
			a.SendMessage(ctx, "Chat session ended due to inactivity. Thank you!", room.TypeSystem)
			c.timeoutChatSession(ctx, a, sessionID)
			// Detached: disconnect fires room handlers that await this
			// watcher, so it must not run from inside it.
			go c.disconnectRoom(j.Room)
		},
	})
	c.startWatch(run, sessionID)

	j.Room.OnDataReceived(func(pkt room.DataPacket) {
		a.OnDataReceived(ctx, pkt)
	})
	j.Room.OnParticipantDisconnected(func(p room.Participant) {
		c.deps.Logger.Info("participant disconnected", "identity", p.Identity, "reason", p.DisconnectReason)
		run.stopWatch()
		record(ctx, agent.EndReasonChatEnded)
	})
	j.Room.OnDisconnected(func() {
		c.deps.Logger.Info("room disconnected", "room", j.Room.Name())
		run.stopWatch()
		record(ctx, agent.EndReasonRoomDisconnected)
	})

	a.OnEnter(ctx)
	return nil
}

// timeoutChatSession marks the persisted record with the timeout status while
// still funnelling through the idempotency guard.
func (c *Coordinator) timeoutChatSession(ctx context.Context, a *agent.ChatAgent, sessionID string) {
	if !a.State().Started() || a.State().EndRecorded() {
		return
	}
	if !a.State().MarkEndRecorded() {
		return
	}
	if err := c.deps.Store.EndChatSession(ctx, sessionID, store.SessionStatusTimeout, c.deps.Now()); err != nil {
		c.deps.Logger.Error("failed to persist chat timeout", "session_id", sessionID, "error", err)
	}
}

func (c *Coordinator) chatPersistEnd(sessionID string) func(ctx context.Context, reason string) error {
	return func(ctx context.Context, reason string) error {
		return c.deps.Store.EndChatSession(ctx, sessionID, store.SessionStatusEnded, c.deps.Now())
	}
}

func (c *Coordinator) handleVoice(ctx context.Context, j Job, cls Classification, state *agent.SessionState) error {
	if c.deps.NewSpeech == nil {
		return fmt.Errorf("voice job for room %s: no speech runtime configured", j.Room.Name())
	}

	tm := transcript.NewManager()
	deps := c.agentDeps(tm)
	deps.PersistEnd = c.voicePersistEnd(j.Room.Name(), tm)

	// Outbound calls get their record written at dispatch time by the API;
	// inbound calls are first seen here.
	if cls.Direction == DirectionInbound {
		err := c.deps.Store.InsertCallStart(ctx, store.Call{
			CallID:        j.Room.Name(),
			UserID:        j.UserID,
			Name:          cls.Contact.Name,
			CallFrom:      cls.Contact.Phone,
			CallType:      "Inbound",
			CallStartedAt: c.deps.Now(),
			CallStatus:    "started",
		})
		if err != nil {
			c.deps.Logger.Error("failed to insert inbound call record",
				"room", j.Room.Name(), "error", err)
		}
	}

	// SIP mode resolves the telephone participant before the conversational
	// session starts. Console mode skips telephony entirely.
	var participant room.Participant
	if c.deps.Config.Mode == config.ModeSIP {
		p, err := c.deps.SIP.WaitForParticipant(ctx, j.Room)
		if err != nil {
			return fmt.Errorf("voice job for room %s: %w", j.Room.Name(), err)
		}
		participant = p
	}

	speech, err := c.deps.NewSpeech(ctx, j.Room, SpeechOptions{
		Voice:           cls.Voice,
		RecordAudio:     c.deps.Config.RecordAudio,
		BackgroundAudio: c.deps.Config.BackgroundAudio,
	})
	if err != nil {
		return fmt.Errorf("start speech runtime for %s: %w", j.Room.Name(), err)
	}
	if reporter, ok := speech.(agent.TranscriptReporter); ok {
		reporter.OnTranscript(tm.Append)
	}

	hangup := func(ctx context.Context) error { return j.Room.Disconnect(ctx) }
	a, err := agent.NewVoiceAgent(cls.AgentName, cls.Contact, state, c.deps.Config.PromptPath, speech, j.Room, hangup, deps)
	if err != nil {
		return fmt.Errorf("build voice agent for %s: %w", j.Room.Name(), err)
	}
	if participant.Identity != "" {
		a.SetParticipant(participant.Identity)
	}
	state.MarkStarted()

	record := func(ctx context.Context, reason string) {
		c.deps.Tracker.Unregister(j.Room.Name())
		a.RecordSessionEnd(ctx, reason)
		c.deregister(j.Room.Name())
	}
	run := c.register(j.Room.Name(), state, record)

	j.Room.OnParticipantDisconnected(func(p room.Participant) {
		if state.Participant() != "" && p.Identity != state.Participant() {
			return
		}
		c.deps.Logger.Info("participant disconnected", "identity", p.Identity, "reason", p.DisconnectReason)
		run.stopWatch()
		reason := agent.EndReasonCallEnded
		if !telephony.CallAnswered(p) {
			reason = agent.EndReasonAnsweringMachine
		}
		record(ctx, reason)
	})
	j.Room.OnDisconnected(func() {
		c.deps.Logger.Info("room disconnected", "room", j.Room.Name())
		run.stopWatch()
		record(ctx, agent.EndReasonRoomDisconnected)
	})

	// Idle-call hangup for voice reuses the session tracker.
	if c.deps.Config.IdleCallHangup {
		c.deps.Tracker.Register(j.Room.Name(), j.UserID, tracker.Handle{
			Warn: func(ctx context.Context, msg string) error {
				return speech.GenerateReply(ctx, "The caller has been quiet for a while. Ask briefly if they are still there.")
			},
			ForceEnd: func(ctx context.Context, reason string) {
				record(ctx, agent.EndReasonInactivity)
				go c.disconnectRoom(j.Room)
			},
		})
		c.startWatch(run, j.Room.Name())
	}

	a.OnEnter(ctx)
	return nil
}

func (c *Coordinator) voicePersistEnd(roomName string, tm *transcript.Manager) func(ctx context.Context, reason string) error {
	return func(ctx context.Context, reason string) error {
		if c.deps.Config.StoreTranscription {
			if err := tm.Persist(ctx, c.deps.Store, roomName); err != nil {
				c.deps.Logger.Error("failed to persist transcript", "room", roomName, "error", err)
			}
		}
		c.postProcessCall(ctx, roomName, tm)
		status := "completed"
		if reason == agent.EndReasonAnsweringMachine {
			status = "no-answer"
		}
		return c.deps.Store.EndCall(ctx, roomName, status, c.deps.Now())
	}
}

// postProcessCall runs entity extraction over the finished call's transcript
// and stores the result on the call record. Best effort; a failed extraction
// never blocks the session end.
func (c *Coordinator) postProcessCall(ctx context.Context, roomName string, tm *transcript.Manager) {
	if c.deps.Runner == nil || tm.Len() == 0 {
		return
	}
	raw, err := c.deps.Runner.Run(ctx, llm.ExtractionPrompt(tm.Snapshot(), agent.ValidationFields()))
	if err != nil {
		c.deps.Logger.Error("post-call extraction failed", "room", roomName, "error", err)
		return
	}
	var entities map[string]any
	if err := json.Unmarshal([]byte(llm.StripJSONFence(raw)), &entities); err != nil {
		c.deps.Logger.Error("post-call extraction returned malformed JSON", "room", roomName, "error", err)
		return
	}
	if err := c.deps.Store.UpdateCallPostProcessing(ctx, roomName, entities, nil); err != nil {
		c.deps.Logger.Error("failed to store extracted entities", "room", roomName, "error", err)
	}
}

func (c *Coordinator) disconnectRoom(r room.Room) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := r.Disconnect(ctx); err != nil {
		c.deps.Logger.Warn("room disconnect failed", "room", r.Name(), "error", err)
	}
}

func (c *Coordinator) register(roomName string, state *agent.SessionState, record func(ctx context.Context, reason string)) *running {
	run := &running{state: state, record: record}
	c.mu.Lock()
	c.active[roomName] = run
	c.mu.Unlock()
	return run
}

func (c *Coordinator) deregister(roomName string) {
	c.mu.Lock()
	delete(c.active, roomName)
	c.mu.Unlock()
}

func (c *Coordinator) activeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.active)
}

// startWatch runs the tracker watcher for the session and arranges for it to
// be awaited on stop.
func (c *Coordinator) startWatch(run *running, sessionID string) {
	watchCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	run.cancelWatch = cancel
	run.watchDone = done

	go func() {
		defer close(done)
		if err := c.deps.Tracker.Watch(watchCtx, sessionID); err != nil {
			c.deps.Logger.Debug("timeout watcher cancelled", "session_id", sessionID)
		}
	}()
}

func (r *running) stopWatch() {
	if r.cancelWatch == nil {
		return
	}
	r.cancelWatch()
	<-r.watchDone
}

// Shutdown cancels every watcher, awaits them, and records a last-chance
// session end for anything still open.
func (c *Coordinator) Shutdown(ctx context.Context) {
	c.mu.Lock()
	sessions := make([]*running, 0, len(c.active))
	for _, run := range c.active {
		sessions = append(sessions, run)
	}
	c.active = make(map[string]*running)
	c.mu.Unlock()

	for _, run := range sessions {
		run.stopWatch()
		if run.state.Started() && !run.state.EndRecorded() {
			c.deps.Logger.Info("recording session end during shutdown", "room", run.state.RoomName())
			run.record(ctx, agent.EndReasonShutdown)
		}
	}
}
