package agent

import (
	"context"

	"github.com/vaani-ai/vaani-live/pkg/room"
)

// SpeechSession is the slice of the conversational runtime the voice agent
// drives: direct speech, instructed replies, and playout tracking.
type SpeechSession interface {
	Say(ctx context.Context, text string) error
	GenerateReply(ctx context.Context, instructions string) error
	// WaitForPlayout blocks until in-flight speech finishes. Returns
	// immediately when nothing is playing.
	WaitForPlayout(ctx context.Context) error
}

// TranscriptReporter is implemented by speech runtimes that surface finalized
// conversation turns. The callback receives a role ("USER" or "AGENT") and
// the spoken text.
type TranscriptReporter interface {
	OnTranscript(func(role, text string))
}

// VoiceAgent binds the shared core to a speech session and a telephony
// hangup.
type VoiceAgent struct {
	*Core

	speech SpeechSession
	room   room.Room
	hangup func(ctx context.Context) error

	participant string
}

func NewVoiceAgent(agentName string, contact ContactInfo, state *SessionState, promptPath string, speech SpeechSession, r room.Room, hangup func(ctx context.Context) error, deps Dependencies) (*VoiceAgent, error) {
	core, err := NewCore(agentName, contact, state, promptPath, ModalityVoice, deps)
	if err != nil {
		return nil, err
	}
	a := &VoiceAgent{Core: core, speech: speech, room: r, hangup: hangup}
	core.setSender(a)
	core.setStall(func(ctx context.Context, instructions string) {
		if err := speech.GenerateReply(ctx, instructions); err != nil {
			core.deps.Logger.Warn("stall update failed", "error", err)
		}
	})
	return a, nil
}

func (a *VoiceAgent) SetParticipant(identity string) {
	a.participant = identity
	a.State().SetParticipant(identity)
}

// SendMessage publishes a data-channel envelope alongside the audio so chat
// UIs observing a voice call still see tool narration. Transport absence is
// a logged no-op.
func (a *VoiceAgent) SendMessage(ctx context.Context, content, messageType string) {
	if a.room == nil {
		a.deps.Logger.Warn("cannot send message: room not available", "type", messageType)
		return
	}
	payload, err := room.NewEnvelope(messageType, content, room.SenderAgent).Encode()
	if err != nil {
		a.deps.Logger.Error("failed to encode message", "error", err)
		return
	}
	if err := a.room.PublishData(ctx, payload, room.TopicChat); err != nil {
		a.deps.Logger.Warn("failed to send message", "type", messageType, "error", err)
	}
}

// OnEnter speaks the welcome line and stamps the room with the agent name.
func (a *VoiceAgent) OnEnter(ctx context.Context) {
	if err := a.speech.Say(ctx, welcomeMessage); err != nil {
		a.deps.Logger.Error("failed to speak welcome", "error", err)
	}
	if a.room != nil {
		if err := a.room.SetLocalAttributes(ctx, map[string]string{"agent": a.Name()}); err != nil {
			a.deps.Logger.Warn("failed to set agent attribute", "error", err)
		}
	}
}

// EndVoiceCall records the session end, lets in-flight speech finish, then
// hangs up.
func (a *VoiceAgent) EndVoiceCall(ctx context.Context) string {
	a.deps.Logger.Info("voice agent initiated call end", "participant", a.participant)

	a.RecordSessionEnd(ctx, EndReasonCallEnded)

	if err := a.speech.WaitForPlayout(ctx); err != nil {
		a.deps.Logger.Warn("playout wait interrupted", "error", err)
	}
	a.doHangup(ctx)
	return "Noted"
}

// EndSession implements the shared end-of-session contract.
func (a *VoiceAgent) EndSession(ctx context.Context) string {
	return a.EndVoiceCall(ctx)
}

// DetectedAnsweringMachine terminates immediately with a distinct reason,
// bypassing the goodbye flow.
func (a *VoiceAgent) DetectedAnsweringMachine(ctx context.Context) string {
	a.deps.Logger.Info("detected answering machine", "participant", a.participant)
	a.RecordSessionEnd(ctx, EndReasonAnsweringMachine)
	a.doHangup(ctx)
	return "Noted"
}

func (a *VoiceAgent) doHangup(ctx context.Context) {
	if a.hangup == nil {
		return
	}
	if err := a.hangup(ctx); err != nil {
		a.deps.Logger.Error("hangup failed", "error", err)
	}
}
