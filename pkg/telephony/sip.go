package telephony

import (
	"context"
	"fmt"
	"time"

	"github.com/vaani-ai/vaani-live/pkg/room"
)

// Participant disconnect reasons reported by the media layer for SIP legs.
const (
	participantUserUnavailable = "user_unavailable"
	participantNoAnswer        = "no_answer"
)

// SIPConnector waits for the telephone participant to join the media room
// before the voice session starts.
type SIPConnector struct {
	// Timeout bounds the wait for the callee to pick up. Zero means 30s.
	Timeout time.Duration
}

func (c *SIPConnector) WaitForParticipant(ctx context.Context, r room.Room) (room.Participant, error) {
	timeout := c.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	joined := make(chan room.Participant, 1)
	r.OnParticipantConnected(func(p room.Participant) {
		select {
		case joined <- p:
		default:
		}
	})

	select {
	case p := <-joined:
		return p, nil
	case <-ctx.Done():
		return room.Participant{}, fmt.Errorf("wait for sip participant in %s: %w", r.Name(), ctx.Err())
	}
}

// CallAnswered reports whether the callee's disconnect looks like a completed
// conversation rather than an unanswered call.
func CallAnswered(p room.Participant) bool {
	switch p.DisconnectReason {
	case participantUserUnavailable, participantNoAnswer:
		return false
	default:
		return true
	}
}
