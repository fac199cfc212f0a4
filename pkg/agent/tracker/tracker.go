// Package tracker watches registered sessions for inactivity and forces
// termination after the configured idle timeout. It is constructed once per
// process and injected into whatever builds sessions.
package tracker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Defaults matching the chat session timeout configuration.
const (
	DefaultInactivityTimeout = 1800 * time.Second
	DefaultWarningBefore     = 300 * time.Second
	DefaultPollInterval      = 5 * time.Second
)

// Handle is the tracker's non-owning view of a session: it can warn the user
// and force termination, but never controls the agent's lifecycle.
type Handle struct {
	Warn     func(ctx context.Context, message string) error
	ForceEnd func(ctx context.Context, reason string)
}

type record struct {
	userID       int64
	handle       Handle
	lastActivity time.Time
	warningSent  bool
}

// Tracker is the process-wide session registry. All access goes through its
// methods.
type Tracker struct {
	inactivity time.Duration
	warning    time.Duration
	poll       time.Duration
	logger     *slog.Logger

	// now is the clock; tests replace it.
	now func() time.Time

	mu       sync.Mutex
	sessions map[string]*record
}

// Config for a Tracker. Zero fields take the defaults above.
type Config struct {
	InactivityTimeout time.Duration
	WarningBefore     time.Duration
	PollInterval      time.Duration
	Logger            *slog.Logger
	Now               func() time.Time
}

func New(cfg Config) *Tracker {
	if cfg.InactivityTimeout == 0 {
		cfg.InactivityTimeout = DefaultInactivityTimeout
	}
	if cfg.WarningBefore == 0 {
		cfg.WarningBefore = DefaultWarningBefore
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Tracker{
		inactivity: cfg.InactivityTimeout,
		warning:    cfg.WarningBefore,
		poll:       cfg.PollInterval,
		logger:     cfg.Logger,
		now:        cfg.Now,
		sessions:   make(map[string]*record),
	}
}

// Register inserts a new tracking record. Re-registering a session id
// replaces the previous record.
func (t *Tracker) Register(sessionID string, userID int64, h Handle) {
	t.mu.Lock()
	t.sessions[sessionID] = &record{
		userID:       userID,
		handle:       h,
		lastActivity: t.now(),
	}
	t.mu.Unlock()
	t.logger.Info("registered chat session", "session_id", sessionID, "user_id", userID)
}

// UpdateActivity refreshes the idle clock and clears any pending warning.
func (t *Tracker) UpdateActivity(sessionID string) {
	t.mu.Lock()
	if r, ok := t.sessions[sessionID]; ok {
		r.lastActivity = t.now()
		r.warningSent = false
	}
	t.mu.Unlock()
}

// Unregister removes a session. Removing an absent id is a no-op.
func (t *Tracker) Unregister(sessionID string) {
	t.mu.Lock()
	_, ok := t.sessions[sessionID]
	delete(t.sessions, sessionID)
	t.mu.Unlock()
	if ok {
		t.logger.Info("unregistered session", "session_id", sessionID)
	}
}

// Count reports the number of tracked sessions.
func (t *Tracker) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sessions)
}

// Watch polls one session until it times out, is unregistered, or ctx is
// cancelled. Cancellation propagates as ctx.Err(); a timeout or external
// unregistration returns nil.
func (t *Tracker) Watch(ctx context.Context, sessionID string) error {
	t.logger.Info("started timeout watcher", "session_id", sessionID)
	defer t.logger.Info("timeout watcher stopped", "session_id", sessionID)

	for {
		h, idle, sendWarning, ok := t.check(sessionID)
		if !ok {
			return nil
		}

		if sendWarning && h.Warn != nil {
			msg := fmt.Sprintf("Your chat session will end in %d minutes due to inactivity. Send a message to keep the session active.",
				int(t.warning.Minutes()))
			if err := h.Warn(ctx, msg); err != nil {
				t.logger.Error("failed to send timeout warning", "session_id", sessionID, "error", err)
			}
		}

		if idle >= t.inactivity {
			t.logger.Info("session timed out", "session_id", sessionID, "idle", idle)
			if h.ForceEnd != nil {
				h.ForceEnd(ctx, "Session timed out due to inactivity")
			}
			t.Unregister(sessionID)
			return nil
		}

		timer := time.NewTimer(t.poll)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
}

// check reads the session under the lock and marks the warning as sent when
// the warning threshold has passed, so the warning fires at most once per
// idle period.
func (t *Tracker) check(sessionID string) (h Handle, idle time.Duration, sendWarning bool, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	r, ok := t.sessions[sessionID]
	if !ok {
		return Handle{}, 0, false, false
	}
	idle = t.now().Sub(r.lastActivity)
	if idle >= t.inactivity-t.warning && !r.warningSent {
		r.warningSent = true
		sendWarning = true
	}
	return r.handle, idle, sendWarning, true
}
