package tracker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestTracker(clock *fakeClock) *Tracker {
	return New(Config{
		InactivityTimeout: 1800 * time.Second,
		WarningBefore:     300 * time.Second,
		PollInterval:      time.Millisecond,
		Now:               clock.Now,
	})
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestWatchWarnsOnceThenForcesEnd(t *testing.T) {
	clock := newFakeClock()
	tr := newTestTracker(clock)

	var mu sync.Mutex
	var warnings []string
	var ended []string

	tr.Register("chat_42", 7, Handle{
		Warn: func(ctx context.Context, msg string) error {
			mu.Lock()
			warnings = append(warnings, msg)
			mu.Unlock()
			return nil
		},
		ForceEnd: func(ctx context.Context, reason string) {
			mu.Lock()
			ended = append(ended, reason)
			mu.Unlock()
		},
	})

	done := make(chan error, 1)
	go func() { done <- tr.Watch(context.Background(), "chat_42") }()

	// Exactly at the warning boundary: inactivity - warning.
	clock.Advance(1500 * time.Second)
	waitFor(t, "warning", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(warnings) == 1
	})

	// Still idle but before the timeout: the warning must not repeat.
	clock.Advance(100 * time.Second)
	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	if len(warnings) != 1 {
		mu.Unlock()
		t.Fatalf("warnings = %d, want 1", len(warnings))
	}
	mu.Unlock()

	// Cross the inactivity timeout.
	clock.Advance(200 * time.Second)
	if err := <-done; err != nil {
		t.Fatalf("watch returned %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(ended) != 1 || ended[0] != "Session timed out due to inactivity" {
		t.Fatalf("ended = %v", ended)
	}
	if tr.Count() != 0 {
		t.Fatalf("session still registered after timeout")
	}
}

func TestActivityResetsWarning(t *testing.T) {
	clock := newFakeClock()
	tr := newTestTracker(clock)

	var mu sync.Mutex
	var warnings int
	tr.Register("chat_42", 7, Handle{
		Warn: func(ctx context.Context, msg string) error {
			mu.Lock()
			warnings++
			mu.Unlock()
			return nil
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- tr.Watch(ctx, "chat_42") }()

	clock.Advance(1500 * time.Second)
	waitFor(t, "first warning", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return warnings == 1
	})

	// Activity resets both the idle clock and the warning flag.
	tr.UpdateActivity("chat_42")
	clock.Advance(1500 * time.Second)
	waitFor(t, "second warning", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return warnings == 2
	})

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("watch returned %v, want context.Canceled", err)
	}
}

func TestWatchExitsOnUnregister(t *testing.T) {
	clock := newFakeClock()
	tr := newTestTracker(clock)
	tr.Register("chat_42", 7, Handle{})

	done := make(chan error, 1)
	go func() { done <- tr.Watch(context.Background(), "chat_42") }()

	tr.Unregister("chat_42")
	if err := <-done; err != nil {
		t.Fatalf("watch returned %v", err)
	}

	// Unregistering again is a no-op.
	tr.Unregister("chat_42")
}

func TestWatchPropagatesCancellation(t *testing.T) {
	clock := newFakeClock()
	tr := newTestTracker(clock)
	tr.Register("chat_42", 7, Handle{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- tr.Watch(ctx, "chat_42") }()

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("watch returned %v, want context.Canceled", err)
	}
}
