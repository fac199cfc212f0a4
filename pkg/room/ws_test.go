package room

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

type fakeConn struct {
	mu       sync.Mutex
	inbound  chan fakeFrame
	written  [][]byte
	closed   bool
	pongFn   func(string) error
	closeErr error
}

type fakeFrame struct {
	messageType int
	data        []byte
	err         error
}

func newFakeConn() *fakeConn {
	return &fakeConn{inbound: make(chan fakeFrame, 16)}
}

func (c *fakeConn) SetReadDeadline(time.Time) error  { return nil }
func (c *fakeConn) SetWriteDeadline(time.Time) error { return nil }
func (c *fakeConn) SetPongHandler(h func(string) error) {
	c.pongFn = h
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	frame, ok := <-c.inbound
	if !ok {
		return 0, nil, errors.New("connection closed")
	}
	return frame.messageType, frame.data, frame.err
}

func (c *fakeConn) WriteMessage(messageType int, data []byte) error {
	_ = messageType
	c.mu.Lock()
	defer c.mu.Unlock()
	c.written = append(c.written, append([]byte{}, data...))
	return nil
}

func (c *fakeConn) WriteControl(int, []byte, time.Time) error { return nil }

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.inbound)
	}
	return c.closeErr
}

func (c *fakeConn) sent() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte{}, c.written...)
}

func TestWSRoom_DispatchesDataAndLifecycle(t *testing.T) {
	conn := newFakeConn()
	r := newWSRoom("room-1", "caller-7", conn, WSConfig{}, nil)

	var (
		mu         sync.Mutex
		joined     []string
		packets    []DataPacket
		discParts  []Participant
		roomClosed bool
	)
	r.OnParticipantConnected(func(p Participant) {
		mu.Lock()
		joined = append(joined, p.Identity)
		mu.Unlock()
	})
	r.OnDataReceived(func(pkt DataPacket) {
		mu.Lock()
		packets = append(packets, pkt)
		mu.Unlock()
	})
	r.OnParticipantDisconnected(func(p Participant) {
		mu.Lock()
		discParts = append(discParts, p)
		mu.Unlock()
	})
	r.OnDisconnected(func() {
		mu.Lock()
		roomClosed = true
		mu.Unlock()
	})

	conn.inbound <- fakeFrame{messageType: websocket.TextMessage, data: []byte(`{"type":"user_message","content":"hi"}`)}

	done := make(chan error, 1)
	go func() { done <- r.Run() }()

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(packets) == 1
	})

	if err := r.Disconnect(context.Background()); err != nil {
		t.Fatalf("disconnect: %v", err)
	}
	conn.Close()
	<-done

	mu.Lock()
	defer mu.Unlock()
	if len(joined) != 1 || joined[0] != "caller-7" {
		t.Fatalf("joined=%v, want [caller-7]", joined)
	}
	if packets[0].ParticipantIdentity != "caller-7" || packets[0].Topic != TopicChat {
		t.Fatalf("packet=%+v", packets[0])
	}
	if len(discParts) != 1 {
		t.Fatalf("participant disconnect handlers fired %d times, want 1", len(discParts))
	}
	if !roomClosed {
		t.Fatalf("room disconnect handler never fired")
	}
}

func TestWSRoom_ParticipantConnectedFiresBeforeRun(t *testing.T) {
	conn := newFakeConn()
	r := newWSRoom("room-sip", "sip_+15551234567", conn, WSConfig{}, nil)

	// The remote is connected from accept time, so handlers registered
	// before the pumps start must still observe the join.
	var got Participant
	r.OnParticipantConnected(func(p Participant) { got = p })

	if got.Identity != "sip_+15551234567" {
		t.Fatalf("participant = %+v, want sip_+15551234567", got)
	}
}

func TestWSRoom_PublishAfterDisconnectFails(t *testing.T) {
	conn := newFakeConn()
	r := newWSRoom("room-2", "caller", conn, WSConfig{}, nil)
	_ = r.Disconnect(context.Background())

	err := r.PublishData(context.Background(), []byte("late"), TopicChat)
	if err == nil {
		t.Fatalf("expected error publishing on closed room")
	}
}

func TestWSRoom_PublishWritesFrame(t *testing.T) {
	conn := newFakeConn()
	r := newWSRoom("room-3", "caller", conn, WSConfig{}, nil)

	done := make(chan error, 1)
	go func() { done <- r.Run() }()

	if err := r.PublishData(context.Background(), []byte(`{"type":"text"}`), TopicChat); err != nil {
		t.Fatalf("publish: %v", err)
	}
	waitFor(t, func() bool { return len(conn.sent()) == 1 })

	_ = r.Disconnect(context.Background())
	conn.Close()
	<-done
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met before deadline")
}
