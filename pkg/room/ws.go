package room

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WSConfig shapes a websocket-backed room.
type WSConfig struct {
	WriteTimeout time.Duration
	PingInterval time.Duration
	ReadTimeout  time.Duration
	QueueSize    int
}

type wsConn interface {
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(string) error)
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	Close() error
}

// WSRoom adapts a single websocket connection to the Room interface. Writes
// are serialized through one writer goroutine; the read loop turns inbound
// text frames into data packets.
type WSRoom struct {
	name     string
	remote   Participant
	conn     wsConn
	logger   *slog.Logger
	cfg      WSConfig
	outbound chan []byte

	ctx    context.Context
	cancel context.CancelFunc

	mu             sync.Mutex
	attrs          map[string]string
	onPartDisc     []func(Participant)
	onData         []func(DataPacket)
	onDisconnected []func()
	closed         bool
}

// NewWSRoom wraps an established websocket connection. The remote identity is
// known at accept time (query parameter or SIP resolution).
func NewWSRoom(name, remoteIdentity string, conn *websocket.Conn, cfg WSConfig, logger *slog.Logger) *WSRoom {
	return newWSRoom(name, remoteIdentity, conn, cfg, logger)
}

func newWSRoom(name, remoteIdentity string, conn wsConn, cfg WSConfig, logger *slog.Logger) *WSRoom {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 20 * time.Second
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &WSRoom{
		name:     name,
		remote:   Participant{Identity: remoteIdentity},
		conn:     conn,
		logger:   logger,
		cfg:      cfg,
		outbound: make(chan []byte, cfg.QueueSize),
		ctx:      ctx,
		cancel:   cancel,
		attrs:    make(map[string]string),
	}
}

func (r *WSRoom) Name() string { return r.name }

// Run pumps the connection until it closes or Disconnect is called. It fires
// participant-disconnected plus room-disconnected on exit.
func (r *WSRoom) Run() error {
	writeErrCh := make(chan error, 1)
	go func() {
		writeErrCh <- r.writeLoop()
	}()

	readErr := r.readLoop()

	r.cancel()
	<-writeErrCh
	_ = r.conn.Close()

	r.mu.Lock()
	r.closed = true
	partDisc := append([]func(Participant){}, r.onPartDisc...)
	disc := append([]func(){}, r.onDisconnected...)
	r.mu.Unlock()

	remote := r.remote
	if readErr != nil {
		remote.DisconnectReason = readErr.Error()
	}
	for _, fn := range partDisc {
		fn(remote)
	}
	for _, fn := range disc {
		fn()
	}
	return readErr
}

func (r *WSRoom) readLoop() error {
	if r.cfg.ReadTimeout > 0 {
		_ = r.conn.SetReadDeadline(time.Now().Add(r.cfg.ReadTimeout))
		r.conn.SetPongHandler(func(string) error {
			return r.conn.SetReadDeadline(time.Now().Add(r.cfg.ReadTimeout))
		})
	}
	for {
		select {
		case <-r.ctx.Done():
			return nil
		default:
		}

		messageType, data, err := r.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			select {
			case <-r.ctx.Done():
				return nil
			default:
			}
			return err
		}
		if messageType != websocket.TextMessage {
			r.logger.Warn("dropping non-text frame", "room", r.name, "message_type", messageType)
			continue
		}
		pkt := DataPacket{
			Payload:             data,
			Topic:               TopicChat,
			ParticipantIdentity: r.remote.Identity,
		}
		for _, fn := range r.handlersData() {
			fn(pkt)
		}
	}
}

func (r *WSRoom) writeLoop() error {
	pingTicker := time.NewTicker(r.cfg.PingInterval)
	defer pingTicker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			deadline := time.Now().Add(r.cfg.WriteTimeout)
			_ = r.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
			return nil
		case <-pingTicker.C:
			deadline := time.Now().Add(r.cfg.WriteTimeout)
			if err := r.conn.WriteControl(websocket.PingMessage, []byte("ping"), deadline); err != nil {
				return err
			}
		case payload := <-r.outbound:
			if err := r.conn.SetWriteDeadline(time.Now().Add(r.cfg.WriteTimeout)); err != nil {
				return err
			}
			if err := r.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return err
			}
		}
	}
}

func (r *WSRoom) PublishData(ctx context.Context, payload []byte, topic string) error {
	_ = topic
	select {
	case <-r.ctx.Done():
		return fmt.Errorf("room %q is closed", r.name)
	case <-ctx.Done():
		return ctx.Err()
	case r.outbound <- payload:
		return nil
	}
}

func (r *WSRoom) Disconnect(ctx context.Context) error {
	_ = ctx
	r.cancel()
	return nil
}

func (r *WSRoom) SetLocalAttributes(ctx context.Context, attrs map[string]string) error {
	r.mu.Lock()
	for k, v := range attrs {
		r.attrs[k] = v
	}
	snapshot := make(map[string]string, len(r.attrs))
	for k, v := range r.attrs {
		snapshot[k] = v
	}
	r.mu.Unlock()

	payload, err := json.Marshal(map[string]any{"type": "room_attributes", "attributes": snapshot})
	if err != nil {
		return fmt.Errorf("marshal attributes: %w", err)
	}
	return r.PublishData(ctx, payload, TopicChat)
}

// Attributes returns a copy of the local participant attributes.
func (r *WSRoom) Attributes() map[string]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]string, len(r.attrs))
	for k, v := range r.attrs {
		out[k] = v
	}
	return out
}

// OnParticipantConnected invokes fn right away: the remote peer was already
// connected when the socket was accepted, so waiting for a join event would
// never resolve.
func (r *WSRoom) OnParticipantConnected(fn func(Participant)) {
	r.mu.Lock()
	closed := r.closed
	r.mu.Unlock()
	if closed {
		return
	}
	fn(r.remote)
}

func (r *WSRoom) OnParticipantDisconnected(fn func(Participant)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onPartDisc = append(r.onPartDisc, fn)
}

func (r *WSRoom) OnDataReceived(fn func(DataPacket)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onData = append(r.onData, fn)
}

func (r *WSRoom) OnDisconnected(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onDisconnected = append(r.onDisconnected, fn)
}

func (r *WSRoom) handlersData() []func(DataPacket) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]func(DataPacket){}, r.onData...)
}
