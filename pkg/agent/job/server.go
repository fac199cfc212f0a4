package job

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/vaani-ai/vaani-live/pkg/room"
)

// hello is the first frame a client sends on the session socket.
type hello struct {
	Room     string `json:"room"`
	Identity string `json:"identity"`
	UserID   int64  `json:"user_id"`
	// Metadata is the opaque job metadata envelope, forwarded to Classify.
	Metadata json.RawMessage `json:"metadata"`
}

// SessionHandler upgrades /ws/session connections, reads the job hello, and
// hands the resulting room to the Coordinator.
type SessionHandler struct {
	Coordinator *Coordinator
	Logger      *slog.Logger

	HandshakeTimeout time.Duration
	WS               room.WSConfig
	AllowedOrigins   []string
}

func (h SessionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	logger := h.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if !h.originAllowed(r) {
		http.Error(w, "origin is not allowed", http.StatusForbidden)
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(*http.Request) bool { return true },
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	handshakeTimeout := h.HandshakeTimeout
	if handshakeTimeout <= 0 {
		handshakeTimeout = 5 * time.Second
	}
	_ = conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	_, firstFrame, err := conn.ReadMessage()
	if err != nil {
		logger.Warn("failed to read session hello", "error", err)
		return
	}

	var hi hello
	if err := json.Unmarshal(firstFrame, &hi); err != nil {
		logger.Warn("malformed session hello", "error", err)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "malformed hello"),
			time.Now().Add(time.Second))
		return
	}
	if hi.Room == "" {
		hi.Room = "room-" + uuid.NewString()
	}
	if hi.Identity == "" {
		hi.Identity = "chat_user"
	}
	_ = conn.SetReadDeadline(time.Time{})

	wsRoom := room.NewWSRoom(hi.Room, hi.Identity, conn, h.WS, logger)

	if err := h.Coordinator.Handle(r.Context(), Job{
		Room:     wsRoom,
		Metadata: string(hi.Metadata),
		UserID:   hi.UserID,
	}); err != nil {
		logger.Error("job rejected", "room", hi.Room, "error", err)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "job rejected"),
			time.Now().Add(time.Second))
		return
	}

	// Run pumps frames until the peer goes away; room callbacks drive the
	// session from here.
	if err := wsRoom.Run(); err != nil {
		logger.Debug("session socket closed", "room", hi.Room, "error", err)
	}
}

func (h SessionHandler) originAllowed(r *http.Request) bool {
	if len(h.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range h.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}
