package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vaani-ai/vaani-live/pkg/store"
)

// TriggerChatHandler mints a chat session id and tells the caller where to
// connect. The worker creates the persistent session record when the websocket
// arrives, so nothing is written here.
type TriggerChatHandler struct {
	AgentWSPath string
	Now         func() time.Time
}

type triggerChatRequest struct {
	UserID    string `json:"user_id"`
	Name      string `json:"name"`
	AgentName string `json:"agent_name"`
	SessionID string `json:"session_id"`
}

func (h TriggerChatHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req triggerChatRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.UserID) == "" {
		writeError(w, r, badRequest("user_id is required", "user_id"))
		return
	}

	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		sessionID = fmt.Sprintf("chat_%s_%d", req.UserID, h.now().Unix())
	}
	roomID := "room-" + uuid.NewString()

	wsPath := h.AgentWSPath
	if wsPath == "" {
		wsPath = "/ws/session"
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"message":    "Chat session created successfully",
		"session_id": sessionID,
		"room_id":    roomID,
		"ws_path":    wsPath,
	})
}

func (h TriggerChatHandler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now().UTC()
}

// ChatHistoryHandler lists a user's chat sessions, newest first.
type ChatHistoryHandler struct {
	Store store.Store
}

func (h ChatHistoryHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(r.PathValue("user_id"), 10, 64)
	if err != nil {
		writeError(w, r, badRequest("user_id must be numeric", "user_id"))
		return
	}

	sessions, err := h.Store.ListChatSessionsByUser(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	out := make([]map[string]any, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, chatSessionItem(s))
	}
	writeJSON(w, http.StatusOK, out)
}

func chatSessionItem(s store.ChatSession) map[string]any {
	return map[string]any{
		"session_id":    s.SessionID,
		"name":          s.CustomerName,
		"agent_name":    s.AgentName,
		"session_type":  "Chat",
		"status":        s.Status,
		"is_active":     s.IsActive,
		"start_time":    s.StartedAt,
		"end_time":      endTimeOr(s.EndedAt, s.StartedAt),
		"last_activity": s.LastActivityAt,
	}
}

// ChatLogHandler returns the persisted messages of one chat session.
type ChatLogHandler struct {
	Store store.Store
	Limit int
}

func (h ChatLogHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("session_id")
	if _, err := h.Store.GetChatSession(r.Context(), sessionID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, r, notFound(fmt.Sprintf("chat session %s not found", sessionID)))
			return
		}
		writeError(w, r, err)
		return
	}

	limit := h.Limit
	if limit <= 0 {
		limit = 500
	}
	msgs, err := h.Store.ListChatMessages(r.Context(), sessionID, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}

	out := make([]map[string]any, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, map[string]any{
			"message_id": m.MessageID,
			"type":       m.MessageType,
			"content":    m.Content,
			"sender":     m.Sender,
			"timestamp":  m.Timestamp,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": sessionID,
		"messages":   out,
	})
}

// SessionsHandler merges call and chat history into one list, newest first.
type SessionsHandler struct {
	Store   store.Store
	BaseURL string
}

func (h SessionsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(r.PathValue("user_id"), 10, 64)
	if err != nil {
		writeError(w, r, badRequest("user_id must be numeric", "user_id"))
		return
	}
	clientName := clientFilter(r.PathValue("client_name"))

	calls, err := h.Store.ListCallsByUser(r.Context(), userID, clientName)
	if err != nil {
		writeError(w, r, err)
		return
	}
	chats, err := h.Store.ListChatSessionsByUser(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	type sessionItem struct {
		start time.Time
		body  map[string]any
	}
	items := make([]sessionItem, 0, len(calls)+len(chats))
	for _, c := range calls {
		items = append(items, sessionItem{start: c.CallStartedAt, body: map[string]any{
			"name":         c.Name,
			"session_type": c.CallType,
			"status":       statusOr(c.CallStatus),
			"start_time":   c.CallStartedAt,
			"end_time":     endTimeOr(c.CallEndedAt, c.CallStartedAt),
			"duration_ms":  durationMS(c),
			"log_api":      h.BaseURL + "/api/transcript/" + c.CallID,
		}})
	}
	for _, s := range chats {
		body := chatSessionItem(s)
		body["log_api"] = h.BaseURL + "/api/chat-log/" + s.SessionID
		items = append(items, sessionItem{start: s.StartedAt, body: body})
	}

	// Newest first across both modalities.
	sort.Slice(items, func(i, j int) bool { return items[i].start.After(items[j].start) })

	out := make([]map[string]any, 0, len(items))
	for _, it := range items {
		out = append(out, it.body)
	}
	writeJSON(w, http.StatusOK, out)
}
