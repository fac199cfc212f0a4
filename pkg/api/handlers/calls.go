package handlers

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vaani-ai/vaani-live/pkg/api/apierror"
	"github.com/vaani-ai/vaani-live/pkg/recordings"
	"github.com/vaani-ai/vaani-live/pkg/store"
	"github.com/vaani-ai/vaani-live/pkg/telephony"
)

// TriggerCallHandler dispatches an outbound call and records it.
type TriggerCallHandler struct {
	Store      store.Store
	Dialer     telephony.Dialer
	FromNumber string
	BaseURL    string
	Logger     *slog.Logger
	Now        func() time.Time
}

type triggerCallRequest struct {
	UserID        string `json:"user_id"`
	Name          string `json:"name"`
	ContactNumber string `json:"contact_number"`
	AgentID       string `json:"agent_id"`
	Voice         string `json:"voice"`
}

func (h TriggerCallHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.Dialer == nil {
		writeError(w, r, &apierror.Error{Type: apierror.ErrAPI, Message: "telephony is not configured"})
		return
	}

	var req triggerCallRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	userID, err := strconv.ParseInt(strings.TrimSpace(req.UserID), 10, 64)
	if err != nil {
		writeError(w, r, badRequest("user_id must be numeric", "user_id"))
		return
	}
	phone := strings.TrimSpace(req.ContactNumber)
	if phone == "" {
		writeError(w, r, badRequest("contact_number is required", "contact_number"))
		return
	}
	if !strings.HasPrefix(phone, "+") {
		phone = "+" + phone
	}

	model, err := h.Store.GetModel(r.Context(), req.AgentID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, r, notFound(fmt.Sprintf("model with ID %s not found", req.AgentID)))
			return
		}
		writeError(w, r, err)
		return
	}

	now := h.now()
	roomID := fmt.Sprintf("outbound-%d-%s", now.Unix(), uuid.NewString()[:8])

	dispatchID, err := h.Dialer.Dial(r.Context(), phone, roomID)
	if err != nil {
		h.logger().Error("outbound dial failed", "room", roomID, "error", err)
		writeError(w, r, &apierror.Error{Type: apierror.ErrUpstream, Message: "telephony dispatch failed"})
		return
	}

	call := store.Call{
		CallID:        roomID,
		ModelID:       model.ModelID,
		UserID:        userID,
		Name:          req.Name,
		CallFrom:      h.FromNumber,
		CallTo:        phone,
		CallType:      "Outbound",
		CallStartedAt: now,
		CallStatus:    "started",
		CallMetadata: map[string]any{
			"plivo":      true,
			"plivo_uuid": dispatchID,
			"name":       req.Name,
			"phone":      phone,
			"agent_name": model.ModelName,
			"voice":      voiceOrDefault(req.Voice),
		},
		CallTranscription: h.BaseURL + "/api/transcript/" + roomID,
		CallRecordingURL:  h.BaseURL + "/api/stream/" + roomID,
	}
	if err := h.Store.InsertCallStart(r.Context(), call); err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"message":    "Command processed",
		"output":     fmt.Sprintf("room:%q", dispatchID),
		"call_id":    roomID,
		"agent_name": model.ModelName,
	})
}

func (h TriggerCallHandler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now().UTC()
}

func (h TriggerCallHandler) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

func voiceOrDefault(v string) string {
	if strings.TrimSpace(v) == "" {
		return "default"
	}
	return v
}

// CallHistoryHandler lists a user's calls, newest first.
type CallHistoryHandler struct {
	Store   store.Store
	BaseURL string
}

func (h CallHistoryHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
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

	out := make([]map[string]any, 0, len(calls))
	for _, c := range calls {
		out = append(out, map[string]any{
			"name":          c.Name,
			"start_time":    c.CallStartedAt,
			"end_time":      endTimeOr(c.CallEndedAt, c.CallStartedAt),
			"recording_api": h.BaseURL + "/api/stream/" + c.CallID,
			"call_type":     c.CallType,
			"call_status":   statusOr(c.CallStatus),
			"from_number":   c.CallFrom,
			"to_number":     c.CallTo,
			"direction":     c.CallType,
			"duration_ms":   durationMS(c),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// clientFilter maps the catch-all client name onto no filtering.
func clientFilter(clientName string) string {
	if strings.EqualFold(clientName, "all") {
		return ""
	}
	return strings.ToUpper(clientName)
}

func endTimeOr(ended *time.Time, started time.Time) time.Time {
	if ended != nil {
		return *ended
	}
	return started
}

func statusOr(status string) string {
	if status == "" {
		return "NA"
	}
	return status
}

func durationMS(c store.Call) float64 {
	if c.CallDuration != nil {
		return *c.CallDuration * 1000
	}
	if c.CallEndedAt == nil {
		return 0
	}
	return float64(c.CallEndedAt.Sub(c.CallStartedAt).Milliseconds())
}

// TranscriptHandler returns the stored transcript for a call.
type TranscriptHandler struct {
	Store store.Store
}

func (h TranscriptHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	callID := r.PathValue("call_id")
	call, err := h.Store.GetCall(r.Context(), callID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, r, notFound(fmt.Sprintf("call with ID %s not found", callID)))
			return
		}
		writeError(w, r, err)
		return
	}

	transcript := call.CallTranscription
	if strings.TrimSpace(transcript) == "" {
		transcript = "Transcript is empty"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"call_id":     callID,
		"transcript":  transcript,
		"duration_ms": durationMS(call),
	})
}

// AudioStreamHandler streams the call recording from object storage.
type AudioStreamHandler struct {
	Recordings *recordings.Fetcher
	Logger     *slog.Logger
}

func (h AudioStreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.Recordings == nil {
		writeError(w, r, notFound("audio storage not configured"))
		return
	}

	obj, err := h.Recordings.Audio(r.Context(), r.PathValue("call_id"))
	if err != nil {
		if errors.Is(err, recordings.ErrNotFound) {
			writeError(w, r, notFound("audio file not found"))
			return
		}
		writeError(w, r, err)
		return
	}
	defer obj.Body.Close()

	w.Header().Set("Content-Type", obj.ContentType)
	if _, err := io.Copy(w, obj.Body); err != nil && h.Logger != nil {
		h.Logger.Warn("audio stream interrupted", "error", err)
	}
}
