package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/vaani-ai/vaani-live/pkg/store"
)

// DashboardSummaryHandler aggregates recent activity for one user.
// Query params: user_id (required), days (default 7).
type DashboardSummaryHandler struct {
	Store store.Store
	Now   func() time.Time
}

func (h DashboardSummaryHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(r.URL.Query().Get("user_id"), 10, 64)
	if err != nil {
		writeError(w, r, badRequest("user_id must be numeric", "user_id"))
		return
	}
	days := 7
	if raw := r.URL.Query().Get("days"); raw != "" {
		days, err = strconv.Atoi(raw)
		if err != nil || days <= 0 {
			writeError(w, r, badRequest("days must be a positive integer", "days"))
			return
		}
	}

	now := time.Now().UTC()
	if h.Now != nil {
		now = h.Now()
	}
	since := now.AddDate(0, 0, -days)

	summary, err := h.Store.Summary(r.Context(), userID, since)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"period_days":           days,
		"total_calls":           summary.TotalCalls,
		"total_chats":           summary.TotalChats,
		"active_chats":          summary.ActiveChats,
		"avg_call_duration_sec": summary.AvgCallDuration,
	})
}
