package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/vaani-ai/vaani-live/pkg/store"
)

type FeedbackHandler struct {
	Store store.Store
	Now   func() time.Time
}

type feedbackRequest struct {
	UserID        int64  `json:"user_id"`
	FeedbackText  string `json:"feedback_text"`
	FeltNatural   int    `json:"felt_natural"`
	ResponseSpeed int    `json:"response_speed"`
	Interruptions int    `json:"interruptions"`
}

func (h FeedbackHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req feedbackRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.FeedbackText) == "" {
		writeError(w, r, badRequest("feedback_text is required", "feedback_text"))
		return
	}

	now := time.Now().UTC()
	if h.Now != nil {
		now = h.Now()
	}
	err := h.Store.InsertFeedback(r.Context(), store.Feedback{
		UserID:        req.UserID,
		FeedbackText:  req.FeedbackText,
		FeltNeutral:   req.FeltNatural,
		ResponseSpeed: req.ResponseSpeed,
		Interruptions: req.Interruptions,
		CreatedAt:     now,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Feedback submitted successfully"})
}
