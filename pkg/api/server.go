// Package api serves the dashboard and CRUD endpoints backing the frontend.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/vaani-ai/vaani-live/pkg/api/handlers"
	"github.com/vaani-ai/vaani-live/pkg/api/mw"
	"github.com/vaani-ai/vaani-live/pkg/config"
	"github.com/vaani-ai/vaani-live/pkg/recordings"
	"github.com/vaani-ai/vaani-live/pkg/store"
	"github.com/vaani-ai/vaani-live/pkg/telephony"
)

// Dependencies carries what the API server needs. Dialer and Recordings are
// optional; endpoints that need them report unconfigured when absent.
type Dependencies struct {
	Config     config.Config
	Logger     *slog.Logger
	Store      store.Store
	Dialer     telephony.Dialer
	Recordings *recordings.Fetcher
	BaseURL    string
	Now        func() time.Time
}

type Server struct {
	deps Dependencies
	mux  *http.ServeMux
}

func New(deps Dependencies) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Now == nil {
		deps.Now = func() time.Time { return time.Now().UTC() }
	}
	s := &Server{deps: deps, mux: http.NewServeMux()}
	s.routes()
	return s
}

func (s *Server) routes() {
	d := s.deps

	s.mux.Handle("GET /{$}", handlers.RootHandler{})
	s.mux.Handle("GET /health", handlers.HealthHandler{})

	s.mux.Handle("POST /api/users/", handlers.UsersHandler{Store: d.Store})
	s.mux.Handle("POST /api/login/", handlers.LoginHandler{Store: d.Store})

	s.mux.Handle("POST /api/trigger-call/", handlers.TriggerCallHandler{
		Store:      d.Store,
		Dialer:     d.Dialer,
		FromNumber: d.Config.PlivoFromNumber,
		BaseURL:    d.BaseURL,
		Logger:     d.Logger,
		Now:        d.Now,
	})
	s.mux.Handle("GET /api/call-history/{user_id}/{client_name}", handlers.CallHistoryHandler{
		Store:   d.Store,
		BaseURL: d.BaseURL,
	})
	s.mux.Handle("GET /api/transcript/{call_id}", handlers.TranscriptHandler{Store: d.Store})
	s.mux.Handle("GET /api/stream/{call_id}", handlers.AudioStreamHandler{
		Recordings: d.Recordings,
		Logger:     d.Logger,
	})

	s.mux.Handle("POST /api/trigger-chat/", handlers.TriggerChatHandler{Now: d.Now})
	s.mux.Handle("GET /api/chat-history/{user_id}", handlers.ChatHistoryHandler{Store: d.Store})
	s.mux.Handle("GET /api/chat-log/{session_id}", handlers.ChatLogHandler{Store: d.Store})
	s.mux.Handle("GET /api/sessions/{user_id}/{client_name}", handlers.SessionsHandler{
		Store:   d.Store,
		BaseURL: d.BaseURL,
	})

	s.mux.Handle("GET /api/models/{client}", handlers.ModelsListHandler{Store: d.Store})
	s.mux.Handle("POST /api/models/", handlers.ModelCreateHandler{Store: d.Store})
	s.mux.Handle("PUT /api/models/{model_id}", handlers.ModelUpdateHandler{Store: d.Store})

	s.mux.Handle("POST /api/submit-feedback/", handlers.FeedbackHandler{Store: d.Store, Now: d.Now})
	s.mux.Handle("GET /api/dashboard/summary", handlers.DashboardSummaryHandler{Store: d.Store, Now: d.Now})
}

func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	h = mw.CORS(s.deps.Config.CORSAllowedOrigins, h)
	h = mw.Recover(s.deps.Logger, h)
	h = mw.AccessLog(s.deps.Logger, h)
	h = mw.RequestID(h)
	return h
}
