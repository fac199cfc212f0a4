package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Mode string

const (
	ModeSIP     Mode = "SIP"
	ModeConsole Mode = "CONSOLE"
)

type Config struct {
	// Worker / API listen addresses.
	AgentAddr string
	APIAddr   string

	// Session mode: SIP for telephony deployments, CONSOLE for local testing.
	Mode Mode

	// Operative prompt template for new sessions.
	PromptPath string

	// Chat behavior.
	ShowToolCallInChat bool
	ChatChunkMaxChars  int
	ChatChunkDelay     time.Duration

	// Chat inactivity handling.
	InactivityTimeout    time.Duration
	WarningBeforeTimeout time.Duration

	// Voice behavior.
	IdleCallHangup     bool
	StoreTranscription bool
	RecordAudio        bool
	BackgroundAudio    bool

	// Knowledge retrieval backend.
	RAGBaseURL string
	RAGAPIKey  string

	// LLM prompt runner.
	LLMModel  string
	LLMAPIKey string

	// Persistent store. Empty means in-memory (CONSOLE mode / tests).
	DatabaseURL string

	// Telephony dispatch.
	PlivoAuthID     string
	PlivoAuthToken  string
	PlivoFromNumber string
	AnswerBaseURL   string

	// Recording storage.
	S3Bucket string
	S3Region string

	// Transport timeouts.
	WSWriteTimeout   time.Duration
	WSPingInterval   time.Duration
	WSReadTimeout    time.Duration
	HandshakeTimeout time.Duration

	// CORS for the API server.
	CORSAllowedOrigins map[string]struct{}

	// Operational defaults.
	ReadHeaderTimeout   time.Duration
	ReadTimeout         time.Duration
	ShutdownGracePeriod time.Duration
}

func LoadFromEnv() (Config, error) {
	cfg := Config{
		AgentAddr:            envOr("VAANI_AGENT_ADDR", ":8090"),
		APIAddr:              envOr("VAANI_API_ADDR", ":8080"),
		Mode:                 Mode(strings.ToUpper(envOr("VAANI_MODE", string(ModeSIP)))),
		PromptPath:           envOr("VAANI_PROMPT_PATH", "prompts/incoming_call.tmpl"),
		ShowToolCallInChat:   envBoolOr("VAANI_SHOW_TOOL_CALL_IN_CHAT", false),
		ChatChunkMaxChars:    envIntOr("VAANI_CHAT_CHUNK_MAX_CHARS", 50),
		ChatChunkDelay:       envDurationOr("VAANI_CHAT_CHUNK_DELAY", 100*time.Millisecond),
		InactivityTimeout:    envDurationOr("VAANI_CHAT_INACTIVITY_TIMEOUT", 1800*time.Second),
		WarningBeforeTimeout: envDurationOr("VAANI_CHAT_WARNING_BEFORE_TIMEOUT", 300*time.Second),
		IdleCallHangup:       envBoolOr("VAANI_IDLE_CALL_HANGUP", false),
		StoreTranscription:   envBoolOr("VAANI_STORE_TRANSCRIPTION", true),
		RecordAudio:          envBoolOr("VAANI_RECORD_AUDIO", false),
		BackgroundAudio:      envBoolOr("VAANI_BACKGROUND_AUDIO", false),
		RAGBaseURL:           envOr("VAANI_RAG_BASE_URL", ""),
		RAGAPIKey:            envOr("VAANI_RAG_API_KEY", ""),
		LLMModel:             envOr("VAANI_LLM_MODEL", "gemini-2.0-flash"),
		LLMAPIKey:            envOr("VAANI_LLM_API_KEY", ""),
		DatabaseURL:          envOr("VAANI_DATABASE_URL", ""),
		PlivoAuthID:          envOr("PLIVO_AUTH_ID", ""),
		PlivoAuthToken:       envOr("PLIVO_AUTH_TOKEN", ""),
		PlivoFromNumber:      envOr("PLIVO_FROM_NUMBER", ""),
		AnswerBaseURL:        envOr("VAANI_ANSWER_BASE_URL", ""),
		S3Bucket:             envOr("VAANI_S3_BUCKET", ""),
		S3Region:             envOr("VAANI_S3_REGION", "us-east-1"),
		WSWriteTimeout:       envDurationOr("VAANI_WS_WRITE_TIMEOUT", 5*time.Second),
		WSPingInterval:       envDurationOr("VAANI_WS_PING_INTERVAL", 20*time.Second),
		WSReadTimeout:        envDurationOr("VAANI_WS_READ_TIMEOUT", 0),
		HandshakeTimeout:     envDurationOr("VAANI_HANDSHAKE_TIMEOUT", 5*time.Second),
		CORSAllowedOrigins:   make(map[string]struct{}),
		ReadHeaderTimeout:    envDurationOr("VAANI_READ_HEADER_TIMEOUT", 10*time.Second),
		ReadTimeout:          envDurationOr("VAANI_READ_TIMEOUT", 30*time.Second),
		ShutdownGracePeriod:  envDurationOr("VAANI_SHUTDOWN_GRACE_PERIOD", 30*time.Second),
	}

	switch cfg.Mode {
	case ModeSIP, ModeConsole:
	default:
		return Config{}, fmt.Errorf("VAANI_MODE must be one of SIP|CONSOLE")
	}

	for _, origin := range splitCSV(os.Getenv("VAANI_CORS_ORIGINS")) {
		cfg.CORSAllowedOrigins[origin] = struct{}{}
	}

	if cfg.ChatChunkMaxChars <= 0 {
		return Config{}, fmt.Errorf("VAANI_CHAT_CHUNK_MAX_CHARS must be > 0")
	}
	if cfg.InactivityTimeout <= 0 {
		return Config{}, fmt.Errorf("VAANI_CHAT_INACTIVITY_TIMEOUT must be > 0")
	}
	if cfg.WarningBeforeTimeout <= 0 || cfg.WarningBeforeTimeout >= cfg.InactivityTimeout {
		return Config{}, fmt.Errorf("VAANI_CHAT_WARNING_BEFORE_TIMEOUT must be > 0 and < inactivity timeout")
	}
	if cfg.WSWriteTimeout <= 0 {
		return Config{}, fmt.Errorf("VAANI_WS_WRITE_TIMEOUT must be > 0")
	}
	if cfg.WSPingInterval <= 0 {
		return Config{}, fmt.Errorf("VAANI_WS_PING_INTERVAL must be > 0")
	}
	if cfg.WSReadTimeout < 0 {
		return Config{}, fmt.Errorf("VAANI_WS_READ_TIMEOUT must be >= 0")
	}
	if cfg.HandshakeTimeout <= 0 {
		return Config{}, fmt.Errorf("VAANI_HANDSHAKE_TIMEOUT must be > 0")
	}
	if cfg.ShutdownGracePeriod <= 0 {
		return Config{}, fmt.Errorf("VAANI_SHUTDOWN_GRACE_PERIOD must be > 0")
	}

	return cfg, nil
}

func splitCSV(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}

func envOr(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envIntOr(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func envBoolOr(key string, def bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	switch strings.ToLower(raw) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	case "0", "false", "f", "no", "n", "off":
		return false
	default:
		return def
	}
}

func envDurationOr(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return d
}
