// Command vaani-agent runs the conversational worker: it accepts session
// websockets, classifies the job metadata, and drives voice or chat agents
// until the session ends.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/vaani-ai/vaani-live/internal/dotenv"
	"github.com/vaani-ai/vaani-live/pkg/agent/job"
	"github.com/vaani-ai/vaani-live/pkg/config"
	"github.com/vaani-ai/vaani-live/pkg/llm"
	"github.com/vaani-ai/vaani-live/pkg/retrieval"
	"github.com/vaani-ai/vaani-live/pkg/room"
	"github.com/vaani-ai/vaani-live/pkg/store"
)

type agentDeps struct {
	loadConfig   func() (config.Config, error)
	signalNotify func(chan<- os.Signal, ...os.Signal)
	signalStop   func(chan<- os.Signal)
}

func defaultAgentDeps() agentDeps {
	return agentDeps{
		loadConfig: config.LoadFromEnv,
		signalNotify: func(c chan<- os.Signal, sig ...os.Signal) {
			signal.Notify(c, sig...)
		},
		signalStop: signal.Stop,
	}
}

func openStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (store.Store, error) {
	if cfg.DatabaseURL == "" {
		logger.Warn("no database configured, using in-memory store")
		return store.NewMemory(), nil
	}
	if err := store.Migrate(ctx, cfg.DatabaseURL); err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return store.NewPostgres(ctx, cfg.DatabaseURL)
}

func runAgent(ctx context.Context, logger *slog.Logger, deps agentDeps) error {
	if deps.loadConfig == nil {
		return errors.New("missing loadConfig dependency")
	}
	if deps.signalNotify == nil || deps.signalStop == nil {
		return errors.New("missing signal dependency")
	}
	if logger == nil {
		logger = slog.Default()
	}

	cfg, err := deps.loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}

	var runner llm.Runner
	if cfg.LLMAPIKey != "" {
		runner, err = llm.NewGemini(ctx, cfg.LLMAPIKey, cfg.LLMModel)
		if err != nil {
			return fmt.Errorf("create llm runner: %w", err)
		}
	}

	var enricher retrieval.Enricher
	if cfg.RAGBaseURL != "" {
		enricher = retrieval.NewHTTPEnricher(cfg.RAGBaseURL, cfg.RAGAPIKey)
	}

	coord, err := job.New(job.Dependencies{
		Config:   &cfg,
		Logger:   logger,
		Store:    st,
		Runner:   runner,
		Enricher: enricher,
	})
	if err != nil {
		return fmt.Errorf("build coordinator: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/healthz", healthHandler{})
	mux.Handle("/ws/session", job.SessionHandler{
		Coordinator:      coord,
		Logger:           logger,
		HandshakeTimeout: cfg.HandshakeTimeout,
		WS: room.WSConfig{
			WriteTimeout: cfg.WSWriteTimeout,
			PingInterval: cfg.WSPingInterval,
			ReadTimeout:  cfg.WSReadTimeout,
		},
		AllowedOrigins: originList(cfg.CORSAllowedOrigins),
	})

	httpSrv := &http.Server{
		Addr:              cfg.AgentAddr,
		Handler:           mux,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}

	logger.Info("starting agent worker", "addr", cfg.AgentAddr, "mode", string(cfg.Mode))

	listenErrCh := make(chan error, 1)
	go func() {
		err := httpSrv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			listenErrCh <- err
			return
		}
		listenErrCh <- nil
	}()

	sigCh := make(chan os.Signal, 1)
	deps.signalNotify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer deps.signalStop(sigCh)

	select {
	case err := <-listenErrCh:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "error", err)
	}

	// Open sessions get a final persisted end before the process exits.
	coord.Shutdown(shutdownCtx)

	if err := <-listenErrCh; err != nil {
		return fmt.Errorf("serve: %w", err)
	}

	logger.Info("agent worker stopped")
	return nil
}

func originList(origins map[string]struct{}) []string {
	out := make([]string, 0, len(origins))
	for o := range origins {
		out = append(out, o)
	}
	return out
}

type healthHandler struct{}

func (healthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

func runMain(ctx context.Context, stderr io.Writer, deps agentDeps) int {
	if stderr == nil {
		stderr = os.Stderr
	}
	logger := slog.New(slog.NewTextHandler(stderr, nil))

	if err := dotenv.Load(); err != nil {
		fmt.Fprintf(stderr, "vaani-agent: %v\n", err)
		return 1
	}

	if err := runAgent(ctx, logger, deps); err != nil {
		fmt.Fprintf(stderr, "vaani-agent: %v\n", err)
		return 1
	}
	return 0
}

func main() {
	os.Exit(runMain(context.Background(), os.Stderr, defaultAgentDeps()))
}
