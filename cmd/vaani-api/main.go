// Command vaani-api serves the dashboard and CRUD endpoints: users, outbound
// call dispatch, chat session bootstrap, history, transcripts, recordings,
// feedback, models, and dashboard aggregates.
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
	"strings"
	"syscall"

	"github.com/vaani-ai/vaani-live/internal/dotenv"
	"github.com/vaani-ai/vaani-live/pkg/api"
	"github.com/vaani-ai/vaani-live/pkg/config"
	"github.com/vaani-ai/vaani-live/pkg/recordings"
	"github.com/vaani-ai/vaani-live/pkg/store"
	"github.com/vaani-ai/vaani-live/pkg/telephony"
)

type apiDeps struct {
	loadConfig   func() (config.Config, error)
	signalNotify func(chan<- os.Signal, ...os.Signal)
	signalStop   func(chan<- os.Signal)
}

func defaultAPIDeps() apiDeps {
	return apiDeps{
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

func runAPI(ctx context.Context, logger *slog.Logger, deps apiDeps) error {
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

	var dialer telephony.Dialer
	if cfg.PlivoAuthID != "" {
		dialer = telephony.NewPlivoDialer(cfg.PlivoAuthID, cfg.PlivoAuthToken, cfg.PlivoFromNumber, cfg.AnswerBaseURL)
	}

	var fetcher *recordings.Fetcher
	if cfg.S3Bucket != "" {
		fetcher, err = recordings.NewFetcher(ctx, cfg.S3Bucket, cfg.S3Region)
		if err != nil {
			return fmt.Errorf("create recordings fetcher: %w", err)
		}
	}

	srv := api.New(api.Dependencies{
		Config:     cfg,
		Logger:     logger,
		Store:      st,
		Dialer:     dialer,
		Recordings: fetcher,
		BaseURL:    baseURLFromAddr(cfg.APIAddr),
	})

	httpSrv := &http.Server{
		Addr:              cfg.APIAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ReadTimeout:       cfg.ReadTimeout,
	}

	logger.Info("starting api server", "addr", cfg.APIAddr)

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
		return fmt.Errorf("shutdown http server: %w", err)
	}

	if err := <-listenErrCh; err != nil {
		return fmt.Errorf("serve: %w", err)
	}

	logger.Info("api server stopped")
	return nil
}

// baseURLFromAddr derives the self URL used in history payload links.
// VAANI_API_BASE_URL overrides for deployments behind a proxy.
func baseURLFromAddr(addr string) string {
	if v := strings.TrimSpace(os.Getenv("VAANI_API_BASE_URL")); v != "" {
		return strings.TrimSuffix(v, "/")
	}
	if strings.HasPrefix(addr, ":") {
		return "http://localhost" + addr
	}
	return "http://" + addr
}

func runMain(ctx context.Context, stderr io.Writer, deps apiDeps) int {
	if stderr == nil {
		stderr = os.Stderr
	}
	logger := slog.New(slog.NewTextHandler(stderr, nil))

	if err := dotenv.Load(); err != nil {
		fmt.Fprintf(stderr, "vaani-api: %v\n", err)
		return 1
	}

	if err := runAPI(ctx, logger, deps); err != nil {
		fmt.Fprintf(stderr, "vaani-api: %v\n", err)
		return 1
	}
	return 0
}

func main() {
	os.Exit(runMain(context.Background(), os.Stderr, defaultAPIDeps()))
}
