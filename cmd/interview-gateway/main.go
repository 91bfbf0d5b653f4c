package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/vango-go/vai-interview/internal/dotenv"
	"github.com/vango-go/vai-interview/pkg/core/providers/gemini"
	"github.com/vango-go/vai-interview/pkg/gateway/config"
	gatewayserver "github.com/vango-go/vai-interview/pkg/gateway/server"
	"github.com/vango-go/vai-interview/pkg/store"
)

type gatewayDeps struct {
	loadConfig   func() (config.Config, error)
	openBackends func(context.Context, config.Config, *slog.Logger) (gatewayserver.Dependencies, error)
	signalNotify func(chan<- os.Signal, ...os.Signal)
	signalStop   func(chan<- os.Signal)
}

func defaultGatewayDeps() gatewayDeps {
	return gatewayDeps{
		loadConfig:   config.LoadFromEnv,
		openBackends: openBackends,
		signalNotify: func(c chan<- os.Signal, sig ...os.Signal) {
			signal.Notify(c, sig...)
		},
		signalStop: signal.Stop,
	}
}

// openBackends wires the Gemini agent, the scorer and report storage.
func openBackends(ctx context.Context, cfg config.Config, logger *slog.Logger) (gatewayserver.Dependencies, error) {
	opts := []gemini.Option{
		gemini.WithLogger(logger),
		gemini.WithLiveModel(cfg.GeminiLiveModel),
		gemini.WithScoringModel(cfg.GeminiScoringModel),
		gemini.WithVoice(cfg.GeminiVoice),
		gemini.WithSetupTimeout(cfg.GeminiSetupTimeout),
	}
	if cfg.GeminiLiveURL != "" {
		opts = append(opts, gemini.WithLiveURL(cfg.GeminiLiveURL))
	}
	if cfg.GeminiBaseURL != "" {
		opts = append(opts, gemini.WithBaseURL(cfg.GeminiBaseURL))
	}
	provider := gemini.New(cfg.GeminiAPIKey, opts...)

	scorer, err := provider.NewScorer(ctx)
	if err != nil {
		return gatewayserver.Dependencies{}, fmt.Errorf("create scorer: %w", err)
	}

	var reports store.Store
	if cfg.DatabaseURL != "" {
		pg, err := store.OpenPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return gatewayserver.Dependencies{}, fmt.Errorf("open report store: %w", err)
		}
		reports = pg
		logger.Info("report store", "backend", "postgres")
	} else {
		reports = store.NewMemory()
		logger.Warn("report store", "backend", "memory", "note", "reports are lost on restart")
	}

	return gatewayserver.Dependencies{
		Dialer: provider.LiveDialer(),
		Scorer: scorer,
		Store:  reports,
	}, nil
}

func buildHTTPServer(cfg config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ReadTimeout:       cfg.ReadTimeout,
	}
}

func runGateway(ctx context.Context, logger *slog.Logger, deps gatewayDeps) error {
	if deps.loadConfig == nil {
		return errors.New("missing loadConfig dependency")
	}
	if deps.openBackends == nil {
		return errors.New("missing openBackends dependency")
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

	backends, err := deps.openBackends(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if backends.Store != nil {
		defer backends.Store.Close()
	}

	gw := gatewayserver.New(cfg, logger, backends)
	httpSrv := buildHTTPServer(cfg, gw.Handler())

	logger.Info("starting interview gateway",
		"addr", cfg.Addr,
		"auth_mode", cfg.AuthMode,
		"live_model", cfg.GeminiLiveModel,
		"max_sessions", cfg.MaxSessions,
	)

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
		logger.Info("shutdown signal received", "signal", sig.String(), "active_interviews", gw.ActiveInterviews())
	}

	gw.SetDraining()

	drainCtx, drainCancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
	defer drainCancel()
	gw.DrainInterviews(drainCtx)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}

	if err := <-listenErrCh; err != nil {
		return fmt.Errorf("serve: %w", err)
	}

	logger.Info("interview gateway stopped")
	return nil
}

func setupLogger(w io.Writer, level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q", level)
	}
	opts := &slog.HandlerOptions{Level: lvl}
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("invalid log format %q", format)
	}
}

func runMain(ctx context.Context, args []string, stderr io.Writer, deps gatewayDeps) int {
	if stderr == nil {
		stderr = os.Stderr
	}

	fs := flag.NewFlagSet("interview-gateway", flag.ContinueOnError)
	fs.SetOutput(stderr)
	envFile := fs.String("env-file", ".env", "dotenv file loaded before reading the environment")
	logLevel := fs.String("log-level", "info", "log level: debug, info, warn, error")
	logFormat := fs.String("log-format", "text", "log format: text or json")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	logger, err := setupLogger(stderr, *logLevel, *logFormat)
	if err != nil {
		fmt.Fprintf(stderr, "interview-gateway: %v\n", err)
		return 2
	}

	if err := dotenv.LoadFiles(*envFile); err != nil {
		fmt.Fprintf(stderr, "interview-gateway: %v\n", err)
		return 1
	}

	if err := runGateway(ctx, logger, deps); err != nil {
		fmt.Fprintf(stderr, "interview-gateway: %v\n", err)
		return 1
	}
	return 0
}

func main() {
	os.Exit(runMain(context.Background(), os.Args[1:], os.Stderr, defaultGatewayDeps()))
}
