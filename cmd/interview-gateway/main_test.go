package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/vango-go/vai-interview/pkg/gateway/config"
	gatewayserver "github.com/vango-go/vai-interview/pkg/gateway/server"
	"github.com/vango-go/vai-interview/pkg/store"
)

func smokeConfig() config.Config {
	return config.Config{
		Addr:                "127.0.0.1:0",
		AuthMode:            config.AuthModeDisabled,
		APIKeys:             map[string]struct{}{},
		CORSAllowedOrigins:  map[string]struct{}{},
		InterviewDuration:   time.Minute,
		MaxSessions:         2,
		HandshakeTimeout:    time.Second,
		ReadHeaderTimeout:   time.Second,
		ReadTimeout:         time.Second,
		ShutdownGracePeriod: time.Second,
	}
}

func memoryBackends(context.Context, config.Config, *slog.Logger) (gatewayserver.Dependencies, error) {
	return gatewayserver.Dependencies{Store: store.NewMemory()}, nil
}

func TestRunMain_ReturnsNonZeroWhenConfigLoadFails(t *testing.T) {
	t.Parallel()

	var stderr bytes.Buffer
	exitCode := runMain(context.Background(), []string{"-env-file", filepath.Join(t.TempDir(), "missing.env")}, &stderr, gatewayDeps{
		loadConfig: func() (config.Config, error) {
			return config.Config{}, errors.New("boom")
		},
		openBackends: func(context.Context, config.Config, *slog.Logger) (gatewayserver.Dependencies, error) {
			t.Fatalf("openBackends should not be called when config load fails")
			return gatewayserver.Dependencies{}, nil
		},
		signalNotify: func(c chan<- os.Signal, sig ...os.Signal) {},
		signalStop:   func(c chan<- os.Signal) {},
	})

	if exitCode != 1 {
		t.Fatalf("exitCode=%d, want 1", exitCode)
	}
	if !strings.Contains(stderr.String(), "boom") {
		t.Fatalf("stderr=%q", stderr.String())
	}
}

func TestRunMain_RejectsBadLogLevel(t *testing.T) {
	t.Parallel()

	var stderr bytes.Buffer
	exitCode := runMain(context.Background(), []string{"-log-level", "loud"}, &stderr, defaultGatewayDeps())
	if exitCode != 2 {
		t.Fatalf("exitCode=%d, want 2", exitCode)
	}
}

func TestRunMain_BackendFailure(t *testing.T) {
	t.Parallel()

	var stderr bytes.Buffer
	exitCode := runMain(context.Background(), []string{"-env-file", filepath.Join(t.TempDir(), "missing.env")}, &stderr, gatewayDeps{
		loadConfig: func() (config.Config, error) { return smokeConfig(), nil },
		openBackends: func(context.Context, config.Config, *slog.Logger) (gatewayserver.Dependencies, error) {
			return gatewayserver.Dependencies{}, errors.New("open report store: refused")
		},
		signalNotify: func(c chan<- os.Signal, sig ...os.Signal) {},
		signalStop:   func(c chan<- os.Signal) {},
	})
	if exitCode != 1 {
		t.Fatalf("exitCode=%d, want 1", exitCode)
	}
	if !strings.Contains(stderr.String(), "refused") {
		t.Fatalf("stderr=%q", stderr.String())
	}
}

func TestRunGateway_StopsOnSignal(t *testing.T) {
	t.Parallel()

	notified := make(chan chan<- os.Signal, 1)
	done := make(chan error, 1)
	go func() {
		done <- runGateway(context.Background(), slog.New(slog.NewTextHandler(io.Discard, nil)), gatewayDeps{
			loadConfig:   func() (config.Config, error) { return smokeConfig(), nil },
			openBackends: memoryBackends,
			signalNotify: func(c chan<- os.Signal, sig ...os.Signal) { notified <- c },
			signalStop:   func(c chan<- os.Signal) {},
		})
	}()

	select {
	case c := <-notified:
		c <- syscall.SIGTERM
	case <-time.After(2 * time.Second):
		t.Fatalf("signal handler never installed")
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("runGateway: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("runGateway did not stop")
	}
}

func TestBuildHTTPServer_UsesConfiguredAddress(t *testing.T) {
	t.Parallel()

	cfg := config.Config{
		Addr:              "127.0.0.1:9999",
		ReadHeaderTimeout: 2 * time.Second,
		ReadTimeout:       3 * time.Second,
	}

	srv := buildHTTPServer(cfg, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	if srv.Addr != cfg.Addr {
		t.Fatalf("Addr=%q, want %q", srv.Addr, cfg.Addr)
	}
	if srv.ReadHeaderTimeout != cfg.ReadHeaderTimeout {
		t.Fatalf("ReadHeaderTimeout=%v, want %v", srv.ReadHeaderTimeout, cfg.ReadHeaderTimeout)
	}
	if srv.ReadTimeout != cfg.ReadTimeout {
		t.Fatalf("ReadTimeout=%v, want %v", srv.ReadTimeout, cfg.ReadTimeout)
	}
}

func TestSetupLogger(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger, err := setupLogger(&buf, "warn", "json")
	if err != nil {
		t.Fatalf("setupLogger: %v", err)
	}
	logger.Info("hidden")
	logger.Warn("shown", "k", "v")
	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), `"msg":"shown"`) {
		t.Fatalf("log output=%q", buf.String())
	}
	if _, err := setupLogger(&buf, "info", "xml"); err == nil {
		t.Fatalf("expected error for unknown format")
	}
}

func TestGatewayHandlerStack_Smoke(t *testing.T) {
	t.Parallel()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	backends, _ := memoryBackends(context.Background(), smokeConfig(), logger)
	gw := gatewayserver.New(smokeConfig(), logger, backends)

	ts := httptest.NewServer(gw.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz error: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status=%d, want %d", resp.StatusCode, http.StatusOK)
	}
}
