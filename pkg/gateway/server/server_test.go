package server

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/vango-go/vai-interview/pkg/core/live"
	"github.com/vango-go/vai-interview/pkg/core/report"
	"github.com/vango-go/vai-interview/pkg/gateway/config"
	"github.com/vango-go/vai-interview/pkg/store"
)

func testConfig(mode config.AuthMode) config.Config {
	return config.Config{
		AuthMode:           mode,
		APIKeys:            map[string]struct{}{"rev_test": {}},
		CORSAllowedOrigins: map[string]struct{}{},
		InterviewDuration:  time.Minute,
		MaxSessions:        4,
		HandshakeTimeout:   time.Second,
	}
}

func newTestServer(t *testing.T, mode config.AuthMode) (*Server, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	return New(testConfig(mode), logger, Dependencies{Store: mem}), mem
}

func TestServer_UnknownRoute_ReturnsJSON404(t *testing.T) {
	s, _ := newTestServer(t, config.AuthModeDisabled)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/does-not-exist", nil)
	s.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
	if ct := rr.Header().Get("Content-Type"); !strings.Contains(ct, "application/json") {
		t.Fatalf("content-type=%q", ct)
	}
	if !strings.Contains(rr.Body.String(), `"type":"not_found_error"`) {
		t.Fatalf("unexpected body: %q", rr.Body.String())
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Fatalf("missing X-Request-ID")
	}
}

func TestServer_ReportsRequireReviewerKey(t *testing.T) {
	s, mem := newTestServer(t, config.AuthModeRequired)
	if err := mem.SaveReport(context.Background(), report.Report{
		ID:        "r1",
		Candidate: live.Candidate{Name: "Ada", Role: "Backend Engineer"},
		Status:    report.StatusDisqualified,
		CreatedAt: time.Now(),
	}); err != nil {
		t.Fatalf("SaveReport: %v", err)
	}

	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/reports/r1", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}

	rr = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/reports/r1", nil)
	req.Header.Set("Authorization", "Bearer rev_test")
	s.Handler().ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), `"id":"r1"`) {
		t.Fatalf("body=%q", rr.Body.String())
	}
}

func TestServer_UnsupportedAPIVersionRejected(t *testing.T) {
	s, _ := newTestServer(t, config.AuthModeDisabled)

	req := httptest.NewRequest(http.MethodGet, "/v1/reports", nil)
	req.Header.Set("X-Interview-Version", "2")
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
}

func TestServer_InterviewRoute_Reachable(t *testing.T) {
	s, _ := newTestServer(t, config.AuthModeDisabled)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/interview", nil)
	s.Handler().ServeHTTP(rr, req)
	if rr.Code == http.StatusNotFound {
		t.Fatalf("/v1/interview unexpectedly returned 404")
	}
}

func TestServer_DrainMakesReadyzFail(t *testing.T) {
	s, _ := newTestServer(t, config.AuthModeDisabled)

	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("ready status=%d body=%q", rr.Code, rr.Body.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.DrainInterviews(ctx)

	rr = httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("draining status=%d body=%q", rr.Code, rr.Body.String())
	}

	rr = httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/interview", nil))
	if rr.Code != 529 {
		t.Fatalf("interview while draining status=%d", rr.Code)
	}
	if s.ActiveInterviews() != 0 {
		t.Fatalf("ActiveInterviews=%d", s.ActiveInterviews())
	}
}
