package mw

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/vango-go/vai-interview/pkg/gateway/auth"
	"github.com/vango-go/vai-interview/pkg/gateway/config"
)

func reviewerConfig(mode config.AuthMode) config.Config {
	return config.Config{AuthMode: mode, APIKeys: map[string]struct{}{"rev_test": {}}}
}

func TestAuth_RequiredRejectsMissingBearer(t *testing.T) {
	h := Auth(reviewerConfig(config.AuthModeRequired), http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/reports", nil)
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
}

func TestAuth_RejectsUnknownKey(t *testing.T) {
	h := Auth(reviewerConfig(config.AuthModeOptional), http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/reports", nil)
	req.Header.Set("Authorization", "Bearer nope")
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
}

func TestAuth_ValidKeyAttachesPrincipal(t *testing.T) {
	h := Auth(reviewerConfig(config.AuthModeRequired), http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := auth.PrincipalFrom(r.Context())
		if !ok || p.APIKey != "rev_test" {
			t.Fatalf("principal=%+v ok=%v", p, ok)
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/reports", nil)
	req.Header.Set("Authorization", "Bearer rev_test")
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
}

func TestAuth_InterviewWebSocketUpgradeBypass(t *testing.T) {
	h := Auth(reviewerConfig(config.AuthModeRequired), http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/interview", nil)
	req.Header.Set("Connection", "Upgrade")
	req.Header.Set("Upgrade", "websocket")
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
}

func TestAuth_ProbesBypass(t *testing.T) {
	h := Auth(reviewerConfig(config.AuthModeRequired), http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	for _, path := range []string{"/healthz", "/readyz"} {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		if rr.Code != http.StatusNoContent {
			t.Fatalf("%s status=%d", path, rr.Code)
		}
	}
}
