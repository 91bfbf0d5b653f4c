package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/vango-go/vai-interview/pkg/gateway/mw"
)

func TestNotFoundHandler_NamesTheRoute(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/v1/interviews", nil)
	req = req.WithContext(mw.WithRequestID(req.Context(), "req_nf"))
	rr := httptest.NewRecorder()
	NotFoundHandler{}.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("status=%d", rr.Code)
	}
	var body struct {
		Error struct {
			Type      string `json:"type"`
			Message   string `json:"message"`
			Code      string `json:"code"`
			RequestID string `json:"request_id"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Error.Type != "not_found_error" || body.Error.Code != "unknown_route" {
		t.Fatalf("error=%+v", body.Error)
	}
	if body.Error.Message != "no route for POST /v1/interviews" {
		t.Fatalf("message=%q", body.Error.Message)
	}
	if body.Error.RequestID != "req_nf" {
		t.Fatalf("request_id=%q", body.Error.RequestID)
	}
}
