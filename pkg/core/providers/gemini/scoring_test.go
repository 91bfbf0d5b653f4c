package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/vango-go/vai-interview/pkg/core/live"
	"github.com/vango-go/vai-interview/pkg/core/report"
)

func newScoringServer(t *testing.T, status int, body string, seen chan<- map[string]any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, ":generateContent") {
			http.NotFound(w, r)
			return
		}
		if seen != nil {
			raw, _ := io.ReadAll(r.Body)
			var req map[string]any
			_ = json.Unmarshal(raw, &req)
			seen <- req
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func candidateResponse(text string) string {
	raw, _ := json.Marshal(map[string]any{
		"candidates": []any{map[string]any{
			"content": map[string]any{
				"role":  "model",
				"parts": []any{map[string]any{"text": text}},
			},
		}},
	})
	return string(raw)
}

func TestScorer_Score(t *testing.T) {
	eval := `{"rating":12,"feedback":"Strong systems knowledge.","questions":[{"question":"What is a goroutine?","candidateAnswerSummary":"Lightweight thread","rating":8,"feedback":"Good"}]}`
	seen := make(chan map[string]any, 1)
	srv := newScoringServer(t, http.StatusOK, candidateResponse(eval), seen)

	p := New("test-key", WithBaseURL(srv.URL), WithScoringModel("gemini-score-test"))
	scorer, err := p.NewScorer(context.Background())
	if err != nil {
		t.Fatalf("NewScorer: %v", err)
	}

	got, err := scorer.Score(context.Background(), report.ScoreRequest{
		Candidate:  live.Candidate{Name: "Ada", Role: "Backend Engineer", Skills: []string{"Go", "Postgres"}},
		Transcript: "Interviewer: What is a goroutine?\nCandidate: A lightweight thread.",
	})
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if got.Rating != 10 {
		t.Fatalf("rating=%d, want clamped 10", got.Rating)
	}
	if len(got.Questions) != 1 || got.Questions[0].CandidateAnswerSummary != "Lightweight thread" {
		t.Fatalf("questions=%+v", got.Questions)
	}

	req := <-seen
	gen, _ := req["generationConfig"].(map[string]any)
	if gen["responseMimeType"] != "application/json" || gen["responseSchema"] == nil {
		t.Fatalf("generationConfig=%v", gen)
	}
	raw, _ := json.Marshal(req["contents"])
	if !strings.Contains(string(raw), "Backend Engineer") || !strings.Contains(string(raw), "A lightweight thread.") {
		t.Fatalf("contents=%s", raw)
	}
}

func TestScorer_MapsAPIErrors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		wantType  ErrorType
		retryable bool
	}{
		{
			name:      "rate limited",
			status:    http.StatusTooManyRequests,
			body:      `{"error":{"code":429,"message":"quota","status":"RESOURCE_EXHAUSTED"}}`,
			wantType:  ErrRateLimit,
			retryable: true,
		},
		{
			name:     "bad request",
			status:   http.StatusBadRequest,
			body:     `{"error":{"code":400,"message":"bad schema","status":"INVALID_ARGUMENT"}}`,
			wantType: ErrInvalidRequest,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newScoringServer(t, tt.status, tt.body, nil)
			scorer, err := New("test-key", WithBaseURL(srv.URL)).NewScorer(context.Background())
			if err != nil {
				t.Fatalf("NewScorer: %v", err)
			}
			_, err = scorer.Score(context.Background(), report.ScoreRequest{Transcript: "x"})
			var gErr *Error
			if !errors.As(err, &gErr) {
				t.Fatalf("err=%T %v", err, err)
			}
			if gErr.Type != tt.wantType || gErr.IsRetryable() != tt.retryable {
				t.Fatalf("err=%+v", gErr)
			}
		})
	}
}

func TestScorer_RejectsNonJSON(t *testing.T) {
	srv := newScoringServer(t, http.StatusOK, candidateResponse("not json"), nil)
	scorer, err := New("test-key", WithBaseURL(srv.URL)).NewScorer(context.Background())
	if err != nil {
		t.Fatalf("NewScorer: %v", err)
	}
	_, err = scorer.Score(context.Background(), report.ScoreRequest{Transcript: "x"})
	var gErr *Error
	if !errors.As(err, &gErr) || gErr.Type != ErrProvider {
		t.Fatalf("err=%v", err)
	}
}

func TestNewScorer_RequiresKey(t *testing.T) {
	if _, err := New("").NewScorer(context.Background()); err == nil {
		t.Fatalf("expected error")
	}
}

func TestBuildScoringPrompt(t *testing.T) {
	got := buildScoringPrompt(report.ScoreRequest{
		Candidate:  live.Candidate{Name: "Ada", Role: "SRE", Language: "German"},
		Transcript: "Interviewer: Hallo",
	})
	for _, want := range []string{"Candidate: Ada", "Role: SRE", "Interview language: German", "Transcript:\nInterviewer: Hallo"} {
		if !strings.Contains(got, want) {
			t.Fatalf("prompt missing %q:\n%s", want, got)
		}
	}
}
