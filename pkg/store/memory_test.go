package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vango-go/vai-interview/pkg/core/report"
)

func sampleReport(id string, at time.Time) report.Report {
	return report.Report{
		ID:         id,
		Transcript: "Interviewer: hi",
		Reason:     "Completed",
		Status:     report.StatusPassed,
		Evaluation: &report.Evaluation{Rating: 8, Feedback: "good"},
		CreatedAt:  at,
	}
}

func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	if _, err := s.GetReport(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetReport(missing) err=%v", err)
	}

	for i, id := range []string{"r1", "r2", "r3"} {
		if err := s.SaveReport(ctx, sampleReport(id, base.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatalf("SaveReport: %v", err)
		}
	}

	got, err := s.GetReport(ctx, "r2")
	if err != nil {
		t.Fatalf("GetReport: %v", err)
	}
	if got.Evaluation == nil || got.Evaluation.Rating != 8 || got.Status != report.StatusPassed {
		t.Fatalf("report=%+v", got)
	}

	list, err := s.ListReports(ctx, 2)
	if err != nil {
		t.Fatalf("ListReports: %v", err)
	}
	if len(list) != 2 || list[0].ID != "r3" || list[1].ID != "r2" {
		t.Fatalf("list=%+v", list)
	}

	if err := s.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}

func TestMemory(t *testing.T) {
	exerciseStore(t, NewMemory())
}

func TestNormalizeLimit(t *testing.T) {
	tests := []struct{ in, want int }{
		{0, DefaultListLimit},
		{-1, DefaultListLimit},
		{10, 10},
		{1000, DefaultListLimit},
	}
	for _, tt := range tests {
		if got := normalizeLimit(tt.in); got != tt.want {
			t.Errorf("normalizeLimit(%d)=%d, want %d", tt.in, got, tt.want)
		}
	}
}
