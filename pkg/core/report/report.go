// Package report turns a finished interview into a scored or disqualified
// report.
package report

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vango-go/vai-interview/pkg/core/live"
)

// PassThreshold is the lowest overall rating that does not pass.
const PassThreshold = 6

// Status is the outcome of an interview.
type Status string

const (
	StatusPassed       Status = "passed"
	StatusFailed       Status = "failed"
	StatusDisqualified Status = "disqualified"
)

// QuestionScore is the per-question part of an evaluation.
type QuestionScore struct {
	Question               string `json:"question"`
	CandidateAnswerSummary string `json:"candidateAnswerSummary"`
	Rating                 int    `json:"rating"`
	Feedback               string `json:"feedback"`
}

// Evaluation is the scoring endpoint's response.
type Evaluation struct {
	Rating    int             `json:"rating"`
	Feedback  string          `json:"feedback"`
	Questions []QuestionScore `json:"questions"`
}

// Normalize clamps every rating into 1..10.
func (e Evaluation) Normalize() Evaluation {
	e.Rating = clampRating(e.Rating)
	if len(e.Questions) > 0 {
		qs := make([]QuestionScore, len(e.Questions))
		for i, q := range e.Questions {
			q.Rating = clampRating(q.Rating)
			qs[i] = q
		}
		e.Questions = qs
	}
	return e
}

// Passed reports whether the overall rating clears the threshold.
func (e Evaluation) Passed() bool { return e.Rating > PassThreshold }

func clampRating(r int) int {
	switch {
	case r < 1:
		return 1
	case r > 10:
		return 10
	default:
		return r
	}
}

// ScoreRequest is everything the scorer sees.
type ScoreRequest struct {
	Candidate  live.Candidate
	Transcript string
}

// Scorer rates a transcript against the candidate profile.
type Scorer interface {
	Score(ctx context.Context, req ScoreRequest) (Evaluation, error)
}

// Report is the final artifact of an interview.
type Report struct {
	ID         string         `json:"id"`
	SessionID  string         `json:"session_id,omitempty"`
	Candidate  live.Candidate `json:"candidate"`
	Transcript string         `json:"transcript"`
	Reason     string         `json:"reason"`
	Status     Status         `json:"status"`
	Evaluation *Evaluation    `json:"evaluation,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// ErrNoScorer is returned when a completed interview needs scoring but no
// scorer is configured.
var ErrNoScorer = errors.New("report: scorer is required")

// NeedsScoring reports whether reason sends the interview to scoring. An
// empty reason or "Completed" does; anything else is a disqualification.
func NeedsScoring(reason string) bool {
	reason = strings.TrimSpace(reason)
	return reason == "" || reason == live.ReasonCompleted
}

// Options carries optional Finalize inputs.
type Options struct {
	SessionID string
	Now       func() time.Time
}

// Finalize builds the report for a finished interview. Disqualifications
// carry the reason verbatim and never call the scorer.
func Finalize(ctx context.Context, scorer Scorer, candidate live.Candidate, transcript, reason string, opts Options) (Report, error) {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	r := Report{
		ID:         uuid.NewString(),
		SessionID:  opts.SessionID,
		Candidate:  candidate,
		Transcript: transcript,
		Reason:     reason,
		CreatedAt:  now().UTC(),
	}
	if !NeedsScoring(reason) {
		r.Status = StatusDisqualified
		return r, nil
	}
	if r.Reason == "" {
		r.Reason = live.ReasonCompleted
	}
	if scorer == nil {
		return r, ErrNoScorer
	}

	eval, err := scorer.Score(ctx, ScoreRequest{Candidate: candidate, Transcript: transcript})
	if err != nil {
		return r, fmt.Errorf("score transcript: %w", err)
	}
	eval = eval.Normalize()
	r.Evaluation = &eval
	if eval.Passed() {
		r.Status = StatusPassed
	} else {
		r.Status = StatusFailed
	}
	return r, nil
}
