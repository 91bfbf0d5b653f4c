package live

import "time"

// Event is the interface for all interview session events.
type Event interface {
	// EventType returns the event type string for serialization.
	EventType() string
}

// StatusEvent is emitted on every status transition.
type StatusEvent struct {
	Status Status
	Err    error
}

func (e *StatusEvent) EventType() string { return "status" }

// SpeakingEvent reports the candidate's VAD state.
type SpeakingEvent struct {
	Speaking bool
	RMS      float64
}

func (e *SpeakingEvent) EventType() string { return "speaking" }

// AgentSpeakingEvent reports whether the agent is mid-utterance.
type AgentSpeakingEvent struct {
	Speaking bool
}

func (e *AgentSpeakingEvent) EventType() string { return "agent_speaking" }

// TranscriptEvent carries the full display list after a change.
type TranscriptEvent struct {
	Lines []Line
}

func (e *TranscriptEvent) EventType() string { return "transcript" }

// TimeRemainingEvent is emitted once per countdown tick.
type TimeRemainingEvent struct {
	Remaining time.Duration
}

func (e *TimeRemainingEvent) EventType() string { return "time_remaining" }

// NudgeEvent carries the silence-protocol status line. Empty text clears it.
type NudgeEvent struct {
	Text   string
	Strike int
	Skip   bool
}

func (e *NudgeEvent) EventType() string { return "nudge" }

// WarningEvent carries the proctoring banner. Empty text clears it.
type WarningEvent struct {
	Text    string
	Strikes int
}

func (e *WarningEvent) EventType() string { return "warning" }

// TerminatingEvent is emitted once, when the termination latch is set.
type TerminatingEvent struct {
	Reason string
}

func (e *TerminatingEvent) EventType() string { return "terminating" }

// CompletedEvent is emitted after teardown with the scoring input.
type CompletedEvent struct {
	Transcript string
	Lines      []Line
	Reason     string
}

func (e *CompletedEvent) EventType() string { return "completed" }
