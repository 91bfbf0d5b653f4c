package live

import "context"

// DuplexConfig is what the session asks of the remote speech agent on open.
type DuplexConfig struct {
	Instructions string
	Voice        string
	// Tools lists the operations the agent may call back.
	Tools []ToolDeclaration
	// Transcribe enables transcript capture for input and output audio.
	TranscribeInput  bool
	TranscribeOutput bool
	InputSampleRate  int
}

// ToolDeclaration declares a remote-callable operation with string params.
type ToolDeclaration struct {
	Name        string
	Description string
	Params      map[string]string
	Required    []string
}

// EndInterviewDeclaration is the tool the agent calls to finish.
func EndInterviewDeclaration() ToolDeclaration {
	return ToolDeclaration{
		Name:        EndInterviewTool,
		Description: "Ends the interview. Call this right after speaking the closing line.",
		Params:      map[string]string{"reason": "Why the interview is ending, for example \"Completed\"."},
		Required:    []string{"reason"},
	}
}

// ToolCall is one call in a tool-call batch from the agent.
type ToolCall struct {
	ID   string
	Name string
	Args map[string]any
}

// ToolResponse acknowledges a ToolCall.
type ToolResponse struct {
	ID       string
	Name     string
	Response map[string]any
}

// InboundEvent is one decoded server message. A single message may carry
// several parts at once; the orchestrator handles them in a fixed order.
type InboundEvent struct {
	ToolCalls    []ToolCall
	Interrupted  bool
	ModelTurn    bool
	TurnComplete bool
	AgentText    string
	UserText     string
	// Audio holds base64 PCM16 chunks at the receive sample rate.
	Audio []string
}

// Empty reports whether the event carries nothing the session acts on.
func (e InboundEvent) Empty() bool {
	return len(e.ToolCalls) == 0 && !e.Interrupted && !e.ModelTurn && !e.TurnComplete &&
		e.AgentText == "" && e.UserText == "" && len(e.Audio) == 0
}

// Duplex is an open streaming connection to the remote agent.
//
// Sends are best-effort. Events is closed when the connection ends; Err then
// reports whether it ended with an error. Close is idempotent.
type Duplex interface {
	SendAudio(chunk string) error
	SendText(text string) error
	SendToolResponses(responses []ToolResponse) error
	Events() <-chan InboundEvent
	Err() error
	Close() error
}

// Dialer opens Duplex connections. Dial returns once the remote side has
// acknowledged setup.
type Dialer interface {
	Dial(ctx context.Context, cfg DuplexConfig) (Duplex, error)
}
