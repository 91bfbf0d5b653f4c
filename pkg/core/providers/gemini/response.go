package gemini

import (
	"encoding/json"
	"strings"

	"github.com/vango-go/vai-interview/pkg/core/live"
)

// serverMessage is one frame received from the Live API.
type serverMessage struct {
	SetupComplete        *struct{}             `json:"setupComplete,omitempty"`
	ServerContent        *serverContent        `json:"serverContent,omitempty"`
	ToolCall             *toolCall             `json:"toolCall,omitempty"`
	ToolCallCancellation *toolCallCancellation `json:"toolCallCancellation,omitempty"`
	GoAway               *goAway               `json:"goAway,omitempty"`
}

type serverContent struct {
	ModelTurn           *content       `json:"modelTurn,omitempty"`
	TurnComplete        bool           `json:"turnComplete,omitempty"`
	Interrupted         bool           `json:"interrupted,omitempty"`
	GenerationComplete  bool           `json:"generationComplete,omitempty"`
	InputTranscription  *transcription `json:"inputTranscription,omitempty"`
	OutputTranscription *transcription `json:"outputTranscription,omitempty"`
}

type transcription struct {
	Text string `json:"text"`
}

type toolCall struct {
	FunctionCalls []functionCall `json:"functionCalls"`
}

type functionCall struct {
	ID   string         `json:"id,omitempty"`
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

type toolCallCancellation struct {
	IDs []string `json:"ids"`
}

type goAway struct {
	TimeLeft string `json:"timeLeft,omitempty"`
}

func decodeServerMessage(data []byte) (serverMessage, error) {
	var msg serverMessage
	err := json.Unmarshal(data, &msg)
	return msg, err
}

// inboundEvent flattens a server message into what the session consumes.
func (m serverMessage) inboundEvent() live.InboundEvent {
	var ev live.InboundEvent

	if m.ToolCall != nil {
		for _, fc := range m.ToolCall.FunctionCalls {
			ev.ToolCalls = append(ev.ToolCalls, live.ToolCall{ID: fc.ID, Name: fc.Name, Args: fc.Args})
		}
	}

	sc := m.ServerContent
	if sc == nil {
		return ev
	}
	ev.Interrupted = sc.Interrupted
	ev.TurnComplete = sc.TurnComplete

	var agentText []string
	if sc.ModelTurn != nil && len(sc.ModelTurn.Parts) > 0 {
		ev.ModelTurn = true
		for _, p := range sc.ModelTurn.Parts {
			if p.InlineData != nil && strings.HasPrefix(p.InlineData.MimeType, "audio/") && p.InlineData.Data != "" {
				ev.Audio = append(ev.Audio, p.InlineData.Data)
			}
			if p.Text != "" && !p.Thought {
				agentText = append(agentText, p.Text)
			}
		}
	}
	if sc.OutputTranscription != nil && sc.OutputTranscription.Text != "" {
		agentText = append(agentText, sc.OutputTranscription.Text)
	}
	ev.AgentText = strings.Join(agentText, " ")
	if sc.InputTranscription != nil {
		ev.UserText = sc.InputTranscription.Text
	}
	return ev
}
