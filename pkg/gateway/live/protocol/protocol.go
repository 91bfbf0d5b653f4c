package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/vango-go/vai-interview/pkg/core/live"
	"github.com/vango-go/vai-interview/pkg/core/report"
)

const (
	ProtocolVersion1 = "1"

	EncodingPCMS16LE = "pcm_s16le"
	EncodingF32LE    = "f32le"

	ControlEndSession = "end_session"

	MinSampleRateHz = 8000
	MaxSampleRateHz = 48000
)

type DecodeError struct {
	Code    string
	Message string
	Param   string
}

func (e *DecodeError) Error() string {
	if e == nil {
		return ""
	}
	if strings.TrimSpace(e.Param) == "" {
		return e.Message
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Param)
}

func badRequest(message, param string) *DecodeError {
	return &DecodeError{Code: "bad_request", Message: message, Param: param}
}

func unsupported(message, param string) *DecodeError {
	return &DecodeError{Code: "unsupported", Message: message, Param: param}
}

// AudioFormat describes a negotiated audio shape.
type AudioFormat struct {
	Encoding     string `json:"encoding"`
	SampleRateHz int    `json:"sample_rate_hz"`
	Channels     int    `json:"channels"`
}

// BytesPerSample returns the width of one sample for the encoding, or 0.
func (f AudioFormat) BytesPerSample() int {
	switch f.Encoding {
	case EncodingPCMS16LE:
		return 2
	case EncodingF32LE:
		return 4
	default:
		return 0
	}
}

type HelloClient struct {
	Name     string `json:"name,omitempty"`
	Version  string `json:"version,omitempty"`
	Platform string `json:"platform,omitempty"`
}

type ClientHello struct {
	Type            string         `json:"type"`
	ProtocolVersion string         `json:"protocol_version"`
	Client          HelloClient    `json:"client,omitempty"`
	Candidate       live.Candidate `json:"candidate"`
	AudioIn         AudioFormat    `json:"audio_in"`
}

// RedactedForLog keeps candidate identity out of logs.
func (h ClientHello) RedactedForLog() map[string]any {
	return map[string]any{
		"type":             h.Type,
		"protocol_version": h.ProtocolVersion,
		"client":           h.Client,
		"role":             h.Candidate.Role,
		"skills":           len(h.Candidate.Skills),
		"language":         h.Candidate.Language,
		"has_job_context":  strings.TrimSpace(h.Candidate.JobContext) != "",
		"audio_in":         h.AudioIn,
	}
}

type ClientAudioFrame struct {
	Type    string `json:"type"`
	Seq     int64  `json:"seq,omitempty"`
	DataB64 string `json:"data_b64"`
}

type ClientProctorEvent struct {
	Type        string `json:"type"`
	Kind        string `json:"kind"`
	TimestampMS *int64 `json:"timestamp_ms,omitempty"`
}

type ClientControl struct {
	Type string `json:"type"`
	Op   string `json:"op"`
}

func DecodeClientMessage(data []byte) (any, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, badRequest("invalid json frame", "")
	}
	typ := strings.TrimSpace(envelope.Type)
	if typ == "" {
		return nil, badRequest("missing type", "type")
	}

	switch typ {
	case "hello":
		var msg ClientHello
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid hello frame", "")
		}
		if err := ValidateHello(msg); err != nil {
			return nil, err
		}
		return msg, nil
	case "audio_frame":
		var msg ClientAudioFrame
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid audio_frame", "")
		}
		if strings.TrimSpace(msg.DataB64) == "" {
			return nil, badRequest("audio_frame.data_b64 is required", "data_b64")
		}
		return msg, nil
	case "proctor_event":
		var msg ClientProctorEvent
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid proctor_event", "")
		}
		kind := strings.TrimSpace(msg.Kind)
		if kind == "" {
			return nil, badRequest("proctor_event.kind is required", "kind")
		}
		if _, ok := live.ParseViolationKind(kind); !ok {
			return nil, unsupported("unsupported proctor_event kind", "kind")
		}
		msg.Kind = kind
		return msg, nil
	case "control":
		var msg ClientControl
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid control", "")
		}
		op := strings.TrimSpace(msg.Op)
		if op == "" {
			return nil, badRequest("control.op is required", "op")
		}
		if op != ControlEndSession {
			return nil, unsupported("unsupported control operation", "op")
		}
		msg.Op = op
		return msg, nil
	default:
		return nil, badRequest("unsupported message type", "type")
	}
}

func ValidateHello(msg ClientHello) error {
	version := strings.TrimSpace(msg.ProtocolVersion)
	if version == "" {
		return badRequest("hello.protocol_version is required", "protocol_version")
	}
	if version != ProtocolVersion1 {
		return unsupported("unsupported protocol_version", "protocol_version")
	}
	if strings.TrimSpace(msg.Candidate.Name) == "" {
		return badRequest("hello.candidate.name is required", "candidate.name")
	}
	if strings.TrimSpace(msg.Candidate.Role) == "" {
		return badRequest("hello.candidate.role is required", "candidate.role")
	}
	if strings.TrimSpace(msg.AudioIn.Encoding) == "" {
		return badRequest("hello.audio_in.encoding is required", "audio_in.encoding")
	}
	if msg.AudioIn.BytesPerSample() == 0 {
		return unsupported("unsupported audio_in.encoding", "audio_in.encoding")
	}
	if msg.AudioIn.SampleRateHz < MinSampleRateHz || msg.AudioIn.SampleRateHz > MaxSampleRateHz {
		return badRequest(fmt.Sprintf("hello.audio_in.sample_rate_hz must be between %d and %d", MinSampleRateHz, MaxSampleRateHz), "audio_in.sample_rate_hz")
	}
	if msg.AudioIn.Channels != 1 {
		return unsupported("hello.audio_in.channels must be 1", "audio_in.channels")
	}
	return nil
}

type HelloAckLimits struct {
	MaxAudioFrameBytes  int `json:"max_audio_frame_bytes"`
	MaxJSONMessageBytes int `json:"max_json_message_bytes"`
	MaxAudioFPS         int `json:"max_audio_fps,omitempty"`
	InboundBurstSeconds int `json:"inbound_burst_seconds,omitempty"`
	SilenceThresholdMS  int `json:"silence_threshold_ms"`
	MaxSilenceReminders int `json:"max_silence_reminders"`
	MaxViolations       int `json:"max_violations"`
}

type ServerHelloAck struct {
	Type            string          `json:"type"`
	ProtocolVersion string          `json:"protocol_version"`
	SessionID       string          `json:"session_id"`
	AudioIn         AudioFormat     `json:"audio_in"`
	AudioOut        AudioFormat     `json:"audio_out"`
	DurationSeconds int             `json:"duration_seconds"`
	Limits          *HelloAckLimits `json:"limits,omitempty"`
}

type ServerError struct {
	Type      string         `json:"type"`
	Scope     string         `json:"scope,omitempty"`
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Retryable bool           `json:"retryable,omitempty"`
	Close     bool           `json:"close,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

// ServerNotice is an operational notice, such as a shutdown warning.
type ServerNotice struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ServerStatus struct {
	Type   string `json:"type"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type ServerSpeaking struct {
	Type     string  `json:"type"`
	Speaking bool    `json:"speaking"`
	RMS      float64 `json:"rms"`
}

type ServerAgentSpeaking struct {
	Type     string `json:"type"`
	Speaking bool   `json:"speaking"`
}

type ServerTranscript struct {
	Type  string      `json:"type"`
	Lines []live.Line `json:"lines"`
}

type ServerTimeRemaining struct {
	Type             string `json:"type"`
	RemainingSeconds int    `json:"remaining_seconds"`
}

type ServerNudge struct {
	Type   string `json:"type"`
	Text   string `json:"text"`
	Strike int    `json:"strike,omitempty"`
	Skip   bool   `json:"skip,omitempty"`
}

// ServerWarning is the proctoring banner. Empty text clears it.
type ServerWarning struct {
	Type    string `json:"type"`
	Text    string `json:"text"`
	Strikes int    `json:"strikes"`
}

type ServerTerminating struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

type ServerAssistantAudioChunk struct {
	Type       string `json:"type"`
	Seq        int64  `json:"seq"`
	StartMS    int64  `json:"start_ms"`
	DurationMS int64  `json:"duration_ms"`
	AudioB64   string `json:"audio_b64"`
}

type ServerAudioReset struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

type ServerReport struct {
	Type   string        `json:"type"`
	Report report.Report `json:"report"`
}

// EventFrame maps a session event onto its wire frame. CompletedEvent has no
// direct frame; it is answered with a report once scoring finishes.
func EventFrame(ev live.Event) (any, bool) {
	switch e := ev.(type) {
	case *live.StatusEvent:
		out := ServerStatus{Type: "status", Status: e.Status.String()}
		if e.Err != nil {
			out.Error = e.Err.Error()
		}
		return out, true
	case *live.SpeakingEvent:
		return ServerSpeaking{Type: "speaking", Speaking: e.Speaking, RMS: e.RMS}, true
	case *live.AgentSpeakingEvent:
		return ServerAgentSpeaking{Type: "agent_speaking", Speaking: e.Speaking}, true
	case *live.TranscriptEvent:
		lines := e.Lines
		if lines == nil {
			lines = []live.Line{}
		}
		return ServerTranscript{Type: "transcript", Lines: lines}, true
	case *live.TimeRemainingEvent:
		return ServerTimeRemaining{Type: "time_remaining", RemainingSeconds: ceilSeconds(e.Remaining)}, true
	case *live.NudgeEvent:
		return ServerNudge{Type: "nudge", Text: e.Text, Strike: e.Strike, Skip: e.Skip}, true
	case *live.WarningEvent:
		return ServerWarning{Type: "warning", Text: e.Text, Strikes: e.Strikes}, true
	case *live.TerminatingEvent:
		return ServerTerminating{Type: "terminating", Reason: e.Reason}, true
	default:
		return nil, false
	}
}

func ceilSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int((d + time.Second - 1) / time.Second)
}
