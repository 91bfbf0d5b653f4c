package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/vango-go/vai-interview/pkg/core"
	"github.com/vango-go/vai-interview/pkg/core/live"
	"github.com/vango-go/vai-interview/pkg/core/report"
	"github.com/vango-go/vai-interview/pkg/gateway/config"
	"github.com/vango-go/vai-interview/pkg/gateway/lifecycle"
	"github.com/vango-go/vai-interview/pkg/gateway/live/protocol"
	"github.com/vango-go/vai-interview/pkg/gateway/live/session"
	"github.com/vango-go/vai-interview/pkg/gateway/live/sessions"
	"github.com/vango-go/vai-interview/pkg/gateway/mw"
	"github.com/vango-go/vai-interview/pkg/gateway/principal"
	"github.com/vango-go/vai-interview/pkg/gateway/ratelimit"
)

// agentAudioOut is the shape of every assistant_audio_chunk.
var agentAudioOut = protocol.AudioFormat{
	Encoding:     protocol.EncodingPCMS16LE,
	SampleRateHz: 24000,
	Channels:     1,
}

// InterviewHandler handles /v1/interview websocket sessions.
type InterviewHandler struct {
	Config    config.Config
	Logger    *slog.Logger
	Limiter   *ratelimit.Limiter
	Lifecycle *lifecycle.Lifecycle
	Sessions  *sessions.Tracker

	Dialer  live.Dialer
	Scorer  report.Scorer
	Reports session.ReportSaver

	// Now overrides the clock in tests.
	Now func() time.Time
}

func (h InterviewHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqID, _ := mw.RequestIDFrom(r.Context())
	if r.Method != http.MethodGet {
		writeCoreErrorJSON(w, reqID, &core.Error{Type: core.ErrInvalidRequest, Message: "method not allowed", Code: "method_not_allowed"}, http.StatusMethodNotAllowed)
		return
	}
	if h.Lifecycle != nil && h.Lifecycle.IsDraining() {
		writeCoreErrorJSON(w, reqID, &core.Error{Type: core.ErrOverloaded, Message: "gateway is draining", Code: "draining"}, 529)
		return
	}
	if !mw.OriginAllowed(h.Config, r.Header.Get("Origin")) {
		writeCoreErrorJSON(w, reqID, &core.Error{Type: core.ErrPermission, Message: "origin is not allowed", Param: "Origin"}, http.StatusForbidden)
		return
	}
	if h.Dialer == nil {
		writeCoreErrorJSON(w, reqID, &core.Error{Type: core.ErrAPI, Message: "interview agent is not configured"}, http.StatusServiceUnavailable)
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(*http.Request) bool { return true },
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	logger := h.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := h.Now
	if now == nil {
		now = time.Now
	}

	if h.Config.WSMaxJSONMessageBytes > 0 {
		conn.SetReadLimit(h.Config.WSMaxJSONMessageBytes)
	}

	handshakeTimeout := h.Config.HandshakeTimeout
	if handshakeTimeout <= 0 {
		handshakeTimeout = 5 * time.Second
	}
	_ = conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	messageType, firstFrame, err := conn.ReadMessage()
	if err != nil {
		writeWSError(conn, "bad_request", "failed to read hello", nil)
		return
	}
	if messageType != websocket.TextMessage {
		writeWSError(conn, "bad_request", "first frame must be hello", nil)
		return
	}

	decoded, err := protocol.DecodeClientMessage(firstFrame)
	if err != nil {
		writeDecodeError(conn, err)
		return
	}
	hello, ok := decoded.(protocol.ClientHello)
	if !ok {
		writeWSError(conn, "bad_request", "first frame must be hello", nil)
		return
	}
	if err := protocol.ValidateHello(hello); err != nil {
		writeDecodeError(conn, err)
		return
	}

	client := principal.Candidate(r, h.Config)
	if h.Limiter != nil {
		dec := h.Limiter.AcquireInterview(client.Key, now())
		if !dec.Allowed {
			if dec.Global {
				writeWSError(conn, "overloaded", "too many active interviews", map[string]any{"retry_after": dec.RetryAfter})
			} else {
				writeWSError(conn, "rate_limited", "an interview is already running for this client", map[string]any{"retry_after": dec.RetryAfter})
			}
			return
		}
		defer dec.Permit.Release()
	}

	sessionID := "iv_" + uuid.NewString()
	logger = logger.With("session_id", sessionID, "request_id", reqID)
	logger.Info("interview hello", "client", client, "hello", hello.RedactedForLog())

	ack := protocol.ServerHelloAck{
		Type:            "hello_ack",
		ProtocolVersion: protocol.ProtocolVersion1,
		SessionID:       sessionID,
		AudioIn:         hello.AudioIn,
		AudioOut:        agentAudioOut,
		DurationSeconds: int(h.Config.InterviewDuration / time.Second),
		Limits: &protocol.HelloAckLimits{
			MaxAudioFrameBytes:  h.Config.WSMaxAudioFrameBytes,
			MaxJSONMessageBytes: int(h.Config.WSMaxJSONMessageBytes),
			SilenceThresholdMS:  int(h.Config.SilenceThreshold / time.Millisecond),
			MaxSilenceReminders: h.Config.MaxSilenceReminders,
			MaxViolations:       h.Config.MaxViolations,
		},
	}
	if h.Config.WSMaxAudioFPS > 0 {
		ack.Limits.MaxAudioFPS = h.Config.WSMaxAudioFPS
		ack.Limits.InboundBurstSeconds = h.Config.WSInboundBurstSeconds
	}
	if err := conn.WriteJSON(ack); err != nil {
		return
	}
	_ = conn.SetReadDeadline(time.Time{})

	bridge, err := session.New(session.Dependencies{
		Conn:      conn,
		Logger:    logger,
		Scorer:    h.Scorer,
		Reports:   h.Reports,
		Candidate: hello.Candidate,
		AudioIn:   hello.AudioIn,
		AudioOut:  agentAudioOut,
		SessionID: sessionID,
		RequestID: reqID,
		Now:       now,
		Config: session.Config{
			MaxAudioFrameBytes:  h.Config.WSMaxAudioFrameBytes,
			MaxJSONMessageBytes: h.Config.WSMaxJSONMessageBytes,
			MaxAudioFPS:         h.Config.WSMaxAudioFPS,
			InboundBurstSeconds: h.Config.WSInboundBurstSeconds,
			PingInterval:        h.Config.WSPingInterval,
			WriteTimeout:        h.Config.WSWriteTimeout,
			ReadTimeout:         h.Config.WSReadTimeout,
			ScoringTimeout:      h.Config.ScoringTimeout,
			OutboundQueueSize:   h.Config.OutboundQueueSize,
		},
	})
	if err != nil {
		writeWSError(conn, "internal", "failed to initialize interview", nil)
		return
	}

	interview, err := live.New(live.Dependencies{
		Logger:    logger,
		Dialer:    h.Dialer,
		Sink:      bridge,
		Clock:     bridge.Clock(),
		Candidate: hello.Candidate,
		Voice:     h.Config.GeminiVoice,
		SessionID: sessionID,
		Config:    h.interviewConfig(hello.AudioIn.SampleRateHz),
		Now:       now,
	})
	if err != nil {
		writeWSError(conn, "internal", "failed to initialize interview", nil)
		return
	}

	if h.Sessions != nil {
		unregister := h.Sessions.Register(sessionID, sessions.Handle{
			Cancel:    bridge.Cancel,
			Notify:    bridge.SendNotice,
			Terminate: interview.Terminate,
		})
		defer unregister()
	}

	if err := bridge.Run(interview); err != nil {
		logger.Warn("interview ended with error", "error", err)
		return
	}
	logger.Info("interview closed", "reason", interview.Reason())
}

func (h InterviewHandler) interviewConfig(captureRate int) live.Config {
	cfg := live.DefaultConfig()
	cfg.Duration = h.Config.InterviewDuration
	cfg.SilenceThreshold = h.Config.SilenceThreshold
	cfg.MaxSilenceReminders = h.Config.MaxSilenceReminders
	cfg.GraceDelay = h.Config.GraceDelay
	cfg.WarningWindow = h.Config.WarningWindow
	cfg.MaxViolations = h.Config.MaxViolations
	cfg.CaptureSampleRate = captureRate
	cfg.ReceiveSampleRate = agentAudioOut.SampleRateHz
	cfg.MaxReconnects = h.Config.MaxReconnects
	if cfg.MaxReconnects == 0 {
		cfg.MaxReconnects = -1
	}
	cfg.ReconnectDelay = h.Config.ReconnectDelay
	if h.Config.QuestionCount > 0 {
		cfg.Prompts.QuestionCount = h.Config.QuestionCount
	}
	return cfg
}

func writeDecodeError(conn *websocket.Conn, err error) {
	var de *protocol.DecodeError
	if errors.As(err, &de) {
		var details map[string]any
		if de.Param != "" {
			details = map[string]any{"param": de.Param}
		}
		writeWSError(conn, de.Code, de.Message, details)
		return
	}
	writeWSError(conn, "bad_request", "invalid hello frame", nil)
}

// writeWSError sends a fatal session error followed by a close frame.
func writeWSError(conn *websocket.Conn, code, message string, details map[string]any) {
	_ = conn.WriteJSON(protocol.ServerError{Type: "error", Scope: "session", Code: code, Message: message, Close: true, Details: details})
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, message), time.Now().Add(2*time.Second))
}
