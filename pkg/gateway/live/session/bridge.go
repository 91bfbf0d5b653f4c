package session

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vango-go/vai-interview/pkg/core/live"
	"github.com/vango-go/vai-interview/pkg/core/report"
	"github.com/vango-go/vai-interview/pkg/gateway/live/protocol"
)

const (
	// ReasonDisconnected ends an interview whose browser connection dropped.
	ReasonDisconnected = "Candidate disconnected"
	// ReasonServerShutdown ends interviews still running when the gateway stops.
	ReasonServerShutdown = "Interview interrupted: server shutting down"

	outboundPriorityQueueSize = 8
	reportSaveTimeout         = 5 * time.Second
)

var errBackpressure = errors.New("live outbound backpressure")

// Config bounds one candidate connection.
type Config struct {
	MaxAudioFrameBytes  int
	MaxJSONMessageBytes int64
	MaxAudioFPS         int
	InboundBurstSeconds int
	PingInterval        time.Duration
	WriteTimeout        time.Duration
	ReadTimeout         time.Duration
	ScoringTimeout      time.Duration
	OutboundQueueSize   int
}

// Interview is the orchestrator side of a bridge. *live.Session implements it.
type Interview interface {
	Run(ctx context.Context) error
	Events() <-chan live.Event
	PushFrame(samples []float32) bool
	ReportViolation(kind live.ViolationKind) bool
	Terminate(reason string) bool
}

// ReportSaver persists finished reports.
type ReportSaver interface {
	SaveReport(ctx context.Context, r report.Report) error
}

type Dependencies struct {
	Conn      *websocket.Conn
	Logger    *slog.Logger
	Scorer    report.Scorer
	Reports   ReportSaver
	Candidate live.Candidate
	AudioIn   protocol.AudioFormat
	AudioOut  protocol.AudioFormat
	SessionID string
	RequestID string
	Config    Config
	Now       func() time.Time
}

// Bridge connects one candidate websocket to one interview. It is the
// interview's playback sink: agent audio leaves as assistant_audio_chunk
// frames stamped with a start position on Clock, and stopping a chunk sends
// a single audio_reset covering everything queued so far.
type Bridge struct {
	conn      *websocket.Conn
	logger    *slog.Logger
	scorer    report.Scorer
	reports   ReportSaver
	candidate live.Candidate
	audioIn   protocol.AudioFormat
	audioOut  protocol.AudioFormat
	sessionID string
	cfg       Config
	now       func() time.Time
	clock     *live.WallClock

	ctx    context.Context
	cancel context.CancelFunc

	outboundPriority chan outboundFrame
	outboundNormal   chan outboundFrame

	audioSeq atomic.Int64
	resetSeq atomic.Int64
}

type inboundFrame struct {
	messageType int
	data        []byte
	err         error
}

type finalizeResult struct {
	report report.Report
	err    error
}

func New(deps Dependencies) (*Bridge, error) {
	if deps.Conn == nil {
		return nil, fmt.Errorf("connection is required")
	}
	if deps.AudioIn.BytesPerSample() == 0 {
		return nil, fmt.Errorf("unsupported audio_in encoding %q", deps.AudioIn.Encoding)
	}
	if deps.AudioOut.SampleRateHz <= 0 {
		return nil, fmt.Errorf("audio_out sample rate must be > 0")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Config.OutboundQueueSize <= 0 {
		deps.Config.OutboundQueueSize = 256
	}
	if deps.Config.ScoringTimeout <= 0 {
		deps.Config.ScoringTimeout = 60 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Bridge{
		conn:             deps.Conn,
		logger:           deps.Logger.With("session_id", deps.SessionID, "request_id", deps.RequestID),
		scorer:           deps.Scorer,
		reports:          deps.Reports,
		candidate:        deps.Candidate,
		audioIn:          deps.AudioIn,
		audioOut:         deps.AudioOut,
		sessionID:        deps.SessionID,
		cfg:              deps.Config,
		now:              deps.Now,
		clock:            live.NewWallClock(deps.Now),
		ctx:              ctx,
		cancel:           cancel,
		outboundPriority: make(chan outboundFrame, max(1, min(deps.Config.OutboundQueueSize, outboundPriorityQueueSize))),
		outboundNormal:   make(chan outboundFrame, deps.Config.OutboundQueueSize),
	}, nil
}

// Clock is the playback clock chunk start positions are measured on. It
// starts when the bridge is created, right after hello_ack.
func (b *Bridge) Clock() live.Clock { return b.clock }

// Play implements live.Sink.
func (b *Bridge) Play(buf live.Buffer, at time.Duration) (live.Source, error) {
	samples := buf.Samples
	if buf.SampleRate > 0 && buf.SampleRate != b.audioOut.SampleRateHz {
		samples = live.Resample(samples, buf.SampleRate, b.audioOut.SampleRateHz)
	}
	seq := b.audioSeq.Add(1)
	payload, err := json.Marshal(protocol.ServerAssistantAudioChunk{
		Type:       "assistant_audio_chunk",
		Seq:        seq,
		StartMS:    at.Milliseconds(),
		DurationMS: buf.Duration().Milliseconds(),
		AudioB64:   base64.StdEncoding.EncodeToString(live.Float32ToPCM16(samples)),
	})
	if err != nil {
		return nil, err
	}
	if err := b.enqueueNormal(outboundFrame{audioSeq: seq, payload: payload}); err != nil {
		b.resetAudio(seq)
		return nil, err
	}
	return &chunkSource{bridge: b, seq: seq}, nil
}

type chunkSource struct {
	bridge *Bridge
	seq    int64
}

func (c *chunkSource) Stop() { c.bridge.resetAudio(c.seq) }

// resetAudio cancels every chunk issued so far. Stopping a chunk that an
// earlier reset already covered is a no-op, so a scheduler flush produces
// one audio_reset.
func (b *Bridge) resetAudio(seq int64) {
	for {
		cur := b.resetSeq.Load()
		if seq <= cur {
			return
		}
		if b.resetSeq.CompareAndSwap(cur, b.audioSeq.Load()) {
			break
		}
	}
	_ = b.sendJSONPriority(protocol.ServerAudioReset{Type: "audio_reset", Reason: "flush"})
}

func (b *Bridge) isAudioCanceled(seq int64) bool {
	return seq <= b.resetSeq.Load()
}

// Run pumps frames until the interview ends and its report has been sent,
// or until Cancel. It returns the interview's error, if any.
func (b *Bridge) Run(iv Interview) error {
	defer b.cancel()
	if iv == nil {
		return fmt.Errorf("interview is required")
	}

	if b.cfg.MaxJSONMessageBytes > 0 {
		b.conn.SetReadLimit(b.cfg.MaxJSONMessageBytes)
	}
	if b.cfg.ReadTimeout > 0 {
		_ = b.conn.SetReadDeadline(time.Now().Add(b.cfg.ReadTimeout))
		b.conn.SetPongHandler(func(string) error {
			return b.conn.SetReadDeadline(time.Now().Add(b.cfg.ReadTimeout))
		})
	}

	limiter := newInboundAudioLimiter(b.now, b.cfg.MaxAudioFPS, b.cfg.InboundBurstSeconds)

	readCh := make(chan inboundFrame, 64)
	writerErrCh := make(chan error, 1)
	writerDone := writerErrCh
	go b.readLoop(readCh)
	go func(out chan<- error) {
		w := outboundWriter{
			ws:         b.conn,
			ctx:        b.ctx,
			cfg:        b.cfg,
			priority:   b.outboundPriority,
			normal:     b.outboundNormal,
			isCanceled: b.isAudioCanceled,
		}
		out <- w.Run()
		close(out)
	}(writerErrCh)

	runErrCh := make(chan error, 1)
	go func(out chan<- error) { out <- iv.Run(b.ctx) }(runErrCh)

	flushAndClose := func() {
		wait := 250 * time.Millisecond
		if b.cfg.WriteTimeout > 0 && b.cfg.WriteTimeout < wait {
			wait = b.cfg.WriteTimeout
		}
		timer := time.NewTimer(wait)
		defer timer.Stop()
		// Give the writer a moment to drain before the close frame.
		for len(b.outboundNormal) > 0 || len(b.outboundPriority) > 0 {
			select {
			case <-timer.C:
				b.cancel()
				return
			case <-time.After(10 * time.Millisecond):
			}
		}
		b.cancel()
		select {
		case <-writerDone:
		case <-timer.C:
		}
	}

	var (
		events    = iv.Events()
		ctxDone   = b.ctx.Done()
		reportCh  <-chan finalizeResult
		runDone   bool
		runErr    error
		completed bool
		throttled bool
	)

	for {
		if runDone && events == nil && reportCh == nil {
			if !completed && runErr != nil && !errors.Is(runErr, context.Canceled) {
				_ = b.sendInOrder(protocol.ServerError{Type: "error", Scope: "session", Code: "upstream_unavailable", Message: "interview agent is unavailable", Close: true})
			}
			flushAndClose()
			if errors.Is(runErr, context.Canceled) {
				return nil
			}
			return runErr
		}

		select {
		case <-ctxDone:
			// Cancel: the interview sees the same context and unwinds
			// without completing.
			ctxDone = nil
		case in, ok := <-readCh:
			if !ok {
				readCh = nil
				continue
			}
			if in.err != nil {
				readCh = nil
				if iv.Terminate(ReasonDisconnected) {
					b.logger.Info("candidate connection closed", "error", in.err)
				}
				continue
			}
			throttled = b.handleInbound(iv, in, limiter, throttled)
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if done, isDone := ev.(*live.CompletedEvent); isDone {
				completed = true
				reportCh = b.startFinalize(done)
				continue
			}
			frame, ok := protocol.EventFrame(ev)
			if !ok {
				continue
			}
			if err := b.sendJSON(frame); err != nil {
				b.logger.Debug("dropped event frame", "event", ev.EventType(), "error", err)
			}
		case err := <-runErrCh:
			runErrCh = nil
			runDone = true
			runErr = err
		case res := <-reportCh:
			reportCh = nil
			if res.err != nil {
				b.logger.Error("interview report failed", "error", res.err)
				_ = b.sendInOrder(protocol.ServerError{Type: "error", Scope: "session", Code: "report_failed", Message: "the interview could not be scored", Close: true})
				continue
			}
			_ = b.sendInOrder(protocol.ServerReport{Type: "report", Report: res.report})
		case err, ok := <-writerErrCh:
			writerErrCh = nil
			if ok && err != nil {
				b.logger.Debug("candidate writer stopped", "error", err)
			}
			if b.ctx.Err() == nil {
				iv.Terminate(ReasonDisconnected)
			}
		}
	}
}

// handleInbound applies one browser frame and returns the new throttle state.
func (b *Bridge) handleInbound(iv Interview, in inboundFrame, limiter *inboundAudioLimiter, throttled bool) bool {
	switch in.messageType {
	case websocket.BinaryMessage:
		return b.handleAudio(iv, in.data, limiter, throttled)
	case websocket.TextMessage:
	default:
		return throttled
	}

	msg, err := protocol.DecodeClientMessage(in.data)
	if err != nil {
		var de *protocol.DecodeError
		if errors.As(err, &de) {
			_ = b.sendSessionError(de.Code, de.Error())
		} else {
			_ = b.sendSessionError("bad_request", "invalid frame")
		}
		return throttled
	}

	switch m := msg.(type) {
	case protocol.ClientAudioFrame:
		raw, err := live.DecodeBase64(m.DataB64)
		if err != nil {
			_ = b.sendSessionError("bad_request", "audio_frame.data_b64 is not valid base64")
			return throttled
		}
		return b.handleAudio(iv, raw, limiter, throttled)
	case protocol.ClientProctorEvent:
		if kind, ok := live.ParseViolationKind(m.Kind); ok {
			iv.ReportViolation(kind)
		}
	case protocol.ClientControl:
		if m.Op == protocol.ControlEndSession {
			iv.Terminate(live.ReasonCandidateEnded)
		}
	case protocol.ClientHello:
		_ = b.sendSessionError("bad_request", "hello already received")
	}
	return throttled
}

func (b *Bridge) handleAudio(iv Interview, raw []byte, limiter *inboundAudioLimiter, throttled bool) bool {
	if b.cfg.MaxAudioFrameBytes > 0 && len(raw) > b.cfg.MaxAudioFrameBytes {
		_ = b.sendSessionError("audio_frame_too_large", fmt.Sprintf("audio frames must be at most %d bytes", b.cfg.MaxAudioFrameBytes))
		return throttled
	}
	if !limiter.Allow() {
		if !throttled {
			_ = b.SendNotice("audio_throttled", "audio frames are arriving too fast and are being dropped")
		}
		return true
	}
	samples, err := decodeAudio(b.audioIn, raw)
	if err != nil {
		_ = b.sendSessionError("bad_request", err.Error())
		return false
	}
	iv.PushFrame(samples)
	return false
}

func decodeAudio(format protocol.AudioFormat, raw []byte) ([]float32, error) {
	width := format.BytesPerSample()
	if width == 0 {
		return nil, fmt.Errorf("unsupported audio encoding %q", format.Encoding)
	}
	if len(raw)%width != 0 {
		return nil, fmt.Errorf("audio frame length %d is not a multiple of %d", len(raw), width)
	}
	if format.Encoding == protocol.EncodingF32LE {
		return live.Float32LEToFloat32(raw), nil
	}
	return live.PCM16ToFloat32(raw), nil
}

func (b *Bridge) startFinalize(ev *live.CompletedEvent) <-chan finalizeResult {
	ch := make(chan finalizeResult, 1)
	go func() {
		ctx, cancel := context.WithTimeout(b.ctx, b.cfg.ScoringTimeout)
		defer cancel()
		r, err := report.Finalize(ctx, b.scorer, b.candidate, ev.Transcript, ev.Reason, report.Options{
			SessionID: b.sessionID,
			Now:       b.now,
		})
		if err == nil && b.reports != nil {
			saveCtx, saveCancel := context.WithTimeout(context.WithoutCancel(b.ctx), reportSaveTimeout)
			if serr := b.reports.SaveReport(saveCtx, r); serr != nil {
				b.logger.Error("save report failed", "report_id", r.ID, "error", serr)
			}
			saveCancel()
		}
		if err == nil {
			b.logger.Info("interview report ready", "report_id", r.ID, "status", r.Status, "reason", r.Reason)
		}
		ch <- finalizeResult{report: r, err: err}
	}()
	return ch
}

// Cancel tears the connection down without finishing the interview.
func (b *Bridge) Cancel() {
	if b == nil || b.cancel == nil {
		return
	}
	b.cancel()
}

// SendNotice queues an operational notice for the candidate.
func (b *Bridge) SendNotice(code, message string) error {
	if b == nil {
		return nil
	}
	return b.sendJSON(protocol.ServerNotice{Type: "notice", Code: code, Message: message})
}

// sendSessionError reports a rejected frame. The connection stays open.
func (b *Bridge) sendSessionError(code, message string) error {
	return b.sendJSON(protocol.ServerError{Type: "error", Scope: "session", Code: code, Message: message})
}

// sendInOrder queues a final frame behind the events already sent. It only
// jumps the queue when the normal queue is full.
func (b *Bridge) sendInOrder(v any) error {
	err := b.sendJSON(v)
	if errors.Is(err, errBackpressure) {
		return b.sendJSONPriority(v)
	}
	return err
}

func (b *Bridge) sendJSON(v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return b.enqueueNormal(outboundFrame{payload: payload})
}

func (b *Bridge) sendJSONPriority(v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return b.enqueuePriority(outboundFrame{payload: payload})
}

func (b *Bridge) enqueueNormal(frame outboundFrame) error {
	if frame.audioSeq > 0 && b.isAudioCanceled(frame.audioSeq) {
		return nil
	}
	select {
	case b.outboundNormal <- frame:
		return nil
	default:
		return errBackpressure
	}
}

func (b *Bridge) enqueuePriority(frame outboundFrame) error {
	for i := 0; i < 4; i++ {
		select {
		case b.outboundPriority <- frame:
			return nil
		default:
		}
		select {
		case <-b.outboundPriority:
		default:
		}
	}
	select {
	case b.outboundPriority <- frame:
		return nil
	default:
		return errBackpressure
	}
}

func (b *Bridge) readLoop(out chan<- inboundFrame) {
	defer close(out)
	for {
		messageType, data, err := b.conn.ReadMessage()
		if err != nil {
			select {
			case out <- inboundFrame{err: err}:
			case <-b.ctx.Done():
			}
			return
		}
		select {
		case out <- inboundFrame{messageType: messageType, data: data}:
		case <-b.ctx.Done():
			return
		}
	}
}
