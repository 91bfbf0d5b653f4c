package live

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

var (
	// ErrAlreadyStarted is returned when Run is called twice.
	ErrAlreadyStarted = errors.New("session already started")
	// ErrConnectionLost is returned when the duplex channel drops and cannot
	// be re-established.
	ErrConnectionLost = errors.New("connection to interview agent lost")
)

// Dependencies wires a Session to its collaborators.
type Dependencies struct {
	Logger *slog.Logger
	Dialer Dialer
	Sink   Sink
	// Clock is the playback clock. Default: a WallClock started in New.
	Clock Clock

	Candidate Candidate
	Voice     string
	SessionID string
	Config    Config
	Now       func() time.Time

	// Ticks drives the countdown and the silence check. Default: 1s ticker.
	Ticks <-chan time.Time
	// After arms one-shot timers. Default: time.After.
	After func(time.Duration) <-chan time.Time

	// OnComplete receives the flat transcript and the termination reason once
	// the session has been torn down after a termination.
	OnComplete func(transcript, reason string)
}

// Session is one live interview. It owns the duplex connection, the VAD,
// the playback scheduler, the transcript and both strike counters. All of
// that state is confined to the goroutine running Run; other goroutines
// interact through PushFrame, ReportViolation and Terminate.
type Session struct {
	logger     *slog.Logger
	dialer     Dialer
	sink       Sink
	clock      Clock
	candidate  Candidate
	voice      string
	sessionID  string
	cfg        Config
	now        func() time.Time
	ticks      <-chan time.Time
	after      func(time.Duration) <-chan time.Time
	onComplete func(transcript, reason string)

	frames      chan []float32
	violations  chan ViolationKind
	terminateCh chan string
	events      chan Event
	done        chan struct{}

	started    atomic.Bool
	terminated atomic.Bool
	status     atomic.Int32

	reasonMu sync.Mutex
	reason   string
}

// New validates deps and fills defaults.
func New(deps Dependencies) (*Session, error) {
	if deps.Dialer == nil {
		return nil, fmt.Errorf("dialer is required")
	}
	if deps.Sink == nil {
		return nil, fmt.Errorf("sink is required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Clock == nil {
		deps.Clock = NewWallClock(deps.Now)
	}
	if deps.After == nil {
		deps.After = time.After
	}
	deps.Config = deps.Config.withDefaults()

	s := &Session{
		logger:      deps.Logger.With("session_id", deps.SessionID),
		dialer:      deps.Dialer,
		sink:        deps.Sink,
		clock:       deps.Clock,
		candidate:   deps.Candidate,
		voice:       deps.Voice,
		sessionID:   deps.SessionID,
		cfg:         deps.Config,
		now:         deps.Now,
		ticks:       deps.Ticks,
		after:       deps.After,
		onComplete:  deps.OnComplete,
		frames:      make(chan []float32, deps.Config.FrameQueueSize),
		violations:  make(chan ViolationKind, 8),
		terminateCh: make(chan string, 1),
		events:      make(chan Event, eventBuffer+1),
		done:        make(chan struct{}),
	}
	s.status.Store(int32(StatusConnecting))
	return s, nil
}

// Events yields session events. It is closed when Run returns.
func (s *Session) Events() <-chan Event { return s.events }

// Done is closed when Run returns.
func (s *Session) Done() <-chan struct{} { return s.done }

// Status returns the current connection status.
func (s *Session) Status() Status { return Status(s.status.Load()) }

// Config returns the effective configuration.
func (s *Session) Config() Config { return s.cfg }

// Reason returns the termination reason, or "" if none was recorded.
func (s *Session) Reason() string {
	s.reasonMu.Lock()
	defer s.reasonMu.Unlock()
	return s.reason
}

// PushFrame hands one capture frame to the session. Frames are dropped when
// the queue is full or the session has ended. It does not block.
func (s *Session) PushFrame(samples []float32) bool {
	if len(samples) == 0 {
		return false
	}
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.frames <- samples:
		return true
	default:
		return false
	}
}

// ReportViolation records a proctoring signal.
func (s *Session) ReportViolation(kind ViolationKind) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.violations <- kind:
		return true
	default:
		return false
	}
}

// Terminate is the single termination entry point. The first call records
// reason and starts the grace delay; later calls are no-ops and return false.
func (s *Session) Terminate(reason string) bool {
	if !s.terminated.CompareAndSwap(false, true) {
		return false
	}
	s.reasonMu.Lock()
	s.reason = reason
	s.reasonMu.Unlock()
	s.terminateCh <- reason
	return true
}

// eventBuffer bounds queued events. One extra slot is held back for the
// CompletedEvent so a slow consumer never loses the end of the interview.
const eventBuffer = 256

// emit drops the event when the consumer has fallen eventBuffer behind.
// Only the Run goroutine sends, so the length check cannot race another
// sender.
func (s *Session) emit(e Event) {
	if len(s.events) >= eventBuffer {
		return
	}
	select {
	case s.events <- e:
	default:
	}
}

// emitFinal sends into the reserved slot. It is called at most once, as the
// last send before Events is closed.
func (s *Session) emitFinal(e Event) {
	select {
	case s.events <- e:
	default:
		s.logger.Error("completion event dropped", "event", e.EventType())
	}
}

type dialResult struct {
	duplex Duplex
	err    error
}

// runner holds the state owned by the Run goroutine.
type runner struct {
	s   *Session
	ctx context.Context
	cfg Config

	status     Status
	duplex     Duplex
	inbound    <-chan InboundEvent
	dialCh     chan dialResult
	redialCh   <-chan time.Time
	reconnects int
	duplexCfg  DuplexConfig

	vad        *VAD
	scheduler  *Scheduler
	transcript Transcript
	proctor    *Proctor

	userSpeaking  bool
	agentSpeaking bool
	awaiting      bool
	locked        bool
	strikes       int
	lastTurnEnd   time.Time
	remaining     time.Duration
	nudge         string

	warningCh   <-chan time.Time
	graceCh     <-chan time.Time
	terminating bool
	reason      string
	tornDown    bool

	exit    bool
	exitErr error
}

// Run drives the session until it completes, fails to connect, or ctx is
// cancelled. Cancelling ctx is the unmount path: resources are released but
// OnComplete is not called.
func (s *Session) Run(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	defer close(s.done)
	defer close(s.events)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	ticks := s.ticks
	if ticks == nil {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		ticks = ticker.C
	}

	r := &runner{
		s:         s,
		ctx:       runCtx,
		cfg:       s.cfg,
		status:    StatusConnecting,
		vad:       NewVAD(s.cfg.VAD),
		scheduler: NewScheduler(s.clock, s.sink),
		proctor:   NewProctor(s.cfg.WarningWindow, s.cfg.MaxViolations),
		remaining: s.cfg.Duration,
		duplexCfg: DuplexConfig{
			Instructions:     BuildInstructions(s.candidate, s.cfg.Prompts),
			Voice:            s.voice,
			Tools:            []ToolDeclaration{EndInterviewDeclaration()},
			TranscribeInput:  true,
			TranscribeOutput: true,
			InputSampleRate:  s.cfg.SendSampleRate,
		},
	}

	s.emit(&StatusEvent{Status: StatusConnecting})
	s.emit(&TimeRemainingEvent{Remaining: r.remaining})
	r.startDial()

	for {
		select {
		case <-runCtx.Done():
			r.teardown(StatusClosed)
			s.logger.Info("interview session cancelled")
			return ctx.Err()
		case res := <-r.dialCh:
			r.handleDial(res)
		case ev, ok := <-r.inbound:
			if !ok {
				r.handleDisconnect()
				break
			}
			r.handleInbound(ev)
		case frame := <-s.frames:
			r.handleFrame(frame)
		case kind := <-s.violations:
			r.handleViolation(kind)
		case <-ticks:
			r.handleTick()
		case reason := <-s.terminateCh:
			r.beginTermination(reason)
		case at := <-r.warningCh:
			r.warningCh = nil
			r.expireWarning(at)
		case <-r.redialCh:
			r.redialCh = nil
			r.startDial()
		case <-r.graceCh:
			r.graceCh = nil
			r.finish()
		}
		if r.exit {
			return r.exitErr
		}
	}
}

func (r *runner) setStatus(st Status, err error) {
	if r.status == st {
		return
	}
	r.status = st
	r.s.status.Store(int32(st))
	r.s.emit(&StatusEvent{Status: st, Err: err})
}

func (r *runner) startDial() {
	ch := make(chan dialResult)
	r.dialCh = ch
	ctx := r.ctx
	cfg := r.duplexCfg
	dialer := r.s.dialer
	go func() {
		d, err := dialer.Dial(ctx, cfg)
		select {
		case ch <- dialResult{duplex: d, err: err}:
		case <-ctx.Done():
			// The session is gone; never adopt a late handle.
			if d != nil {
				_ = d.Close()
			}
		}
	}()
}

func (r *runner) handleDial(res dialResult) {
	r.dialCh = nil
	if r.terminating || r.tornDown {
		if res.duplex != nil {
			_ = res.duplex.Close()
		}
		return
	}
	if res.err != nil {
		r.s.logger.Error("interview agent connection failed", "error", res.err)
		r.teardown(StatusError)
		r.setStatus(StatusError, res.err)
		r.exit = true
		r.exitErr = fmt.Errorf("connect interview agent: %w", res.err)
		return
	}
	r.duplex = res.duplex
	r.inbound = res.duplex.Events()
	r.scheduler.Reset()
	r.setStatus(StatusConnected, nil)
	r.s.logger.Info("interview agent connected", "reconnects", r.reconnects)
	if r.reconnects == 0 {
		r.sendText(r.cfg.Prompts.Kickoff)
	}
}

func (r *runner) handleDisconnect() {
	var err error
	if r.duplex != nil {
		err = r.duplex.Err()
		_ = r.duplex.Close()
	}
	r.duplex = nil
	r.inbound = nil
	r.scheduler.FlushAll()
	r.setAgentSpeaking(false)

	if r.terminating || r.tornDown {
		return
	}
	r.s.logger.Warn("interview agent connection closed", "error", err, "reconnects", r.reconnects)
	if r.reconnects >= r.cfg.MaxReconnects {
		cause := ErrConnectionLost
		if err != nil {
			cause = fmt.Errorf("%w: %w", ErrConnectionLost, err)
		}
		r.teardown(StatusError)
		r.setStatus(StatusError, cause)
		r.exit = true
		r.exitErr = cause
		return
	}
	r.reconnects++
	r.setStatus(StatusConnecting, err)
	r.redialCh = r.s.after(r.cfg.ReconnectDelay)
}

func (r *runner) handleFrame(frame []float32) {
	if r.status != StatusConnected || r.tornDown {
		return
	}
	res := r.vad.Process(frame)
	if res.Changed {
		r.userSpeaking = res.Speaking
		r.s.emit(&SpeakingEvent{Speaking: res.Speaking, RMS: res.RMS})
	}
	if res.Speaking {
		r.awaiting = false
		r.locked = false
		r.strikes = 0
	}

	chunk := EncodeForTransport(Resample(frame, r.cfg.CaptureSampleRate, r.cfg.SendSampleRate))
	if chunk == "" {
		return
	}
	if err := r.duplex.SendAudio(chunk); err != nil {
		r.s.logger.Debug("send audio failed", "error", err)
	}
}

func (r *runner) handleInbound(ev InboundEvent) {
	if len(ev.ToolCalls) > 0 {
		r.handleToolCalls(ev.ToolCalls)
	}
	if ev.Interrupted {
		r.scheduler.FlushAll()
		r.setAgentSpeaking(false)
		r.awaiting = false
		r.clearNudge()
		r.locked = false
	}
	if ev.ModelTurn {
		r.setAgentSpeaking(true)
		r.awaiting = false
		r.clearNudge()
		r.locked = false
	}
	if ev.TurnComplete {
		r.lastTurnEnd = r.s.now()
		r.awaiting = true
		r.setAgentSpeaking(false)
	}
	if r.transcript.Add(SpeakerAgent, ev.AgentText) {
		r.emitTranscript()
	}
	if r.transcript.Add(SpeakerUser, ev.UserText) {
		r.emitTranscript()
	}
	for _, chunk := range ev.Audio {
		buf, err := DecodeInboundAudio(chunk, r.cfg.ReceiveSampleRate, 1)
		if err != nil {
			r.s.logger.Warn("dropping agent audio chunk", "error", err)
			continue
		}
		if _, err := r.scheduler.Enqueue(buf); err != nil {
			r.s.logger.Warn("schedule agent audio failed", "error", err)
		}
	}
}

func (r *runner) handleToolCalls(calls []ToolCall) {
	responses := make([]ToolResponse, 0, len(calls))
	endReason := ""
	ended := false
	for _, call := range calls {
		resp := ToolResponse{ID: call.ID, Name: call.Name}
		if call.Name == EndInterviewTool {
			resp.Response = map[string]any{"result": "ok"}
			if !ended {
				ended = true
				endReason = stringArg(call.Args, "reason")
			}
		} else {
			resp.Response = map[string]any{"error": "unknown tool " + call.Name}
		}
		responses = append(responses, resp)
	}
	if r.duplex != nil {
		if err := r.duplex.SendToolResponses(responses); err != nil {
			r.s.logger.Debug("send tool responses failed", "error", err)
		}
	}
	if ended {
		if endReason == "" {
			endReason = ReasonCompleted
		}
		r.s.logger.Info("agent ended interview", "reason", endReason)
		r.s.Terminate(endReason)
	}
}

func (r *runner) handleTick() {
	r.scheduler.Reap()
	if r.status != StatusConnected || r.tornDown {
		return
	}

	if r.remaining > 0 {
		r.remaining -= time.Second
		if r.remaining < 0 {
			r.remaining = 0
		}
		r.s.emit(&TimeRemainingEvent{Remaining: r.remaining})
		if r.remaining == 0 {
			r.s.logger.Info("interview time limit reached")
			r.s.Terminate(ReasonTimeLimit)
		}
	}

	r.checkSilence(r.s.now())
}

func (r *runner) checkSilence(now time.Time) {
	if r.terminating || !r.awaiting || r.agentSpeaking || r.locked {
		return
	}
	if now.Sub(r.lastTurnEnd) <= r.cfg.SilenceThreshold {
		return
	}

	r.locked = true
	r.strikes++
	p := r.cfg.Prompts
	if r.strikes <= r.cfg.MaxSilenceReminders {
		r.s.logger.Info("candidate silent, sending reminder", "strike", r.strikes)
		r.sendText(p.SilentDirective)
		r.setNudge(&NudgeEvent{Text: p.ReminderStatus, Strike: r.strikes})
		return
	}

	r.s.logger.Info("candidate silent, skipping question", "strike", r.strikes)
	r.transcript.AddLine(SpeakerUser, p.NoAnswerMarker)
	r.emitTranscript()
	r.strikes = 0
	r.sendText(p.StillSilentDirective)
	r.setNudge(&NudgeEvent{Text: p.SkipStatus, Skip: true})
}

// expireWarning hides the proctoring warning once its window has passed. A
// timer that fires early re-arms for the remainder.
func (r *runner) expireWarning(at time.Time) {
	if r.proctor.Expire(at) {
		r.s.emit(&WarningEvent{Text: r.proctor.Warning(), Strikes: r.proctor.Strikes()})
		return
	}
	if r.proctor.Warning() != "" {
		r.warningCh = r.s.after(r.proctor.WarningExpiry().Sub(at))
	}
}

func (r *runner) handleViolation(kind ViolationKind) {
	if r.terminating || r.tornDown {
		return
	}
	res := r.proctor.Record(kind, r.s.now())
	r.s.logger.Warn("proctoring violation", "kind", string(kind), "strikes", res.Strikes)
	r.s.emit(&WarningEvent{Text: res.Warning, Strikes: res.Strikes})
	r.warningCh = r.s.after(r.cfg.WarningWindow)
	if res.Terminate {
		r.s.Terminate(ReasonSecurityViolation)
	}
}

func (r *runner) beginTermination(reason string) {
	if r.terminating {
		return
	}
	r.terminating = true
	r.reason = reason
	r.s.logger.Info("interview terminating", "reason", reason, "grace", r.cfg.GraceDelay, "pending_audio", r.scheduler.Pending())
	r.s.emit(&TerminatingEvent{Reason: reason})
	r.graceCh = r.s.after(r.cfg.GraceDelay)
}

func (r *runner) finish() {
	r.teardown(StatusClosed)
	transcript := r.transcript.History()
	r.s.logger.Info("interview complete", "reason", r.reason, "transcript_lines", r.transcript.Len())
	r.s.emitFinal(&CompletedEvent{Transcript: transcript, Lines: r.transcript.Lines(), Reason: r.reason})
	if r.s.onComplete != nil {
		r.s.onComplete(transcript, r.reason)
	}
	r.exit = true
}

// teardown releases everything the session owns. It runs at most once.
func (r *runner) teardown(final Status) {
	if r.tornDown {
		return
	}
	r.tornDown = true
	if r.duplex != nil {
		_ = r.duplex.Close()
	}
	r.duplex = nil
	r.inbound = nil
	r.redialCh = nil
	r.warningCh = nil
	r.scheduler.FlushAll()
	r.setAgentSpeaking(false)
	if final == StatusClosed {
		r.setStatus(StatusClosed, nil)
	}
}

func (r *runner) sendText(text string) {
	if r.duplex == nil {
		return
	}
	if err := r.duplex.SendText(text); err != nil {
		r.s.logger.Debug("send text failed", "error", err)
	}
}

func (r *runner) setAgentSpeaking(v bool) {
	if r.agentSpeaking == v {
		return
	}
	r.agentSpeaking = v
	r.s.emit(&AgentSpeakingEvent{Speaking: v})
}

func (r *runner) setNudge(e *NudgeEvent) {
	r.nudge = e.Text
	r.s.emit(e)
}

func (r *runner) clearNudge() {
	if r.nudge == "" {
		return
	}
	r.nudge = ""
	r.s.emit(&NudgeEvent{})
}

func (r *runner) emitTranscript() {
	r.s.emit(&TranscriptEvent{Lines: r.transcript.Lines()})
}

func stringArg(args map[string]any, key string) string {
	if args == nil {
		return ""
	}
	v, ok := args[key].(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(v)
}
