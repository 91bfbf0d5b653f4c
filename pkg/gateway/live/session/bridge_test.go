package session

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vango-go/vai-interview/pkg/core/live"
	"github.com/vango-go/vai-interview/pkg/core/report"
	"github.com/vango-go/vai-interview/pkg/gateway/live/protocol"
	"github.com/vango-go/vai-interview/pkg/store"
)

type fakeInterview struct {
	events     chan live.Event
	frames     chan []float32
	violations chan live.ViolationKind
	terminate  chan string
	runErr     error

	once sync.Once
}

func newFakeInterview() *fakeInterview {
	return &fakeInterview{
		events:     make(chan live.Event, 16),
		frames:     make(chan []float32, 16),
		violations: make(chan live.ViolationKind, 16),
		terminate:  make(chan string, 1),
	}
}

func (f *fakeInterview) Run(ctx context.Context) error {
	defer close(f.events)
	if f.runErr != nil {
		f.events <- &live.StatusEvent{Status: live.StatusError, Err: f.runErr}
		return f.runErr
	}
	f.events <- &live.StatusEvent{Status: live.StatusConnected}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case reason := <-f.terminate:
		f.events <- &live.TerminatingEvent{Reason: reason}
		f.events <- &live.CompletedEvent{
			Transcript: "Interviewer: Tell me about yourself.\nCandidate: I build services.",
			Reason:     reason,
		}
		return nil
	}
}

func (f *fakeInterview) Events() <-chan live.Event { return f.events }

func (f *fakeInterview) PushFrame(samples []float32) bool {
	select {
	case f.frames <- samples:
		return true
	default:
		return false
	}
}

func (f *fakeInterview) ReportViolation(kind live.ViolationKind) bool {
	select {
	case f.violations <- kind:
		return true
	default:
		return false
	}
}

func (f *fakeInterview) Terminate(reason string) bool {
	ok := false
	f.once.Do(func() {
		f.terminate <- reason
		ok = true
	})
	return ok
}

type bridgeHarness struct {
	iv      *fakeInterview
	reports *store.Memory
	runErr  chan error
	conn    *websocket.Conn
}

func startBridge(t *testing.T, iv *fakeInterview) *bridgeHarness {
	t.Helper()

	h := &bridgeHarness{
		iv:      iv,
		reports: store.NewMemory(),
		runErr:  make(chan error, 1),
	}
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()
		b, err := New(Dependencies{
			Conn:      conn,
			Reports:   h.reports,
			Candidate: live.Candidate{Name: "Ada", Role: "Backend Engineer"},
			AudioIn:   protocol.AudioFormat{Encoding: protocol.EncodingPCMS16LE, SampleRateHz: 16000, Channels: 1},
			AudioOut:  protocol.AudioFormat{Encoding: protocol.EncodingPCMS16LE, SampleRateHz: 24000, Channels: 1},
			SessionID: "s_test",
			Config: Config{
				MaxAudioFrameBytes:  64,
				MaxJSONMessageBytes: 64 << 10,
				PingInterval:        time.Hour,
				WriteTimeout:        time.Second,
				ScoringTimeout:      time.Second,
			},
		})
		if err != nil {
			t.Errorf("New: %v", err)
			return
		}
		h.runErr <- b.Run(iv)
	}))
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	h.conn = conn
	return h
}

func (h *bridgeHarness) send(t *testing.T, v any) {
	t.Helper()
	if err := h.conn.WriteJSON(v); err != nil {
		t.Fatalf("write: %v", err)
	}
}

// readUntil reads frames until one has the wanted type.
func (h *bridgeHarness) readUntil(t *testing.T, typ string) map[string]any {
	t.Helper()
	_ = h.conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		_, data, err := h.conn.ReadMessage()
		if err != nil {
			t.Fatalf("read while waiting for %q: %v", typ, err)
		}
		var msg map[string]any
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("unmarshal %s: %v", data, err)
		}
		if msg["type"] == typ {
			return msg
		}
	}
}

func TestBridge_EndSessionProducesStoredReport(t *testing.T) {
	h := startBridge(t, newFakeInterview())

	h.readUntil(t, "status")

	pcm := live.Float32ToPCM16([]float32{0.25, -0.25, 0.5, -0.5})
	h.send(t, protocol.ClientAudioFrame{Type: "audio_frame", DataB64: base64.StdEncoding.EncodeToString(pcm)})
	select {
	case frame := <-h.iv.frames:
		if len(frame) != 4 {
			t.Fatalf("frame has %d samples, want 4", len(frame))
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("audio frame was not pushed")
	}

	if err := h.conn.WriteMessage(websocket.BinaryMessage, pcm); err != nil {
		t.Fatalf("write binary: %v", err)
	}
	select {
	case <-h.iv.frames:
	case <-time.After(2 * time.Second):
		t.Fatalf("binary audio frame was not pushed")
	}

	h.send(t, protocol.ClientProctorEvent{Type: "proctor_event", Kind: "tab_hidden"})
	select {
	case kind := <-h.iv.violations:
		if kind != live.ViolationKind("tab_hidden") {
			t.Fatalf("kind=%q", kind)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("violation was not reported")
	}

	h.send(t, protocol.ClientControl{Type: "control", Op: protocol.ControlEndSession})

	term := h.readUntil(t, "terminating")
	if term["reason"] != live.ReasonCandidateEnded {
		t.Fatalf("terminating=%v", term)
	}
	msg := h.readUntil(t, "report")
	rep, _ := msg["report"].(map[string]any)
	if rep["status"] != string(report.StatusDisqualified) {
		t.Fatalf("report=%v", rep)
	}

	select {
	case err := <-h.runErr:
		if err != nil {
			t.Fatalf("Run() error: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("bridge did not finish")
	}

	saved, err := h.reports.ListReports(context.Background(), 10)
	if err != nil {
		t.Fatalf("ListReports: %v", err)
	}
	if len(saved) != 1 || saved[0].SessionID != "s_test" || saved[0].Reason != live.ReasonCandidateEnded {
		t.Fatalf("saved=%+v", saved)
	}
}

func TestBridge_InvalidFramesAreNotFatal(t *testing.T) {
	h := startBridge(t, newFakeInterview())
	h.readUntil(t, "status")

	h.send(t, map[string]any{"type": "control", "op": "interrupt"})
	msg := h.readUntil(t, "error")
	if msg["code"] != "unsupported" || msg["close"] == true {
		t.Fatalf("error=%v", msg)
	}

	big := make([]byte, 128)
	h.send(t, protocol.ClientAudioFrame{Type: "audio_frame", DataB64: base64.StdEncoding.EncodeToString(big)})
	msg = h.readUntil(t, "error")
	if msg["code"] != "audio_frame_too_large" {
		t.Fatalf("error=%v", msg)
	}

	h.send(t, protocol.ClientAudioFrame{Type: "audio_frame", DataB64: base64.StdEncoding.EncodeToString([]byte{1, 2, 3})})
	msg = h.readUntil(t, "error")
	if msg["code"] != "bad_request" {
		t.Fatalf("error=%v", msg)
	}

	h.send(t, protocol.ClientControl{Type: "control", Op: protocol.ControlEndSession})
	h.readUntil(t, "report")
}

func TestBridge_DisconnectEndsInterview(t *testing.T) {
	h := startBridge(t, newFakeInterview())
	h.readUntil(t, "status")

	_ = h.conn.Close()

	select {
	case err := <-h.runErr:
		if err != nil {
			t.Fatalf("Run() error: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("bridge did not finish after disconnect")
	}
	saved, _ := h.reports.ListReports(context.Background(), 10)
	if len(saved) != 1 || saved[0].Reason != ReasonDisconnected {
		t.Fatalf("saved=%+v", saved)
	}
}

func TestBridge_UpstreamFailureClosesWithError(t *testing.T) {
	iv := newFakeInterview()
	iv.runErr = errors.New("connect interview agent: 403")
	h := startBridge(t, iv)

	st := h.readUntil(t, "status")
	if st["status"] != "error" {
		t.Fatalf("status=%v", st)
	}
	msg := h.readUntil(t, "error")
	if msg["code"] != "upstream_unavailable" || msg["close"] != true {
		t.Fatalf("error=%v", msg)
	}

	select {
	case err := <-h.runErr:
		if err == nil {
			t.Fatalf("expected Run() error")
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("bridge did not finish")
	}
	if saved, _ := h.reports.ListReports(context.Background(), 10); len(saved) != 0 {
		t.Fatalf("no report expected, got %+v", saved)
	}
}

func newSinkBridge() *Bridge {
	ctx, cancel := context.WithCancel(context.Background())
	return &Bridge{
		audioOut:         protocol.AudioFormat{Encoding: protocol.EncodingPCMS16LE, SampleRateHz: 24000, Channels: 1},
		clock:            live.NewWallClock(time.Now),
		ctx:              ctx,
		cancel:           cancel,
		outboundPriority: make(chan outboundFrame, 8),
		outboundNormal:   make(chan outboundFrame, 8),
	}
}

func TestBridge_PlayStampsStartAndFlushResetsOnce(t *testing.T) {
	b := newSinkBridge()
	defer b.Cancel()

	buf := live.Buffer{Samples: make([]float32, 2400), SampleRate: 24000, Channels: 1}
	first, err := b.Play(buf, 0)
	if err != nil {
		t.Fatalf("Play: %v", err)
	}
	second, err := b.Play(buf, 100*time.Millisecond)
	if err != nil {
		t.Fatalf("Play: %v", err)
	}

	var chunk protocol.ServerAssistantAudioChunk
	frame := <-b.outboundNormal
	<-b.outboundNormal
	if err := json.Unmarshal(frame.payload, &chunk); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if chunk.Seq != 1 || chunk.StartMS != 0 || chunk.DurationMS != 100 {
		t.Fatalf("chunk=%+v", chunk)
	}

	first.Stop()
	second.Stop()
	if got := len(b.outboundPriority); got != 1 {
		t.Fatalf("priority frames=%d, want one audio_reset", got)
	}
	if !b.isAudioCanceled(1) || !b.isAudioCanceled(2) {
		t.Fatalf("flushed chunks should be canceled")
	}

	if _, err := b.Play(buf, 200*time.Millisecond); err != nil {
		t.Fatalf("Play: %v", err)
	}
	if b.isAudioCanceled(3) {
		t.Fatalf("audio after a reset must not be canceled")
	}
}

func TestBridge_PlayResamplesToAudioOut(t *testing.T) {
	b := newSinkBridge()
	defer b.Cancel()

	buf := live.Buffer{Samples: make([]float32, 1600), SampleRate: 16000, Channels: 1}
	if _, err := b.Play(buf, 0); err != nil {
		t.Fatalf("Play: %v", err)
	}
	var chunk protocol.ServerAssistantAudioChunk
	if err := json.Unmarshal((<-b.outboundNormal).payload, &chunk); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	raw, err := base64.StdEncoding.DecodeString(chunk.AudioB64)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if samples := len(raw) / 2; samples < 2390 || samples > 2410 {
		t.Fatalf("samples=%d, want about 2400 at 24 kHz", samples)
	}
}

func TestBridge_PlayBackpressure(t *testing.T) {
	b := newSinkBridge()
	defer b.Cancel()
	b.outboundNormal = make(chan outboundFrame, 1)

	buf := live.Buffer{Samples: make([]float32, 240), SampleRate: 24000, Channels: 1}
	if _, err := b.Play(buf, 0); err != nil {
		t.Fatalf("Play: %v", err)
	}
	if _, err := b.Play(buf, 10*time.Millisecond); !errors.Is(err, errBackpressure) {
		t.Fatalf("err=%v, want backpressure", err)
	}
	if !b.isAudioCanceled(1) {
		t.Fatalf("a dropped chunk resets the queued audio")
	}
}

func TestDecodeAudio(t *testing.T) {
	tests := []struct {
		name    string
		format  protocol.AudioFormat
		raw     []byte
		want    int
		wantErr bool
	}{
		{"pcm16", protocol.AudioFormat{Encoding: protocol.EncodingPCMS16LE}, make([]byte, 8), 4, false},
		{"pcm16 odd", protocol.AudioFormat{Encoding: protocol.EncodingPCMS16LE}, make([]byte, 7), 0, true},
		{"f32", protocol.AudioFormat{Encoding: protocol.EncodingF32LE}, make([]byte, 8), 2, false},
		{"f32 ragged", protocol.AudioFormat{Encoding: protocol.EncodingF32LE}, make([]byte, 6), 0, true},
		{"unknown", protocol.AudioFormat{Encoding: "mulaw"}, make([]byte, 8), 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decodeAudio(tt.format, tt.raw)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("err=%v", err)
			}
			if len(got) != tt.want {
				t.Fatalf("samples=%d, want %d", len(got), tt.want)
			}
		})
	}
}
