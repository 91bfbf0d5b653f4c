package main

import (
	"errors"
	"fmt"
	"io"
	"os/exec"
	"runtime"
	"sync"
	"time"

	"github.com/vango-go/vai-interview/pkg/core/live"
)

const (
	micSampleRateHz      = 16000
	playbackSampleRateHz = 24000
	playbackQueueSize    = 256
)

type ffmpegMicCapture struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
}

func newFFmpegMicCapture() (*ffmpegMicCapture, error) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return nil, errors.New("ffmpeg is required for mic capture (install ffmpeg and ensure it is in PATH)")
	}
	args, err := micFFmpegArgs(runtime.GOOS, micSampleRateHz)
	if err != nil {
		return nil, err
	}
	cmd := exec.Command("ffmpeg", args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("open ffmpeg stdout: %w", err)
	}
	cmd.Stderr = io.Discard
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start ffmpeg mic capture: %w", err)
	}
	return &ffmpegMicCapture{cmd: cmd, stdout: stdout}, nil
}

func micFFmpegArgs(goos string, rate int) ([]string, error) {
	var input []string
	switch goos {
	case "darwin":
		input = []string{"-f", "avfoundation", "-i", ":0"}
	case "linux":
		input = []string{"-f", "pulse", "-i", "default"}
	default:
		return nil, fmt.Errorf("mic capture is not implemented for %s; supported platforms: darwin, linux", goos)
	}
	args := []string{"-hide_banner", "-loglevel", "error"}
	args = append(args, input...)
	return append(args, "-ac", "1", "-ar", fmt.Sprintf("%d", rate), "-f", "s16le", "-"), nil
}

func (m *ffmpegMicCapture) Read(p []byte) (int, error) {
	if m == nil || m.stdout == nil {
		return 0, io.EOF
	}
	return m.stdout.Read(p)
}

func (m *ffmpegMicCapture) Close() error {
	if m == nil {
		return nil
	}
	if m.cmd != nil && m.cmd.Process != nil {
		_ = m.cmd.Process.Kill()
		_ = m.cmd.Wait()
	}
	return nil
}

type pcmPlayer interface {
	Write(data []byte) error
	Reset() error
	Close() error
}

type ffplayPCMPlayer struct {
	mu    sync.Mutex
	cmd   *exec.Cmd
	stdin io.WriteCloser
}

func newFFplayPCMPlayer() (*ffplayPCMPlayer, error) {
	if _, err := exec.LookPath("ffplay"); err != nil {
		return nil, errors.New("ffplay is required for playback (install ffmpeg/ffplay and ensure it is in PATH)")
	}
	player := &ffplayPCMPlayer{}
	if err := player.startLocked(); err != nil {
		return nil, err
	}
	return player, nil
}

func (p *ffplayPCMPlayer) startLocked() error {
	p.cmd = exec.Command("ffplay",
		"-nodisp",
		"-autoexit",
		"-loglevel", "error",
		"-f", "s16le",
		"-ar", fmt.Sprintf("%d", playbackSampleRateHz),
		"-ac", "1",
		"-i", "pipe:0",
	)
	stdin, err := p.cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("open ffplay stdin: %w", err)
	}
	p.cmd.Stdout = io.Discard
	p.cmd.Stderr = io.Discard
	if err := p.cmd.Start(); err != nil {
		return fmt.Errorf("start ffplay: %w", err)
	}
	p.stdin = stdin
	return nil
}

func (p *ffplayPCMPlayer) Write(data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stdin == nil {
		return errors.New("ffplay stdin is not initialized")
	}
	_, err := p.stdin.Write(data)
	return err
}

// Reset kills the player so buffered audio stops at once.
func (p *ffplayPCMPlayer) Reset() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.killLocked()
	return p.startLocked()
}

func (p *ffplayPCMPlayer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.killLocked()
	return nil
}

func (p *ffplayPCMPlayer) killLocked() {
	if p.cmd != nil && p.cmd.Process != nil {
		_ = p.cmd.Process.Kill()
		_ = p.cmd.Wait()
	}
	p.stdin = nil
}

type playerChunk struct {
	gen uint64
	pcm []byte
}

// playerSink plays interview audio through a pcmPlayer. Writes happen on
// their own goroutine so a full pipe never stalls the interview loop.
// Stopping any source from the current generation resets the player once
// and discards everything queued before it.
type playerSink struct {
	player pcmPlayer
	rate   int

	mu  sync.Mutex
	gen uint64

	queue chan playerChunk
	done  chan struct{}
	once  sync.Once
}

func newPlayerSink(player pcmPlayer, rate int) *playerSink {
	s := &playerSink{
		player: player,
		rate:   rate,
		queue:  make(chan playerChunk, playbackQueueSize),
		done:   make(chan struct{}),
	}
	go s.writeLoop()
	return s
}

func (s *playerSink) writeLoop() {
	defer close(s.done)
	for c := range s.queue {
		s.mu.Lock()
		stale := c.gen != s.gen
		s.mu.Unlock()
		if stale {
			continue
		}
		_ = s.player.Write(c.pcm)
	}
}

func (s *playerSink) Play(buf live.Buffer, at time.Duration) (live.Source, error) {
	samples := buf.Samples
	if buf.SampleRate > 0 && buf.SampleRate != s.rate {
		samples = live.Resample(samples, buf.SampleRate, s.rate)
	}
	s.mu.Lock()
	gen := s.gen
	s.mu.Unlock()

	select {
	case s.queue <- playerChunk{gen: gen, pcm: live.Float32ToPCM16(samples)}:
		return &playerSource{sink: s, gen: gen}, nil
	default:
		return nil, errors.New("playback queue is full")
	}
}

func (s *playerSink) stop(gen uint64) {
	s.mu.Lock()
	current := gen == s.gen
	if current {
		s.gen++
	}
	s.mu.Unlock()
	if current {
		_ = s.player.Reset()
	}
}

func (s *playerSink) Close() error {
	s.once.Do(func() { close(s.queue) })
	<-s.done
	return s.player.Close()
}

type playerSource struct {
	sink *playerSink
	gen  uint64
}

func (p *playerSource) Stop() { p.sink.stop(p.gen) }
