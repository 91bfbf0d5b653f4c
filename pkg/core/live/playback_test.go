package live

import (
	"errors"
	"sync"
	"testing"
	"time"
)

type manualClock struct {
	mu  sync.Mutex
	now time.Duration
}

func (c *manualClock) Now() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now += d
	c.mu.Unlock()
}

type recordedSource struct {
	at      time.Duration
	dur     time.Duration
	mu      sync.Mutex
	stopped bool
}

func (s *recordedSource) Stop() {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
}

func (s *recordedSource) Stopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

type recordingSink struct {
	mu      sync.Mutex
	sources []*recordedSource
	err     error
}

func (s *recordingSink) Play(buf Buffer, at time.Duration) (Source, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	src := &recordedSource{at: at, dur: buf.Duration()}
	s.sources = append(s.sources, src)
	return src, nil
}

func (s *recordingSink) Sources() []*recordedSource {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*recordedSource(nil), s.sources...)
}

func tone(d time.Duration, rate int) Buffer {
	n := int(d * time.Duration(rate) / time.Second)
	return Buffer{Samples: make([]float32, n), SampleRate: rate, Channels: 1}
}

func TestScheduler_GaplessSequence(t *testing.T) {
	clock := &manualClock{now: 5 * time.Second}
	sink := &recordingSink{}
	s := NewScheduler(clock, sink)

	durations := []time.Duration{100 * time.Millisecond, 250 * time.Millisecond, 40 * time.Millisecond}
	for _, d := range durations {
		if _, err := s.Enqueue(tone(d, 24000)); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}

	srcs := sink.Sources()
	if len(srcs) != 3 {
		t.Fatalf("sources=%d", len(srcs))
	}
	if srcs[0].at != 5*time.Second {
		t.Fatalf("first start=%v", srcs[0].at)
	}
	for i := 1; i < len(srcs); i++ {
		if srcs[i].at != srcs[i-1].at+srcs[i-1].dur {
			t.Fatalf("buffer %d starts at %v, previous ends at %v", i, srcs[i].at, srcs[i-1].at+srcs[i-1].dur)
		}
	}
	if got, want := s.Cursor(), 5*time.Second+390*time.Millisecond; got != want {
		t.Fatalf("cursor=%v, want %v", got, want)
	}
}

func TestScheduler_StartsAtClockWhenCursorBehind(t *testing.T) {
	clock := &manualClock{}
	sink := &recordingSink{}
	s := NewScheduler(clock, sink)

	_, _ = s.Enqueue(tone(100*time.Millisecond, 24000))
	clock.Advance(time.Second)
	start, err := s.Enqueue(tone(100*time.Millisecond, 24000))
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if start != time.Second {
		t.Fatalf("start=%v, want 1s", start)
	}
}

func TestScheduler_FlushAllStopsAndResets(t *testing.T) {
	clock := &manualClock{}
	sink := &recordingSink{}
	s := NewScheduler(clock, sink)
	for i := 0; i < 3; i++ {
		_, _ = s.Enqueue(tone(200*time.Millisecond, 24000))
	}
	clock.Advance(50 * time.Millisecond)

	s.FlushAll()
	for i, src := range sink.Sources() {
		if !src.Stopped() {
			t.Fatalf("source %d not stopped", i)
		}
	}
	if s.Active() != 0 {
		t.Fatalf("active=%d", s.Active())
	}

	start, _ := s.Enqueue(tone(100*time.Millisecond, 24000))
	if start != 50*time.Millisecond {
		t.Fatalf("start after flush=%v, want 50ms", start)
	}
}

func TestScheduler_Reap(t *testing.T) {
	clock := &manualClock{}
	s := NewScheduler(clock, &recordingSink{})
	_, _ = s.Enqueue(tone(100*time.Millisecond, 24000))
	_, _ = s.Enqueue(tone(100*time.Millisecond, 24000))

	clock.Advance(150 * time.Millisecond)
	s.Reap()
	if s.Active() != 1 {
		t.Fatalf("active=%d, want 1", s.Active())
	}
	if got := s.Pending(); got != 50*time.Millisecond {
		t.Fatalf("pending=%v", got)
	}
}

func TestScheduler_SinkErrorLeavesCursor(t *testing.T) {
	clock := &manualClock{}
	sink := &recordingSink{err: errors.New("device gone")}
	s := NewScheduler(clock, sink)
	if _, err := s.Enqueue(tone(100*time.Millisecond, 24000)); err == nil {
		t.Fatalf("expected error")
	}
	if s.Cursor() != 0 || s.Active() != 0 {
		t.Fatalf("state changed on error: cursor=%v active=%d", s.Cursor(), s.Active())
	}
}
