package live

import "time"

// Clock reports the playback clock as elapsed time since an arbitrary origin.
type Clock interface {
	Now() time.Duration
}

// Sink plays decoded audio at a position on its Clock.
type Sink interface {
	Play(buf Buffer, at time.Duration) (Source, error)
}

// Source is a scheduled buffer that can be stopped before it finishes.
type Source interface {
	Stop()
}

type scheduled struct {
	src   Source
	start time.Duration
	end   time.Duration
}

// Scheduler queues agent audio for gapless, non-overlapping playback.
//
// Each buffer starts at max(clock, cursor) and advances the cursor by its
// duration. FlushAll stops everything in flight and pulls the cursor back to
// the clock so the next buffer starts immediately.
//
// Scheduler is owned by a single goroutine.
type Scheduler struct {
	clock  Clock
	sink   Sink
	cursor time.Duration
	active []scheduled
}

// NewScheduler creates a scheduler bound to clock and sink.
func NewScheduler(clock Clock, sink Sink) *Scheduler {
	s := &Scheduler{clock: clock, sink: sink}
	s.cursor = clock.Now()
	return s
}

// Enqueue schedules buf after everything already queued and returns its start.
func (s *Scheduler) Enqueue(buf Buffer) (time.Duration, error) {
	s.Reap()
	now := s.clock.Now()
	start := s.cursor
	if now > start {
		start = now
	}
	src, err := s.sink.Play(buf, start)
	if err != nil {
		return 0, err
	}
	end := start + buf.Duration()
	s.cursor = end
	s.active = append(s.active, scheduled{src: src, start: start, end: end})
	return start, nil
}

// Reap drops sources that have finished playing on their own.
func (s *Scheduler) Reap() {
	now := s.clock.Now()
	kept := s.active[:0]
	for _, a := range s.active {
		if a.end > now {
			kept = append(kept, a)
		}
	}
	for i := len(kept); i < len(s.active); i++ {
		s.active[i] = scheduled{}
	}
	s.active = kept
}

// FlushAll stops every active source and resets the cursor to the clock.
func (s *Scheduler) FlushAll() {
	for _, a := range s.active {
		if a.src != nil {
			a.src.Stop()
		}
	}
	s.active = nil
	s.cursor = s.clock.Now()
}

// Reset moves the cursor to the clock without touching active sources.
func (s *Scheduler) Reset() {
	s.cursor = s.clock.Now()
}

// Active returns the number of sources still scheduled or playing.
func (s *Scheduler) Active() int { return len(s.active) }

// Cursor returns the start position of the next enqueued buffer.
func (s *Scheduler) Cursor() time.Duration { return s.cursor }

// Pending returns how much queued audio has not played yet.
func (s *Scheduler) Pending() time.Duration {
	now := s.clock.Now()
	if s.cursor <= now {
		return 0
	}
	return s.cursor - now
}

// WallClock is a Clock backed by the monotonic wall clock.
type WallClock struct {
	origin time.Time
	now    func() time.Time
}

// NewWallClock starts a clock at zero now.
func NewWallClock(now func() time.Time) *WallClock {
	if now == nil {
		now = time.Now
	}
	return &WallClock{origin: now(), now: now}
}

func (c *WallClock) Now() time.Duration { return c.now().Sub(c.origin) }
