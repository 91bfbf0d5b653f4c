package session

import "time"

// inboundAudioLimiter is a frames-per-second token bucket for capture audio.
// A nil limiter allows everything.
type inboundAudioLimiter struct {
	now        func() time.Time
	rate       int64
	capacity   int64
	tokens     int64
	lastRefill time.Time
}

func newInboundAudioLimiter(now func() time.Time, fps int, burstSeconds int) *inboundAudioLimiter {
	if fps <= 0 {
		return nil
	}
	if now == nil {
		now = time.Now
	}
	if burstSeconds <= 0 {
		burstSeconds = 1
	}
	capacity := int64(fps) * int64(burstSeconds)
	return &inboundAudioLimiter{
		now:        now,
		rate:       int64(fps),
		capacity:   capacity,
		tokens:     capacity,
		lastRefill: now(),
	}
}

func (l *inboundAudioLimiter) Allow() bool {
	if l == nil {
		return true
	}
	l.refill()
	if l.tokens < 1 {
		return false
	}
	l.tokens--
	return true
}

func (l *inboundAudioLimiter) refill() {
	now := l.now()
	elapsed := now.Sub(l.lastRefill)
	if elapsed <= 0 {
		return
	}
	add := (elapsed.Nanoseconds() * l.rate) / int64(time.Second)
	if add <= 0 {
		// Keep lastRefill so fractional tokens accumulate.
		return
	}
	l.tokens = min(l.capacity, l.tokens+add)
	l.lastRefill = l.lastRefill.Add(time.Duration(add * int64(time.Second) / l.rate))
}
