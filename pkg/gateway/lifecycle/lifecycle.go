package lifecycle

import (
	"sync/atomic"
	"time"
)

// Lifecycle tracks whether the gateway is draining for shutdown. While it
// is, readiness fails and new interviews are refused.
type Lifecycle struct {
	// drainStart is the drain start in unix nanoseconds, 0 while serving.
	drainStart atomic.Int64
}

// BeginDrain marks the gateway as draining from now on. It reports false
// when a drain was already under way; the first start time is kept.
func (l *Lifecycle) BeginDrain(now time.Time) bool {
	if l == nil {
		return false
	}
	ns := now.UnixNano()
	if ns == 0 {
		ns = 1
	}
	return l.drainStart.CompareAndSwap(0, ns)
}

func (l *Lifecycle) IsDraining() bool {
	if l == nil {
		return false
	}
	return l.drainStart.Load() != 0
}

// DrainingSince returns when the drain began.
func (l *Lifecycle) DrainingSince() (time.Time, bool) {
	if l == nil {
		return time.Time{}, false
	}
	ns := l.drainStart.Load()
	if ns == 0 {
		return time.Time{}, false
	}
	return time.Unix(0, ns), true
}
