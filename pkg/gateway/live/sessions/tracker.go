// Package sessions tracks live interviews so shutdown can reach them.
package sessions

import (
	"context"
	"sync"
)

// Handle is how the tracker reaches one interview. Any field may be nil.
type Handle struct {
	// Cancel drops the connection without finishing the interview.
	Cancel func()
	// Notify sends an operational notice to the candidate.
	Notify func(code, message string) error
	// Terminate ends the interview through its normal termination path.
	Terminate func(reason string) bool
}

type Tracker struct {
	mu       sync.Mutex
	sessions map[string]*trackedSession
	wg       sync.WaitGroup
}

type trackedSession struct {
	handle Handle
	once   sync.Once
}

func NewTracker() *Tracker {
	return &Tracker{
		sessions: make(map[string]*trackedSession),
	}
}

// Register adds an interview. The returned func removes it and is safe to
// call more than once. Registering an ID again replaces the older entry.
func (t *Tracker) Register(sessionID string, h Handle) (unregister func()) {
	if t == nil {
		return func() {}
	}

	entry := &trackedSession{handle: h}

	t.mu.Lock()
	if t.sessions == nil {
		t.sessions = make(map[string]*trackedSession)
	}
	old := t.sessions[sessionID]
	t.sessions[sessionID] = entry
	t.wg.Add(1)
	t.mu.Unlock()

	if old != nil {
		t.unregister(sessionID, old)
	}

	return func() { t.unregister(sessionID, entry) }
}

func (t *Tracker) unregister(sessionID string, entry *trackedSession) {
	if t == nil || entry == nil {
		return
	}
	entry.once.Do(func() {
		t.mu.Lock()
		if t.sessions != nil && t.sessions[sessionID] == entry {
			delete(t.sessions, sessionID)
		}
		t.mu.Unlock()
		t.wg.Done()
	})
}

func (t *Tracker) Count() int {
	if t == nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sessions)
}

func (t *Tracker) handles() []Handle {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Handle, 0, len(t.sessions))
	for _, entry := range t.sessions {
		if entry != nil {
			out = append(out, entry.handle)
		}
	}
	return out
}

// NotifyAll is best effort: send errors are ignored.
func (t *Tracker) NotifyAll(code, message string) (sent int) {
	if t == nil {
		return 0
	}
	for _, h := range t.handles() {
		if h.Notify == nil {
			continue
		}
		_ = h.Notify(code, message)
		sent++
	}
	return sent
}

// TerminateAll asks every interview to finish with reason. It returns how
// many accepted; interviews already terminating keep their own reason.
func (t *Tracker) TerminateAll(reason string) (terminated int) {
	if t == nil {
		return 0
	}
	for _, h := range t.handles() {
		if h.Terminate != nil && h.Terminate(reason) {
			terminated++
		}
	}
	return terminated
}

func (t *Tracker) CancelAll() (canceled int) {
	if t == nil {
		return 0
	}
	for _, h := range t.handles() {
		if h.Cancel == nil {
			continue
		}
		h.Cancel()
		canceled++
	}
	return canceled
}

// Wait blocks until every registered interview is gone or ctx ends. It
// reports whether all of them finished.
func (t *Tracker) Wait(ctx context.Context) bool {
	if t == nil {
		return true
	}
	if ctx == nil {
		t.wg.Wait()
		return true
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		t.wg.Wait()
	}()

	select {
	case <-done:
		return true
	case <-ctx.Done():
		return false
	}
}
