package live

import (
	"fmt"
	"strings"
	"time"
)

// ViolationKind is an integrity signal reported by the candidate's client.
type ViolationKind string

const (
	ViolationTabHidden   ViolationKind = "tab_hidden"
	ViolationWindowBlur  ViolationKind = "window_blur"
	ViolationContextMenu ViolationKind = "context_menu"
	ViolationCopy        ViolationKind = "copy"
	ViolationPaste       ViolationKind = "paste"
)

// ParseViolationKind validates a client-supplied kind.
func ParseViolationKind(raw string) (ViolationKind, bool) {
	switch k := ViolationKind(strings.ToLower(strings.TrimSpace(raw))); k {
	case ViolationTabHidden, ViolationWindowBlur, ViolationContextMenu, ViolationCopy, ViolationPaste:
		return k, true
	default:
		return "", false
	}
}

func (k ViolationKind) describe() string {
	switch k {
	case ViolationTabHidden, ViolationWindowBlur:
		return "Leaving the interview window is not allowed"
	case ViolationContextMenu:
		return "The context menu is disabled during the interview"
	case ViolationCopy, ViolationPaste:
		return "Copying and pasting is disabled during the interview"
	default:
		return "Prohibited action detected"
	}
}

// ProctorResult describes the outcome of one recorded violation.
type ProctorResult struct {
	Strikes   int
	Warning   string
	Terminate bool
}

// Proctor counts integrity violations and holds the transient warning.
// Reaching the strike limit reports Terminate exactly once.
type Proctor struct {
	window     time.Duration
	limit      int
	strikes    int
	warning    string
	expiresAt  time.Time
	terminated bool
}

// NewProctor creates a monitor with the given warning window and strike limit.
func NewProctor(window time.Duration, limit int) *Proctor {
	if limit <= 0 {
		limit = 3
	}
	return &Proctor{window: window, limit: limit}
}

// Record counts a violation observed at now.
func (p *Proctor) Record(kind ViolationKind, now time.Time) ProctorResult {
	p.strikes++
	p.warning = fmt.Sprintf("Warning: %s (strike %d of %d)", kind.describe(), p.strikes, p.limit)
	p.expiresAt = now.Add(p.window)

	res := ProctorResult{Strikes: p.strikes, Warning: p.warning}
	if p.strikes >= p.limit && !p.terminated {
		p.terminated = true
		res.Terminate = true
	}
	return res
}

// Expire clears the warning once its window has passed. It reports whether
// the warning was cleared by this call.
func (p *Proctor) Expire(now time.Time) bool {
	if p.warning == "" || now.Before(p.expiresAt) {
		return false
	}
	p.warning = ""
	p.expiresAt = time.Time{}
	return true
}

// Strikes returns the violation count.
func (p *Proctor) Strikes() int { return p.strikes }

// Warning returns the visible warning, or "" when none is shown.
func (p *Proctor) Warning() string { return p.warning }

// WarningExpiry returns when the current warning clears.
func (p *Proctor) WarningExpiry() time.Time { return p.expiresAt }
