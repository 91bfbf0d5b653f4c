package live

import "strings"

// Speaker identifies who produced a transcript line.
type Speaker string

const (
	SpeakerUser  Speaker = "user"
	SpeakerAgent Speaker = "agent"
)

// Label is the prefix used in the flat history.
func (s Speaker) Label() string {
	switch s {
	case SpeakerAgent:
		return "Interviewer"
	case SpeakerUser:
		return "Candidate"
	default:
		return string(s)
	}
}

// Line is one speaker turn in the transcript.
type Line struct {
	Speaker Speaker `json:"speaker"`
	Text    string  `json:"text"`
}

// Transcript merges streaming fragments into speaker turns.
//
// A fragment from the same speaker as the last line extends that line;
// otherwise it starts a new one. Agent fragments are joined with a single
// space, user fragments are concatenated as delivered. The display list and
// the flat history are both derived from the same slice. Lines written with
// AddLine are closed: the next fragment always starts a new line.
type Transcript struct {
	lines  []Line
	closed bool
}

// Add appends or extends with a streaming fragment. Empty fragments are
// ignored. It reports whether the transcript changed.
func (t *Transcript) Add(speaker Speaker, fragment string) bool {
	if speaker == SpeakerAgent {
		fragment = strings.TrimSpace(fragment)
	}
	if fragment == "" {
		return false
	}
	if n := len(t.lines); n > 0 && !t.closed && t.lines[n-1].Speaker == speaker {
		last := &t.lines[n-1]
		if speaker == SpeakerAgent && last.Text != "" {
			last.Text += " " + fragment
		} else {
			last.Text += fragment
		}
		return true
	}
	fragment = strings.TrimLeft(fragment, " \t")
	if fragment == "" {
		return false
	}
	t.lines = append(t.lines, Line{Speaker: speaker, Text: fragment})
	t.closed = false
	return true
}

// AddLine always starts a new line. It is used for synthetic markers.
func (t *Transcript) AddLine(speaker Speaker, text string) {
	t.lines = append(t.lines, Line{Speaker: speaker, Text: text})
	t.closed = true
}

// Lines returns a copy of the display list.
func (t *Transcript) Lines() []Line {
	out := make([]Line, len(t.lines))
	copy(out, t.lines)
	return out
}

// Len returns the number of lines.
func (t *Transcript) Len() int { return len(t.lines) }

// History renders the flat scoring input, one "Label: text" line per turn.
func (t *Transcript) History() string {
	return FormatHistory(t.lines)
}

// FormatHistory renders lines the way Transcript.History does.
func FormatHistory(lines []Line) string {
	parts := make([]string, 0, len(lines))
	for _, l := range lines {
		parts = append(parts, l.Speaker.Label()+": "+l.Text)
	}
	return strings.Join(parts, "\n")
}
