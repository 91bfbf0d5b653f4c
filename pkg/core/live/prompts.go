package live

import (
	"fmt"
	"strings"
)

// Prompts holds the verbatim lines the agent is instructed to speak, plus the
// local status strings shown while the silence protocol runs. They are policy
// data, not control flow.
type Prompts struct {
	// SilentDirective is sent when the candidate has not answered in time.
	SilentDirective string
	// StillSilentDirective is sent when the reminders are exhausted.
	StillSilentDirective string
	// NoAnswerMarker is recorded as the candidate's answer to a skipped question.
	NoAnswerMarker string
	// Kickoff is sent once after the first connect so the agent opens.
	Kickoff string

	// ReminderLine is the line the agent speaks when nudged.
	ReminderLine string
	// SkipLine is the line the agent speaks when moving on.
	SkipLine string
	// ClosingLine ends every interview before endInterview is called.
	ClosingLine string

	// ReminderStatus and SkipStatus are shown to the candidate locally.
	ReminderStatus string
	SkipStatus     string

	// QuestionCount is how many questions the agent asks. Default: 5.
	QuestionCount int
}

// DefaultPrompts returns the standard silence-protocol wording.
func DefaultPrompts() Prompts {
	return Prompts{
		SilentDirective:      "SYSTEM ALERT: The candidate has been silent for more than 10 seconds. Follow the silence protocol and say the reminder line now.",
		StillSilentDirective: "SYSTEM ALERT: The candidate is still silent. Treat the current question as failed, say the skip line, and move on to the next question.",
		NoAnswerMarker:       "[No answer - candidate remained silent]",
		Kickoff:              "The candidate has joined. Begin the interview now.",
		ReminderLine:         "Are you still there? Take your time, and let me know if you would like me to repeat the question.",
		SkipLine:             "Since I have not heard a response, I will mark this question as unanswered and move on to the next one.",
		ClosingLine:          "Thank you for your time today. This concludes the interview, and the hiring team will be in touch with next steps.",
		ReminderStatus:       "The interviewer is waiting for your answer...",
		SkipStatus:           "No response detected. Moving to the next question...",
		QuestionCount:        5,
	}
}

func (p Prompts) withDefaults() Prompts {
	def := DefaultPrompts()
	if strings.TrimSpace(p.SilentDirective) == "" {
		p.SilentDirective = def.SilentDirective
	}
	if strings.TrimSpace(p.StillSilentDirective) == "" {
		p.StillSilentDirective = def.StillSilentDirective
	}
	if strings.TrimSpace(p.NoAnswerMarker) == "" {
		p.NoAnswerMarker = def.NoAnswerMarker
	}
	if strings.TrimSpace(p.Kickoff) == "" {
		p.Kickoff = def.Kickoff
	}
	if strings.TrimSpace(p.ReminderLine) == "" {
		p.ReminderLine = def.ReminderLine
	}
	if strings.TrimSpace(p.SkipLine) == "" {
		p.SkipLine = def.SkipLine
	}
	if strings.TrimSpace(p.ClosingLine) == "" {
		p.ClosingLine = def.ClosingLine
	}
	if strings.TrimSpace(p.ReminderStatus) == "" {
		p.ReminderStatus = def.ReminderStatus
	}
	if strings.TrimSpace(p.SkipStatus) == "" {
		p.SkipStatus = def.SkipStatus
	}
	if p.QuestionCount <= 0 {
		p.QuestionCount = def.QuestionCount
	}
	return p
}

// Candidate describes who is being interviewed and for what.
type Candidate struct {
	Name       string   `json:"name"`
	Role       string   `json:"role"`
	Experience string   `json:"experience,omitempty"`
	Skills     []string `json:"skills,omitempty"`
	JobContext string   `json:"job_context,omitempty"`
	Language   string   `json:"language,omitempty"`
}

// BuildInstructions renders the system prompt for the interview agent.
func BuildInstructions(c Candidate, p Prompts) string {
	p = p.withDefaults()
	language := strings.TrimSpace(c.Language)
	if language == "" {
		language = "English"
	}
	name := strings.TrimSpace(c.Name)
	if name == "" {
		name = "the candidate"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "You are a professional technical interviewer conducting a voice interview with %s for the role of %s.\n", name, strings.TrimSpace(c.Role))
	fmt.Fprintf(&b, "Conduct the entire interview in %s.\n", language)
	if exp := strings.TrimSpace(c.Experience); exp != "" {
		fmt.Fprintf(&b, "Candidate experience: %s.\n", exp)
	}
	if len(c.Skills) > 0 {
		fmt.Fprintf(&b, "Candidate skills: %s.\n", strings.Join(c.Skills, ", "))
	}
	if jc := strings.TrimSpace(c.JobContext); jc != "" {
		fmt.Fprintf(&b, "Job context:\n%s\n", jc)
	}
	b.WriteString("\nINTERVIEW RULES:\n")
	fmt.Fprintf(&b, "1. Introduce yourself briefly, then ask exactly %d technical questions, one at a time.\n", p.QuestionCount)
	b.WriteString("2. Adapt difficulty: after a correct answer ask a harder question, after a wrong or weak answer ask an easier one.\n")
	b.WriteString("3. Do not reveal correct answers and do not score the candidate out loud.\n")
	fmt.Fprintf(&b, "4. After the last question, say exactly: %q\n", p.ClosingLine)
	fmt.Fprintf(&b, "5. Immediately after the closing line, call the %s tool with reason \"%s\".\n", EndInterviewTool, ReasonCompleted)
	b.WriteString("\nSILENCE PROTOCOL:\n")
	fmt.Fprintf(&b, "- When you receive a message saying the candidate has been silent, say exactly: %q\n", p.ReminderLine)
	fmt.Fprintf(&b, "- When you receive a message saying the candidate is still silent, say exactly: %q and then ask the next question.\n", p.SkipLine)
	b.WriteString("- Never treat these system messages as candidate answers.\n")
	return b.String()
}
