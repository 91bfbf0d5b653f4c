package live

import "testing"

func TestTranscript_UserFragmentsConcatenate(t *testing.T) {
	var tr Transcript
	for _, f := range []string{"Hel", "lo wor", "ld"} {
		tr.Add(SpeakerUser, f)
	}
	lines := tr.Lines()
	if len(lines) != 1 || lines[0].Text != "Hello world" {
		t.Fatalf("lines=%+v", lines)
	}
}

func TestTranscript_AgentFragmentsJoinWithSpace(t *testing.T) {
	var tr Transcript
	tr.Add(SpeakerAgent, " Hello. ")
	tr.Add(SpeakerAgent, "Let's begin.")
	lines := tr.Lines()
	if len(lines) != 1 || lines[0].Text != "Hello. Let's begin." {
		t.Fatalf("lines=%+v", lines)
	}
}

func TestTranscript_SpeakerChangeStartsLine(t *testing.T) {
	var tr Transcript
	tr.Add(SpeakerAgent, "What is a goroutine?")
	tr.Add(SpeakerUser, " A lightweight")
	tr.Add(SpeakerUser, " thread.")
	tr.Add(SpeakerAgent, "Good.")

	want := []Line{
		{Speaker: SpeakerAgent, Text: "What is a goroutine?"},
		{Speaker: SpeakerUser, Text: "A lightweight thread."},
		{Speaker: SpeakerAgent, Text: "Good."},
	}
	got := tr.Lines()
	if len(got) != len(want) {
		t.Fatalf("lines=%+v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("line %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestTranscript_IgnoresEmptyFragments(t *testing.T) {
	var tr Transcript
	if tr.Add(SpeakerUser, "") || tr.Add(SpeakerAgent, "   ") || tr.Add(SpeakerUser, "  ") {
		t.Fatalf("empty fragment reported a change")
	}
	if tr.Len() != 0 {
		t.Fatalf("len=%d", tr.Len())
	}
}

func TestTranscript_HistoryMatchesLines(t *testing.T) {
	var tr Transcript
	tr.Add(SpeakerAgent, "Question one.")
	tr.Add(SpeakerUser, "Answer")
	tr.AddLine(SpeakerUser, "[No answer - candidate remained silent]")

	want := "Interviewer: Question one.\nCandidate: Answer\nCandidate: [No answer - candidate remained silent]"
	if got := tr.History(); got != want {
		t.Fatalf("history=%q", got)
	}
	if got := FormatHistory(tr.Lines()); got != want {
		t.Fatalf("FormatHistory=%q", got)
	}
}

func TestTranscript_LinesIsCopy(t *testing.T) {
	var tr Transcript
	tr.Add(SpeakerUser, "hi")
	lines := tr.Lines()
	lines[0].Text = "changed"
	if tr.Lines()[0].Text != "hi" {
		t.Fatalf("Lines exposed internal state")
	}
}

func TestTranscript_MarkerLineIsNotExtended(t *testing.T) {
	var tr Transcript
	tr.Add(SpeakerAgent, "Tell me about Go channels.")
	tr.AddLine(SpeakerUser, DefaultPrompts().NoAnswerMarker)
	tr.Add(SpeakerUser, "Sorry, ")
	tr.Add(SpeakerUser, "I was muted.")

	lines := tr.Lines()
	if len(lines) != 3 {
		t.Fatalf("lines=%+v", lines)
	}
	if lines[1].Text != DefaultPrompts().NoAnswerMarker {
		t.Fatalf("marker=%q", lines[1].Text)
	}
	if lines[2].Speaker != SpeakerUser || lines[2].Text != "Sorry, I was muted." {
		t.Fatalf("answer=%+v", lines[2])
	}
}
