package live

import (
	"strings"
	"testing"
	"time"
)

func TestProctor_TerminatesAtLimitOnce(t *testing.T) {
	p := NewProctor(4*time.Second, 3)
	now := time.Unix(0, 0)

	for i := 1; i <= 2; i++ {
		res := p.Record(ViolationTabHidden, now)
		if res.Terminate {
			t.Fatalf("terminated at strike %d", i)
		}
		if res.Strikes != i {
			t.Fatalf("strikes=%d, want %d", res.Strikes, i)
		}
	}
	if res := p.Record(ViolationPaste, now); !res.Terminate {
		t.Fatalf("expected termination at strike 3")
	}
	if res := p.Record(ViolationPaste, now); res.Terminate {
		t.Fatalf("termination reported twice")
	}
}

func TestProctor_WarningExpires(t *testing.T) {
	p := NewProctor(4*time.Second, 3)
	now := time.Unix(100, 0)
	res := p.Record(ViolationCopy, now)
	if !strings.Contains(res.Warning, "strike 1 of 3") {
		t.Fatalf("warning=%q", res.Warning)
	}

	if p.Expire(now.Add(3 * time.Second)) {
		t.Fatalf("expired early")
	}
	if !p.Expire(now.Add(4 * time.Second)) {
		t.Fatalf("did not expire")
	}
	if p.Warning() != "" {
		t.Fatalf("warning still visible")
	}
	if p.Strikes() != 1 {
		t.Fatalf("strikes reset on expiry")
	}
}

func TestParseViolationKind(t *testing.T) {
	tests := []struct {
		raw  string
		want ViolationKind
		ok   bool
	}{
		{"tab_hidden", ViolationTabHidden, true},
		{" Window_Blur ", ViolationWindowBlur, true},
		{"context_menu", ViolationContextMenu, true},
		{"screenshot", "", false},
	}
	for _, tt := range tests {
		got, ok := ParseViolationKind(tt.raw)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseViolationKind(%q) = %q,%v", tt.raw, got, ok)
		}
	}
}
