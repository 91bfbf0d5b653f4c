package lifecycle

import (
	"testing"
	"time"
)

func TestLifecycle_BeginDrainKeepsFirstStart(t *testing.T) {
	var l Lifecycle
	if l.IsDraining() {
		t.Fatalf("zero value should not be draining")
	}
	if _, ok := l.DrainingSince(); ok {
		t.Fatalf("zero value reported a drain start")
	}

	first := time.Unix(1_700_000_000, 0)
	if !l.BeginDrain(first) {
		t.Fatalf("first BeginDrain should start the drain")
	}
	if l.BeginDrain(first.Add(time.Minute)) {
		t.Fatalf("second BeginDrain should be a no-op")
	}
	if !l.IsDraining() {
		t.Fatalf("expected draining")
	}
	if since, ok := l.DrainingSince(); !ok || !since.Equal(first) {
		t.Fatalf("since=%v ok=%v", since, ok)
	}
}

func TestLifecycle_NilNeverDrains(t *testing.T) {
	var l *Lifecycle
	if l.BeginDrain(time.Now()) || l.IsDraining() {
		t.Fatalf("nil lifecycle should never drain")
	}
	if _, ok := l.DrainingSince(); ok {
		t.Fatalf("nil lifecycle reported a drain start")
	}
}
