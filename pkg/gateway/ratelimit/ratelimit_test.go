package ratelimit

import (
	"testing"
	"time"
)

func TestAcquireInterview_EnforcesPerPrincipalConcurrency(t *testing.T) {
	l := New(Config{MaxInterviewsPerPrincipal: 1})
	now := time.Now()

	first := l.AcquireInterview("p1", now)
	if !first.Allowed || first.Permit == nil {
		t.Fatalf("first allowed=%v permit=%v", first.Allowed, first.Permit)
	}

	second := l.AcquireInterview("p1", now)
	if second.Allowed {
		t.Fatalf("second should be denied")
	}
	if second.Global {
		t.Fatalf("second denial should be per-principal")
	}

	other := l.AcquireInterview("p2", now)
	if !other.Allowed {
		t.Fatalf("other principal should be allowed")
	}

	first.Permit.Release()
	third := l.AcquireInterview("p1", now)
	if !third.Allowed {
		t.Fatalf("third should be allowed after release")
	}
}

func TestAcquireInterview_GlobalCap(t *testing.T) {
	l := New(Config{MaxInterviews: 2, MaxInterviewsPerPrincipal: 5})
	now := time.Now()

	a := l.AcquireInterview("p1", now)
	b := l.AcquireInterview("p2", now)
	if !a.Allowed || !b.Allowed {
		t.Fatalf("first two should be allowed: %v %v", a.Allowed, b.Allowed)
	}
	if got := l.ActiveInterviews(); got != 2 {
		t.Fatalf("ActiveInterviews=%d, want 2", got)
	}

	c := l.AcquireInterview("p3", now)
	if c.Allowed || !c.Global {
		t.Fatalf("third should be denied by the global cap: %+v", c)
	}

	a.Permit.Release()
	a.Permit.Release()
	if got := l.ActiveInterviews(); got != 1 {
		t.Fatalf("ActiveInterviews=%d after release, want 1", got)
	}
}

func TestAcquireInterview_PerPrincipalDenialReturnsGlobalSlot(t *testing.T) {
	l := New(Config{MaxInterviews: 2, MaxInterviewsPerPrincipal: 1})
	now := time.Now()

	first := l.AcquireInterview("p1", now)
	if !first.Allowed {
		t.Fatalf("first should be allowed")
	}
	first.Permit.Release()

	// Exhaust p1, then make sure the global slot is not leaked by denials.
	held := l.AcquireInterview("p1", now)
	if !held.Allowed {
		t.Fatalf("held should be allowed")
	}
	if denied := l.AcquireInterview("p1", now); denied.Allowed {
		t.Fatalf("expected denial")
	}
	held.Permit.Release()
	if got := l.ActiveInterviews(); got != 0 {
		t.Fatalf("ActiveInterviews=%d, want 0", got)
	}
}

func TestAcquireRequest_TokenBucket(t *testing.T) {
	l := New(Config{RPS: 1, Burst: 2})
	now := time.Now()

	for i := 0; i < 2; i++ {
		dec := l.AcquireRequest("p1", now)
		if !dec.Allowed {
			t.Fatalf("request %d should be allowed", i)
		}
		dec.Permit.Release()
	}
	dec := l.AcquireRequest("p1", now)
	if dec.Allowed {
		t.Fatalf("third request should be denied")
	}
	if dec.RetryAfter < 1 {
		t.Fatalf("RetryAfter=%d, want >= 1", dec.RetryAfter)
	}

	later := l.AcquireRequest("p1", now.Add(1100*time.Millisecond))
	if !later.Allowed {
		t.Fatalf("request after refill should be allowed")
	}
}

func TestPrincipalKeys_AreDistinctAndStable(t *testing.T) {
	if PrincipalKeyFromAPIKey("x") != PrincipalKeyFromAPIKey("x") {
		t.Fatalf("api key principal should be stable")
	}
	if PrincipalKeyFromIP("10.0.0.1") == PrincipalKeyFromIP("10.0.0.2") {
		t.Fatalf("ip principals should differ")
	}
}
