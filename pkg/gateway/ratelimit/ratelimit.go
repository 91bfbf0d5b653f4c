package ratelimit

import (
	"crypto/sha256"
	"encoding/hex"
	"math"
	"sync"
	"time"
)

type Config struct {
	RPS   float64
	Burst int

	MaxConcurrentRequests int

	// MaxInterviews caps live interviews across all clients.
	MaxInterviews int
	// MaxInterviewsPerPrincipal caps live interviews per client.
	MaxInterviewsPerPrincipal int

	// Operational bounds for the in-memory map (single-process only).
	MaxEntries int
	EntryTTL   time.Duration
}

// Limiter enforces per-principal request rates plus interview concurrency.
type Limiter struct {
	cfg Config

	global chan struct{}

	mu sync.Mutex
	m  map[string]*principalLimiter
}

type principalLimiter struct {
	mu sync.Mutex

	tb tokenBucket

	reqSem       chan struct{}
	interviewSem chan struct{}

	lastSeen time.Time
}

type tokenBucket struct {
	rps      float64
	capacity float64

	tokens float64
	last   time.Time
}

func New(cfg Config) *Limiter {
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = 10_000
	}
	if cfg.EntryTTL <= 0 {
		cfg.EntryTTL = 30 * time.Minute
	}
	l := &Limiter{
		cfg: cfg,
		m:   make(map[string]*principalLimiter),
	}
	if cfg.MaxInterviews > 0 {
		l.global = make(chan struct{}, cfg.MaxInterviews)
	}
	return l
}

func PrincipalKeyFromAPIKey(apiKey string) string {
	sum := sha256.Sum256([]byte(apiKey))
	// 16 bytes => 32 hex chars; enough to avoid collisions in practice.
	return "k_" + hex.EncodeToString(sum[:16])
}

func PrincipalKeyFromIP(ip string) string {
	sum := sha256.Sum256([]byte(ip))
	return "ip_" + hex.EncodeToString(sum[:16])
}

type Permit struct {
	release func()
}

func (p *Permit) Release() {
	if p == nil || p.release == nil {
		return
	}
	p.release()
	p.release = nil
}

type Decision struct {
	Allowed    bool
	RetryAfter int
	Permit     *Permit
	// Global is set when the process-wide interview cap denied the request.
	Global bool
}

func (l *Limiter) AcquireRequest(principal string, now time.Time) Decision {
	if principal == "" {
		principal = "anonymous"
	}

	pl := l.getOrCreate(principal, now)
	pl.touch(now)

	// RPS/burst (token bucket).
	if l.cfg.RPS > 0 && l.cfg.Burst > 0 {
		ok, retryAfter := pl.allowToken(now, l.cfg.RPS, l.cfg.Burst)
		if !ok {
			return Decision{Allowed: false, RetryAfter: retryAfter}
		}
	}

	// Concurrency cap.
	if l.cfg.MaxConcurrentRequests > 0 {
		select {
		case pl.reqSem <- struct{}{}:
			return Decision{
				Allowed: true,
				Permit:  &Permit{release: func() { <-pl.reqSem }},
			}
		default:
			return Decision{Allowed: false, RetryAfter: 1}
		}
	}

	return Decision{Allowed: true, Permit: &Permit{release: func() {}}}
}

// AcquireInterview reserves a live interview slot. The returned permit holds
// both the global and the per-principal slot until released.
func (l *Limiter) AcquireInterview(principal string, now time.Time) Decision {
	if principal == "" {
		principal = "anonymous"
	}

	releaseGlobal := func() {}
	if l.global != nil {
		select {
		case l.global <- struct{}{}:
			releaseGlobal = func() { <-l.global }
		default:
			return Decision{Allowed: false, RetryAfter: 5, Global: true}
		}
	}

	pl := l.getOrCreate(principal, now)
	pl.touch(now)

	if l.cfg.MaxInterviewsPerPrincipal > 0 {
		select {
		case pl.interviewSem <- struct{}{}:
			return Decision{
				Allowed: true,
				Permit: &Permit{release: func() {
					<-pl.interviewSem
					releaseGlobal()
				}},
			}
		default:
			releaseGlobal()
			return Decision{Allowed: false, RetryAfter: 1}
		}
	}

	return Decision{Allowed: true, Permit: &Permit{release: releaseGlobal}}
}

// ActiveInterviews reports how many global interview slots are held.
func (l *Limiter) ActiveInterviews() int {
	if l == nil || l.global == nil {
		return 0
	}
	return len(l.global)
}

func (l *Limiter) getOrCreate(principal string, now time.Time) *principalLimiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.m) >= l.cfg.MaxEntries {
		l.gcLocked(now)
		// If still too big, drop one arbitrary entry (bounded memory > perfect fairness).
		if len(l.m) >= l.cfg.MaxEntries {
			for k := range l.m {
				delete(l.m, k)
				break
			}
		}
	}

	if pl, ok := l.m[principal]; ok {
		return pl
	}
	pl := &principalLimiter{
		reqSem:       make(chan struct{}, max(1, l.cfg.MaxConcurrentRequests)),
		interviewSem: make(chan struct{}, max(1, l.cfg.MaxInterviewsPerPrincipal)),
		lastSeen:     now,
	}
	l.m[principal] = pl
	return pl
}

func (l *Limiter) gcLocked(now time.Time) {
	ttl := l.cfg.EntryTTL
	for k, v := range l.m {
		// Entries holding an interview slot stay; dropping them would leak the cap.
		v.mu.Lock()
		stale := now.Sub(v.lastSeen) > ttl
		v.mu.Unlock()
		if stale && len(v.interviewSem) == 0 {
			delete(l.m, k)
		}
	}
}

func (pl *principalLimiter) touch(now time.Time) {
	pl.mu.Lock()
	pl.lastSeen = now
	pl.mu.Unlock()
}

func (pl *principalLimiter) allowToken(now time.Time, rps float64, burst int) (bool, int) {
	pl.mu.Lock()
	defer pl.mu.Unlock()

	if burst <= 0 || rps <= 0 {
		return true, 0
	}
	capacity := float64(burst)
	if pl.tb.capacity == 0 {
		pl.tb = tokenBucket{
			rps:      rps,
			capacity: capacity,
			tokens:   capacity,
			last:     now,
		}
	}

	pl.tb.rps = rps
	pl.tb.capacity = capacity

	elapsed := now.Sub(pl.tb.last).Seconds()
	if elapsed > 0 {
		pl.tb.tokens = math.Min(pl.tb.capacity, pl.tb.tokens+(elapsed*pl.tb.rps))
		pl.tb.last = now
	}

	if pl.tb.tokens >= 1.0 {
		pl.tb.tokens -= 1.0
		return true, 0
	}

	needed := 1.0 - pl.tb.tokens
	seconds := needed / pl.tb.rps
	retryAfter := int(math.Ceil(seconds))
	if retryAfter < 1 {
		retryAfter = 1
	}
	return false, retryAfter
}
