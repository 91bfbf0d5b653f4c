package principal

import (
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/vango-go/vai-interview/pkg/gateway/auth"
	"github.com/vango-go/vai-interview/pkg/gateway/config"
	"github.com/vango-go/vai-interview/pkg/gateway/ratelimit"
)

// Kind says how a caller was identified.
type Kind string

const (
	// KindReviewer is a reviewer API caller holding a bearer key.
	KindReviewer Kind = "reviewer"
	// KindClient is reviewer API traffic without a key, keyed by address.
	KindClient Kind = "client"
	// KindCandidate is an interview socket. Candidates never carry keys, so
	// the interview caps apply per network client.
	KindCandidate Kind = "candidate"
	KindAnon      Kind = "anonymous"
)

// Resolved is a caller identity. Key is hashed and safe for maps and logs;
// Raw is the key or address itself and must not be logged.
type Resolved struct {
	Kind Kind
	Raw  string
	Key  string
}

// LogValue omits Raw.
func (p Resolved) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("kind", string(p.Kind)),
		slog.String("key", p.Key),
	)
}

// Reviewer identifies a caller of the reviewer HTTP API: by bearer key once
// Auth has accepted one, otherwise by client address.
func Reviewer(r *http.Request, cfg config.Config) Resolved {
	if r == nil {
		return Resolved{Kind: KindAnon, Key: "anonymous"}
	}
	if p, ok := auth.PrincipalFrom(r.Context()); ok && p != nil && strings.TrimSpace(p.APIKey) != "" {
		return Resolved{
			Kind: KindReviewer,
			Raw:  p.APIKey,
			Key:  ratelimit.PrincipalKeyFromAPIKey(p.APIKey),
		}
	}
	ip := clientIP(r, cfg.TrustProxyHeaders)
	if ip == "" {
		return Resolved{Kind: KindAnon, Key: "anonymous"}
	}
	return Resolved{Kind: KindClient, Raw: ip, Key: ratelimit.PrincipalKeyFromIP(ip)}
}

// Candidate identifies an interview socket by client address. Its keys are
// kept apart from reviewer buckets so a reviewer dashboard behind the same
// NAT never eats into a candidate's interview slot.
func Candidate(r *http.Request, cfg config.Config) Resolved {
	ip := ""
	if r != nil {
		ip = clientIP(r, cfg.TrustProxyHeaders)
	}
	if ip == "" {
		return Resolved{Kind: KindAnon, Key: "cand_anonymous"}
	}
	return Resolved{Kind: KindCandidate, Raw: ip, Key: "cand_" + ratelimit.PrincipalKeyFromIP(ip)}
}

// forwardedHeaders are consulted in order when proxy headers are trusted.
var forwardedHeaders = []string{"CF-Connecting-IP", "X-Real-IP", "X-Forwarded-For"}

func clientIP(r *http.Request, trustProxyHeaders bool) string {
	if trustProxyHeaders {
		for _, name := range forwardedHeaders {
			raw := r.Header.Get(name)
			// X-Forwarded-For lists the client first.
			if i := strings.IndexByte(raw, ','); i >= 0 {
				raw = raw[:i]
			}
			if ip := parseIP(raw); ip != "" {
				return ip
			}
		}
	}
	return parseIP(r.RemoteAddr)
}

// parseIP normalizes an address, accepting an optional port.
func parseIP(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if h, _, err := net.SplitHostPort(s); err == nil {
		s = h
	}
	ip := net.ParseIP(s)
	if ip == nil {
		return ""
	}
	return ip.String()
}
