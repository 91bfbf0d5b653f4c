package mw

import (
	"net/http"
	"strconv"
	"time"

	"github.com/vango-go/vai-interview/pkg/core"
	"github.com/vango-go/vai-interview/pkg/gateway/config"
	"github.com/vango-go/vai-interview/pkg/gateway/principal"
	"github.com/vango-go/vai-interview/pkg/gateway/ratelimit"
)

// RateLimit applies the per-principal request budget to HTTP requests.
// Interview sockets are counted separately by the interview handler, so
// upgrades only pay the token-bucket cost here.
func RateLimit(cfg config.Config, limiter *ratelimit.Limiter, next http.Handler) http.Handler {
	if limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Health endpoints must remain cheap and reliable.
		if isProbe(r) || r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		p := principal.Reviewer(r, cfg)
		if isWebSocketUpgrade(r) {
			p = principal.Candidate(r, cfg)
		}
		dec := limiter.AcquireRequest(p.Key, time.Now())
		if !dec.Allowed {
			reqID, _ := RequestIDFrom(r.Context())
			var retryAfter *int
			if dec.RetryAfter > 0 {
				w.Header().Set("Retry-After", strconv.Itoa(dec.RetryAfter))
				v := dec.RetryAfter
				retryAfter = &v
			}
			writeJSONError(w, http.StatusTooManyRequests, &core.Error{
				Type:       core.ErrRateLimit,
				Message:    "rate limit exceeded",
				RequestID:  reqID,
				RetryAfter: retryAfter,
			})
			return
		}
		if isWebSocketUpgrade(r) {
			// A socket would hold the request permit for the whole interview.
			dec.Permit.Release()
			next.ServeHTTP(w, r)
			return
		}
		if dec.Permit != nil {
			defer dec.Permit.Release()
		}

		next.ServeHTTP(w, r)
	})
}
