package mw

import (
	"net/http"
	"strings"

	"github.com/vango-go/vai-interview/pkg/gateway/config"
)

var corsAllowedMethods = "GET, OPTIONS"

var corsAllowedHeaders = strings.Join([]string{
	"Authorization",
	"Content-Type",
	"X-Request-ID",
	apiVersionHeader,
}, ", ")

var corsExposedHeaders = strings.Join([]string{
	"X-Request-ID",
	"Retry-After",
}, ", ")

// CORS attaches headers only for allowlisted origins. The same allowlist
// gates the Origin of interview websocket upgrades.
func CORS(cfg config.Config, next http.Handler) http.Handler {
	allowed := cfg.CORSAllowedOrigins
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := strings.TrimSpace(r.Header.Get("Origin"))

		// Preflight: explicitly allow/deny so browser callers get deterministic behavior.
		if r.Method == http.MethodOptions && strings.TrimSpace(r.Header.Get("Access-Control-Request-Method")) != "" {
			if !OriginAllowed(cfg, origin) || origin == "" {
				http.Error(w, "cors preflight not allowed", http.StatusForbidden)
				return
			}

			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Vary", "Origin")
			w.Header().Set("Access-Control-Allow-Methods", corsAllowedMethods)
			w.Header().Set("Access-Control-Allow-Headers", corsAllowedHeaders)
			w.Header().Set("Access-Control-Max-Age", "600")
			w.WriteHeader(http.StatusNoContent)
			return
		}

		if origin != "" && len(allowed) > 0 {
			if _, ok := allowed[origin]; ok {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Vary", "Origin")
				w.Header().Set("Access-Control-Expose-Headers", corsExposedHeaders)
			}
		}

		next.ServeHTTP(w, r)
	})
}

// OriginAllowed reports whether a browser origin may use the gateway.
// Requests without an Origin header (non-browser clients) are allowed.
func OriginAllowed(cfg config.Config, origin string) bool {
	origin = strings.TrimSpace(origin)
	if origin == "" {
		return true
	}
	if len(cfg.CORSAllowedOrigins) == 0 {
		return false
	}
	_, ok := cfg.CORSAllowedOrigins[origin]
	return ok
}
