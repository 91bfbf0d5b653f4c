package mw

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/vango-go/vai-interview/pkg/core"
	"github.com/vango-go/vai-interview/pkg/gateway/auth"
	"github.com/vango-go/vai-interview/pkg/gateway/config"
)

type ctxKeyRequestID struct{}

func RequestIDFrom(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(ctxKeyRequestID{}).(string)
	return id, ok && id != ""
}

func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKeyRequestID{}, id)
}

func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get("X-Request-ID"))
		if id == "" {
			id = "req_" + randHex(10)
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(WithRequestID(r.Context(), id)))
	})
}

// Auth guards the reviewer API with bearer keys. Probes and the candidate
// websocket upgrade pass through untouched.
func Auth(cfg config.Config, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID, _ := RequestIDFrom(r.Context())

		if isProbe(r) || isWebSocketUpgrade(r) || r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		switch cfg.AuthMode {
		case config.AuthModeDisabled:
			next.ServeHTTP(w, r)
			return
		case config.AuthModeOptional, config.AuthModeRequired:
		default:
			writeJSONError(w, http.StatusInternalServerError, &core.Error{
				Type:      core.ErrAPI,
				Message:   "invalid auth_mode",
				RequestID: reqID,
			})
			return
		}

		token, ok := auth.ParseBearer(r)
		if !ok {
			if cfg.AuthMode == config.AuthModeRequired {
				writeJSONError(w, http.StatusUnauthorized, &core.Error{
					Type:      core.ErrAuthentication,
					Message:   "missing bearer token",
					Param:     "Authorization",
					RequestID: reqID,
				})
				return
			}
			next.ServeHTTP(w, r)
			return
		}
		if !auth.KeyAllowed(cfg.APIKeys, token) {
			writeJSONError(w, http.StatusUnauthorized, &core.Error{
				Type:      core.ErrAuthentication,
				Message:   "invalid api key",
				RequestID: reqID,
			})
			return
		}
		p := &auth.Principal{APIKey: token}
		next.ServeHTTP(w, r.WithContext(auth.WithPrincipal(r.Context(), p)))
	})
}

func Recover(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				if v == http.ErrAbortHandler {
					panic(v)
				}
				reqID, _ := RequestIDFrom(r.Context())
				if logger != nil {
					logger.Error("panic", "panic", v, "request_id", reqID, "path", r.URL.Path)
				}
				writeJSONError(w, http.StatusInternalServerError, &core.Error{
					Type:      core.ErrAPI,
					Message:   "internal error",
					RequestID: reqID,
				})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

type flushStatusWriter struct{ *statusWriter }

func (w flushStatusWriter) Flush() { w.ResponseWriter.(http.Flusher).Flush() }

type hijackStatusWriter struct{ *statusWriter }

func (w hijackStatusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	// Upgraded connections report 101 in the access log.
	w.status = http.StatusSwitchingProtocols
	return w.ResponseWriter.(http.Hijacker).Hijack()
}

type flushHijackStatusWriter struct{ *statusWriter }

func (w flushHijackStatusWriter) Flush() { w.ResponseWriter.(http.Flusher).Flush() }

func (w flushHijackStatusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	w.status = http.StatusSwitchingProtocols
	return w.ResponseWriter.(http.Hijacker).Hijack()
}

// wrapStatus advertises exactly the optional interfaces the underlying
// writer supports.
func wrapStatus(w http.ResponseWriter) (http.ResponseWriter, *statusWriter) {
	sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
	_, canFlush := w.(http.Flusher)
	_, canHijack := w.(http.Hijacker)
	switch {
	case canFlush && canHijack:
		return flushHijackStatusWriter{sw}, sw
	case canHijack:
		return hijackStatusWriter{sw}, sw
	case canFlush:
		return flushStatusWriter{sw}, sw
	default:
		return sw, sw
	}
}

// AccessLog writes one record per request. Probes log at debug level so
// orchestrator health checks do not drown out interview traffic. Upgraded
// interview connections are logged when the socket closes.
func AccessLog(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped, sw := wrapStatus(w)
		next.ServeHTTP(wrapped, r)
		if logger == nil {
			return
		}
		reqID, _ := RequestIDFrom(r.Context())
		attrs := []any{
			"request_id", reqID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", sw.status,
			"duration_ms", time.Since(start).Milliseconds(),
		}
		switch {
		case isProbe(r):
			logger.Debug("probe", attrs...)
		case sw.status == http.StatusSwitchingProtocols:
			logger.Info("interview connection closed", attrs...)
		default:
			logger.Info("request", attrs...)
		}
	})
}

func isProbe(r *http.Request) bool {
	return r.URL.Path == "/healthz" || r.URL.Path == "/readyz"
}

func randHex(nbytes int) string {
	b := make([]byte, nbytes)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand should not fail in practice; fall back to time-based entropy.
		return hex.EncodeToString([]byte(time.Now().Format("20060102150405.000000000")))
	}
	return hex.EncodeToString(b)
}

type errorEnvelope struct {
	Error *core.Error `json:"error"`
}

func writeJSONError(w http.ResponseWriter, status int, err *core.Error) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorEnvelope{Error: err})
}
