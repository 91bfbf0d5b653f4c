package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/vango-go/vai-interview/pkg/gateway/config"
	"github.com/vango-go/vai-interview/pkg/gateway/lifecycle"
)

type HealthHandler struct{}

func (h HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

// Pinger reports whether report storage is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type ReadyHandler struct {
	Config    config.Config
	Store     Pinger
	Lifecycle *lifecycle.Lifecycle
	// ActiveInterviews reports live sessions; nil omits the field.
	ActiveInterviews func() int
}

func (h ReadyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	type readyResp struct {
		OK               bool     `json:"ok"`
		AuthMode         string   `json:"auth_mode"`
		Draining         bool     `json:"draining"`
		DrainingMS       *int64   `json:"draining_ms,omitempty"`
		StoreOK          bool     `json:"store_ok"`
		LimitsEnabled    bool     `json:"limits_enabled"`
		ActiveInterviews *int     `json:"active_interviews,omitempty"`
		Issues           []string `json:"issues,omitempty"`
	}

	issues := make([]string, 0, 4)

	switch h.Config.AuthMode {
	case config.AuthModeRequired, config.AuthModeOptional, config.AuthModeDisabled:
	default:
		issues = append(issues, "invalid auth_mode")
	}
	if h.Config.AuthMode == config.AuthModeRequired && len(h.Config.APIKeys) == 0 {
		issues = append(issues, "auth_mode=required but no api keys configured")
	}
	if h.Config.InterviewDuration <= 0 {
		issues = append(issues, "interview duration must be > 0")
	}
	if h.Config.MaxSessions <= 0 {
		issues = append(issues, "max sessions must be > 0")
	}
	if h.Config.HandshakeTimeout <= 0 {
		issues = append(issues, "handshake timeout must be > 0")
	}

	var drainingMS *int64
	since, draining := h.Lifecycle.DrainingSince()
	if draining {
		issues = append(issues, "draining")
		ms := time.Since(since).Milliseconds()
		drainingMS = &ms
	}

	storeOK := true
	if h.Store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		err := h.Store.Ping(ctx)
		cancel()
		if err != nil {
			storeOK = false
			issues = append(issues, "report store unreachable")
		}
	}

	limitsEnabled := (h.Config.LimitRPS > 0 && h.Config.LimitBurst > 0) ||
		h.Config.LimitMaxConcurrentRequests > 0 ||
		h.Config.MaxInterviewsPerClient > 0

	var active *int
	if h.ActiveInterviews != nil {
		n := h.ActiveInterviews()
		active = &n
	}

	ok := len(issues) == 0
	status := http.StatusOK
	switch {
	case draining || !storeOK:
		status = http.StatusServiceUnavailable
	case !ok:
		status = http.StatusInternalServerError
	}

	writeJSON(w, status, readyResp{
		OK:               ok,
		AuthMode:         string(h.Config.AuthMode),
		Draining:         draining,
		DrainingMS:       drainingMS,
		StoreOK:          storeOK,
		LimitsEnabled:    limitsEnabled,
		ActiveInterviews: active,
		Issues:           issues,
	})
}
