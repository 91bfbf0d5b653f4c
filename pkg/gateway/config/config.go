package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// AuthMode controls how the reviewer endpoints (/v1/reports) authenticate.
// The candidate-facing interview socket is never behind an API key.
type AuthMode string

const (
	AuthModeRequired AuthMode = "required"
	AuthModeOptional AuthMode = "optional"
	AuthModeDisabled AuthMode = "disabled"
)

type Config struct {
	Addr string

	AuthMode AuthMode
	APIKeys  map[string]struct{}

	// If true, client identity may be derived from proxy headers like X-Forwarded-For.
	// This should only be enabled when the gateway is deployed behind a trusted proxy/LB.
	TrustProxyHeaders bool

	// CORS
	CORSAllowedOrigins map[string]struct{} // empty => disabled

	// Gemini
	GeminiAPIKey       string
	GeminiLiveModel    string
	GeminiScoringModel string
	GeminiVoice        string
	GeminiLiveURL      string
	GeminiBaseURL      string
	GeminiSetupTimeout time.Duration
	ScoringTimeout     time.Duration

	// Interview policy
	InterviewDuration   time.Duration
	SilenceThreshold    time.Duration
	MaxSilenceReminders int
	GraceDelay          time.Duration
	WarningWindow       time.Duration
	MaxViolations       int
	MaxReconnects       int
	ReconnectDelay      time.Duration
	QuestionCount       int

	// Interview websocket (/v1/interview).
	MaxSessions                int
	MaxInterviewsPerClient     int
	WSMaxAudioFrameBytes       int
	WSMaxJSONMessageBytes      int64
	WSMaxAudioFPS              int
	WSInboundBurstSeconds      int
	WSPingInterval             time.Duration
	WSWriteTimeout             time.Duration
	WSReadTimeout              time.Duration
	HandshakeTimeout           time.Duration
	OutboundQueueSize          int
	LimitRPS                   float64
	LimitBurst                 int
	LimitMaxConcurrentRequests int

	// Storage; empty => in-memory.
	DatabaseURL string

	// Operational defaults
	ReadHeaderTimeout   time.Duration
	ReadTimeout         time.Duration
	ShutdownGracePeriod time.Duration
}

func LoadFromEnv() (Config, error) {
	cfg := Config{
		Addr:                       envOr("INTERVIEW_ADDR", ":8080"),
		AuthMode:                   AuthMode(envOr("INTERVIEW_AUTH_MODE", string(AuthModeRequired))),
		APIKeys:                    make(map[string]struct{}),
		TrustProxyHeaders:          envBoolOr("INTERVIEW_TRUST_PROXY_HEADERS", false),
		CORSAllowedOrigins:         make(map[string]struct{}),
		GeminiAPIKey:               envOr("GEMINI_API_KEY", ""),
		GeminiLiveModel:            envOr("INTERVIEW_LIVE_MODEL", "gemini-2.5-flash-native-audio-preview-09-2025"),
		GeminiScoringModel:         envOr("INTERVIEW_SCORING_MODEL", "gemini-2.5-flash"),
		GeminiVoice:                envOr("INTERVIEW_VOICE", "Puck"),
		GeminiLiveURL:              envOr("INTERVIEW_GEMINI_LIVE_URL", ""),
		GeminiBaseURL:              envOr("INTERVIEW_GEMINI_BASE_URL", ""),
		GeminiSetupTimeout:         envDurationOr("INTERVIEW_GEMINI_SETUP_TIMEOUT", 15*time.Second),
		ScoringTimeout:             envDurationOr("INTERVIEW_SCORING_TIMEOUT", 60*time.Second),
		InterviewDuration:          envDurationOr("INTERVIEW_DURATION", 600*time.Second),
		SilenceThreshold:           envDurationOr("INTERVIEW_SILENCE_THRESHOLD", 10*time.Second),
		MaxSilenceReminders:        envIntOr("INTERVIEW_MAX_SILENCE_REMINDERS", 2),
		GraceDelay:                 envDurationOr("INTERVIEW_GRACE_DELAY", 3*time.Second),
		WarningWindow:              envDurationOr("INTERVIEW_WARNING_WINDOW", 4*time.Second),
		MaxViolations:              envIntOr("INTERVIEW_MAX_VIOLATIONS", 3),
		MaxReconnects:              envIntOr("INTERVIEW_MAX_RECONNECTS", 3),
		ReconnectDelay:             envDurationOr("INTERVIEW_RECONNECT_DELAY", time.Second),
		QuestionCount:              envIntOr("INTERVIEW_QUESTION_COUNT", 5),
		MaxSessions:                envIntOr("INTERVIEW_MAX_SESSIONS", 100),
		MaxInterviewsPerClient:     envIntOr("INTERVIEW_MAX_SESSIONS_PER_CLIENT", 1),
		WSMaxAudioFrameBytes:       envIntOr("INTERVIEW_WS_MAX_AUDIO_FRAME_BYTES", 16384),
		WSMaxJSONMessageBytes:      envInt64Or("INTERVIEW_WS_MAX_JSON_MESSAGE_BYTES", 64*1024),
		WSMaxAudioFPS:              envIntOr("INTERVIEW_WS_MAX_AUDIO_FPS", 120),
		WSInboundBurstSeconds:      envIntOr("INTERVIEW_WS_INBOUND_BURST_SECONDS", 2),
		WSPingInterval:             envDurationOr("INTERVIEW_WS_PING_INTERVAL", 20*time.Second),
		WSWriteTimeout:             envDurationOr("INTERVIEW_WS_WRITE_TIMEOUT", 5*time.Second),
		WSReadTimeout:              envDurationOr("INTERVIEW_WS_READ_TIMEOUT", 60*time.Second),
		HandshakeTimeout:           envDurationOr("INTERVIEW_HANDSHAKE_TIMEOUT", 5*time.Second),
		OutboundQueueSize:          envIntOr("INTERVIEW_WS_OUTBOUND_QUEUE_SIZE", 256),
		LimitRPS:                   envFloat64Or("INTERVIEW_RATE_LIMIT_RPS", 2.0),
		LimitBurst:                 envIntOr("INTERVIEW_RATE_LIMIT_BURST", 4),
		LimitMaxConcurrentRequests: envIntOr("INTERVIEW_MAX_CONCURRENT_REQUESTS", 20),
		DatabaseURL:                envOr("INTERVIEW_DATABASE_URL", ""),
		ReadHeaderTimeout:          envDurationOr("INTERVIEW_READ_HEADER_TIMEOUT", 10*time.Second),
		ReadTimeout:                envDurationOr("INTERVIEW_READ_TIMEOUT", 30*time.Second),
		ShutdownGracePeriod:        envDurationOr("INTERVIEW_SHUTDOWN_GRACE_PERIOD", 30*time.Second),
	}

	switch cfg.AuthMode {
	case AuthModeRequired, AuthModeOptional, AuthModeDisabled:
	default:
		return Config{}, fmt.Errorf("INTERVIEW_AUTH_MODE must be one of required|optional|disabled")
	}

	for _, key := range splitCSV(os.Getenv("INTERVIEW_API_KEYS")) {
		cfg.APIKeys[key] = struct{}{}
	}

	for _, origin := range splitCSV(os.Getenv("INTERVIEW_CORS_ORIGINS")) {
		cfg.CORSAllowedOrigins[origin] = struct{}{}
	}

	if strings.TrimSpace(cfg.GeminiAPIKey) == "" {
		return Config{}, fmt.Errorf("GEMINI_API_KEY must be set")
	}
	if strings.TrimSpace(cfg.GeminiLiveModel) == "" {
		return Config{}, fmt.Errorf("INTERVIEW_LIVE_MODEL must not be empty")
	}
	if strings.TrimSpace(cfg.GeminiScoringModel) == "" {
		return Config{}, fmt.Errorf("INTERVIEW_SCORING_MODEL must not be empty")
	}
	if cfg.GeminiSetupTimeout <= 0 {
		return Config{}, fmt.Errorf("INTERVIEW_GEMINI_SETUP_TIMEOUT must be > 0")
	}
	if cfg.ScoringTimeout <= 0 {
		return Config{}, fmt.Errorf("INTERVIEW_SCORING_TIMEOUT must be > 0")
	}

	if cfg.InterviewDuration <= 0 {
		return Config{}, fmt.Errorf("INTERVIEW_DURATION must be > 0")
	}
	if cfg.SilenceThreshold <= 0 {
		return Config{}, fmt.Errorf("INTERVIEW_SILENCE_THRESHOLD must be > 0")
	}
	if cfg.MaxSilenceReminders <= 0 {
		return Config{}, fmt.Errorf("INTERVIEW_MAX_SILENCE_REMINDERS must be > 0")
	}
	if cfg.GraceDelay <= 0 {
		return Config{}, fmt.Errorf("INTERVIEW_GRACE_DELAY must be > 0")
	}
	if cfg.WarningWindow <= 0 {
		return Config{}, fmt.Errorf("INTERVIEW_WARNING_WINDOW must be > 0")
	}
	if cfg.MaxViolations <= 0 {
		return Config{}, fmt.Errorf("INTERVIEW_MAX_VIOLATIONS must be > 0")
	}
	if cfg.MaxReconnects < 0 {
		return Config{}, fmt.Errorf("INTERVIEW_MAX_RECONNECTS must be >= 0")
	}
	if cfg.ReconnectDelay <= 0 {
		return Config{}, fmt.Errorf("INTERVIEW_RECONNECT_DELAY must be > 0")
	}
	if cfg.QuestionCount <= 0 {
		return Config{}, fmt.Errorf("INTERVIEW_QUESTION_COUNT must be > 0")
	}

	if cfg.MaxSessions <= 0 {
		return Config{}, fmt.Errorf("INTERVIEW_MAX_SESSIONS must be > 0")
	}
	if cfg.MaxInterviewsPerClient < 0 {
		return Config{}, fmt.Errorf("INTERVIEW_MAX_SESSIONS_PER_CLIENT must be >= 0")
	}
	if cfg.WSMaxAudioFrameBytes <= 0 {
		return Config{}, fmt.Errorf("INTERVIEW_WS_MAX_AUDIO_FRAME_BYTES must be > 0")
	}
	if cfg.WSMaxJSONMessageBytes <= 0 {
		return Config{}, fmt.Errorf("INTERVIEW_WS_MAX_JSON_MESSAGE_BYTES must be > 0")
	}
	if cfg.WSMaxAudioFPS < 0 {
		return Config{}, fmt.Errorf("INTERVIEW_WS_MAX_AUDIO_FPS must be >= 0")
	}
	if cfg.WSInboundBurstSeconds < 0 {
		return Config{}, fmt.Errorf("INTERVIEW_WS_INBOUND_BURST_SECONDS must be >= 0")
	}
	if cfg.WSMaxAudioFPS > 0 && cfg.WSInboundBurstSeconds < 1 {
		return Config{}, fmt.Errorf("INTERVIEW_WS_INBOUND_BURST_SECONDS must be >= 1 when INTERVIEW_WS_MAX_AUDIO_FPS is set")
	}
	if cfg.WSPingInterval <= 0 {
		return Config{}, fmt.Errorf("INTERVIEW_WS_PING_INTERVAL must be > 0")
	}
	if cfg.WSWriteTimeout <= 0 {
		return Config{}, fmt.Errorf("INTERVIEW_WS_WRITE_TIMEOUT must be > 0")
	}
	if cfg.WSReadTimeout < 0 {
		return Config{}, fmt.Errorf("INTERVIEW_WS_READ_TIMEOUT must be >= 0")
	}
	if cfg.HandshakeTimeout <= 0 {
		return Config{}, fmt.Errorf("INTERVIEW_HANDSHAKE_TIMEOUT must be > 0")
	}
	if cfg.OutboundQueueSize <= 0 {
		return Config{}, fmt.Errorf("INTERVIEW_WS_OUTBOUND_QUEUE_SIZE must be > 0")
	}

	if cfg.LimitRPS < 0 {
		return Config{}, fmt.Errorf("INTERVIEW_RATE_LIMIT_RPS must be >= 0")
	}
	if cfg.LimitBurst < 0 {
		return Config{}, fmt.Errorf("INTERVIEW_RATE_LIMIT_BURST must be >= 0")
	}
	if cfg.LimitMaxConcurrentRequests < 0 {
		return Config{}, fmt.Errorf("INTERVIEW_MAX_CONCURRENT_REQUESTS must be >= 0")
	}

	if cfg.ReadHeaderTimeout <= 0 {
		return Config{}, fmt.Errorf("INTERVIEW_READ_HEADER_TIMEOUT must be > 0")
	}
	if cfg.ReadTimeout <= 0 {
		return Config{}, fmt.Errorf("INTERVIEW_READ_TIMEOUT must be > 0")
	}
	if cfg.ShutdownGracePeriod <= 0 {
		return Config{}, fmt.Errorf("INTERVIEW_SHUTDOWN_GRACE_PERIOD must be > 0")
	}

	if cfg.AuthMode == AuthModeRequired && len(cfg.APIKeys) == 0 {
		return Config{}, fmt.Errorf("INTERVIEW_API_KEYS must be set when INTERVIEW_AUTH_MODE=required")
	}

	return cfg, nil
}

func envOr(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envInt64Or(key string, def int64) int64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func envIntOr(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func envFloat64Or(key string, def float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return def
	}
	return n
}

func envBoolOr(key string, def bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	switch strings.ToLower(raw) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	case "0", "false", "f", "no", "n", "off":
		return false
	default:
		return def
	}
}

// envDurationOr accepts Go duration strings ("90s") or bare integers as seconds.
func envDurationOr(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	if n, err := strconv.Atoi(raw); err == nil {
		return time.Duration(n) * time.Second
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return d
}

func splitCSV(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
