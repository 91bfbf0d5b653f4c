package live

import "time"

// Status represents the connection status of an interview session.
type Status int

const (
	// StatusConnecting is the initial status, and the status after a transient
	// loss of the duplex connection.
	StatusConnecting Status = iota
	// StatusConnected is when the duplex channel is open and audio is flowing.
	StatusConnected
	// StatusError is when setup failed. It is not retried.
	StatusError
	// StatusClosed is terminal; the session has been torn down.
	StatusClosed
)

// String returns a human-readable status name.
func (s Status) String() string {
	switch s {
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusError:
		return "error"
	case StatusClosed:
		return "closed"
	default:
		return "unknown"
	}
}

const (
	// ReasonCompleted is the reason the agent reports on a normal finish.
	ReasonCompleted = "Completed"
	// ReasonTimeLimit is used when the countdown reaches zero.
	ReasonTimeLimit = "Time Limit Exceeded"
	// ReasonSecurityViolation is used when the proctoring strike limit is hit.
	ReasonSecurityViolation = "Security Violation: repeated proctoring violations (tab switching or prohibited actions)"
	// ReasonCandidateEnded is used when the candidate leaves on purpose.
	ReasonCandidateEnded = "Candidate ended the interview"

	// EndInterviewTool is the remote-callable operation declared to the agent.
	EndInterviewTool = "endInterview"
)

// Config holds all tunables for an interview session.
type Config struct {
	// Duration is the total interview budget. Default: 600s.
	Duration time.Duration

	// SilenceThreshold is how long the agent waits after its turn before
	// nudging the candidate. Default: 10s.
	SilenceThreshold time.Duration

	// MaxSilenceReminders is the number of reminders per question before the
	// question is skipped. Default: 2.
	MaxSilenceReminders int

	// GraceDelay lets final queued audio play out before teardown. Default: 3s.
	GraceDelay time.Duration

	// WarningWindow is how long a proctoring warning stays visible. Default: 4s.
	WarningWindow time.Duration

	// MaxViolations is the proctoring strike limit. Default: 3.
	MaxViolations int

	// CaptureSampleRate is the native rate of incoming capture frames.
	CaptureSampleRate int
	// SendSampleRate is the rate expected by the remote agent. Default: 16000.
	SendSampleRate int
	// ReceiveSampleRate is the rate of agent audio. Default: 24000.
	ReceiveSampleRate int

	// MaxReconnects bounds redials after an unexpected close. Default: 3.
	// A negative value disables redialing.
	MaxReconnects  int
	ReconnectDelay time.Duration

	// FrameQueueSize bounds buffered capture frames. Default: 64.
	FrameQueueSize int

	VAD     VADConfig
	Prompts Prompts
}

// DefaultConfig returns a Config with the standard interview policy.
func DefaultConfig() Config {
	return Config{
		Duration:            600 * time.Second,
		SilenceThreshold:    10 * time.Second,
		MaxSilenceReminders: 2,
		GraceDelay:          3 * time.Second,
		WarningWindow:       4 * time.Second,
		MaxViolations:       3,
		CaptureSampleRate:   48000,
		SendSampleRate:      16000,
		ReceiveSampleRate:   24000,
		MaxReconnects:       3,
		ReconnectDelay:      time.Second,
		FrameQueueSize:      64,
		VAD:                 DefaultVADConfig(),
		Prompts:             DefaultPrompts(),
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Duration <= 0 {
		c.Duration = def.Duration
	}
	if c.SilenceThreshold <= 0 {
		c.SilenceThreshold = def.SilenceThreshold
	}
	if c.MaxSilenceReminders <= 0 {
		c.MaxSilenceReminders = def.MaxSilenceReminders
	}
	if c.GraceDelay <= 0 {
		c.GraceDelay = def.GraceDelay
	}
	if c.WarningWindow <= 0 {
		c.WarningWindow = def.WarningWindow
	}
	if c.MaxViolations <= 0 {
		c.MaxViolations = def.MaxViolations
	}
	if c.CaptureSampleRate <= 0 {
		c.CaptureSampleRate = def.CaptureSampleRate
	}
	if c.SendSampleRate <= 0 {
		c.SendSampleRate = def.SendSampleRate
	}
	if c.ReceiveSampleRate <= 0 {
		c.ReceiveSampleRate = def.ReceiveSampleRate
	}
	if c.MaxReconnects == 0 {
		c.MaxReconnects = def.MaxReconnects
	} else if c.MaxReconnects < 0 {
		c.MaxReconnects = 0
	}
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = def.ReconnectDelay
	}
	if c.FrameQueueSize <= 0 {
		c.FrameQueueSize = def.FrameQueueSize
	}
	c.VAD = c.VAD.withDefaults()
	c.Prompts = c.Prompts.withDefaults()
	return c
}

// VADConfig configures the adaptive-floor voice activity detector.
type VADConfig struct {
	// InitialFloor is the starting noise-floor estimate. Default: 0.002.
	InitialFloor float64
	// MinThreshold is the lowest RMS that can count as speech. Default: 0.01.
	MinThreshold float64
	// Multiplier scales the floor into a threshold. Default: 3.0.
	Multiplier float64
}

// DefaultVADConfig returns a VADConfig with sensible defaults.
func DefaultVADConfig() VADConfig {
	return VADConfig{
		InitialFloor: 0.002,
		MinThreshold: 0.01,
		Multiplier:   3.0,
	}
}

func (c VADConfig) withDefaults() VADConfig {
	def := DefaultVADConfig()
	if c.InitialFloor <= 0 {
		c.InitialFloor = def.InitialFloor
	}
	if c.MinThreshold <= 0 {
		c.MinThreshold = def.MinThreshold
	}
	if c.Multiplier <= 0 {
		c.Multiplier = def.Multiplier
	}
	return c
}
