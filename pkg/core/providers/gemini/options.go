package gemini

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// Option configures the Provider.
type Option func(*Provider)

// WithLiveURL sets the websocket endpoint for live sessions.
// Default: DefaultLiveURL
func WithLiveURL(url string) Option {
	return func(p *Provider) {
		p.liveURL = url
	}
}

// WithBaseURL sets the REST base URL used for scoring.
// Default: the genai client default.
func WithBaseURL(url string) Option {
	return func(p *Provider) {
		p.apiBaseURL = url
	}
}

// WithHTTPClient sets the HTTP client for scoring requests.
func WithHTTPClient(client *http.Client) Option {
	return func(p *Provider) {
		if client != nil {
			p.httpClient = client
		}
	}
}

// WithWebsocketDialer sets the dialer for live sessions.
func WithWebsocketDialer(d *websocket.Dialer) Option {
	return func(p *Provider) {
		p.wsDialer = d
	}
}

// WithLiveModel sets the live model.
func WithLiveModel(model string) Option {
	return func(p *Provider) {
		if model != "" {
			p.liveModel = model
		}
	}
}

// WithScoringModel sets the scoring model.
func WithScoringModel(model string) Option {
	return func(p *Provider) {
		if model != "" {
			p.scoringModel = model
		}
	}
}

// WithVoice sets the prebuilt voice used by the agent.
func WithVoice(voice string) Option {
	return func(p *Provider) {
		if voice != "" {
			p.voice = voice
		}
	}
}

// WithSetupTimeout bounds the live handshake.
func WithSetupTimeout(d time.Duration) Option {
	return func(p *Provider) {
		if d > 0 {
			p.setupTimeout = d
		}
	}
}

// WithLogger sets the logger used by live connections.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Provider) {
		if logger != nil {
			p.logger = logger
		}
	}
}
