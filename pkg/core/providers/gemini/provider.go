// Package gemini connects interview sessions to the Gemini Live API and scores
// finished transcripts with the Gemini generate endpoint.
package gemini

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// DefaultLiveURL is the Gemini Live bidirectional streaming endpoint.
	DefaultLiveURL = "wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"

	// DefaultLiveModel is the native-audio model used for the interview.
	DefaultLiveModel = "gemini-2.5-flash-native-audio-preview-09-2025"

	// DefaultScoringModel scores transcripts.
	DefaultScoringModel = "gemini-2.5-flash"

	// DefaultVoice is the prebuilt interviewer voice.
	DefaultVoice = "Puck"

	// DefaultSetupTimeout bounds dial plus setupComplete.
	DefaultSetupTimeout = 15 * time.Second
)

// Provider holds the shared Gemini credentials and endpoints.
type Provider struct {
	apiKey       string
	liveURL      string
	apiBaseURL   string
	liveModel    string
	scoringModel string
	voice        string
	setupTimeout time.Duration
	httpClient   *http.Client
	wsDialer     *websocket.Dialer
	logger       *slog.Logger
}

// New creates a new Gemini provider.
func New(apiKey string, opts ...Option) *Provider {
	p := &Provider{
		apiKey:       apiKey,
		liveURL:      DefaultLiveURL,
		liveModel:    DefaultLiveModel,
		scoringModel: DefaultScoringModel,
		voice:        DefaultVoice,
		setupTimeout: DefaultSetupTimeout,
		httpClient:   &http.Client{},
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name returns the provider identifier.
func (p *Provider) Name() string {
	return "gemini"
}

// LiveDialer returns a live.Dialer bound to this provider's settings.
func (p *Provider) LiveDialer() *LiveDialer {
	return &LiveDialer{
		APIKey:       p.apiKey,
		Model:        p.liveModel,
		BaseURL:      p.liveURL,
		Voice:        p.voice,
		Dialer:       p.wsDialer,
		SetupTimeout: p.setupTimeout,
		Logger:       p.logger,
	}
}

// NewScorer builds a transcript scorer on a genai client.
func (p *Provider) NewScorer(ctx context.Context) (*Scorer, error) {
	client, err := newGenAIClient(ctx, p.apiKey, p.apiBaseURL, p.httpClient)
	if err != nil {
		return nil, err
	}
	return NewScorer(client, p.scoringModel), nil
}
