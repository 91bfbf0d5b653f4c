package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vango-go/vai-interview/pkg/core/live"
)

const (
	liveWriteTimeout   = 10 * time.Second
	liveMaxMessageSize = 8 << 20
	liveEventBuffer    = 64
)

// ErrClosed is returned by sends on a closed connection.
var ErrClosed = errors.New("gemini live connection is closed")

// LiveDialer opens Gemini Live sessions. It implements live.Dialer.
type LiveDialer struct {
	APIKey  string
	Model   string
	BaseURL string
	Voice   string
	// Dialer defaults to websocket.DefaultDialer.
	Dialer       *websocket.Dialer
	SetupTimeout time.Duration
	Logger       *slog.Logger
}

var _ live.Dialer = (*LiveDialer)(nil)

// Dial connects, sends setup and waits for setupComplete.
func (d *LiveDialer) Dial(ctx context.Context, cfg live.DuplexConfig) (live.Duplex, error) {
	if strings.TrimSpace(d.APIKey) == "" {
		return nil, &Error{Type: ErrAuthentication, Message: "api key is required"}
	}
	wsURL, err := d.endpoint()
	if err != nil {
		return nil, err
	}

	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	dialer := d.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	model := d.Model
	if strings.TrimSpace(model) == "" {
		model = DefaultLiveModel
	}
	timeout := d.SetupTimeout
	if timeout <= 0 {
		timeout = DefaultSetupTimeout
	}

	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, resp, err := dialer.DialContext(dialCtx, wsURL, nil)
	if err != nil {
		if resp != nil {
			return nil, parseHandshakeError(resp, err)
		}
		return nil, fmt.Errorf("dial gemini live: %w", err)
	}
	conn.SetReadLimit(liveMaxMessageSize)

	// Unblock the setup read if ctx ends first.
	stop := context.AfterFunc(dialCtx, func() { _ = conn.Close() })

	if err := conn.WriteJSON(buildSetup(model, d.Voice, cfg)); err != nil {
		stop()
		_ = conn.Close()
		return nil, fmt.Errorf("send setup: %w", err)
	}
	if deadline, ok := dialCtx.Deadline(); ok {
		_ = conn.SetReadDeadline(deadline)
	}
	if err := awaitSetupComplete(conn); err != nil {
		stop()
		_ = conn.Close()
		if ctxErr := dialCtx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("await setupComplete: %w", ctxErr)
		}
		return nil, err
	}
	if !stop() {
		return nil, fmt.Errorf("await setupComplete: %w", context.Cause(dialCtx))
	}
	_ = conn.SetReadDeadline(time.Time{})

	c := &liveConn{
		conn:     conn,
		logger:   logger,
		mimeType: audioMIMEType(cfg.InputSampleRate),
		events:   make(chan live.InboundEvent, liveEventBuffer),
		closing:  make(chan struct{}),
		done:     make(chan struct{}),
	}
	go c.readLoop()
	logger.Debug("gemini live session open", "model", model)
	return c, nil
}

func (d *LiveDialer) endpoint() (string, error) {
	base := strings.TrimSpace(d.BaseURL)
	if base == "" {
		base = DefaultLiveURL
	}
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid live url: %w", err)
	}
	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("invalid live url scheme %q", u.Scheme)
	}
	q := u.Query()
	q.Set("key", d.APIKey)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func awaitSetupComplete(conn *websocket.Conn) error {
	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("await setupComplete: %w", closeError(err))
		}
		if messageType != websocket.TextMessage && messageType != websocket.BinaryMessage {
			continue
		}
		msg, err := decodeServerMessage(data)
		if err != nil {
			return &Error{Type: ErrProvider, Message: "invalid setup response: " + err.Error()}
		}
		if msg.SetupComplete != nil {
			return nil
		}
	}
}

// liveConn is an open Live API session.
type liveConn struct {
	conn     *websocket.Conn
	logger   *slog.Logger
	mimeType string

	events  chan live.InboundEvent
	closing chan struct{}
	done    chan struct{}

	writeMu   sync.Mutex
	closeOnce sync.Once
	closed    atomic.Bool

	errMu sync.Mutex
	err   error
}

func (c *liveConn) SendAudio(chunk string) error {
	return c.sendJSON(audioMessage(chunk, c.mimeType))
}

func (c *liveConn) SendText(text string) error {
	return c.sendJSON(textMessage(text))
}

func (c *liveConn) SendToolResponses(responses []live.ToolResponse) error {
	if len(responses) == 0 {
		return nil
	}
	return c.sendJSON(toolResponseMessage(responses))
}

func (c *liveConn) Events() <-chan live.InboundEvent { return c.events }

// Err returns the terminal error, or nil after a clean close.
func (c *liveConn) Err() error {
	<-c.done
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

func (c *liveConn) Close() error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.closing)
		c.writeMu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(2*time.Second))
		c.writeMu.Unlock()
		_ = c.conn.Close()
	})
	<-c.done
	return nil
}

func (c *liveConn) sendJSON(v any) error {
	if c.closed.Load() {
		return ErrClosed
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(liveWriteTimeout))
	if err := c.conn.WriteJSON(v); err != nil {
		if c.closed.Load() {
			return ErrClosed
		}
		return err
	}
	return nil
}

func (c *liveConn) setErr(err error) {
	if err == nil {
		return
	}
	c.errMu.Lock()
	defer c.errMu.Unlock()
	if c.err == nil {
		c.err = err
	}
}

func (c *liveConn) readLoop() {
	defer close(c.done)
	defer close(c.events)

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			if c.closed.Load() {
				return
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return
			}
			c.setErr(closeError(err))
			return
		}
		if messageType != websocket.TextMessage && messageType != websocket.BinaryMessage {
			continue
		}

		msg, err := decodeServerMessage(data)
		if err != nil {
			c.logger.Warn("dropping malformed live message", "error", err)
			continue
		}
		if msg.GoAway != nil {
			c.logger.Warn("gemini live go away", "time_left", msg.GoAway.TimeLeft)
		}
		ev := msg.inboundEvent()
		if ev.Empty() {
			continue
		}
		select {
		case c.events <- ev:
		case <-c.closing:
			return
		}
	}
}
