package session

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
)

type wsWriter interface {
	SetWriteDeadline(t time.Time) error
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	Close() error
}

// outboundFrame is one queued text frame. audioSeq is set for agent audio
// chunks so a reset can drop them before they reach the wire.
type outboundFrame struct {
	audioSeq int64
	payload  []byte
}

type outboundWriter struct {
	ws         wsWriter
	ctx        context.Context
	cfg        Config
	priority   <-chan outboundFrame
	normal     <-chan outboundFrame
	isCanceled func(seq int64) bool
}

func (w *outboundWriter) Run() error {
	if w == nil || w.ws == nil {
		return nil
	}

	pingInterval := w.cfg.PingInterval
	if pingInterval <= 0 {
		pingInterval = 20 * time.Second
	}
	writeTimeout := w.cfg.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 5 * time.Second
	}

	pingTicker := time.NewTicker(pingInterval)
	defer pingTicker.Stop()

	var pendingNormal *outboundFrame

	for {
		if w.ctx != nil {
			select {
			case <-w.ctx.Done():
				w.flushPriorityOnShutdown(writeTimeout)
				_ = w.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeTimeout))
				_ = w.ws.Close()
				return nil
			default:
			}
		}

		// Priority frames (resets, terminal errors, the report) go first.
		select {
		case frame, ok := <-w.priority:
			if !ok {
				w.priority = nil
				continue
			}
			if err := w.writeFrame(frame, writeTimeout); err != nil {
				return err
			}
			continue
		default:
		}

		// A reset queued while a normal frame was pending must still win.
		if pendingNormal != nil {
			select {
			case frame, ok := <-w.priority:
				if !ok {
					w.priority = nil
					continue
				}
				if err := w.writeFrame(frame, writeTimeout); err != nil {
					return err
				}
				continue
			default:
			}
			if err := w.writeFrame(*pendingNormal, writeTimeout); err != nil {
				return err
			}
			pendingNormal = nil
			continue
		}

		if w.priority == nil && w.normal == nil {
			return nil
		}

		var ctxDone <-chan struct{}
		if w.ctx != nil {
			ctxDone = w.ctx.Done()
		}

		select {
		case <-ctxDone:
			continue
		case <-pingTicker.C:
			deadline := time.Now().Add(writeTimeout)
			if err := w.ws.WriteControl(websocket.PingMessage, []byte("ping"), deadline); err != nil {
				return err
			}
		case frame, ok := <-w.priority:
			if !ok {
				w.priority = nil
				continue
			}
			if err := w.writeFrame(frame, writeTimeout); err != nil {
				return err
			}
		case frame, ok := <-w.normal:
			if !ok {
				w.normal = nil
				continue
			}
			pendingNormal = &frame
		}
	}
}

func (w *outboundWriter) flushPriorityOnShutdown(writeTimeout time.Duration) {
	if w == nil || w.ws == nil || w.priority == nil {
		return
	}

	flushTimeout := 250 * time.Millisecond
	if writeTimeout > 0 && writeTimeout < flushTimeout {
		flushTimeout = writeTimeout
	}

	deadline := time.Now().Add(flushTimeout)
	maxFlushFrames := 8

	for i := 0; i < maxFlushFrames && time.Now().Before(deadline); i++ {
		select {
		case frame, ok := <-w.priority:
			if !ok {
				return
			}
			_ = w.writeFrame(frame, writeTimeout)
		default:
			return
		}
	}
}

func (w *outboundWriter) writeFrame(frame outboundFrame, writeTimeout time.Duration) error {
	if frame.audioSeq > 0 && w.isCanceled != nil && w.isCanceled(frame.audioSeq) {
		return nil
	}
	if len(frame.payload) == 0 {
		return nil
	}
	if err := w.ws.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return w.ws.WriteMessage(websocket.TextMessage, frame.payload)
}
