// Package device implements WebSocketLink using gorilla/websocket, for peripherals that
// bridge their UART to a WebSocket endpoint. Every received frame is at least one line.
package device

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"LinkTerm/internal/fault"
	"LinkTerm/internal/model"
)

// WebSocketLink implements Link over a WebSocket connection.
type WebSocketLink struct {
	conn *websocket.Conn
	url  string
	q    *lineQueue

	writeMu   sync.Mutex
	wg        sync.WaitGroup
	closing   chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// NewWebSocketLink dials cfg.URL and starts receiving frames.
func NewWebSocketLink(ctx context.Context, cfg model.WebSocketConfig) (*WebSocketLink, error) {
	dialer := websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, cfg.URL, nil)
	if err != nil {
		return nil, fault.Wrap(fmt.Errorf("dial %s: %w", cfg.URL, err), fault.Connection, "websocket dial")
	}
	l := &WebSocketLink{conn: conn, url: cfg.URL, q: newLineQueue(), closing: make(chan struct{})}
	l.wg.Add(1)
	go l.receive()
	return l, nil
}

func (l *WebSocketLink) receive() {
	defer l.wg.Done()
	for {
		_, data, err := l.conn.ReadMessage()
		if err != nil {
			select {
			case <-l.closing:
			default:
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					l.q.fail(fault.Wrap(err, fault.IO, "websocket read"))
				}
			}
			l.q.close()
			return
		}
		l.q.feedFrame(data)
	}
}

// Name describes the endpoint for the connection banner.
func (l *WebSocketLink) Name() string { return l.url }

// ReadLine returns the next received line, waiting at most timeout.
func (l *WebSocketLink) ReadLine(timeout time.Duration) ([]byte, error) {
	return l.q.next(timeout)
}

// WriteLine sends s + '\n' as one text frame.
func (l *WebSocketLink) WriteLine(s string) error {
	return l.send(websocket.TextMessage, append([]byte(s), '\n'))
}

// Write sends p as one binary frame.
func (l *WebSocketLink) Write(p []byte) (int, error) {
	if err := l.send(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (l *WebSocketLink) send(kind int, p []byte) error {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	select {
	case <-l.closing:
		return fault.Wrap(ErrClosed, fault.IO, "websocket write")
	default:
	}
	return fault.Wrap(l.conn.WriteMessage(kind, p), fault.IO, "websocket write")
}

// Flush is a no-op: WriteMessage returns after the frame is handed to the socket.
func (l *WebSocketLink) Flush() error { return nil }

// ResetInputBuffer drops every queued line.
func (l *WebSocketLink) ResetInputBuffer() error {
	l.q.reset()
	return nil
}

// ResetOutputBuffer is a no-op for a stream socket.
func (l *WebSocketLink) ResetOutputBuffer() error { return nil }

// Close sends a close frame, closes the socket and waits for the receiver to stop.
func (l *WebSocketLink) Close() error {
	l.closeOnce.Do(func() {
		l.writeMu.Lock()
		close(l.closing)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye")
		_ = l.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		l.writeMu.Unlock()
		l.closeErr = l.conn.Close()
		if errors.Is(l.closeErr, websocket.ErrCloseSent) {
			l.closeErr = nil
		}
		l.wg.Wait()
	})
	return l.closeErr
}
