package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/atomic"

	"github.com/shaunagostinho/mechanic-dash/internal/link"
)

// WebSocket opens ws:// and wss:// peers. Each text or binary message carries
// one or more newline-separated records.
type WebSocket struct {
	dialer websocket.Dialer
}

// NewWebSocket creates a websocket transport.
func NewWebSocket(skipTLSVerify bool) *WebSocket {
	return &WebSocket{dialer: websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
		TLSClientConfig:  &tls.Config{InsecureSkipVerify: skipTLSVerify},
	}}
}

func (w *WebSocket) Open(ctx context.Context, url string) (link.Conn, error) {
	conn, resp, err := w.dialer.DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket: dial %s failed (HTTP %d): %w", url, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("websocket: dial %s failed: %w", url, err)
	}
	return &wsConn{conn: conn, closed: atomic.NewBool(false)}, nil
}

type wsConn struct {
	conn      *websocket.Conn
	lines     []string
	closed    *atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

func (w *wsConn) IsConnected() bool { return !w.closed.Load() }

func (w *wsConn) ReadLine() (string, error) {
	for len(w.lines) == 0 {
		if w.closed.Load() {
			return "", ErrClosed
		}
		_, data, err := w.conn.ReadMessage()
		if err != nil {
			if w.closed.Load() {
				return "", ErrClosed
			}
			return "", err
		}
		for _, l := range strings.Split(strings.TrimRight(string(data), "\r\n"), "\n") {
			w.lines = append(w.lines, strings.TrimRight(l, "\r"))
		}
	}
	line := w.lines[0]
	w.lines = w.lines[1:]
	return line, nil
}

func (w *wsConn) Close() error {
	w.closeOnce.Do(func() {
		w.closed.Store(true)
		w.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		w.closeErr = w.conn.Close()
	})
	return w.closeErr
}
