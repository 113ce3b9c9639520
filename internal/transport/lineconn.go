package transport

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"sync"

	"go.uber.org/atomic"
)

// ErrClosed is returned by ReadLine once the connection has been closed.
var ErrClosed = errors.New("transport: connection closed")

// MaxLineLength bounds a single record line. Longer runs without a newline
// are discarded as line noise.
const MaxLineLength = 1024

// lineConn splits a byte stream into lines. The underlying reader may return
// (0, nil) on a read timeout; lineConn keeps polling until a full line, an
// error or Close.
type lineConn struct {
	rc        io.ReadCloser
	buf       []byte
	pending   []byte
	discard   bool  // dropping an overlong line up to its newline
	readErr   error // sticky once the reader fails
	closed    *atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

func newLineConn(rc io.ReadCloser) *lineConn {
	return &lineConn{
		rc:     rc,
		buf:    make([]byte, 256),
		closed: atomic.NewBool(false),
	}
}

func (c *lineConn) IsConnected() bool { return !c.closed.Load() }

func (c *lineConn) ReadLine() (string, error) {
	for {
		if i := bytes.IndexByte(c.pending, '\n'); i >= 0 {
			line := string(c.pending[:i])
			c.pending = c.pending[i+1:]
			if c.discard {
				c.discard = false
				continue
			}
			return strings.TrimRight(line, "\r"), nil
		}
		if len(c.pending) > MaxLineLength {
			c.pending = c.pending[:0]
			c.discard = true
		}
		if c.closed.Load() {
			return "", ErrClosed
		}
		if c.readErr != nil {
			return "", c.readErr
		}

		n, err := c.rc.Read(c.buf)
		if n > 0 {
			c.pending = append(c.pending, c.buf[:n]...)
		}
		if err != nil {
			if c.closed.Load() {
				return "", ErrClosed
			}
			// Complete lines that arrived with the error are handed out
			// before it.
			c.readErr = err
			continue
		}
	}
}

func (c *lineConn) Close() error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.closeErr = c.rc.Close()
	})
	return c.closeErr
}
