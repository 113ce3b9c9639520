package transport

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaunagostinho/mechanic-dash/internal/link"
	"github.com/shaunagostinho/mechanic-dash/internal/record"
)

// chunkReader hands out its data a few bytes at a time, with empty reads in
// between like a serial port hitting its read timeout.
type chunkReader struct {
	data   []byte
	chunk  int
	empty  bool
	closed bool
}

func (r *chunkReader) Read(p []byte) (int, error) {
	r.empty = !r.empty
	if r.empty {
		return 0, nil
	}
	if len(r.data) == 0 {
		return 0, io.EOF
	}
	n := r.chunk
	if n > len(r.data) {
		n = len(r.data)
	}
	n = copy(p, r.data[:n])
	r.data = r.data[n:]
	return n, nil
}

func (r *chunkReader) Close() error {
	r.closed = true
	return nil
}

func TestLineConnSplitsChunkedStream(t *testing.T) {
	src := &chunkReader{data: []byte("a,b\r\nsecond line\n\nlast\n"), chunk: 3}
	c := newLineConn(src)

	for _, want := range []string{"a,b", "second line", "", "last"} {
		got, err := c.ReadLine()
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := c.ReadLine()
	assert.ErrorIs(t, err, io.EOF)
}

func TestLineConnDiscardsOverlongLine(t *testing.T) {
	noise := strings.Repeat("x", MaxLineLength*2)
	src := &chunkReader{data: []byte(noise + "\nok\n"), chunk: 200}
	c := newLineConn(src)

	got, err := c.ReadLine()
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
}

// lastReader returns all its data together with io.EOF in a single read.
type lastReader struct{ data []byte }

func (r *lastReader) Read(p []byte) (int, error) {
	n := copy(p, r.data)
	r.data = r.data[n:]
	return n, io.EOF
}

func (r *lastReader) Close() error { return nil }

func TestLineConnDeliversLinesReadWithError(t *testing.T) {
	c := newLineConn(&lastReader{data: []byte("one\ntwo\r\npartial")})

	for _, want := range []string{"one", "two"} {
		got, err := c.ReadLine()
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := c.ReadLine()
	assert.ErrorIs(t, err, io.EOF)
	_, err = c.ReadLine()
	assert.ErrorIs(t, err, io.EOF, "error is sticky")
}

func TestLineConnCloseUnblocksRead(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()
	c := newLineConn(pr)

	errCh := make(chan error, 1)
	go func() {
		_, err := c.ReadLine()
		errCh <- err
	}()

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, c.Close())
	require.NoError(t, c.Close(), "Close must be idempotent")
	assert.False(t, c.IsConnected())

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("ReadLine still blocked after Close")
	}
}

func TestTCPTransport(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		io.WriteString(conn, "true,false,42.0,3000.0,55.0,90.0,70.0\r\n")
	}()

	m := &Mux{TCP: NewTCP(time.Second)}
	conn, err := m.Open(context.Background(), "tcp://"+ln.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	line, err := conn.ReadLine()
	require.NoError(t, err)
	assert.Equal(t, "true,false,42.0,3000.0,55.0,90.0,70.0", line)

	_, err = conn.ReadLine()
	assert.Error(t, err, "peer hung up")
}

func TestTCPTransportDialFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	_, err = NewTCP(time.Second).Open(context.Background(), addr)
	assert.ErrorContains(t, err, "tcp: failed to dial")
}

func TestWebSocketTransport(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.WriteMessage(websocket.TextMessage, []byte("true,true,1,2,3,4,5\nfalse,false,6,7,8,9,10\n"))
		conn.WriteMessage(websocket.BinaryMessage, []byte("0,1,2,3"))
		conn.ReadMessage() // hold until the client closes
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, err := (&Mux{WebSocket: NewWebSocket(false)}).Open(context.Background(), url)
	require.NoError(t, err)

	for _, want := range []string{"true,true,1,2,3,4,5", "false,false,6,7,8,9,10", "0,1,2,3"} {
		got, err := conn.ReadLine()
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	require.NoError(t, conn.Close())
	assert.False(t, conn.IsConnected())
	_, err = conn.ReadLine()
	assert.ErrorIs(t, err, ErrClosed)
}

func TestDemoTransport(t *testing.T) {
	d := NewDemo(DemoConfig{Interval: time.Millisecond, DropEvery: 4, GarbageEvery: 3})
	ctx := context.Background()

	conn, err := d.Open(ctx, DemoPeer)
	require.NoError(t, err)

	var lines []string
	for {
		line, err := conn.ReadLine()
		if err != nil {
			assert.ErrorIs(t, err, ErrDemoLinkLost)
			break
		}
		lines = append(lines, line)
	}
	require.Len(t, lines, 4)
	assert.Equal(t, "NO DATA", lines[2])
	for _, i := range []int{0, 1, 3} {
		s, err := record.Parse(lines[i])
		require.NoError(t, err)
		assert.GreaterOrEqual(t, s.Load, 0.0)
		assert.LessOrEqual(t, s.Load, 100.0)
	}
	conn.Close()

	_, err = d.Open(ctx, DemoPeer)
	assert.Error(t, err, "open after a lost link fails once")
	conn, err = d.Open(ctx, DemoPeer)
	require.NoError(t, err)
	conn.Close()
	_, err = conn.ReadLine()
	assert.ErrorIs(t, err, ErrClosed)
}

type fakeTransport struct{ peer string }

func (f *fakeTransport) Open(_ context.Context, peer string) (link.Conn, error) {
	f.peer = peer
	return nil, errors.New("fake")
}

func TestMuxRouting(t *testing.T) {
	serial, tcp, ws, demo := &fakeTransport{}, &fakeTransport{}, &fakeTransport{}, &fakeTransport{}
	m := &Mux{Serial: serial, TCP: tcp, WebSocket: ws, Demo: demo}
	ctx := context.Background()

	m.Open(ctx, "/dev/rfcomm0")
	m.Open(ctx, "tcp://192.168.0.10:35000")
	m.Open(ctx, "wss://car.local/obd")
	m.Open(ctx, DemoPeer)

	assert.Equal(t, "/dev/rfcomm0", serial.peer)
	assert.Equal(t, "192.168.0.10:35000", tcp.peer)
	assert.Equal(t, "wss://car.local/obd", ws.peer)
	assert.Equal(t, DemoPeer, demo.peer)
	assert.Equal(t, "serial", Kind("COM3"))
}
