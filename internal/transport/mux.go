package transport

import (
	"context"
	"strings"

	"github.com/shaunagostinho/mechanic-dash/internal/link"
)

// Mux picks a transport from the shape of the peer name:
//
//	demo                  simulated peer
//	tcp://host:port       TCP socket
//	ws://… or wss://…     websocket
//	anything else         serial device path
type Mux struct {
	Serial    link.Transport
	TCP       link.Transport
	WebSocket link.Transport
	Demo      link.Transport
}

// Kind names the transport a peer resolves to.
func Kind(peer string) string {
	switch {
	case peer == DemoPeer:
		return "demo"
	case strings.HasPrefix(peer, "tcp://"):
		return "tcp"
	case strings.HasPrefix(peer, "ws://"), strings.HasPrefix(peer, "wss://"):
		return "websocket"
	}
	return "serial"
}

func (m *Mux) Open(ctx context.Context, peer string) (link.Conn, error) {
	switch Kind(peer) {
	case "demo":
		return m.Demo.Open(ctx, peer)
	case "tcp":
		return m.TCP.Open(ctx, strings.TrimPrefix(peer, "tcp://"))
	case "websocket":
		return m.WebSocket.Open(ctx, peer)
	}
	return m.Serial.Open(ctx, peer)
}
