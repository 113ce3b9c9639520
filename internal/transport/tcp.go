package transport

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/shaunagostinho/mechanic-dash/internal/link"
)

// TCP opens host:port peers, as exposed by Wi-Fi OBD adapters and
// serial-to-network bridges.
type TCP struct {
	dialer net.Dialer
}

// NewTCP creates a TCP transport with the given dial timeout.
func NewTCP(dialTimeout time.Duration) *TCP {
	if dialTimeout <= 0 {
		dialTimeout = 5 * time.Second
	}
	return &TCP{dialer: net.Dialer{Timeout: dialTimeout, KeepAlive: 15 * time.Second}}
}

func (t *TCP) Open(ctx context.Context, addr string) (link.Conn, error) {
	conn, err := t.dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("tcp: failed to dial %s: %w", addr, err)
	}
	return newLineConn(conn), nil
}
