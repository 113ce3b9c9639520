package transport

import (
	"context"
	"fmt"
	"time"

	"go.bug.st/serial"

	"github.com/shaunagostinho/mechanic-dash/internal/link"
)

// SerialConfig holds serial line settings. Bluetooth SPP peers show up as
// serial devices (e.g. /dev/rfcomm0), so they share this transport.
type SerialConfig struct {
	BaudRate    int
	ReadTimeout time.Duration
}

// Serial opens peers as serial device paths.
type Serial struct {
	baudRate    int
	readTimeout time.Duration
}

// NewSerial creates a serial transport.
func NewSerial(cfg SerialConfig) *Serial {
	if cfg.BaudRate == 0 {
		cfg.BaudRate = 115200
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 200 * time.Millisecond
	}
	return &Serial{baudRate: cfg.BaudRate, readTimeout: cfg.ReadTimeout}
}

func (s *Serial) Open(_ context.Context, peer string) (link.Conn, error) {
	mode := &serial.Mode{
		BaudRate: s.baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(peer, mode)
	if err != nil {
		return nil, fmt.Errorf("serial: failed to open %s: %w", peer, err)
	}
	// Reads wake up periodically so a closed port is noticed.
	if err := port.SetReadTimeout(s.readTimeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("serial: failed to set timeout on %s: %w", peer, err)
	}
	// Drop whatever the peer sent before we were listening.
	if err := port.ResetInputBuffer(); err != nil {
		port.Close()
		return nil, fmt.Errorf("serial: failed to reset %s: %w", peer, err)
	}
	return newLineConn(port), nil
}
