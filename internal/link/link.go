package link

import (
	"context"

	"github.com/shaunagostinho/mechanic-dash/internal/record"
)

// Transport opens a line stream to a named peer.
type Transport interface {
	Open(ctx context.Context, peer string) (Conn, error)
}

// Conn is one open line stream. Close must be idempotent and safe to call
// while ReadLine is blocked on another goroutine; it makes that ReadLine
// return.
type Conn interface {
	IsConnected() bool
	// ReadLine returns the next line without its terminator. Any error ends
	// the episode.
	ReadLine() (string, error)
	Close() error
}

// Sink receives every accepted sample.
type Sink interface {
	Apply(record.Sample)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(record.Sample)

func (f SinkFunc) Apply(s record.Sample) { f(s) }

// Fanout delivers each sample to every sink in order.
func Fanout(sinks ...Sink) Sink {
	return SinkFunc(func(s record.Sample) {
		for _, sink := range sinks {
			sink.Apply(s)
		}
	})
}
