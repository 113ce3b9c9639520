package link

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/shaunagostinho/mechanic-dash/internal/monitor"
	"github.com/shaunagostinho/mechanic-dash/internal/record"
)

// DefaultBackoff is the fixed wait after a failed open.
const DefaultBackoff = 1 * time.Second

// Config holds what a Machine needs to run.
type Config struct {
	Peer      string
	Transport Transport
	Sink      Sink
	// Backoff defaults to DefaultBackoff. It never grows.
	Backoff time.Duration
	Log     logrus.FieldLogger
}

// Machine owns the lifecycle of the peer connection: open, read records into
// the sink, and reopen after any failure until its context is cancelled.
type Machine struct {
	peer      string
	transport Transport
	sink      Sink
	backoff   time.Duration
	log       logrus.FieldLogger

	// wait blocks for d or until ctx is done; false means cancelled.
	wait func(ctx context.Context, d time.Duration) bool

	mu        sync.RWMutex
	status    Status
	observers []func(Status)
}

// New creates a machine in the Idle phase.
func New(cfg Config) *Machine {
	if cfg.Backoff <= 0 {
		cfg.Backoff = DefaultBackoff
	}
	if cfg.Log == nil {
		cfg.Log = logrus.StandardLogger()
	}
	if cfg.Sink == nil {
		cfg.Sink = SinkFunc(func(record.Sample) {})
	}
	return &Machine{
		peer:      cfg.Peer,
		transport: cfg.Transport,
		sink:      cfg.Sink,
		backoff:   cfg.Backoff,
		log:       cfg.Log.WithField("component", "link"),
		wait:      sleepContext,
		status:    Status{Phase: Idle, Peer: cfg.Peer},
	}
}

// Status returns the latest published status.
func (m *Machine) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// Subscribe registers fn to be called, on the link goroutine, after every
// status change. fn must not block.
func (m *Machine) Subscribe(fn func(Status)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observers = append(m.observers, fn)
}

// Run drives the machine until ctx is cancelled, then publishes Stopped.
// Open failures are retried after the fixed backoff; a lost connection is
// reopened immediately.
func (m *Machine) Run(ctx context.Context) {
	defer m.publish(Status{Phase: Stopped, Peer: m.peer})

	for ctx.Err() == nil {
		m.publish(Status{Phase: Connecting, Peer: m.peer})
		monitor.ConnectAttempts.Inc()

		conn, err := m.transport.Open(ctx, m.peer)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			monitor.OpenFailures.Inc()
			m.log.WithError(err).Warnf("open %s failed, retry in %v", m.peer, m.backoff)
			m.publish(Status{Phase: Error, Peer: m.peer, Err: err})
			if !m.wait(ctx, m.backoff) {
				return
			}
			continue
		}

		monitor.Episodes.Inc()
		m.log.Infof("connected to %s", m.peer)
		m.publish(Status{Phase: Connected, Peer: m.peer})

		err = m.episode(ctx, conn)
		if err != nil {
			monitor.ReadErrors.Inc()
			m.log.WithError(err).Warnf("read from %s failed", m.peer)
		} else {
			m.log.Infof("disconnected from %s", m.peer)
		}
		m.publish(Status{Phase: Disconnected, Peer: m.peer, Err: err})
	}
}

// episode reads records until the connection drops, a read fails or ctx is
// cancelled. conn is closed on every return path.
func (m *Machine) episode(ctx context.Context, conn Conn) error {
	defer func() {
		if err := conn.Close(); err != nil {
			m.log.WithError(err).Debug("close")
		}
	}()
	// Unblocks a pending ReadLine when the machine is stopped.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	awaitingFirst := true
	for ctx.Err() == nil && conn.IsConnected() {
		line, err := conn.ReadLine()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		sample, err := record.Parse(line)
		if err != nil {
			if !errors.Is(err, record.ErrMalformedRecord) {
				return err
			}
			monitor.RecordsMalformed.Inc()
			m.log.WithError(err).Debugf("dropped line %q", line)
			continue
		}

		monitor.RecordsAccepted.Inc()
		m.sink.Apply(sample)

		if awaitingFirst {
			awaitingFirst = false
			flags := sample.Flags
			m.log.Infof("link parameters: %d kbps, %s", flags.BitrateKbps(), flags.FrameFormat())
			m.publish(Status{Phase: Connected, Peer: m.peer, Params: &flags})
		}
	}
	return nil
}

func (m *Machine) publish(s Status) {
	m.mu.Lock()
	if m.status.Phase == Stopped {
		m.mu.Unlock()
		return
	}
	m.status = s
	observers := m.observers
	m.mu.Unlock()

	monitor.LinkPhase.Set(float64(s.Phase))
	for _, fn := range observers {
		fn(s)
	}
}

func sleepContext(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
