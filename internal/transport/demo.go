package transport

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/atomic"

	"github.com/shaunagostinho/mechanic-dash/internal/link"
	"github.com/shaunagostinho/mechanic-dash/internal/record"
)

// DemoPeer is the peer name served by the demo transport.
const DemoPeer = "demo"

// ErrDemoLinkLost is the simulated mid-episode link failure.
var ErrDemoLinkLost = errors.New("demo: link lost")

// DemoConfig tunes the simulated peer.
type DemoConfig struct {
	Interval time.Duration // Between records, default 50ms (~20 Hz)
	// DropEvery ends the connection after this many records; 0 never drops.
	DropEvery int
	// GarbageEvery emits a malformed line every N records; 0 never does.
	GarbageEvery int
}

// Demo generates simulated drive telemetry. After a dropped connection the
// next open fails once, so both recovery paths are exercised.
type Demo struct {
	cfg DemoConfig

	mu       sync.Mutex
	t        float64 // virtual time shared across connections
	failNext bool
}

func NewDemo(cfg DemoConfig) *Demo {
	if cfg.Interval <= 0 {
		cfg.Interval = 50 * time.Millisecond
	}
	return &Demo{cfg: cfg}
}

func (d *Demo) Open(ctx context.Context, _ string) (link.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failNext {
		d.failNext = false
		return nil, errors.New("demo: peer not responding")
	}
	return &demoConn{demo: d, done: make(chan struct{}), closed: atomic.NewBool(false)}, nil
}

// Next advances virtual time and returns the next simulated sample.
func (d *Demo) Next() record.Sample {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.t += 0.05

	// RPM cycles between idle and revving
	rpm := 850.0 + 4000.0*math.Sin(d.t*0.3)*math.Sin(d.t*0.3) + rand.Float64()*50
	load := (rpm - 850) / (6000 - 850) * 100
	if load < 0 {
		load = 0
	}
	if load > 100 {
		load = 100
	}

	// Coolant warms up over the first minute, then hovers
	coolant := 90.0 + rand.Float64()*5
	if d.t < 60 {
		coolant = 20 + d.t*70/60
	}

	// Fuel drains slowly and is refilled at empty
	fuel := 80 - math.Mod(d.t*0.05, 80)

	return record.Sample{
		Flags:       record.Flags{Slow: false, Extended: false},
		Speed:       load / 100 * 220,
		RPM:         rpm,
		Load:        load,
		Temperature: coolant,
		Fuel:        fuel,
	}
}

func (d *Demo) linkLost() {
	d.mu.Lock()
	d.failNext = true
	d.mu.Unlock()
}

type demoConn struct {
	demo      *Demo
	sent      int
	done      chan struct{}
	closed    *atomic.Bool
	closeOnce sync.Once
}

func (c *demoConn) IsConnected() bool { return !c.closed.Load() }

func (c *demoConn) ReadLine() (string, error) {
	t := time.NewTimer(c.demo.cfg.Interval)
	defer t.Stop()
	select {
	case <-c.done:
		return "", ErrClosed
	case <-t.C:
	}

	c.sent++
	cfg := c.demo.cfg
	if cfg.DropEvery > 0 && c.sent > cfg.DropEvery {
		c.demo.linkLost()
		return "", ErrDemoLinkLost
	}
	if cfg.GarbageEvery > 0 && c.sent%cfg.GarbageEvery == 0 {
		return "NO DATA", nil
	}
	return c.demo.Next().Line(), nil
}

func (c *demoConn) Close() error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.done)
	})
	return nil
}
