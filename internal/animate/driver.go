package animate

import (
	"context"
	"time"

	"github.com/shaunagostinho/mechanic-dash/internal/monitor"
)

// DefaultPeriod is the animation tick period (50 Hz).
const DefaultPeriod = 20 * time.Millisecond

// Advancer is stepped once per tick. gauge.Channel and gauge.Cluster both
// satisfy it.
type Advancer interface {
	Advance() bool
}

// Driver advances its targets on a fixed period, independent of the link.
type Driver struct {
	period  time.Duration
	targets []Advancer
	onTick  func(moved bool)
}

// New creates a driver stepping targets in the given order.
func New(period time.Duration, targets ...Advancer) *Driver {
	if period <= 0 {
		period = DefaultPeriod
	}
	return &Driver{period: period, targets: targets}
}

// OnTick registers fn to run after each tick with whether anything moved.
// Presenters use it to skip redraws once every channel has settled.
func (d *Driver) OnTick(fn func(moved bool)) { d.onTick = fn }

// Step advances every target once.
func (d *Driver) Step() bool {
	moved := false
	for _, t := range d.targets {
		if t.Advance() {
			moved = true
		}
	}
	monitor.AnimationTicks.Inc()
	if d.onTick != nil {
		d.onTick(moved)
	}
	return moved
}

// Run ticks until ctx is cancelled.
func (d *Driver) Run(ctx context.Context) {
	ticker := time.NewTicker(d.period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.Step()
		}
	}
}
