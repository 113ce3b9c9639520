package gauge

import (
	"errors"
	"fmt"
	"math"

	"go.uber.org/atomic"
)

const (
	// Epsilon is the distance below which a channel counts as converged.
	Epsilon = 0.01
	// DecayFactor divides the remaining distance on every tick.
	DecayFactor = 10.0
)

// ErrInvalidBounds is returned when a channel range is empty or not a number.
var ErrInvalidBounds = errors.New("invalid bounds")

// Channel is one gauge: a clamped target written by the link and a displayed
// value moved toward it by the animation driver.
//
// Each field has exactly one writer. target is written by SetTarget (link
// goroutine), current by Advance (animation goroutine). Every field sits in
// its own atomic cell so readers on any goroutine never see a torn value.
// SetBounds runs during startup, before the link writes targets: SetTarget
// loads min and max as two separate atomic reads, so a concurrent bounds
// change could clamp against a mixed range.
type Channel struct {
	name string
	unit *atomic.String

	min *atomic.Float64
	max *atomic.Float64

	target  *atomic.Float64
	current *atomic.Float64
}

// New creates a channel. Both target and current start at 0 clamped into
// [min, max].
func New(name string, min, max float64, unit string) (*Channel, error) {
	if err := checkBounds(min, max); err != nil {
		return nil, fmt.Errorf("channel %s: %w", name, err)
	}
	start := clamp(0, min, max)
	return &Channel{
		name:    name,
		unit:    atomic.NewString(unit),
		min:     atomic.NewFloat64(min),
		max:     atomic.NewFloat64(max),
		target:  atomic.NewFloat64(start),
		current: atomic.NewFloat64(start),
	}, nil
}

func (c *Channel) Name() string     { return c.name }
func (c *Channel) Unit() string     { return c.unit.Load() }
func (c *Channel) Min() float64     { return c.min.Load() }
func (c *Channel) Max() float64     { return c.max.Load() }
func (c *Channel) Target() float64  { return c.target.Load() }
func (c *Channel) Current() float64 { return c.current.Load() }

// SetBounds replaces the range and re-clamps the target into it.
func (c *Channel) SetBounds(min, max float64) error {
	if err := checkBounds(min, max); err != nil {
		return fmt.Errorf("channel %s: %w", c.name, err)
	}
	c.min.Store(min)
	c.max.Store(max)
	c.target.Store(clamp(c.target.Load(), min, max))
	return nil
}

// SetTarget stores v clamped into [min, max]. NaN is ignored. Bounds must
// not change concurrently (see Channel).
func (c *Channel) SetTarget(v float64) {
	if math.IsNaN(v) {
		return
	}
	c.target.Store(clamp(v, c.min.Load(), c.max.Load()))
}

// Advance moves current a tenth of the way toward target. It reports false
// once the channel is within Epsilon of its target.
func (c *Channel) Advance() bool {
	cur := c.current.Load()
	delta := c.target.Load() - cur
	if math.Abs(delta) < Epsilon {
		return false
	}
	c.current.Store(cur + delta/DecayFactor)
	return true
}

// Converged reports whether current is within Epsilon of target.
func (c *Channel) Converged() bool {
	return math.Abs(c.target.Load()-c.current.Load()) < Epsilon
}

// Reading is a point-in-time copy of a channel for presentation.
type Reading struct {
	Name    string  `json:"name" cbor:"name"`
	Current float64 `json:"current" cbor:"current"`
	Target  float64 `json:"target" cbor:"target"`
	Min     float64 `json:"min" cbor:"min"`
	Max     float64 `json:"max" cbor:"max"`
	Unit    string  `json:"unit" cbor:"unit"`
}

// Read returns a Reading of the channel.
func (c *Channel) Read() Reading {
	return Reading{
		Name:    c.name,
		Current: c.Current(),
		Target:  c.Target(),
		Min:     c.Min(),
		Max:     c.Max(),
		Unit:    c.Unit(),
	}
}

// Fraction maps the displayed value onto 0..1 of the range, as a needle
// sweep would.
func (r Reading) Fraction() float64 {
	span := r.Max - r.Min
	if span <= 0 {
		return 0
	}
	return clamp((r.Current-r.Min)/span, 0, 1)
}

func checkBounds(min, max float64) error {
	if math.IsNaN(min) || math.IsNaN(max) {
		return fmt.Errorf("%w: NaN bound", ErrInvalidBounds)
	}
	if min > max {
		return fmt.Errorf("%w: min %g > max %g", ErrInvalidBounds, min, max)
	}
	return nil
}

func clamp(v, min, max float64) float64 {
	if v > max {
		return max
	}
	if v < min {
		return min
	}
	return v
}
