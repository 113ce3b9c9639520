package gauge

import (
	"fmt"

	"github.com/shaunagostinho/mechanic-dash/internal/record"
)

// Channel names, in animation order.
const (
	Speed       = "speed"
	RPM         = "rpm"
	Load        = "load"
	Temperature = "temperature"
	Fuel        = "fuel"
)

// Names lists every channel a Cluster must carry, in order.
var Names = []string{Speed, RPM, Load, Temperature, Fuel}

// Spec describes one channel at construction time.
type Spec struct {
	Name    string  `yaml:"name" json:"name"`
	Min     float64 `yaml:"min" json:"min"`
	Max     float64 `yaml:"max" json:"max"`
	Unit    string  `yaml:"unit" json:"unit"`
	Initial float64 `yaml:"initial" json:"initial"` // Startup target
}

// DefaultSpecs returns the stock five-gauge layout.
func DefaultSpecs() []Spec {
	return []Spec{
		{Name: Speed, Min: 0, Max: 255, Unit: " km/h"},
		{Name: RPM, Min: 0, Max: 6000, Unit: " rpm"},
		{Name: Load, Min: 0, Max: 100, Unit: "% load"},
		{Name: Temperature, Min: -40, Max: 215, Unit: "°C", Initial: -40},
		{Name: Fuel, Min: 0, Max: 100, Unit: "% fuel"},
	}
}

// Cluster is the fixed set of channels fed by one telemetry record.
type Cluster struct {
	channels []*Channel
	byName   map[string]*Channel
}

// NewCluster builds the cluster from specs. Every name in Names must appear
// exactly once; specs are kept in the canonical order regardless of input
// order.
func NewCluster(specs []Spec) (*Cluster, error) {
	bySpec := make(map[string]Spec, len(specs))
	for _, s := range specs {
		if _, dup := bySpec[s.Name]; dup {
			return nil, fmt.Errorf("duplicate channel %q", s.Name)
		}
		bySpec[s.Name] = s
	}

	c := &Cluster{byName: make(map[string]*Channel, len(Names))}
	for _, name := range Names {
		s, ok := bySpec[name]
		if !ok {
			return nil, fmt.Errorf("missing channel %q", name)
		}
		ch, err := New(s.Name, s.Min, s.Max, s.Unit)
		if err != nil {
			return nil, err
		}
		ch.SetTarget(s.Initial)
		c.channels = append(c.channels, ch)
		c.byName[name] = ch
		delete(bySpec, name)
	}
	for _, s := range specs {
		if _, left := bySpec[s.Name]; left {
			return nil, fmt.Errorf("unknown channel %q", s.Name)
		}
	}
	return c, nil
}

// Channel returns the named channel or nil.
func (c *Cluster) Channel(name string) *Channel { return c.byName[name] }

// Channels returns the channels in animation order.
func (c *Cluster) Channels() []*Channel { return c.channels }

// Apply routes one sample's values to the matching channel targets.
func (c *Cluster) Apply(s record.Sample) {
	c.byName[Speed].SetTarget(s.Speed)
	c.byName[RPM].SetTarget(s.RPM)
	c.byName[Load].SetTarget(s.Load)
	c.byName[Temperature].SetTarget(s.Temperature)
	c.byName[Fuel].SetTarget(s.Fuel)
}

// Advance steps every channel once, in order. It reports whether any moved.
func (c *Cluster) Advance() bool {
	moved := false
	for _, ch := range c.channels {
		if ch.Advance() {
			moved = true
		}
	}
	return moved
}

// Snapshot reads every channel.
func (c *Cluster) Snapshot() []Reading {
	out := make([]Reading, len(c.channels))
	for i, ch := range c.channels {
		out[i] = ch.Read()
	}
	return out
}
