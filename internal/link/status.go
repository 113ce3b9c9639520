package link

import (
	"fmt"

	"github.com/shaunagostinho/mechanic-dash/internal/record"
)

// Phase is the state of the link state machine.
type Phase int

const (
	Idle Phase = iota
	Connecting
	Connected
	Disconnected
	Error
	Stopped
)

var phaseNames = [...]string{"idle", "connecting", "connected", "disconnected", "error", "stopped"}

func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return fmt.Sprintf("phase(%d)", int(p))
	}
	return phaseNames[p]
}

func (p Phase) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

// Status is the latest published link state.
type Status struct {
	Phase Phase
	Peer  string
	// Params is set once the first record of an episode has been parsed.
	Params *record.Flags
	// Err is the open failure (Error) or read failure (Disconnected).
	Err error
}

// Title renders the status as a window/header title prefixed by base.
// A failed open reads as "connecting" since the machine is already retrying.
func (s Status) Title(base string) string {
	switch s.Phase {
	case Connecting, Error:
		return fmt.Sprintf("%s: connecting to %s", base, s.Peer)
	case Connected:
		if s.Params != nil {
			return fmt.Sprintf("%s [%s, %d kbps, %s]", base, s.Peer, s.Params.BitrateKbps(), s.Params.FrameFormat())
		}
		return fmt.Sprintf("%s: connected to %s", base, s.Peer)
	case Disconnected:
		return fmt.Sprintf("%s: disconnected from %s", base, s.Peer)
	case Stopped:
		return base + ": stopped"
	}
	return base
}
