package eventgen

import (
	"maps"
	"slices"

	"github.com/banshee-data/mcopt/internal/padplane"
)

// Event maps each hit pad to its signal. Events are built fresh for every
// simulated trajectory and never share signals.
type Event map[padplane.Pad]*Signal

// signal returns the signal for pad, inserting a zeroed one on first use.
func (e Event) signal(pad padplane.Pad) *Signal {
	sig, ok := e[pad]
	if !ok {
		sig = new(Signal)
		e[pad] = sig
	}
	return sig
}

// Pads returns the hit pads in ascending order.
func (e Event) Pads() []padplane.Pad {
	return slices.Sorted(maps.Keys(e))
}

// Mesh returns the sum of all pad signals.
func (e Event) Mesh() Signal {
	var mesh Signal
	for _, pad := range e.Pads() {
		mesh.add(e[pad])
	}
	return mesh
}
