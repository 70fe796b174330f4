// Package padplane maps continuous readout-plane coordinates onto discrete
// pad identifiers and back.
package padplane

import (
	"fmt"
	"math"
)

// Pad identifies a single readout pad.
type Pad uint16

// NoPad is returned for coordinates outside the instrumented area.
const NoPad Pad = 20000

// PadPlane is a static pad geometry. Implementations must be pure and safe for
// concurrent use.
type PadPlane interface {
	// PadAt returns the pad under (x, y), or NoPad.
	PadAt(x, y float64) Pad
	// PadCenter returns the centre of pad p. Unknown pads give NaN.
	PadCenter(p Pad) (x, y float64)
	// NumPads returns the number of valid pad ids; ids are [0, NumPads).
	NumPads() int
}

// GridPlane is a rectangular grid of square pads backed by a precomputed
// centre table. Pad ids increase along x first, then y.
type GridPlane struct {
	pitch   float64
	originX float64
	originY float64
	cols    int
	rows    int
	centers [][2]float64
}

// NewGridPlane builds a cols×rows grid whose lower-left corner sits at
// (originX, originY). Coordinates use the same unit as pitch.
func NewGridPlane(cols, rows int, pitch, originX, originY float64) (*GridPlane, error) {
	if cols <= 0 || rows <= 0 {
		return nil, fmt.Errorf("grid must have positive dimensions, got %dx%d", cols, rows)
	}
	if cols*rows >= int(NoPad) {
		return nil, fmt.Errorf("grid of %d pads collides with the NoPad sentinel %d", cols*rows, NoPad)
	}
	if !(pitch > 0) || math.IsInf(pitch, 0) {
		return nil, fmt.Errorf("pad pitch must be positive and finite, got %v", pitch)
	}

	g := &GridPlane{
		pitch:   pitch,
		originX: originX,
		originY: originY,
		cols:    cols,
		rows:    rows,
		centers: make([][2]float64, cols*rows),
	}
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			g.centers[r*cols+c] = [2]float64{
				originX + (float64(c)+0.5)*pitch,
				originY + (float64(r)+0.5)*pitch,
			}
		}
	}
	return g, nil
}

// NewCenteredGridPlane builds a grid centred on the origin.
func NewCenteredGridPlane(cols, rows int, pitch float64) (*GridPlane, error) {
	return NewGridPlane(cols, rows, pitch, -float64(cols)*pitch/2, -float64(rows)*pitch/2)
}

// PadAt implements PadPlane.
func (g *GridPlane) PadAt(x, y float64) Pad {
	if math.IsNaN(x) || math.IsNaN(y) {
		return NoPad
	}
	c := math.Floor((x - g.originX) / g.pitch)
	r := math.Floor((y - g.originY) / g.pitch)
	if c < 0 || r < 0 || c >= float64(g.cols) || r >= float64(g.rows) {
		return NoPad
	}
	return Pad(int(r)*g.cols + int(c))
}

// PadCenter implements PadPlane.
func (g *GridPlane) PadCenter(p Pad) (x, y float64) {
	if int(p) >= len(g.centers) {
		return math.NaN(), math.NaN()
	}
	ctr := g.centers[p]
	return ctr[0], ctr[1]
}

// NumPads implements PadPlane.
func (g *GridPlane) NumPads() int {
	return len(g.centers)
}
