package eventgen

import (
	"fmt"
	"math"
	"strings"

	"github.com/banshee-data/mcopt/internal/calib"
)

// OverflowPolicy selects what happens to charge whose time bucket falls
// past the end of the signal window.
type OverflowPolicy int

const (
	// OverflowDrop silently skips late deposits.
	OverflowDrop OverflowPolicy = iota
	// OverflowError aborts event generation with a TBOverflowError.
	OverflowError
)

func (p OverflowPolicy) String() string {
	switch p {
	case OverflowDrop:
		return "drop"
	case OverflowError:
		return "error"
	default:
		return "unknown"
	}
}

// ParseOverflowPolicy parses "drop" or "error".
func ParseOverflowPolicy(s string) (OverflowPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "drop":
		return OverflowDrop, nil
	case "error":
		return OverflowError, nil
	default:
		return OverflowDrop, fmt.Errorf("unknown overflow policy %q (want drop or error)", s)
	}
}

// Config holds the detector and electronics constants used by a Generator.
// Every field is required.
type Config struct {
	DriftVelocity   calib.Vec3 // cm/µs
	Clock           float64    // Hz
	Shape           float64    // shaping time, s
	MassNum         int        // mass number of the tracked particle
	Ionization      float64    // gas ionization potential, eV
	MicromegasGain  float64
	ElectronicsGain float64 // charge at ADC full scale, C
	Tilt            float64 // pad plane tilt, rad
	DiffSigma       float64 // diffusion width per sqrt(time bucket)
	Overflow        OverflowPolicy
}

// Validate checks that every field is set to a usable value.
func (c Config) Validate() error {
	positive := []struct {
		name string
		v    float64
	}{
		{"clock", c.Clock},
		{"shape", c.Shape},
		{"mass_num", float64(c.MassNum)},
		{"ionization", c.Ionization},
		{"micromegas_gain", c.MicromegasGain},
		{"electronics_gain", c.ElectronicsGain},
	}
	for _, f := range positive {
		if !(f.v > 0) || math.IsInf(f.v, 0) {
			return fmt.Errorf("%w: %s must be positive and finite, got %v", ErrInvalidConfig, f.name, f.v)
		}
	}

	for _, f := range []struct {
		name string
		v    float64
	}{
		{"tilt", c.Tilt},
		{"diffusion_sigma", c.DiffSigma},
		{"drift_velocity.x", c.DriftVelocity.X},
		{"drift_velocity.y", c.DriftVelocity.Y},
		{"drift_velocity.z", c.DriftVelocity.Z},
	} {
		if math.IsNaN(f.v) || math.IsInf(f.v, 0) {
			return fmt.Errorf("%w: %s must be finite, got %v", ErrInvalidConfig, f.name, f.v)
		}
	}
	if c.DiffSigma < 0 {
		return fmt.Errorf("%w: diffusion_sigma must be non-negative, got %v", ErrInvalidConfig, c.DiffSigma)
	}
	if c.DriftVelocity.Z == 0 {
		return fmt.Errorf("%w: drift_velocity.z must be non-zero", ErrInvalidConfig)
	}
	if c.Overflow != OverflowDrop && c.Overflow != OverflowError {
		return fmt.Errorf("%w: unknown overflow policy %d", ErrInvalidConfig, c.Overflow)
	}
	return nil
}
