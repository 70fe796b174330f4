// Package physics holds the physical constants shared by the simulation
// packages. Values are CODATA 2018.
package physics

import "math"

const (
	// ElementaryCharge is the charge of the proton in coulombs.
	ElementaryCharge = 1.602176634e-19

	// AtomicMassUnit is the unified atomic mass unit in MeV/c².
	AtomicMassUnit = 931.49410242

	// SpeedOfLight is the speed of light in vacuum in m/s.
	SpeedOfLight = 299792458.0
)

// Speed returns the speed in m/s of a nucleus with kinetic energy enu MeV per
// nucleon.
func Speed(enu float64) float64 {
	gamma := 1 + enu/AtomicMassUnit
	return SpeedOfLight * math.Sqrt(1-1/(gamma*gamma))
}
