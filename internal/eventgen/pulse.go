package eventgen

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

const (
	// NumTimeBuckets is the length of every pad signal.
	NumTimeBuckets = 512
	// MaxTimeBucket is the last valid time bucket index.
	MaxTimeBucket = NumTimeBuckets - 1

	// pulseNorm scales the unit-amplitude pulse to a peak height of 1.
	pulseNorm = 0.044

	// adcBins is the 12-bit ADC range.
	adcBins = 4096
)

// Signal is a pad waveform indexed by time bucket.
type Signal [NumTimeBuckets]float64

// Max returns the index and value of the largest sample. Ties go to the
// earliest bucket.
func (s *Signal) Max() (int, float64) {
	idx := floats.MaxIdx(s[:])
	return idx, s[idx]
}

// Sum returns the total of all samples.
func (s *Signal) Sum() float64 {
	return floats.Sum(s[:])
}

func (s *Signal) add(o *Signal) {
	floats.Add(s[:], o[:])
}

// approxSin is the 7th-order Taylor expansion of sin. The pulse shape is
// defined with it, so it must not be replaced by math.Sin.
func approxSin(t float64) float64 {
	return t - t*t*t/6 + t*t*t*t*t/120 - t*t*t*t*t*t*t/5040
}

// ElecPulse returns the electronics response to a single avalanche arriving
// at the (possibly fractional) time bucket offset. shape and clock must have
// reciprocal units, e.g. seconds and Hz, so that shape·clock is in buckets.
// Samples before ceil(offset) are zero, so an offset at or past the end of
// the window, or NaN, gives an all-zero signal.
func ElecPulse(amplitude, shape, clock, offset float64) Signal {
	var res Signal
	if !(offset < NumTimeBuckets) {
		return res
	}

	s := shape * clock

	first := 0
	if offset > 0 {
		first = int(math.Ceil(offset))
	}
	for i := first; i < NumTimeBuckets; i++ {
		t := (float64(i) - offset) / s
		decay := math.Exp(-3 * t)
		if decay == 0 {
			// t only grows from here.
			break
		}
		res[i] = amplitude * decay * approxSin(t) * t * t * t / pulseNorm
	}
	return res
}

// SquareWave returns a size-sample waveform that is height on
// [leftEdge, leftEdge+width) and zero elsewhere.
func SquareWave(size, leftEdge, width int, height float64) []float64 {
	if size <= 0 {
		return []float64{}
	}
	res := make([]float64, size)
	if leftEdge < 0 {
		width += leftEdge
		leftEdge = 0
	}
	for i := leftEdge; i < leftEdge+width && i < size; i++ {
		res[i] = height
	}
	return res
}
