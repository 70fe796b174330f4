package eventgen

import (
	"errors"
	"fmt"

	"github.com/banshee-data/mcopt/internal/padplane"
)

var (
	// ErrTimeBucketOverflow is wrapped by TBOverflowError.
	ErrTimeBucketOverflow = errors.New("time bucket overflow")

	// ErrLengthMismatch is returned when positions and energies differ in length.
	ErrLengthMismatch = errors.New("position and energy lengths differ")

	// ErrInvalidConfig is wrapped by every Config validation failure.
	ErrInvalidConfig = errors.New("invalid event generator config")
)

// TBOverflowError reports a charge deposit whose time bucket lies past the
// end of the signal window. It is only returned under OverflowError.
type TBOverflowError struct {
	TimeBucket float64
	Pad        padplane.Pad
}

func (e *TBOverflowError) Error() string {
	return fmt.Sprintf("TB overflow: time bucket %g on pad %d beyond last bucket %d", e.TimeBucket, e.Pad, MaxTimeBucket)
}

func (e *TBOverflowError) Unwrap() error {
	return ErrTimeBucketOverflow
}
