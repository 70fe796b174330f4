package mcmin

import (
	"errors"
	"fmt"
)

var (
	// ErrIntegration wraps a trajectory integrator failure for one candidate.
	ErrIntegration = errors.New("trajectory integration failed")
	// ErrObservation wraps a failure turning a trajectory into an observable.
	ErrObservation = errors.New("observable simulation failed")
	// ErrUnscorable is returned when no deviation row survives NaN removal.
	ErrUnscorable = errors.New("no comparable rows to score")
	// ErrNoViableCandidate is wrapped by NoViableCandidateError.
	ErrNoViableCandidate = errors.New("no viable candidate")
	// ErrInvalidRequest is wrapped by every Request validation failure.
	ErrInvalidRequest = errors.New("invalid minimizer request")
)

// NoViableCandidateError reports an iteration in which every sampled
// candidate failed, so no centre could be chosen.
type NoViableCandidateError struct {
	Iteration  int
	Candidates int
	// LastErr is the failure of the final candidate in the iteration.
	LastErr error
}

func (e *NoViableCandidateError) Error() string {
	if e.LastErr != nil {
		return fmt.Sprintf("iteration %d: all %d candidates failed (last: %v)", e.Iteration, e.Candidates, e.LastErr)
	}
	return fmt.Sprintf("iteration %d: all %d candidates failed", e.Iteration, e.Candidates)
}

func (e *NoViableCandidateError) Unwrap() error {
	return ErrNoViableCandidate
}
