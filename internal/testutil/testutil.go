// Package testutil provides shared numeric assertions for tests.
package testutil

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
)

// AssertNoError fails the test if err is not nil.
func AssertNoError(t testing.TB, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t testing.TB, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

// InDelta reports whether got is within delta of want. Two NaNs compare equal,
// as do equal infinities.
func InDelta(want, got, delta float64) bool {
	if math.IsNaN(want) || math.IsNaN(got) {
		return math.IsNaN(want) && math.IsNaN(got)
	}
	if want == got {
		return true
	}
	return math.Abs(want-got) <= delta
}

// AssertInDelta fails the test if got is not within delta of want.
func AssertInDelta(t testing.TB, want, got, delta float64) {
	t.Helper()
	if !InDelta(want, got, delta) {
		t.Errorf("got %v, want %v (±%v)", got, want, delta)
	}
}

// MatrixInDelta reports whether got and want have the same shape and every
// element is within delta.
func MatrixInDelta(want, got mat.Matrix, delta float64) bool {
	wr, wc := want.Dims()
	gr, gc := got.Dims()
	if wr != gr || wc != gc {
		return false
	}
	for i := 0; i < wr; i++ {
		for j := 0; j < wc; j++ {
			if !InDelta(want.At(i, j), got.At(i, j), delta) {
				return false
			}
		}
	}
	return true
}

// AssertMatrixInDelta fails the test if got differs from want in shape or by
// more than delta in any element.
func AssertMatrixInDelta(t testing.TB, want, got mat.Matrix, delta float64) {
	t.Helper()
	if !MatrixInDelta(want, got, delta) {
		t.Errorf("got\n%v\nwant\n%v", mat.Formatted(got), mat.Formatted(want))
	}
}
