package reconcile

import "testing"

func TestDriftWithinToleranceIsNotDrift(t *testing.T) {
	if drift(100.0, 100.005) {
		t.Fatal("difference of 0.005 is within the 0.01 tolerance, should not be drift")
	}
}

func TestDriftBeyondToleranceIsDrift(t *testing.T) {
	if !drift(100.0, 100.5) {
		t.Fatal("difference of 0.5 exceeds the 0.01 tolerance, should be drift")
	}
}

func TestDriftIsSymmetric(t *testing.T) {
	if drift(100.0, 99.5) != drift(99.5, 100.0) {
		t.Fatal("drift should be symmetric in its two arguments")
	}
}

func TestDriftAtExactToleranceBoundaryIsNotDrift(t *testing.T) {
	if drift(0.01, 0) {
		t.Fatal("difference exactly at the 0.01 tolerance boundary should not be flagged (strict greater-than)")
	}
}
