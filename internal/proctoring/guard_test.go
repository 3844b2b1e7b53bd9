package proctoring

import (
	"testing"
	"time"
)

func fixedWindow(d time.Duration) func(DetectionType) time.Duration {
	return func(DetectionType) time.Duration { return d }
}

func TestGuardSuppressesWithinWindow(t *testing.T) {
	g := NewGuard(fixedWindow(20 * time.Second))
	t0 := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

	if !g.Admit("e1", "s1", GazeDeviation, t0) {
		t.Fatal("first detection should be admitted")
	}
	if g.Admit("e1", "s1", GazeDeviation, t0.Add(5*time.Second)) {
		t.Error("second detection inside window should be suppressed")
	}
	if !g.Admit("e1", "s1", GazeDeviation, t0.Add(21*time.Second)) {
		t.Error("detection after window should be admitted")
	}
}

func TestGuardBoundaryAdmits(t *testing.T) {
	g := NewGuard(fixedWindow(20 * time.Second))
	t0 := time.Now()
	g.Admit("e1", "s1", GazeDeviation, t0)
	if !g.Admit("e1", "s1", GazeDeviation, t0.Add(20*time.Second)) {
		t.Error("elapsed == window should be admitted")
	}
}

func TestGuardSuppressionDoesNotExtendWindow(t *testing.T) {
	g := NewGuard(fixedWindow(20 * time.Second))
	t0 := time.Now()
	g.Admit("e1", "s1", GazeDeviation, t0)
	g.Admit("e1", "s1", GazeDeviation, t0.Add(15*time.Second)) // suppressed

	last, ok := g.LastAdmitted("e1", "s1", GazeDeviation)
	if !ok || !last.Equal(t0) {
		t.Errorf("last admitted = %v, want %v", last, t0)
	}
	if !g.Admit("e1", "s1", GazeDeviation, t0.Add(20*time.Second)) {
		t.Error("window should be measured from the admission, not the suppression")
	}
}

func TestGuardKeysIndependent(t *testing.T) {
	g := NewGuard(fixedWindow(time.Minute))
	t0 := time.Now()
	g.Admit("e1", "s1", GazeDeviation, t0)

	if !g.Admit("e1", "s1", MouthMovement, t0) {
		t.Error("different type should not share the window")
	}
	if !g.Admit("e1", "s2", GazeDeviation, t0) {
		t.Error("different student should not share the window")
	}
	if !g.Admit("e2", "s1", GazeDeviation, t0) {
		t.Error("different exam should not share the window")
	}
}

func TestGuardIDsContainingSeparators(t *testing.T) {
	g := NewGuard(fixedWindow(time.Minute))
	t0 := time.Now()
	g.Admit("a_b", "c", GazeDeviation, t0)
	if !g.Admit("a", "b_c", GazeDeviation, t0) {
		t.Error("composite keys must not collide on separator characters")
	}
}

func TestGuardBypass(t *testing.T) {
	g := NewGuard(fixedWindow(time.Hour))
	t0 := time.Now()
	for i := 0; i < 3; i++ {
		if !g.Admit("e1", "s1", TabSwitching, t0) {
			t.Fatalf("tab switch %d suppressed", i)
		}
	}
	if _, ok := g.LastAdmitted("e1", "s1", TabSwitching); ok {
		t.Error("bypassed types should not create cooldown entries")
	}
}

func TestGuardForgetExam(t *testing.T) {
	g := NewGuard(fixedWindow(time.Hour))
	t0 := time.Now()
	g.Admit("e1", "s1", GazeDeviation, t0)
	g.Admit("e2", "s1", GazeDeviation, t0)
	g.ForgetExam("e1")

	if !g.Admit("e1", "s1", GazeDeviation, t0) {
		t.Error("forgotten exam should admit again")
	}
	if g.Admit("e2", "s1", GazeDeviation, t0) {
		t.Error("other exam should keep its window")
	}
}
