package panel

import (
	"math"
	"testing"
)

func TestNewAndAt(t *testing.T) {
	data := [][]int{
		{0, 1, 1},
		{1, 1, 0},
	}
	p, err := New(data, 0.01)
	if err != nil {
		t.Fatal(err)
	}
	if p.NLoci() != 2 || p.NPanel() != 3 {
		t.Fatalf("got %d loci, %d haps", p.NLoci(), p.NPanel())
	}
	if p.At(0, 1) != 1 || p.At(1, 2) != 0 {
		t.Error("At returned wrong allele")
	}
}

func TestNewRejectsNonBinary(t *testing.T) {
	_, err := New([][]int{{0, 2}}, 0.01)
	if err == nil {
		t.Error("expected error for non-binary entry")
	}
}

func TestStaySwitchSumsToOne(t *testing.T) {
	p, err := New([][]int{{0, 1, 0, 1}, {1, 0, 1, 0}}, 0.05)
	if err != nil {
		t.Fatal(err)
	}
	stay, each := p.StaySwitch(1)
	total := stay + each*float64(p.NPanel()-1)
	if math.Abs(total-1.0) > 1e-9 {
		t.Errorf("stay+switch*other = %v, want 1.0", total)
	}
}

func TestTransitionRateDistanceScaling(t *testing.T) {
	p, err := New([][]int{{0}, {1}, {0}}, 0.1)
	if err != nil {
		t.Fatal(err)
	}
	if err := p.SetDistances([]float64{0, 0.5, 20}); err != nil {
		t.Fatal(err)
	}
	if got := p.TransitionRate(1); math.Abs(got-0.05) > 1e-12 {
		t.Errorf("TransitionRate(1) = %v, want 0.05", got)
	}
	// scaled rate above 1 must clamp.
	if got := p.TransitionRate(2); got > 1 {
		t.Errorf("TransitionRate(2) = %v, must be <= 1", got)
	}
}
