package hmm

import (
	"math/rand"
	"testing"
)

// Fewer than two strains: Update must be a no-op and report no underflow.
func TestPairUpdaterNoopBelowTwoStrains(t *testing.T) {
	data := oneSegData([]float64{5}, []float64{5}, []float64{0.5})
	pi := []float64{1.0}
	h := [][]float64{{0}}
	w := []float64{0}
	llk := []float64{0}

	rng := rand.New(rand.NewSource(1))
	u := NewPairUpdater()
	if got := u.Update(data, nil, pi, h, w, llk, rng); got != 0 {
		t.Errorf("Update with 1 strain returned underflow %d, want 0", got)
	}
	if h[0][0] != 0 {
		t.Error("Update with 1 strain must not mutate h")
	}
}

// With a panel, committed haplotype bits for both resampled strains must
// stay binary.
func TestPairUpdaterPanelStateIsBinary(t *testing.T) {
	n := 12
	ref := make([]float64, n)
	alt := make([]float64, n)
	plaf := make([]float64, n)
	for i := range ref {
		ref[i] = 10
		alt[i] = 10
		plaf[i] = 0.5
	}
	data := oneSegData(ref, alt, plaf)
	p := uniformPanel(t, n, 6)
	pi := []float64{0.5, 0.3, 0.2}
	h := make([][]float64, n)
	w := make([]float64, n)
	llk := make([]float64, n)
	for i := range h {
		h[i] = []float64{0, 1, 0}
		w[i] = pi[0]*h[i][0] + pi[1]*h[i][1] + pi[2]*h[i][2]
	}

	rng := rand.New(rand.NewSource(5))
	u := NewPairUpdater()
	u.Update(data, p, pi, h, w, llk, rng)

	for i := range h {
		for k := range h[i] {
			if h[i][k] != 0 && h[i][k] != 1 {
				t.Errorf("locus %d strain %d: h = %v, want 0 or 1", i, k, h[i][k])
			}
		}
	}
}

// A single-locus segment must not index out of range in the pair
// updater's backward loop either.
func TestPairUpdaterSingleLocusSegment(t *testing.T) {
	data := oneSegData([]float64{5}, []float64{5}, []float64{0.5})
	p := uniformPanel(t, 1, 4)
	pi := []float64{0.6, 0.4}
	h := [][]float64{{0, 1}}
	w := []float64{0.4}
	llk := []float64{0}

	rng := rand.New(rand.NewSource(6))
	u := NewPairUpdater()
	if underflow := u.Update(data, p, pi, h, w, llk, rng); underflow != 0 {
		t.Errorf("unexpected underflow on well-posed single-locus segment: %d", underflow)
	}
}

// w[i] must stay consistent with pi . h[i,:] after a no-panel pair
// update (the invariant checked across the engine in spec.md §8).
func TestPairUpdaterNoPanelKeepsWConsistent(t *testing.T) {
	n := 8
	ref := make([]float64, n)
	alt := make([]float64, n)
	plaf := make([]float64, n)
	for i := range ref {
		ref[i] = 7
		alt[i] = 3
		plaf[i] = 0.3
	}
	data := oneSegData(ref, alt, plaf)
	pi := []float64{0.5, 0.5}
	h := make([][]float64, n)
	w := make([]float64, n)
	llk := make([]float64, n)
	for i := range h {
		h[i] = []float64{0, 0}
	}

	rng := rand.New(rand.NewSource(7))
	u := NewPairUpdater()
	u.Update(data, nil, pi, h, w, llk, rng)

	for i := range h {
		want := pi[0]*h[i][0] + pi[1]*h[i][1]
		if want != w[i] {
			t.Errorf("locus %d: w = %v, want pi.h = %v", i, w[i], want)
		}
	}
}

// sampleTwoNoReplace must never return the same index twice, and both
// indices must be valid.
func TestSampleTwoNoReplaceDistinct(t *testing.T) {
	prop := []float64{0.5, 0.3, 0.2}
	rng := rand.New(rand.NewSource(8))
	for i := 0; i < 200; i++ {
		k1, k2 := sampleTwoNoReplace(prop, rng)
		if k1 == k2 {
			t.Fatalf("sampleTwoNoReplace returned equal indices: %d, %d", k1, k2)
		}
		if k1 < 0 || k1 >= len(prop) || k2 < 0 || k2 >= len(prop) {
			t.Fatalf("sampleTwoNoReplace out of range: %d, %d", k1, k2)
		}
	}
}
