package hmm

import (
	"math/rand"
	"testing"

	"github.com/mcveanlab/pfdeconv/locus"
	"github.com/mcveanlab/pfdeconv/panel"
)

func oneSegData(ref, alt, plaf []float64) *locus.Data {
	return &locus.Data{
		RefCount:      ref,
		AltCount:      alt,
		Plaf:          plaf,
		SegmentStarts: []int{0},
	}
}

func uniformPanel(t *testing.T, loci, haps int) *panel.Panel {
	t.Helper()
	data := make([][]int, loci)
	for i := range data {
		row := make([]int, haps)
		for h := range row {
			if (i+h)%2 == 0 {
				row[h] = 1
			}
		}
		data[i] = row
	}
	p, err := panel.New(data, 0.01)
	if err != nil {
		t.Fatal(err)
	}
	return p
}

// K=1, no panel, strongly ref-supported loci should converge the single
// strain's haplotype to 0 at (almost) every locus.
func TestSingleUpdaterNoPanelConvergesToData(t *testing.T) {
	n := 20
	ref := make([]float64, n)
	alt := make([]float64, n)
	plaf := make([]float64, n)
	for i := range ref {
		ref[i] = 100
		alt[i] = 0
		plaf[i] = 0.5
	}
	data := oneSegData(ref, alt, plaf)
	pi := []float64{1.0}
	h := make([][]float64, n)
	w := make([]float64, n)
	llk := make([]float64, n)
	for i := range h {
		h[i] = []float64{1} // start at the wrong allele
		w[i] = pi[0] * h[i][0]
	}

	rng := rand.New(rand.NewSource(1))
	u := NewSingleUpdater()
	for iter := 0; iter < 500; iter++ {
		u.Update(data, nil, pi, h, w, llk, rng)
	}

	zeros := 0
	for i := range h {
		if h[i][0] == 0 {
			zeros++
		}
	}
	if float64(zeros)/float64(n) < 0.99 {
		t.Errorf("expected >99%% of loci at allele 0 after convergence, got %d/%d", zeros, n)
	}
}

// With a panel, every sampled haplotype bit must come straight from the
// panel (0 or 1) or its miss-copied flip -- in either case the committed
// value must be exactly 0 or 1.
func TestSingleUpdaterPanelStateIsBinary(t *testing.T) {
	n := 10
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
	pi := []float64{1.0}
	h := make([][]float64, n)
	w := make([]float64, n)
	llk := make([]float64, n)
	for i := range h {
		h[i] = []float64{0}
	}

	rng := rand.New(rand.NewSource(2))
	u := NewSingleUpdater()
	u.Update(data, p, pi, h, w, llk, rng)

	for i := range h {
		if h[i][0] != 0 && h[i][0] != 1 {
			t.Errorf("locus %d: h = %v, want 0 or 1", i, h[i][0])
		}
	}
}

// A single-locus segment must not index out of range in runPass's
// backward loop (which starts at n-2).
func TestSingleUpdaterSingleLocusSegment(t *testing.T) {
	data := oneSegData([]float64{5}, []float64{5}, []float64{0.5})
	p := uniformPanel(t, 1, 4)
	pi := []float64{1.0}
	h := [][]float64{{0}}
	w := []float64{0}
	llk := []float64{0}

	rng := rand.New(rand.NewSource(3))
	u := NewSingleUpdater()
	if underflow := u.Update(data, p, pi, h, w, llk, rng); underflow != 0 {
		t.Errorf("unexpected underflow on well-posed single-locus segment: %d", underflow)
	}
}

// When K=1, a strongly alt-supported no-panel locus should pull the
// haplotype bit to 1 even starting from 0.
func TestSingleUpdaterNoPanelAltSupported(t *testing.T) {
	n := 5
	ref := make([]float64, n)
	alt := make([]float64, n)
	plaf := make([]float64, n)
	for i := range ref {
		ref[i] = 0
		alt[i] = 100
		plaf[i] = 0.5
	}
	data := oneSegData(ref, alt, plaf)
	pi := []float64{1.0}
	h := make([][]float64, n)
	w := make([]float64, n)
	llk := make([]float64, n)
	for i := range h {
		h[i] = []float64{0}
	}

	rng := rand.New(rand.NewSource(4))
	u := NewSingleUpdater()
	for iter := 0; iter < 200; iter++ {
		u.Update(data, nil, pi, h, w, llk, rng)
	}
	ones := 0
	for i := range h {
		if h[i][0] == 1 {
			ones++
		}
	}
	if ones != n {
		t.Errorf("expected all %d loci at allele 1, got %d", n, ones)
	}
}
