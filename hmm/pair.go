package hmm

import (
	"math/rand"

	"github.com/mcveanlab/pfdeconv/locus"
	"github.com/mcveanlab/pfdeconv/numutil"
	"github.com/mcveanlab/pfdeconv/panel"
)

// PairUpdater resamples two strains' haplotypes jointly across every
// chromosome segment (spec.md §4.4). Needed because a single-strain
// update can get stuck when swapping two strains' alleles leaves the
// expected WSAF unchanged.
type PairUpdater struct {
	MissCopyProb float64
}

// NewPairUpdater returns a PairUpdater with the default miss-copying
// probability.
func NewPairUpdater() *PairUpdater {
	return &PairUpdater{MissCopyProb: DefaultMissCopyProb}
}

// Update draws two distinct strains without replacement, proportional
// to pi, and resamples their haplotypes jointly over every segment. It
// returns the number of segments skipped due to NumericUnderflow. It
// is a no-op (returning 0) when fewer than two strains exist.
func (u *PairUpdater) Update(data *locus.Data, p *panel.Panel, pi []float64, h [][]float64, w, llk []float64, rng *rand.Rand) int {
	if len(pi) < 2 {
		return 0
	}
	k1, k2 := sampleTwoNoReplace(pi, rng)
	underflow := 0
	for s := 0; s < data.NSegments(); s++ {
		start, end := data.SegmentBounds(s)
		if p == nil {
			updatePairNoPanel(data, pi, h, w, llk, k1, k2, start, end, rng)
			continue
		}
		ss := newPairStateSpace(data, p, pi, h, w, llk, k1, k2, start, end)
		if err := runPass(start, end, ss, rng, u.MissCopyProb); err != nil {
			log.Debugf("pair-hap update skipped segment %d: %v", s, err)
			underflow++
		}
	}
	return underflow
}

// pairStateSpace is the panel-copying state space for two strains
// jointly over one segment. States are flattened (j1, j2) pairs,
// state = j1*H + j2; the O(H^2) transition is exploited via row/column
// marginals instead of materialising the full O(H^4) transition.
type pairStateSpace struct {
	data   *locus.Data
	p      *panel.Panel
	pi     []float64
	h      [][]float64
	w      []float64
	llk    []float64
	k1, k2 int
	start  int
	nHap   int

	// per-locus-in-segment candidate WSAFs/log-likelihoods/emissions,
	// indexed [locusOffset][2*b1+b2].
	w4   [][4]float64
	llk4 [][4]float64
	e4   [][4]float64
}

func newPairStateSpace(data *locus.Data, p *panel.Panel, pi []float64, h [][]float64, w, llk []float64, k1, k2, start, end int) *pairStateSpace {
	n := end - start
	ss := &pairStateSpace{
		data: data, p: p, pi: pi, h: h, w: w, llk: llk,
		k1: k1, k2: k2, start: start, nHap: p.NPanel(),
		w4: make([][4]float64, n), llk4: make([][4]float64, n), e4: make([][4]float64, n),
	}
	for idx := 0; idx < n; idx++ {
		i := start + idx
		base := w[i] - pi[k1]*h[i][k1] - pi[k2]*h[i][k2]
		for combo := 0; combo < 4; combo++ {
			b1 := combo >> 1
			b2 := combo & 1
			wv := base + pi[k1]*float64(b1) + pi[k2]*float64(b2)
			ss.w4[idx][combo] = wv
			l := numutil.BetaBinomLLKDefault(data.RefCount[i], data.AltCount[i], wv)
			ss.llk4[idx][combo] = l
			ss.e4[idx][combo] = expSafe(l)
		}
	}
	return ss
}

func (s *pairStateSpace) nStates() int { return s.nHap * s.nHap }

func (s *pairStateSpace) decode(state int) (j1, j2 int) {
	return state / s.nHap, state % s.nHap
}

func (s *pairStateSpace) emission(i int) []float64 {
	idx := i - s.start
	n := s.nStates()
	e := make([]float64, n)
	for state := 0; state < n; state++ {
		j1, j2 := s.decode(state)
		combo := s.p.At(i, j1)<<1 | s.p.At(i, j2)
		e[state] = s.e4[idx][combo]
	}
	return e
}

func (s *pairStateSpace) predict(i int, prevAlpha []float64) []float64 {
	rho := s.p.TransitionRate(i)
	h := s.nHap
	hf := float64(h)
	switchEach := rho / hf

	rowMarg := make([]float64, h) // rowMarg[j1] = sum over j2 of prevAlpha[j1,j2]
	colMarg := make([]float64, h) // colMarg[j2] = sum over j1 of prevAlpha[j1,j2]
	var total float64
	for j1 := 0; j1 < h; j1++ {
		for j2 := 0; j2 < h; j2++ {
			a := prevAlpha[j1*h+j2]
			rowMarg[j1] += a
			colMarg[j2] += a
			total += a
		}
	}

	pred := make([]float64, h*h)
	for j1 := 0; j1 < h; j1++ {
		for j2 := 0; j2 < h; j2++ {
			a := prevAlpha[j1*h+j2]
			pred[j1*h+j2] = (1-rho)*a + switchEach*rowMarg[j1] + switchEach*colMarg[j2] + switchEach*switchEach*total
		}
	}
	return pred
}

func (s *pairStateSpace) transitionWeight(i, from, to int) float64 {
	rho := s.p.TransitionRate(i)
	hf := float64(s.nHap)
	switchEach := rho / hf
	fromJ1, fromJ2 := s.decode(from)
	toJ1, toJ2 := s.decode(to)
	t1 := switchEach
	if fromJ1 == toJ1 {
		t1 += 1 - rho
	}
	t2 := switchEach
	if fromJ2 == toJ2 {
		t2 += 1 - rho
	}
	return t1 * t2
}

func (s *pairStateSpace) commit(rng *rand.Rand, path []int, missCopyProb float64) {
	for idx, state := range path {
		i := s.start + idx
		j1, j2 := s.decode(state)
		b1 := s.p.At(i, j1)
		b2 := s.p.At(i, j2)
		if rng.Float64() < missCopyProb {
			b1 = 1 - b1
		}
		if rng.Float64() < missCopyProb {
			b2 = 1 - b2
		}
		s.h[i][s.k1] = float64(b1)
		s.h[i][s.k2] = float64(b2)
		combo := b1<<1 | b2
		s.w[i] = s.w4[idx][combo]
		s.llk[i] = s.llk4[idx][combo]
	}
}

// updatePairNoPanel resamples both strains independently at every
// locus of [start, end) from the joint posterior over (b1, b2)
// combining two independent PLAF-prior draws with the Beta-Binomial
// likelihood, in the absence of a copying panel.
func updatePairNoPanel(data *locus.Data, pi []float64, h [][]float64, w, llk []float64, k1, k2, start, end int, rng *rand.Rand) {
	for i := start; i < end; i++ {
		base := w[i] - pi[k1]*h[i][k1] - pi[k2]*h[i][k2]
		plaf := data.Plaf[i]
		var weights [4]float64
		var wv, lv [4]float64
		for combo := 0; combo < 4; combo++ {
			b1 := combo >> 1
			b2 := combo & 1
			wCandidate := base + pi[k1]*float64(b1) + pi[k2]*float64(b2)
			l := numutil.BetaBinomLLKDefault(data.RefCount[i], data.AltCount[i], wCandidate)
			prior := priorBit(plaf, b1) * priorBit(plaf, b2)
			weights[combo] = prior * expSafe(l)
			wv[combo] = wCandidate
			lv[combo] = l
		}
		combo := sampleFromWeights(weights[:], rng)
		b1 := combo >> 1
		b2 := combo & 1
		h[i][k1] = float64(b1)
		h[i][k2] = float64(b2)
		w[i] = wv[combo]
		llk[i] = lv[combo]
	}
}

func priorBit(plaf float64, bit int) float64 {
	if bit == 1 {
		return plaf
	}
	return 1 - plaf
}
