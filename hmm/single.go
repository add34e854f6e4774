package hmm

import (
	"math/rand"

	"github.com/mcveanlab/pfdeconv/locus"
	"github.com/mcveanlab/pfdeconv/numutil"
	"github.com/mcveanlab/pfdeconv/panel"
)

// SingleUpdater resamples one strain's haplotype across every
// chromosome segment, conditional on the other strains' haplotypes
// and on the current proportions (spec.md §4.3).
type SingleUpdater struct {
	MissCopyProb float64
}

// NewSingleUpdater returns a SingleUpdater with the default
// miss-copying probability.
func NewSingleUpdater() *SingleUpdater {
	return &SingleUpdater{MissCopyProb: DefaultMissCopyProb}
}

// Update chooses a strain proportional to pi and resamples its
// haplotype over every segment of data. h is indexed h[locus][strain].
// It returns the number of segments skipped due to NumericUnderflow;
// skipped segments are left uncommitted.
func (u *SingleUpdater) Update(data *locus.Data, p *panel.Panel, pi []float64, h [][]float64, w, llk []float64, rng *rand.Rand) int {
	k := sampleIndexByProp(pi, rng)
	underflow := 0
	for s := 0; s < data.NSegments(); s++ {
		start, end := data.SegmentBounds(s)
		if p == nil {
			updateSingleNoPanel(data, pi, h, w, llk, k, start, end, rng)
			continue
		}
		ss := newSingleStateSpace(data, p, pi, h, w, llk, k, start, end)
		if err := runPass(start, end, ss, rng, u.MissCopyProb); err != nil {
			log.Debugf("single-hap update skipped segment %d: %v", s, err)
			underflow++
		}
	}
	return underflow
}

// singleStateSpace is the panel-copying state space for one strain
// over one segment: nStates == p.NPanel(), with the Li-Stephens
// stay/switch transition of panel.Panel.
type singleStateSpace struct {
	data  *locus.Data
	p     *panel.Panel
	pi    []float64
	h     [][]float64
	w     []float64
	llk   []float64
	k     int
	start int

	w0, w1     []float64 // per-locus-in-segment candidate WSAFs
	llk0, llk1 []float64 // per-locus-in-segment candidate log-likelihoods
	e0, e1     []float64 // per-locus-in-segment exp(llk) emissions
}

func newSingleStateSpace(data *locus.Data, p *panel.Panel, pi []float64, h [][]float64, w, llk []float64, k, start, end int) *singleStateSpace {
	n := end - start
	ss := &singleStateSpace{
		data: data, p: p, pi: pi, h: h, w: w, llk: llk, k: k, start: start,
		w0: make([]float64, n), w1: make([]float64, n),
		llk0: make([]float64, n), llk1: make([]float64, n),
		e0: make([]float64, n), e1: make([]float64, n),
	}
	for idx := 0; idx < n; idx++ {
		i := start + idx
		base := w[i] - pi[k]*h[i][k]
		ss.w0[idx] = base
		ss.w1[idx] = base + pi[k]
		ss.llk0[idx] = numutil.BetaBinomLLKDefault(data.RefCount[i], data.AltCount[i], ss.w0[idx])
		ss.llk1[idx] = numutil.BetaBinomLLKDefault(data.RefCount[i], data.AltCount[i], ss.w1[idx])
		ss.e0[idx] = expSafe(ss.llk0[idx])
		ss.e1[idx] = expSafe(ss.llk1[idx])
	}
	return ss
}

func (s *singleStateSpace) nStates() int { return s.p.NPanel() }

func (s *singleStateSpace) emission(i int) []float64 {
	idx := i - s.start
	n := s.nStates()
	e := make([]float64, n)
	for j := 0; j < n; j++ {
		if s.p.At(i, j) == 0 {
			e[j] = s.e0[idx]
		} else {
			e[j] = s.e1[idx]
		}
	}
	return e
}

func (s *singleStateSpace) predict(i int, prevAlpha []float64) []float64 {
	rho := s.p.TransitionRate(i)
	h := float64(s.nStates())
	switchEach := rho / h
	var total float64
	for _, a := range prevAlpha {
		total += a
	}
	pred := make([]float64, len(prevAlpha))
	for j, a := range prevAlpha {
		pred[j] = (1-rho)*a + switchEach*total
	}
	return pred
}

func (s *singleStateSpace) transitionWeight(i, from, to int) float64 {
	rho := s.p.TransitionRate(i)
	h := float64(s.nStates())
	w := rho / h
	if from == to {
		w += 1 - rho
	}
	return w
}

func (s *singleStateSpace) commit(rng *rand.Rand, path []int, missCopyProb float64) {
	for idx, state := range path {
		i := s.start + idx
		bit := s.p.At(i, state)
		if rng.Float64() < missCopyProb {
			bit = 1 - bit
		}
		s.h[i][s.k] = float64(bit)
		if bit == 0 {
			s.w[i] = s.w0[idx]
			s.llk[i] = s.llk0[idx]
		} else {
			s.w[i] = s.w1[idx]
			s.llk[i] = s.llk1[idx]
		}
	}
}

// updateSingleNoPanel resamples strain k independently at every locus
// of [start, end) from the posterior combining the PLAF prior with
// the Beta-Binomial likelihood, degenerating the copying/miss-copying
// terms away in the absence of a panel (spec.md §4.2/§6).
func updateSingleNoPanel(data *locus.Data, pi []float64, h [][]float64, w, llk []float64, k, start, end int, rng *rand.Rand) {
	for i := start; i < end; i++ {
		base := w[i] - pi[k]*h[i][k]
		w0 := base
		w1 := base + pi[k]
		llk0 := numutil.BetaBinomLLKDefault(data.RefCount[i], data.AltCount[i], w0)
		llk1 := numutil.BetaBinomLLKDefault(data.RefCount[i], data.AltCount[i], w1)
		p0 := (1 - data.Plaf[i]) * expSafe(llk0)
		p1 := data.Plaf[i] * expSafe(llk1)
		bit := 0
		if p0+p1 > 0 && rng.Float64()*(p0+p1) >= p0 {
			bit = 1
		}
		h[i][k] = float64(bit)
		if bit == 0 {
			w[i], llk[i] = w0, llk0
		} else {
			w[i], llk[i] = w1, llk1
		}
	}
}
