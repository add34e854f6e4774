// Package hmm implements the two Li-Stephens copying-HMM haplotype
// updaters described in spec.md §4.3/§4.4: a single generic forward/
// backward pass (runPass), parameterised by a small stateSpace
// interface, with SingleUpdater and PairUpdater as its two instances.
// This replaces the virtual-base-class layout of the original
// UpdateHap/UpdateSingleHap/UpdatePairHap hierarchy with one routine
// plus two pluggable implementations (spec.md §9).
package hmm

import (
	"math"
	"math/rand"
	"sync"

	"github.com/op/go-logging"

	"github.com/mcveanlab/pfdeconv/errs"
	"github.com/mcveanlab/pfdeconv/numutil"
)

// bufPool recycles the []float64 scratch buffers runPass uses: one
// alpha row per locus (the normalised product of predict and emission)
// and the backward transition-weighted vector. The vectors returned by
// a stateSpace's predict and emission are allocated directly, not
// pooled. A long chain calls runPass thousands
// of times per segment, so pooling these avoids a fresh allocation on
// every one, the scoped-acquisition-with-guaranteed-release resource
// model applied to the HMM's own working memory.
var bufPool = sync.Pool{
	New: func() interface{} { b := make([]float64, 0); return &b },
}

// getBuf returns a []float64 of length n from the pool, reusing its
// backing array when large enough.
func getBuf(n int) []float64 {
	bp := bufPool.Get().(*[]float64)
	b := *bp
	if cap(b) < n {
		b = make([]float64, n)
	} else {
		b = b[:n]
	}
	return b
}

// putBuf returns b to the pool for reuse. Callers must not read b
// after calling putBuf.
func putBuf(b []float64) {
	bufPool.Put(&b)
}

// expSafe is math.Exp, named to make its use as an emission-building
// step (converting a log-likelihood into an unnormalised weight)
// explicit at call sites.
func expSafe(x float64) float64 {
	return math.Exp(x)
}

var log = logging.MustGetLogger("hmm")

// DefaultMissCopyProb is the Li-Stephens per-locus mutation
// probability applied after back-sampling a copying path.
const DefaultMissCopyProb = 0.01

// stateSpace is the pluggable emission+transition object a single
// runPass call resamples over. Implementations own their own scratch
// buffers and are scoped to one segment.
type stateSpace interface {
	// nStates returns the size of the (possibly product) state space.
	nStates() int
	// emission returns e(i, ·) for every state at locus i.
	emission(i int) []float64
	// predict returns the pre-emission predicted distribution at locus
	// i given the normalised alpha row at i-1. Implementations exploit
	// whatever factorisation keeps this sub-quadratic in nStates.
	predict(i int, prevAlpha []float64) []float64
	// transitionWeight returns T(from -> to) for the transition into
	// locus i (i.e. using rho_i, the rate between i-1 and i).
	transitionWeight(i, from, to int) float64
	// commit applies miss-copying and writes the sampled path into the
	// shared h/w/llk arrays for the segment's loci, in order.
	commit(rng *rand.Rand, path []int, missCopyProb float64)
}

// runPass runs one forward/backward HMM pass over loci [start, end)
// against ss, and commits the result. It returns an *errs.Error of
// Kind NumericUnderflow (without committing anything) if every
// emission is zero at some locus.
func runPass(start, end int, ss stateSpace, rng *rand.Rand, missCopyProb float64) error {
	n := end - start
	if n <= 0 {
		return nil
	}

	alpha := make([][]float64, n)
	e0 := ss.emission(start)
	a0 := getBuf(len(e0))
	copy(a0, e0)
	if err := normaliseOrUnderflow(a0, start); err != nil {
		putBuf(a0)
		return err
	}
	alpha[0] = a0

	for idx := 1; idx < n; idx++ {
		i := start + idx
		pred := ss.predict(i, alpha[idx-1])
		e := ss.emission(i)
		cur := getBuf(len(pred))
		for s := range cur {
			cur[s] = pred[s] * e[s]
		}
		if err := normaliseOrUnderflow(cur, i); err != nil {
			putBuf(cur)
			releaseAlpha(alpha[:idx])
			return err
		}
		alpha[idx] = cur
	}

	path := make([]int, n)
	path[n-1] = sampleFromWeights(alpha[n-1], rng)
	weighted := getBuf(len(alpha[0]))
	for idx := n - 2; idx >= 0; idx-- {
		i := start + idx
		next := path[idx+1]
		weighted = weighted[:len(alpha[idx])]
		for s := range weighted {
			weighted[s] = alpha[idx][s] * ss.transitionWeight(i+1, s, next)
		}
		path[idx] = sampleFromWeights(weighted, rng)
	}
	putBuf(weighted)

	ss.commit(rng, path, missCopyProb)
	releaseAlpha(alpha)
	return nil
}

// releaseAlpha returns every row of alpha to bufPool.
func releaseAlpha(alpha [][]float64) {
	for _, row := range alpha {
		putBuf(row)
	}
}

// normaliseOrUnderflow normalises v in place (row-stochastic, sum=1)
// and reports NumericUnderflow, naming the offending locus, if the sum
// is not strictly positive.
func normaliseOrUnderflow(v []float64, i int) error {
	var sum float64
	for _, x := range v {
		sum += x
	}
	if sum <= 0 {
		log.Debugf("numeric underflow at locus %d: all emissions zero", i)
		return errs.New(errs.NumericUnderflow, "", errAllZeroEmission)
	}
	for j := range v {
		v[j] /= sum
	}
	return nil
}

var errAllZeroEmission = hmmErr("all emissions are zero at this locus")

type hmmErr string

func (e hmmErr) Error() string { return string(e) }

// sampleFromWeights draws an index proportional to w (need not sum to
// 1) using the CDF-inversion method of numutil.
func sampleFromWeights(w []float64, rng *rand.Rand) int {
	cdf := numutil.CDF(w)
	total := cdf[len(cdf)-1]
	if total <= 0 {
		// Degenerate (shouldn't happen after normaliseOrUnderflow on
		// alpha, but the transition-weighted backward vector could in
		// principle be all zero for pathological rho=1 inputs); fall
		// back to a uniform choice rather than panicking.
		return rng.Intn(len(w))
	}
	return numutil.SampleIndexByCDF(cdf, rng.Float64()*total)
}

// sampleIndexByProp draws a single index proportional to prop.
func sampleIndexByProp(prop []float64, rng *rand.Rand) int {
	return sampleFromWeights(prop, rng)
}

// sampleTwoNoReplace draws two distinct indices without replacement,
// each draw weighted proportional to prop (the second draw excludes
// the first and renormalises over what remains).
func sampleTwoNoReplace(prop []float64, rng *rand.Rand) (int, int) {
	k1 := sampleIndexByProp(prop, rng)
	rest := make([]float64, len(prop))
	copy(rest, prop)
	rest[k1] = 0
	k2 := sampleIndexByProp(rest, rng)
	return k1, k2
}
