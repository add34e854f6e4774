// Package mcmc implements the chain control described in
// SPEC_FULL.md §4.6: initialisation from PLAF, per-iteration rotation
// of proportion/single-hap/pair-hap updates, sample thinning, trace
// recording, and optional checkpointing.
package mcmc

import (
	"math/rand"

	"github.com/mcveanlab/pfdeconv/locus"
	"github.com/mcveanlab/pfdeconv/numutil"
)

// State is the chain's full mutable state: strain proportions pi,
// latent haplotypes h, expected within-sample allele frequency w, and
// per-locus log-likelihood llk. McmcEngine is the only mutator.
type State struct {
	Pi  []float64
	H   [][]float64 // H[locus][strain]
	W   []float64
	Llk []float64
}

// NewState builds the initial chain state: pi_k = 1/K; for every locus
// and strain, h[i][k] = 1 with probability plaf_i; w and llk follow.
func NewState(data *locus.Data, k int, rng *rand.Rand) *State {
	n := data.NLoci()
	pi := make([]float64, k)
	for i := range pi {
		pi[i] = 1.0 / float64(k)
	}

	h := make([][]float64, n)
	w := make([]float64, n)
	llk := make([]float64, n)
	for i := 0; i < n; i++ {
		row := make([]float64, k)
		var wi float64
		for kk := 0; kk < k; kk++ {
			if rng.Float64() < data.Plaf[i] {
				row[kk] = 1
			}
			wi += pi[kk] * row[kk]
		}
		h[i] = row
		w[i] = wi
		llk[i] = numutil.BetaBinomLLKDefault(data.RefCount[i], data.AltCount[i], wi)
	}

	return &State{Pi: pi, H: h, W: w, Llk: llk}
}

// TotalLlk returns the summed per-locus log-likelihood L_total.
func (s *State) TotalLlk() float64 {
	return numutil.SumVec(s.Llk)
}
