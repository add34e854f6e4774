// Package prop implements the Dirichlet-logit Metropolis-Hastings
// proposal on strain mixture proportions (spec.md §4.5): a symmetric
// normal step on the logit scale, accepted or rejected against the
// resulting likelihood ratio plus its Jacobian term.
package prop

import (
	"math"
	"math/rand"

	"github.com/op/go-logging"

	"github.com/mcveanlab/pfdeconv/locus"
	"github.com/mcveanlab/pfdeconv/numutil"
)

var log = logging.MustGetLogger("prop")

// DefaultLogitSD is the standard deviation of the per-strain logit
// step, matching the original reference implementation.
const DefaultLogitSD = 0.3

// Updater proposes and accepts/rejects a joint move of every strain
// proportion, reusing the teacher's NormalProposal closure idiom
// (mcmc/proposal.go) at vector scale instead of scalar.
type Updater struct {
	LogitSD float64
}

// NewUpdater returns an Updater with the default logit step size.
func NewUpdater() *Updater {
	return &Updater{LogitSD: DefaultLogitSD}
}

// logitStep draws delta_k ~ Normal(0, sd^2) for k=1..K-1 and fixes
// delta_0 = 0, matching the teacher's NormalProposal(sd) shape applied
// per coordinate.
func (u *Updater) logitStep(k int, rng *rand.Rand) []float64 {
	delta := make([]float64, k)
	for i := 1; i < k; i++ {
		delta[i] = rng.NormFloat64() * u.LogitSD
	}
	return delta
}

// Update proposes pi' = pi .* exp(delta) / sum, recomputes w' and ell'
// under it, and accepts with probability min(1, exp(deltaL +
// jacobian)). On accept it commits pi, w, llk in place and returns
// true.
func (u *Updater) Update(data *locus.Data, pi []float64, h [][]float64, w, llk []float64, rng *rand.Rand) bool {
	k := len(pi)
	delta := u.logitStep(k, rng)

	piProp := make([]float64, k)
	for i := range piProp {
		piProp[i] = pi[i] * math.Exp(delta[i])
	}
	if err := numutil.Normalise(piProp); err != nil {
		log.Debugf("proportion proposal rejected: %v", err)
		return false
	}

	n := len(w)
	wProp := make([]float64, n)
	llkProp := make([]float64, n)
	var deltaL float64
	for i := 0; i < n; i++ {
		var wi float64
		for kk := 0; kk < k; kk++ {
			wi += piProp[kk] * h[i][kk]
		}
		wProp[i] = wi
		llkProp[i] = numutil.BetaBinomLLKDefault(data.RefCount[i], data.AltCount[i], wi)
		deltaL += llkProp[i] - llk[i]
	}

	var jacobian float64
	for kk := 0; kk < k; kk++ {
		jacobian += math.Log(piProp[kk] / pi[kk])
	}

	logAccept := deltaL + jacobian
	if logAccept >= 0 || math.Log(rng.Float64()) < logAccept {
		copy(pi, piProp)
		copy(w, wProp)
		copy(llk, llkProp)
		return true
	}
	return false
}
