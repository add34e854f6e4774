// Package numutil provides the small set of pure numeric routines the
// MCMC engine and its HMM updaters build on: vector/matrix sums,
// in-place normalisation, CDF construction and sampling, and the
// Beta-Binomial log-likelihood used to score a candidate WSAF against
// observed read counts.
package numutil

import (
	"errors"
	"math"

	"github.com/mcveanlab/pfdeconv/errs"
)

var errNonPositiveSum = errors.New("sum must be > 0")

// SumVec returns the ordinary sum of v.
func SumVec(v []float64) float64 {
	var s float64
	for _, x := range v {
		s += x
	}
	return s
}

// SumMat returns the ordinary sum of every entry of m.
func SumMat(m [][]float64) float64 {
	var s float64
	for _, row := range m {
		s += SumVec(row)
	}
	return s
}

// Normalise divides every entry of v in place by SumVec(v). It returns
// an InvalidInput error without modifying v if the sum is not
// strictly positive.
func Normalise(v []float64) error {
	s := SumVec(v)
	if s <= 0 {
		return errs.New(errs.InvalidInput, "", errNonPositiveSum)
	}
	for i := range v {
		v[i] /= s
	}
	return nil
}

// NormaliseMat divides every entry of m in place by SumMat(m).
func NormaliseMat(m [][]float64) error {
	s := SumMat(m)
	if s <= 0 {
		return errs.New(errs.InvalidInput, "", errNonPositiveSum)
	}
	for _, row := range m {
		for i := range row {
			row[i] /= s
		}
	}
	return nil
}

// CDF returns the prefix-sum sequence of dist. The last entry equals
// SumVec(dist); it is not required to be 1.
func CDF(dist []float64) []float64 {
	cdf := make([]float64, len(dist))
	var cum float64
	for i, x := range dist {
		cum += x
		cdf[i] = cum
	}
	return cdf
}

// SampleIndexByCDF returns the lowest i with cdf[i] >= u. u is assumed
// to be drawn uniformly from [0, cdf[len(cdf)-1]).
func SampleIndexByCDF(cdf []float64, u float64) int {
	for i, c := range cdf {
		if c >= u {
			return i
		}
	}
	return len(cdf) - 1
}

// LogBeta returns lgamma(x) + lgamma(y) - lgamma(x+y).
func LogBeta(x, y float64) float64 {
	lx, _ := math.Lgamma(x)
	ly, _ := math.Lgamma(y)
	lxy, _ := math.Lgamma(x + y)
	return lx + ly - lxy
}

// Default overdispersion parameters for BetaBinomLLK, matching the
// original Li-Stephens-model reference implementation.
const (
	DefaultErr = 0.01
	DefaultFac = 100.0
)

// BetaBinomLLK returns the Beta-Binomial log-likelihood of observing
// (ref, alt) reads given an underlying within-sample allele frequency
// w, with sequencing-error rate err and overdispersion fac.
func BetaBinomLLK(ref, alt, w, err, fac float64) float64 {
	adjW := w + err*(1-2*w)
	return LogBeta(alt+adjW*fac, ref+(1-adjW)*fac) - LogBeta(adjW*fac, (1-adjW)*fac)
}

// BetaBinomLLKDefault calls BetaBinomLLK with DefaultErr and DefaultFac.
func BetaBinomLLKDefault(ref, alt, w float64) float64 {
	return BetaBinomLLK(ref, alt, w, DefaultErr, DefaultFac)
}
