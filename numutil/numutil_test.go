package numutil

import (
	"math"
	"testing"
)

func TestSumVec(t *testing.T) {
	if s := SumVec([]float64{1, 2, 3.5}); s != 6.5 {
		t.Errorf("SumVec = %v, want 6.5", s)
	}
}

func TestNormaliseLaw(t *testing.T) {
	v := []float64{1, 2, 3, 4}
	if err := Normalise(v); err != nil {
		t.Fatal(err)
	}
	cdf := CDF(v)
	last := cdf[len(cdf)-1]
	if math.Abs(last-1.0) > 1e-12 {
		t.Errorf("cdf(normalise(v)).back() = %v, want 1.0", last)
	}
}

func TestNormaliseZeroSum(t *testing.T) {
	v := []float64{0, 0, 0}
	if err := Normalise(v); err == nil {
		t.Error("expected error for zero-sum vector")
	}
}

func TestSampleIndexByCDF(t *testing.T) {
	cdf := []float64{1, 3, 6, 10}
	cases := []struct {
		u    float64
		want int
	}{
		{0.5, 0},
		{1, 0},
		{1.5, 1},
		{6, 2},
		{6.5, 3},
		{9.999, 3},
	}
	for _, c := range cases {
		if got := SampleIndexByCDF(cdf, c.u); got != c.want {
			t.Errorf("SampleIndexByCDF(%v, %v) = %v, want %v", cdf, c.u, got, c.want)
		}
	}
}

func TestLogBetaSymmetric(t *testing.T) {
	for _, p := range [][2]float64{{2, 3}, {0.5, 10}, {7, 7}} {
		a := LogBeta(p[0], p[1])
		b := LogBeta(p[1], p[0])
		if math.Abs(a-b) > 1e-9 {
			t.Errorf("log_beta(%v,%v)=%v != log_beta(%v,%v)=%v", p[0], p[1], a, p[1], p[0], b)
		}
	}
}

func TestBetaBinomLLKPeaksAtTrueFreq(t *testing.T) {
	ref, alt := 30.0, 70.0
	wTrue := alt / (ref + alt)
	peak := BetaBinomLLK(ref, alt, wTrue, 0, DefaultFac)
	at0 := BetaBinomLLK(ref, alt, 0, 0, DefaultFac)
	at1 := BetaBinomLLK(ref, alt, 1, 0, DefaultFac)
	if peak <= at0 || peak <= at1 {
		t.Errorf("llk at true freq (%v) should exceed llk at 0 (%v) and 1 (%v)", peak, at0, at1)
	}
}

func TestBetaBinomLLKAllZeroCounts(t *testing.T) {
	// With ref=alt=0, the Beta-Binomial likelihood has no data to
	// update the prior and degenerates to log(1)=0 regardless of w.
	l := BetaBinomLLKDefault(0, 0, 0.3)
	if math.Abs(l) > 1e-9 {
		t.Errorf("llk with zero counts = %v, want 0", l)
	}
}
