// Package panel holds the in-memory reference haplotype panel and the
// per-locus Li-Stephens copying transition weights derived from it.
package panel

import (
	"github.com/op/go-logging"
	"gonum.org/v1/gonum/mat"

	"github.com/mcveanlab/pfdeconv/errs"
)

var log = logging.MustGetLogger("panel")

// DefaultBaseRate is the constant recombination rate used when the
// caller supplies neither per-locus physical distances nor an
// explicit rate.
const DefaultBaseRate = 1e-2

// Panel is a 0/1 matrix of H reference haplotypes over L loci, plus
// the recombination-rate inputs needed to compute copying-transition
// weights. It is built once and never mutated for the lifetime of a
// chain.
type Panel struct {
	data     *mat.Dense // L x H, entries in {0,1}
	nLoci    int
	nHap     int
	baseRate float64
	// dist[i] is the physical distance between locus i and i-1
	// (dist[0] is unused). Nil means "no distance data": transition
	// weights fall back to the constant baseRate.
	dist []float64
}

// New builds a Panel from a dense L x H matrix of 0/1 entries. Entries
// outside {0,1} make it an InvalidInput error.
func New(data [][]int, baseRate float64) (*Panel, error) {
	nLoci := len(data)
	if nLoci == 0 {
		return nil, errs.New(errs.InvalidInput, "", errEmptyPanel)
	}
	nHap := len(data[0])
	if nHap == 0 {
		return nil, errs.New(errs.InvalidInput, "", errEmptyPanel)
	}
	dense := mat.NewDense(nLoci, nHap, nil)
	for i, row := range data {
		if len(row) != nHap {
			return nil, errs.New(errs.InvalidInput, "", errRaggedPanel)
		}
		for h, v := range row {
			if v != 0 && v != 1 {
				return nil, errs.New(errs.InvalidInput, "", errNonBinaryPanel)
			}
			dense.Set(i, h, float64(v))
		}
	}
	if baseRate <= 0 {
		baseRate = DefaultBaseRate
	}
	log.Debugf("loaded panel: %d loci x %d haplotypes", nLoci, nHap)
	return &Panel{data: dense, nLoci: nLoci, nHap: nHap, baseRate: baseRate}, nil
}

// SetDistances attaches per-locus physical distances to the previous
// locus, used to scale the base recombination rate. len(dist) must
// equal NLoci(); dist[0] is ignored.
func (p *Panel) SetDistances(dist []float64) error {
	if len(dist) != p.nLoci {
		return errs.New(errs.InvalidInput, "", errDistanceLength)
	}
	p.dist = dist
	return nil
}

// NLoci returns L.
func (p *Panel) NLoci() int { return p.nLoci }

// NPanel returns H, the number of reference haplotypes.
func (p *Panel) NPanel() int { return p.nHap }

// At returns the panel allele (0 or 1) at locus i for haplotype h.
func (p *Panel) At(i, h int) int {
	return int(p.data.At(i, h))
}

// TransitionRate returns rho_i, the recombination probability between
// locus i-1 and locus i. i must be >= 1.
func (p *Panel) TransitionRate(i int) float64 {
	rate := p.baseRate
	if p.dist != nil && i > 0 && i < len(p.dist) {
		rate = p.baseRate * p.dist[i]
	}
	if rate > 1 {
		rate = 1
	}
	return rate
}

// StaySwitch returns the "stay on the same panel haplotype" and
// "switch to a specific other panel haplotype" probabilities implied
// by rho_i over H panel haplotypes: stay = (1-rho)+rho/H, each switch
// = rho/H.
func (p *Panel) StaySwitch(i int) (stay, switchEach float64) {
	rho := p.TransitionRate(i)
	h := float64(p.nHap)
	switchEach = rho / h
	stay = (1 - rho) + switchEach
	return
}

var (
	errEmptyPanel     = panelErr("panel must have at least one locus and one haplotype")
	errRaggedPanel    = panelErr("panel rows must all have the same number of haplotypes")
	errNonBinaryPanel = panelErr("panel entries must be 0 or 1")
	errDistanceLength = panelErr("distance slice length must equal the number of loci")
)

type panelErr string

func (e panelErr) Error() string { return string(e) }
