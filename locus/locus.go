// Package locus holds the immutable per-locus inputs shared read-only
// by every updater in a chain: reference/alternative read counts, the
// population-level allele-frequency prior, and the partition of the
// contiguous locus index into independent chromosome segments.
package locus

import (
	"github.com/mcveanlab/pfdeconv/errs"
)

// Data is the "Data context" component of the model: immutable after
// load, shared by reference (never copied) with every HMM pass and
// the proportion updater.
type Data struct {
	// Chrom and Pos are carried through purely for round-tripping into
	// output files; they play no role in the numerical model.
	Chrom []string
	Pos   []int

	RefCount []float64
	AltCount []float64
	Plaf     []float64

	// SegmentStarts is a strictly increasing sequence of locus indices,
	// the first always 0. Segment s spans [SegmentStarts[s],
	// SegmentStarts[s+1]) (or [SegmentStarts[s], L) for the last one).
	SegmentStarts []int
}

// NLoci returns L.
func (d *Data) NLoci() int { return len(d.RefCount) }

// NSegments returns the number of chromosome segments.
func (d *Data) NSegments() int { return len(d.SegmentStarts) }

// SegmentBounds returns the [start, end) locus range of segment s.
func (d *Data) SegmentBounds(s int) (start, end int) {
	start = d.SegmentStarts[s]
	if s+1 < len(d.SegmentStarts) {
		end = d.SegmentStarts[s+1]
	} else {
		end = d.NLoci()
	}
	return
}

// Validate checks the invariants the updaters rely on:
// RefCount/AltCount/Plaf all the same length, Plaf in [0,1], and
// SegmentStarts strictly increasing starting at 0.
func (d *Data) Validate() error {
	l := d.NLoci()
	if len(d.AltCount) != l || len(d.Plaf) != l {
		return errs.New(errs.InvalidInput, "", errLengthMismatch)
	}
	if len(d.Chrom) != 0 && len(d.Chrom) != l {
		return errs.New(errs.InvalidInput, "", errLengthMismatch)
	}
	for i, p := range d.Plaf {
		if p < 0 || p > 1 {
			return errs.New(errs.InvalidInput, "", errPlafRange)
		}
		if d.RefCount[i] < 0 || d.AltCount[i] < 0 {
			return errs.New(errs.InvalidInput, "", errNegativeCount)
		}
	}
	if len(d.SegmentStarts) == 0 || d.SegmentStarts[0] != 0 {
		return errs.New(errs.InvalidInput, "", errSegmentStarts)
	}
	for s := 1; s < len(d.SegmentStarts); s++ {
		if d.SegmentStarts[s] <= d.SegmentStarts[s-1] {
			return errs.New(errs.InvalidInput, "", errSegmentStarts)
		}
	}
	if d.SegmentStarts[len(d.SegmentStarts)-1] >= l {
		return errs.New(errs.InvalidInput, "", errSegmentStarts)
	}
	return nil
}

type locusErr string

func (e locusErr) Error() string { return string(e) }

const (
	errLengthMismatch locusErr = "ref/alt/plaf counts must be the same length"
	errPlafRange      locusErr = "PLAF must be within [0,1]"
	errNegativeCount  locusErr = "read counts must be non-negative"
	errSegmentStarts  locusErr = "segment starts must be strictly increasing and start at 0"
)
