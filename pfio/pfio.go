// Package pfio reads the tab-delimited count/PLAF/panel input tables
// and writes the .llk/.hap/.prop/.log output files (SPEC_FULL.md §6),
// following the bufio.Scanner-over-io.Reader idiom the teacher uses
// for its own table formats (e.g. codon.ReadFrequency).
package pfio

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/mcveanlab/pfdeconv/errs"
	"github.com/mcveanlab/pfdeconv/locus"
)

// CountRow is one row of a reference- or alt-count file.
type CountRow struct {
	Chrom string
	Pos   int
	Count float64
}

// ReadCounts parses a tab-delimited CHROM POS COUNT table, skipping
// its header line.
func ReadCounts(rd io.Reader) ([]CountRow, error) {
	lines, err := scanRows(rd, 3)
	if err != nil {
		return nil, errs.New(errs.InvalidInput, "", err)
	}
	rows := make([]CountRow, len(lines))
	for i, fields := range lines {
		pos, err := strconv.Atoi(fields[1])
		if err != nil {
			return nil, errs.New(errs.InvalidInput, "", err)
		}
		count, err := strconv.ParseFloat(fields[2], 64)
		if err != nil {
			return nil, errs.New(errs.InvalidInput, "", err)
		}
		rows[i] = CountRow{Chrom: fields[0], Pos: pos, Count: count}
	}
	return rows, nil
}

// PlafRow is one row of the PLAF file.
type PlafRow struct {
	Chrom string
	Pos   int
	Plaf  float64
}

// ReadPlaf parses a tab-delimited CHROM POS PLAF table, skipping its
// header line. PLAF values outside [0,1] are an InvalidInput error.
func ReadPlaf(rd io.Reader) ([]PlafRow, error) {
	lines, err := scanRows(rd, 3)
	if err != nil {
		return nil, errs.New(errs.InvalidInput, "", err)
	}
	rows := make([]PlafRow, len(lines))
	for i, fields := range lines {
		pos, err := strconv.Atoi(fields[1])
		if err != nil {
			return nil, errs.New(errs.InvalidInput, "", err)
		}
		plaf, err := strconv.ParseFloat(fields[2], 64)
		if err != nil {
			return nil, errs.New(errs.InvalidInput, "", err)
		}
		if plaf < 0 || plaf > 1 {
			return nil, errs.New(errs.InvalidInput, "", fmt.Errorf("PLAF %v outside [0,1] at %s:%d", plaf, fields[0], pos))
		}
		rows[i] = PlafRow{Chrom: fields[0], Pos: pos, Plaf: plaf}
	}
	return rows, nil
}

// PanelRow is one row of the panel file: CHROM POS, then one 0/1
// column per reference haplotype.
type PanelRow struct {
	Chrom string
	Pos   int
	Hap   []int
}

// ReadPanel parses a tab-delimited CHROM POS h0 h1 ... h{H-1} table,
// skipping its header line. Every haplotype column must be 0 or 1, and
// every row must carry the same number of haplotype columns.
func ReadPanel(rd io.Reader) ([]PanelRow, error) {
	lines, err := scanRows(rd, 3)
	if err != nil {
		return nil, errs.New(errs.InvalidInput, "", err)
	}
	var rows []PanelRow
	nHap := -1
	for _, fields := range lines {
		pos, err := strconv.Atoi(fields[1])
		if err != nil {
			return nil, errs.New(errs.InvalidInput, "", err)
		}
		hapFields := fields[2:]
		if nHap == -1 {
			nHap = len(hapFields)
		} else if len(hapFields) != nHap {
			return nil, errs.New(errs.InvalidInput, "", errRaggedPanelFile)
		}
		hap := make([]int, nHap)
		for i, f := range hapFields {
			v, err := strconv.Atoi(f)
			if err != nil || (v != 0 && v != 1) {
				return nil, errs.New(errs.InvalidInput, "", errNonBinaryPanelFile)
			}
			hap[i] = v
		}
		rows = append(rows, PanelRow{Chrom: fields[0], Pos: pos, Hap: hap})
	}
	return rows, nil
}

// scanRows reads the header line and returns every subsequent
// non-blank line split on tabs, requiring at least minFields columns.
func scanRows(rd io.Reader, minFields int) ([][]string, error) {
	scanner := bufio.NewScanner(rd)
	if !scanner.Scan() {
		return nil, errEmptyFile
	}
	var rows [][]string
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) < minFields {
			return nil, errTooFewColumns
		}
		rows = append(rows, fields)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return rows, nil
}

// BuildData assembles locus.Data from parallel ref/alt/plaf tables.
// Loci order must match across all three (spec.md §6); mismatched
// chromosome or position at any row is an InvalidInput error naming
// refName/altName/plafName (spec.md §7/§8 scenario 5), so the message
// identifies which input files disagree.
func BuildData(ref, alt []CountRow, plaf []PlafRow, refName, altName, plafName string) (*locus.Data, error) {
	n := len(ref)
	if len(alt) != n || len(plaf) != n {
		arg := fmt.Sprintf("%s (%d loci) vs %s (%d loci) vs %s (%d loci)", refName, n, altName, len(alt), plafName, len(plaf))
		return nil, errs.New(errs.InvalidInput, arg, errLociMismatch)
	}
	data := &locus.Data{
		Chrom:         make([]string, n),
		Pos:           make([]int, n),
		RefCount:      make([]float64, n),
		AltCount:      make([]float64, n),
		Plaf:          make([]float64, n),
		SegmentStarts: []int{0},
	}
	for i := 0; i < n; i++ {
		if ref[i].Chrom != alt[i].Chrom || ref[i].Pos != alt[i].Pos ||
			ref[i].Chrom != plaf[i].Chrom || ref[i].Pos != plaf[i].Pos {
			arg := fmt.Sprintf("row %d: %s=%s:%d %s=%s:%d %s=%s:%d",
				i, refName, ref[i].Chrom, ref[i].Pos, altName, alt[i].Chrom, alt[i].Pos, plafName, plaf[i].Chrom, plaf[i].Pos)
			return nil, errs.New(errs.InvalidInput, arg, errLociMismatch)
		}
		data.Chrom[i] = ref[i].Chrom
		data.Pos[i] = ref[i].Pos
		data.RefCount[i] = ref[i].Count
		data.AltCount[i] = alt[i].Count
		data.Plaf[i] = plaf[i].Plaf
		if i > 0 && data.Chrom[i] != data.Chrom[i-1] {
			data.SegmentStarts = append(data.SegmentStarts, i)
		}
	}
	return data, data.Validate()
}

// BuildPanel assembles a [][]int panel matrix from panel rows, lining
// each row up against data by (Chrom, Pos). panelName names the panel
// file in any mismatch error (spec.md §7).
func BuildPanel(rows []PanelRow, data *locus.Data, panelName string) ([][]int, error) {
	if len(rows) != data.NLoci() {
		arg := fmt.Sprintf("%s (%d loci) vs data (%d loci)", panelName, len(rows), data.NLoci())
		return nil, errs.New(errs.InvalidInput, arg, errLociMismatch)
	}
	out := make([][]int, len(rows))
	for i, r := range rows {
		if r.Chrom != data.Chrom[i] || r.Pos != data.Pos[i] {
			arg := fmt.Sprintf("row %d: %s=%s:%d data=%s:%d", i, panelName, r.Chrom, r.Pos, data.Chrom[i], data.Pos[i])
			return nil, errs.New(errs.InvalidInput, arg, errLociMismatch)
		}
		out[i] = r.Hap
	}
	return out, nil
}

// removeIfExists deletes path if present, matching spec.md §6's
// "pre-existing output files are removed before writing".
func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

type pfioErr string

func (e pfioErr) Error() string { return string(e) }

const (
	errEmptyFile          = pfioErr("input file has no header line")
	errTooFewColumns      = pfioErr("row has fewer columns than expected")
	errRaggedPanelFile    = pfioErr("panel rows must all have the same number of haplotype columns")
	errNonBinaryPanelFile = pfioErr("panel haplotype entries must be 0 or 1")
	errLociMismatch       = pfioErr("loci do not line up across input files")
)
