package pfio

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/mcveanlab/pfdeconv/locus"
)

// RunMeta is the metadata written to PREFIX.log.
type RunMeta struct {
	Seed      int64
	K         int
	NSample   int
	Rate      int
	Underflow int
	WallTime  time.Duration
}

// WriteOutputs writes PREFIX.llk, PREFIX.hap, PREFIX.prop, and
// PREFIX.log, first removing any pre-existing files with those names
// (spec.md §6). The .llk and .prop values are formatted to precision
// decimal places; the binary .hap entries are written with none.
func WriteOutputs(prefix string, data *locus.Data, llk []float64, pi [][]float64, hap [][]float64, precision int, meta RunMeta) error {
	if err := writeLlk(prefix+".llk", llk, precision); err != nil {
		return err
	}
	if err := writeHap(prefix+".hap", data, hap); err != nil {
		return err
	}
	if err := writeProp(prefix+".prop", pi, precision); err != nil {
		return err
	}
	if err := writeLog(prefix+".log", meta); err != nil {
		return err
	}
	return nil
}

func writeLlk(path string, llk []float64, precision int) error {
	if err := removeIfExists(path); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	defer w.Flush()
	for _, l := range llk {
		fmt.Fprintln(w, strconv.FormatFloat(l, 'f', precision, 64))
	}
	return nil
}

// writeHap writes the per-locus haplotype calls. Entries are binary
// (spec.md §6 .hap format), so they are always written with 0 decimal
// places regardless of the run's output precision.
func writeHap(path string, data *locus.Data, hap [][]float64) error {
	if err := removeIfExists(path); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	defer w.Flush()

	fmt.Fprint(w, "CHROM\tPOS")
	if len(hap) > 0 {
		for k := range hap[0] {
			fmt.Fprintf(w, "\th%d", k+1)
		}
	}
	fmt.Fprintln(w)

	for i, row := range hap {
		chrom, pos := "", 0
		if i < len(data.Chrom) {
			chrom = data.Chrom[i]
		}
		if i < len(data.Pos) {
			pos = data.Pos[i]
		}
		fmt.Fprintf(w, "%s\t%d", chrom, pos)
		for _, bit := range row {
			fmt.Fprintf(w, "\t%s", strconv.FormatFloat(bit, 'f', 0, 64))
		}
		fmt.Fprintln(w)
	}
	return nil
}

func writeProp(path string, pi [][]float64, precision int) error {
	if err := removeIfExists(path); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	defer w.Flush()
	for _, sample := range pi {
		for k, v := range sample {
			if k != 0 {
				fmt.Fprint(w, " ")
			}
			fmt.Fprint(w, strconv.FormatFloat(v, 'f', precision, 64))
		}
		fmt.Fprintln(w)
	}
	return nil
}

func writeLog(path string, meta RunMeta) error {
	if err := removeIfExists(path); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	defer w.Flush()
	fmt.Fprintf(w, "seed\t%d\n", meta.Seed)
	fmt.Fprintf(w, "k\t%d\n", meta.K)
	fmt.Fprintf(w, "nSample\t%d\n", meta.NSample)
	fmt.Fprintf(w, "rate\t%d\n", meta.Rate)
	fmt.Fprintf(w, "underflow\t%d\n", meta.Underflow)
	fmt.Fprintf(w, "wallTime\t%s\n", meta.WallTime)
	return nil
}
