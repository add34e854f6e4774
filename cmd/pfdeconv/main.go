/*

Pfdeconv deconvolves a mixed Plasmodium falciparum infection into K
strain haplotypes and proportions, given reference/alt read counts, a
population allele-frequency prior, and (optionally) a reference
haplotype panel, via MCMC with a Li-Stephens copying-model HMM prior
over the panel.

The basic usage looks like this:

	pfdeconv --ref ref.tab --alt alt.tab --plaf plaf.tab --panel panel.tab --o out

Every flag, including the one-letter ones, is given with two dashes;
the single-dash spelling (-ref) is not accepted.

To run without a panel (each strain's allele at each locus is then
drawn from the PLAF prior weighted by the read-count likelihood):

	pfdeconv --ref ref.tab --alt alt.tab --plaf plaf.tab --noPanel --o out

To see all the options run:

	pfdeconv --help

*/
package main

import (
	"fmt"
	"math/rand"
	"os"
	"strings"
	"time"

	"github.com/op/go-logging"
	bolt "go.etcd.io/bbolt"
	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/mcveanlab/pfdeconv/checkpoint"
	"github.com/mcveanlab/pfdeconv/errs"
	"github.com/mcveanlab/pfdeconv/locus"
	"github.com/mcveanlab/pfdeconv/mcmc"
	"github.com/mcveanlab/pfdeconv/panel"
	"github.com/mcveanlab/pfdeconv/pfio"
)

var log = logging.MustGetLogger("pfdeconv")
var formatter = logging.MustStringFormatter(`%{message}`)

var version = "pfdeconv"

// command-line options
var (
	app = kingpin.New("pfdeconv", "deconvolve a mixed P. falciparum infection into K strains").Version(version)

	refFileName   = app.Flag("ref", "reference-count file").Required().ExistingFile()
	altFileName   = app.Flag("alt", "alt-count file").Required().ExistingFile()
	plafFileName  = app.Flag("plaf", "population allele-frequency file").Required().ExistingFile()
	panelFileName = app.Flag("panel", "reference haplotype panel file").ExistingFile()
	noPanel       = app.Flag("noPanel", "disable panel usage").Bool()

	outPrefix = app.Flag("o", "output prefix").Default("pf3k-pfDeconv").String()
	precision = app.Flag("p", "output decimal precision").Default("8").Int()
	k         = app.Flag("k", "number of strains K").Default("5").Int()
	seed      = app.Flag("seed", "random generator seed, default time based").Default("-1").Int64()
	nSample   = app.Flag("nSample", "number of kept MCMC samples").Default("1000").Int()
	rate      = app.Flag("rate", "thinning rate").Default("5").Int()
	burnin    = app.Flag("burnin", "override the default burn-in length (default: half of nSample*rate)").Default("-1").Int()

	checkpointPath = app.Flag("checkpoint", "periodically checkpoint chain state to this file (empty disables)").String()
	outLogF        = app.Flag("log", "write structured log to a file").String()
	logLevel       = app.Flag("loglevel", "set loglevel ('critical', 'error', 'warning', 'notice', 'info', 'debug')").
			Default("notice").
			Enum("critical", "error", "warning", "notice", "info", "debug")
)

func loadData() (*locus.Data, *panel.Panel, error) {
	refF, err := os.Open(*refFileName)
	if err != nil {
		return nil, nil, errs.New(errs.FileNameMissing, *refFileName, err)
	}
	defer refF.Close()
	ref, err := pfio.ReadCounts(refF)
	if err != nil {
		return nil, nil, err
	}

	altF, err := os.Open(*altFileName)
	if err != nil {
		return nil, nil, errs.New(errs.FileNameMissing, *altFileName, err)
	}
	defer altF.Close()
	alt, err := pfio.ReadCounts(altF)
	if err != nil {
		return nil, nil, err
	}

	plafF, err := os.Open(*plafFileName)
	if err != nil {
		return nil, nil, errs.New(errs.FileNameMissing, *plafFileName, err)
	}
	defer plafF.Close()
	plaf, err := pfio.ReadPlaf(plafF)
	if err != nil {
		return nil, nil, err
	}

	data, err := pfio.BuildData(ref, alt, plaf, *refFileName, *altFileName, *plafFileName)
	if err != nil {
		return nil, nil, err
	}

	if *noPanel {
		if *panelFileName != "" {
			return nil, nil, errs.New(errs.InvalidInput, "-panel/-noPanel", errPanelConflict)
		}
		return data, nil, nil
	}
	if *panelFileName == "" {
		return data, nil, nil
	}

	panelF, err := os.Open(*panelFileName)
	if err != nil {
		return nil, nil, errs.New(errs.FileNameMissing, *panelFileName, err)
	}
	defer panelF.Close()
	panelRows, err := pfio.ReadPanel(panelF)
	if err != nil {
		return nil, nil, err
	}
	panelData, err := pfio.BuildPanel(panelRows, data, *panelFileName)
	if err != nil {
		return nil, nil, err
	}
	p, err := panel.New(panelData, panel.DefaultBaseRate)
	if err != nil {
		return nil, nil, err
	}
	return data, p, nil
}

type pfdeconvErr string

func (e pfdeconvErr) Error() string { return string(e) }

const errPanelConflict = pfdeconvErr("-panel and -noPanel cannot both be given")

// parseArgs runs kingpin's flag parser and classifies any failure into
// an errs.Kind: kingpin reports both "no such flag" and "flag given
// without its value"-style failures as plain errors rather than a
// typed hierarchy, so the classification is done by pattern-matching
// the message it produces (spec.md §7's UnknownArg/NotEnoughArg kinds).
func parseArgs(args []string) error {
	if _, err := app.Parse(args); err != nil {
		return errs.New(classifyParseErr(err), "", err)
	}
	return nil
}

func classifyParseErr(err error) errs.Kind {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "unknown"):
		return errs.UnknownArg
	case strings.Contains(msg, "required") || strings.Contains(msg, "expected") || strings.Contains(msg, "must be"):
		return errs.NotEnoughArg
	default:
		return errs.UnknownArg
	}
}

func run() error {
	data, p, err := loadData()
	if err != nil {
		return err
	}
	log.Infof("loaded %d loci over %d segment(s)", data.NLoci(), data.NSegments())
	if p != nil {
		log.Infof("loaded panel with %d reference haplotypes", p.NPanel())
	} else {
		log.Info("running without a reference panel")
	}

	engine := mcmc.NewEngine(data, p, *k, *nSample, *rate, *burnin, *seed)

	if *checkpointPath != "" {
		db, err := bolt.Open(*checkpointPath, 0600, nil)
		if err != nil {
			return errs.New(errs.InvalidInput, *checkpointPath, err)
		}
		defer db.Close()
		engine.Checkpoint = checkpoint.NewStore(db, []byte("chain"), 30)
	}

	startTime := time.Now()
	trace := engine.Run()
	wallTime := time.Since(startTime)
	log.Noticef("running time: %v", wallTime)

	return pfio.WriteOutputs(*outPrefix, data, trace.TotalLlk, trace.Pi, trace.FinalHap, *precision, pfio.RunMeta{
		Seed:      *seed,
		K:         *k,
		NSample:   *nSample,
		Rate:      *rate,
		Underflow: trace.Underflow,
		WallTime:  wallTime,
	})
}

func main() {
	if err := parseArgs(os.Args[1:]); err != nil {
		if e, ok := err.(*errs.Error); ok {
			fmt.Fprintln(os.Stderr, e)
			os.Exit(int(e.Kind) + 1)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logging.SetFormatter(formatter)

	var backend *logging.LogBackend
	if *outLogF != "" {
		f, err := os.OpenFile(*outLogF, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0666)
		if err != nil {
			fmt.Fprintln(os.Stderr, "error creating log file:", err)
			os.Exit(1)
		}
		defer f.Close()
		backend = logging.NewLogBackend(f, "", 0)
	} else {
		backend = logging.NewLogBackend(os.Stderr, "", 0)
	}
	logging.SetBackend(backend)

	level, err := logging.LogLevel(*logLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logging.SetLevel(level, "pfdeconv")
	logging.SetLevel(level, "mcmc")
	logging.SetLevel(level, "hmm")
	logging.SetLevel(level, "panel")
	logging.SetLevel(level, "prop")
	logging.SetLevel(level, "checkpoint")

	log.Info("command line:", os.Args)

	if *seed == -1 {
		*seed = time.Now().UnixNano()
		log.Debug("random seed from time")
	}
	log.Infof("random seed=%v", *seed)
	rand.Seed(*seed)

	if err := run(); err != nil {
		if e, ok := err.(*errs.Error); ok {
			log.Errorf("%v", e)
			os.Exit(int(e.Kind) + 1)
		}
		log.Error(err)
		os.Exit(1)
	}
}
