package mcmc

import (
	"math/rand"

	"github.com/op/go-logging"

	"github.com/mcveanlab/pfdeconv/checkpoint"
	"github.com/mcveanlab/pfdeconv/hmm"
	"github.com/mcveanlab/pfdeconv/locus"
	"github.com/mcveanlab/pfdeconv/panel"
	"github.com/mcveanlab/pfdeconv/prop"
)

var log = logging.MustGetLogger("mcmc")

// updateKind names the three update kinds the engine rotates through,
// in fixed order, one per iteration.
type updateKind int

const (
	proportionUpdate updateKind = iota
	singleHapUpdate
	pairHapUpdate
	nUpdateKinds
)

// Trace accumulates the kept samples of a run: one proportion vector
// and total log-likelihood per kept iteration, plus the final
// haplotype matrix.
type Trace struct {
	Pi        [][]float64
	TotalLlk  []float64
	FinalHap  [][]float64
	Underflow int
}

// Engine drives the chain: initialisation, per-iteration update
// rotation, thinning, trace recording, and optional checkpointing.
// It is the sole mutator of State for the lifetime of a run.
type Engine struct {
	Data  *locus.Data
	Panel *panel.Panel // nil disables panel-copying (spec.md §6 -noPanel)
	State *State

	K         int
	NSample   int // number of kept samples
	Rate      int // thinning rate
	BurnIn    int // iterations discarded before sampling starts
	Seed      int64
	AccPeriod int // iterations between acceptance-rate log lines

	single *hmm.SingleUpdater
	pair   *hmm.PairUpdater
	propU  *prop.Updater

	Checkpoint *checkpoint.Store

	rng *rand.Rand
}

// DefaultBurnIn returns half of nSample*rate, the number of iterations
// that collect the kept samples. The burn-in runs before those
// iterations (see totalIterations), so the default chain is 1.5 *
// nSample*rate iterations long (see DESIGN.md).
func DefaultBurnIn(nSample, rate int) int {
	return (nSample * rate) / 2
}

// NewEngine builds an Engine with default sub-updaters and, if burnIn
// is negative, the default burn-in length.
func NewEngine(data *locus.Data, p *panel.Panel, k, nSample, rate, burnIn int, seed int64) *Engine {
	if burnIn < 0 {
		burnIn = DefaultBurnIn(nSample, rate)
	}
	rng := rand.New(rand.NewSource(seed))
	return &Engine{
		Data:      data,
		Panel:     p,
		State:     NewState(data, k, rng),
		K:         k,
		NSample:   nSample,
		Rate:      rate,
		BurnIn:    burnIn,
		Seed:      seed,
		AccPeriod: 100,
		single:    hmm.NewSingleUpdater(),
		pair:      hmm.NewPairUpdater(),
		propU:     prop.NewUpdater(),
		rng:       rng,
	}
}

// totalIterations returns the total number of iterations the chain
// runs: burn-in plus the iterations needed to collect NSample kept
// samples at Rate thinning.
func (e *Engine) totalIterations() int {
	return e.BurnIn + e.NSample*e.Rate
}

// Run advances the chain to completion and returns its trace. It logs
// a header line and a periodic acceptance-rate summary, in the style
// of the teacher's MH.Run.
func (e *Engine) Run() *Trace {
	total := e.totalIterations()
	log.Infof("starting chain: K=%d iterations=%d (burnin=%d, nSample=%d, rate=%d)",
		e.K, total, e.BurnIn, e.NSample, e.Rate)

	trace := &Trace{
		Pi:       make([][]float64, 0, e.NSample),
		TotalLlk: make([]float64, 0, e.NSample),
	}

	accepted := 0
	attempted := 0
	for t := 0; t < total; t++ {
		kind := updateKind(t % int(nUpdateKinds))
		switch kind {
		case proportionUpdate:
			attempted++
			if e.propU.Update(e.Data, e.State.Pi, e.State.H, e.State.W, e.State.Llk, e.rng) {
				accepted++
			}
		case singleHapUpdate:
			trace.Underflow += e.single.Update(e.Data, e.Panel, e.State.Pi, e.State.H, e.State.W, e.State.Llk, e.rng)
		case pairHapUpdate:
			trace.Underflow += e.pair.Update(e.Data, e.Panel, e.State.Pi, e.State.H, e.State.W, e.State.Llk, e.rng)
		}

		if attempted > 0 && t%e.AccPeriod == 0 {
			log.Infof("iteration %d: proportion acceptance rate %.2f%%", t, 100*float64(accepted)/float64(attempted))
			accepted, attempted = 0, 0
		}

		if t >= e.BurnIn && (t-e.BurnIn)%e.Rate == 0 {
			pi := make([]float64, len(e.State.Pi))
			copy(pi, e.State.Pi)
			trace.Pi = append(trace.Pi, pi)
			trace.TotalLlk = append(trace.TotalLlk, e.State.TotalLlk())
		}

		e.maybeCheckpoint(t, trace.Underflow)
	}

	trace.FinalHap = e.State.H
	if e.Checkpoint != nil {
		e.Checkpoint.Save(&checkpoint.Data{
			Iteration: total, Seed: e.Seed, Pi: e.State.Pi, Underflow: trace.Underflow, Final: true,
		})
	}
	return trace
}

// maybeCheckpoint saves chain state through Checkpoint if one is
// configured and the throttle window has elapsed.
func (e *Engine) maybeCheckpoint(iteration, underflow int) {
	if e.Checkpoint == nil || !e.Checkpoint.Old() {
		return
	}
	e.Checkpoint.Save(&checkpoint.Data{
		Iteration: iteration, Seed: e.Seed, Pi: e.State.Pi, Underflow: underflow,
	})
}
