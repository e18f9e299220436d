// Package simulation estimates per-ticket-count selection odds by running
// many independent lottery draws and counting where each weight class lands.
package simulation

import (
	"context"
	"runtime"
	"sort"
	"sync/atomic"

	"github.com/ArowuTest/lottery-odds/internal/models"
	"github.com/ArowuTest/lottery-odds/internal/rng"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// ProgressInterval is how many completed trials pass between progress
// notifications.
const ProgressInterval = 1000

const (
	DefaultIterations    = 10000
	DefaultMainSpots     = 125
	DefaultWaitlistSpots = 125
)

// Params configures one simulation run.
type Params struct {
	Iterations    int
	MainSpots     int
	WaitlistSpots int
	// Workers is the number of goroutines running trials. Zero means
	// runtime.NumCPU().
	Workers int
	// Seed makes a run reproducible. A nil Seed is replaced by one read from
	// crypto/rand and echoed in the Result.
	Seed *uint64
}

// DefaultParams returns the parameters of the reference lottery: 10,000
// trials, 125 main spots and 125 waitlist spots.
func DefaultParams() Params {
	return Params{
		Iterations:    DefaultIterations,
		MainSpots:     DefaultMainSpots,
		WaitlistSpots: DefaultWaitlistSpots,
	}
}

// Validate reports bad parameters wrapped around models.ErrInvalidParameter.
func (p Params) Validate() error {
	switch {
	case p.Iterations < 1:
		return errors.Wrapf(models.ErrInvalidParameter, "iterations must be at least 1, got %d", p.Iterations)
	case p.MainSpots < 0:
		return errors.Wrapf(models.ErrInvalidParameter, "main spots must not be negative, got %d", p.MainSpots)
	case p.WaitlistSpots < 0:
		return errors.Wrapf(models.ErrInvalidParameter, "waitlist spots must not be negative, got %d", p.WaitlistSpots)
	case p.Workers < 0:
		return errors.Wrapf(models.ErrInvalidParameter, "workers must not be negative, got %d", p.Workers)
	}
	return nil
}

// ProgressFunc is told how many of total trials have completed. Calls come
// from a single goroutine with increasing completed counts.
type ProgressFunc func(completed, total int)

// Simulate runs p.Iterations independent draws over pool and returns the
// per-weight-class counts.
//
// Trial i always draws from the random stream derived from (seed, i), so the
// result depends on pool, parameters and seed only, not on Workers.
//
// If ctx is cancelled between trials Simulate stops early and returns the
// counts of the trials that did complete together with the context error.
func Simulate(ctx context.Context, pool []models.Entrant, p Params, progress ProgressFunc) (*Result, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	var seed uint64
	if p.Seed != nil {
		seed = *p.Seed
	} else {
		s, err := rng.RandomSeed()
		if err != nil {
			return nil, err
		}
		seed = s
	}

	workers := p.Workers
	if workers == 0 {
		workers = runtime.NumCPU()
	}
	if workers > p.Iterations {
		workers = p.Iterations
	}

	res := newResult(pool, p, seed, workers)

	classOf := make([]int, len(pool))
	for i, e := range pool {
		classOf[i] = res.index[e.Tickets]
	}
	nClasses := len(res.order)

	engines := make([]*rng.Engine, workers)
	for w := range engines {
		engine, err := rng.NewEngine(pool)
		if err != nil {
			return nil, err
		}
		engines[w] = engine
	}

	// Two counters per class: main at 2c, waitlist at 2c+1.
	partials := make([][]int64, workers)
	var next, completed atomic.Int64
	var ticks chan int
	if progress != nil {
		ticks = make(chan int, workers)
	}

	g := new(errgroup.Group)
	for w := 0; w < workers; w++ {
		counts := make([]int64, 2*nClasses)
		partials[w] = counts
		engine := engines[w]
		g.Go(func() error {
			stream := rng.NewStream(seed)
			tally := func(_, index int, isMain bool) {
				slot := 2 * classOf[index]
				if !isMain {
					slot++
				}
				counts[slot]++
			}
			for ctx.Err() == nil {
				trial := next.Add(1) - 1
				if trial >= int64(p.Iterations) {
					return nil
				}
				stream.Reseed(seed, uint64(trial))
				if err := engine.Each(p.MainSpots, p.WaitlistSpots, stream, tally); err != nil {
					return err
				}
				if n := completed.Add(1); ticks != nil && n%ProgressInterval == 0 {
					ticks <- int(n)
				}
			}
			return nil
		})
	}

	var runErr error
	if ticks != nil {
		go func() {
			runErr = g.Wait()
			close(ticks)
		}()
		last := 0
		for n := range ticks {
			if n > last {
				progress(n, p.Iterations)
				last = n
			}
		}
		if done := int(completed.Load()); done != last {
			progress(done, p.Iterations)
		}
	} else {
		runErr = g.Wait()
	}
	if runErr != nil {
		return nil, runErr
	}

	for _, counts := range partials {
		for c := 0; c < nClasses; c++ {
			res.order[c].MainSelections += counts[2*c]
			res.order[c].WaitlistSelections += counts[2*c+1]
		}
	}
	res.finalize(int(completed.Load()))

	if err := ctx.Err(); err != nil {
		return res, errors.Wrapf(err, "simulation interrupted after %d of %d trials", res.Trials, p.Iterations)
	}
	return res, nil
}

// Result is the outcome of a simulation: the parameters that produced it and
// one ClassStats per distinct ticket count in the pool.
type Result struct {
	Iterations    int
	MainSpots     int
	WaitlistSpots int
	Workers       int
	Seed          uint64
	// Trials is the number of completed trials; it is below Iterations only
	// when the run was interrupted.
	Trials  int
	Classes map[float64]*ClassStats

	order []*ClassStats
	index map[float64]int
}

func newResult(pool []models.Entrant, p Params, seed uint64, workers int) *Result {
	res := &Result{
		Iterations:    p.Iterations,
		MainSpots:     p.MainSpots,
		WaitlistSpots: p.WaitlistSpots,
		Workers:       workers,
		Seed:          seed,
		Classes:       make(map[float64]*ClassStats),
		index:         make(map[float64]int),
	}
	for _, e := range pool {
		cs, ok := res.Classes[e.Tickets]
		if !ok {
			cs = &ClassStats{Tickets: e.Tickets}
			res.Classes[e.Tickets] = cs
			res.index[e.Tickets] = len(res.order)
			res.order = append(res.order, cs)
		}
		cs.Entrants++
	}
	return res
}

func (r *Result) finalize(trials int) {
	r.Trials = trials
	for _, cs := range r.Classes {
		cs.Opportunities = int64(cs.Entrants) * int64(trials)
	}
}

// NewResult rebuilds a Result from stored class counters, e.g. an archived
// run. Opportunities are derived from trials.
func NewResult(iterations, trials, mainSpots, waitlistSpots, workers int, seed uint64, classes []ClassStats) *Result {
	res := &Result{
		Iterations:    iterations,
		MainSpots:     mainSpots,
		WaitlistSpots: waitlistSpots,
		Workers:       workers,
		Seed:          seed,
		Classes:       make(map[float64]*ClassStats, len(classes)),
		index:         make(map[float64]int, len(classes)),
	}
	for i := range classes {
		cs := classes[i]
		res.index[cs.Tickets] = len(res.order)
		res.Classes[cs.Tickets] = &cs
		res.order = append(res.order, &cs)
	}
	res.finalize(trials)
	return res
}

// Sorted returns a copy of the class statistics ordered by ticket count.
func (r *Result) Sorted() []ClassStats {
	out := make([]ClassStats, 0, len(r.Classes))
	for _, cs := range r.Classes {
		out = append(out, *cs)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Tickets < out[j].Tickets })
	return out
}

// ClassStats accumulates the selections of every entrant holding the same
// ticket count.
type ClassStats struct {
	Tickets            float64 `json:"tickets"`
	Entrants           int     `json:"entrants"`
	MainSelections     int64   `json:"main_selections"`
	WaitlistSelections int64   `json:"waitlist_selections"`
	// Opportunities is Entrants times completed trials: the number of
	// (entrant, trial) pairs the class had a chance in.
	Opportunities int64 `json:"opportunities"`
}

// MainProbability is the average chance an entrant of this class lands a
// main spot in one lottery.
func (c ClassStats) MainProbability() float64 {
	return ratio(c.MainSelections, c.Opportunities)
}

func (c ClassStats) WaitlistProbability() float64 {
	return ratio(c.WaitlistSelections, c.Opportunities)
}

// EitherProbability is the chance of a main or a waitlist spot.
func (c ClassStats) EitherProbability() float64 {
	return ratio(c.MainSelections+c.WaitlistSelections, c.Opportunities)
}

func ratio(n, d int64) float64 {
	if d == 0 {
		return 0
	}
	return float64(n) / float64(d)
}
