package optimize

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/amirphl/backtester/internal/backtest"
)

// TrialState is the lifecycle of one parameter evaluation: a trial runs as
// soon as a worker picks it up and finishes scored or failed. Only terminal
// states are ever published.
type TrialState string

const (
	TrialRunning TrialState = "running"
	TrialScored  TrialState = "scored"
	TrialFailed  TrialState = "failed"
)

// Trial records one evaluated parameter set.
type Trial struct {
	Index  int
	Params map[string]float64
	State  TrialState
	Score  float64
	Result *backtest.Result
	Err    error
}

// TrialExecutionError wraps a failure of a single trial.
type TrialExecutionError struct {
	Index int
	Err   error
}

func (e *TrialExecutionError) Error() string {
	return fmt.Sprintf("trial %d: %v", e.Index, e.Err)
}

func (e *TrialExecutionError) Unwrap() error {
	return e.Err
}

// RunFunc evaluates one parameter set, typically by re-parameterizing a
// strategy and backtesting it.
type RunFunc func(ctx context.Context, params map[string]float64) (*backtest.Result, error)

// Options tune the search.
type Options struct {
	MaxTrials   int           // grid cap; larger grids are randomly sampled. Default 100.
	Concurrency int           // parallel workers. Default 4.
	Seed        int64         // sampling seed. Default 1.
	Budget      time.Duration // wall-clock cap; 0 means unlimited.
}

func (o *Options) normalize() {
	if o.MaxTrials <= 0 {
		o.MaxTrials = 100
	}
	if o.Concurrency <= 0 {
		o.Concurrency = 4
	}
	if o.Seed == 0 {
		o.Seed = 1
	}
}

// Result is the outcome of a search. BestParams is nil when no trial scored.
// Trials holds every finished trial in submission order; trials cut off by
// cancellation or the budget are simply absent.
type Result struct {
	Objective  string
	Exhaustive bool
	BestParams map[string]float64
	BestScore  float64
	BestResult *backtest.Result
	Trials     []Trial
}

// Optimizer fans parameter evaluations out over a worker pool.
type Optimizer struct {
	log *zap.Logger
}

func NewOptimizer(log *zap.Logger) *Optimizer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Optimizer{log: log}
}

// Optimize searches the space for the parameter set maximizing the objective.
// When the full grid fits within MaxTrials it is enumerated exhaustively,
// otherwise MaxTrials sets are sampled with the seeded rng. Failed trials are
// recorded and excluded from ranking; cancellation and the budget stop the
// search and return the trials finished so far.
func (o *Optimizer) Optimize(ctx context.Context, space Space, objective string, run RunFunc, opts Options) (*Result, error) {
	if !ValidObjective(objective) {
		return nil, &UnknownObjectiveError{Name: objective}
	}
	if run == nil {
		return nil, fmt.Errorf("optimize: run function is required")
	}
	opts.normalize()

	card, err := space.Cardinality()
	if err != nil {
		return nil, err
	}

	var combos []map[string]float64
	exhaustive := card <= opts.MaxTrials
	if exhaustive {
		combos, err = space.Combinations()
	} else {
		combos, err = space.SampleN(rand.New(rand.NewSource(opts.Seed)), opts.MaxTrials)
	}
	if err != nil {
		return nil, err
	}

	if opts.Budget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Budget)
		defer cancel()
	}

	o.log.Info("starting optimization",
		zap.String("objective", objective),
		zap.Int("cardinality", card),
		zap.Int("trials", len(combos)),
		zap.Bool("exhaustive", exhaustive),
		zap.Int("concurrency", opts.Concurrency))

	jobs := make(chan int)
	results := make(chan Trial)

	go func() {
		defer close(jobs)
		for i := range combos {
			select {
			case <-ctx.Done():
				return
			case jobs <- i:
			}
		}
	}()

	var wg sync.WaitGroup
	for w := 0; w < opts.Concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				if ctx.Err() != nil {
					return
				}
				results <- o.evaluate(ctx, idx, combos[idx], objective, run)
			}
		}()
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	byIndex := make([]*Trial, len(combos))
	for trial := range results {
		t := trial
		byIndex[t.Index] = &t
	}

	res := &Result{Objective: objective, Exhaustive: exhaustive}
	best := -1
	for _, t := range byIndex {
		if t == nil {
			continue
		}
		res.Trials = append(res.Trials, *t)
		if t.State == TrialScored && (best < 0 || t.Score > res.BestScore) {
			best = t.Index
			res.BestScore = t.Score
			res.BestParams = t.Params
			res.BestResult = t.Result
		}
	}

	o.log.Info("optimization finished",
		zap.String("objective", objective),
		zap.Int("finished", len(res.Trials)),
		zap.Int("submitted", len(combos)),
		zap.Bool("found", best >= 0))
	return res, nil
}

func (o *Optimizer) evaluate(ctx context.Context, idx int, params map[string]float64, objective string, run RunFunc) Trial {
	t := Trial{Index: idx, Params: params, State: TrialRunning}

	result, err := run(ctx, params)
	if err != nil {
		t.State = TrialFailed
		t.Err = &TrialExecutionError{Index: idx, Err: err}
		o.log.Warn("trial failed", zap.Int("trial", idx), zap.Error(err))
		return t
	}

	score, err := Score(objective, result.Metrics)
	if err == nil && math.IsNaN(score) {
		err = fmt.Errorf("objective %s produced NaN", objective)
	}
	if err != nil {
		t.State = TrialFailed
		t.Err = &TrialExecutionError{Index: idx, Err: err}
		return t
	}

	t.State = TrialScored
	t.Score = score
	t.Result = result
	return t
}
