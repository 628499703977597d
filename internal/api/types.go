// Package api exposes backtests and optimizations as asynchronous jobs with
// a JSON-friendly wire shape.
package api

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/amirphl/backtester/internal/backtest"
	"github.com/amirphl/backtester/internal/optimize"
	"github.com/amirphl/backtester/internal/tfutils"
)

// BacktestRequest describes one backtest over one or more pairs.
type BacktestRequest struct {
	StrategyID     string             `json:"strategy_id"`
	Timeframe      string             `json:"timeframe"`
	Pairs          []string           `json:"pairs"`
	StartDate      time.Time          `json:"start_date"`
	EndDate        time.Time          `json:"end_date"`
	InitialCapital float64            `json:"initial_capital"`
	FeeRate        float64            `json:"fee_rate"`
	Leverage       float64            `json:"leverage"`
	Slippage       float64            `json:"slippage,omitempty"`
	PositionPct    float64            `json:"position_pct,omitempty"`
	StopLossPct    float64            `json:"stop_loss_pct,omitempty"`
	TrailingPct    float64            `json:"trailing_stop_pct,omitempty"`
	Params         map[string]float64 `json:"params,omitempty"`
}

// Validate checks the request shape; simulation numbers are validated again
// by the simulator config.
func (r BacktestRequest) Validate() error {
	if r.StrategyID == "" {
		return fmt.Errorf("strategy_id is required")
	}
	if !tfutils.IsValidTimeframe(r.Timeframe) {
		return fmt.Errorf("unsupported timeframe %q", r.Timeframe)
	}
	if len(r.Pairs) == 0 {
		return fmt.Errorf("at least one pair is required")
	}
	for _, p := range r.Pairs {
		if p == "" {
			return fmt.Errorf("pair names cannot be empty")
		}
	}
	if !r.EndDate.After(r.StartDate) {
		return fmt.Errorf("end_date must be after start_date")
	}
	if r.InitialCapital <= 0 {
		return fmt.Errorf("initial_capital must be positive")
	}
	return nil
}

func (r BacktestRequest) simConfig() backtest.SimConfig {
	return backtest.SimConfig{
		InitialCapital: r.InitialCapital,
		FeeRate:        r.FeeRate,
		Slippage:       r.Slippage,
		Leverage:       r.Leverage,
		PositionPct:    r.PositionPct,
		StopLossPct:    r.StopLossPct,
		TrailingPct:    r.TrailingPct,
	}
}

// Duration marshals as a time.ParseDuration string ("30s", "2m") instead of
// raw nanoseconds, so external callers can write budgets the way they read
// them.
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("duration must be a string like \"30s\": %w", err)
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parse duration: %w", err)
	}
	*d = Duration(v)
	return nil
}

// OptimizationRequest extends a backtest with a parameter search.
type OptimizationRequest struct {
	BacktestRequest
	ParameterSpace optimize.Space `json:"parameter_space"`
	Objective      string         `json:"optimization_objective"`
	MaxTrials      int            `json:"max_trials,omitempty"`
	Concurrency    int            `json:"concurrency,omitempty"`
	Seed           int64          `json:"seed,omitempty"`
	Budget         Duration       `json:"budget,omitempty"` // wall-clock cap for the whole search
}

func (r OptimizationRequest) Validate() error {
	if err := r.BacktestRequest.Validate(); err != nil {
		return err
	}
	if len(r.ParameterSpace) == 0 {
		return fmt.Errorf("parameter_space is required")
	}
	if !optimize.ValidObjective(r.Objective) {
		return &optimize.UnknownObjectiveError{Name: r.Objective}
	}
	return nil
}

// TrialView is the wire form of one optimization trial.
type TrialView struct {
	Index  int                `json:"index"`
	Params map[string]float64 `json:"params"`
	State  string             `json:"state"`
	Score  backtest.Float64   `json:"score"`
	Error  string             `json:"error,omitempty"`
}

// OptimizationResult is the wire form of one pair's search outcome.
type OptimizationResult struct {
	Objective       string             `json:"objective"`
	Exhaustive      bool               `json:"exhaustive"`
	BestParams      map[string]float64 `json:"best_params"`
	BestScore       backtest.Float64   `json:"best_score"`
	BestResult      *backtest.Result   `json:"best_result,omitempty"`
	Trials          []TrialView        `json:"trials"`
	TrialsCompleted int                `json:"trials_completed"`
}

func newOptimizationResult(r *optimize.Result) *OptimizationResult {
	out := &OptimizationResult{
		Objective:       r.Objective,
		Exhaustive:      r.Exhaustive,
		BestParams:      r.BestParams,
		BestScore:       backtest.Float64(r.BestScore),
		BestResult:      r.BestResult,
		Trials:          make([]TrialView, 0, len(r.Trials)),
		TrialsCompleted: len(r.Trials),
	}
	for _, t := range r.Trials {
		view := TrialView{
			Index:  t.Index,
			Params: t.Params,
			State:  string(t.State),
			Score:  backtest.Float64(t.Score),
		}
		if t.Err != nil {
			view.Error = t.Err.Error()
		}
		out.Trials = append(out.Trials, view)
	}
	return out
}

// JobStatus is the lifecycle of a submitted job.
type JobStatus string

const (
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// JobKind distinguishes plain backtests from optimizations.
type JobKind string

const (
	KindBacktest     JobKind = "backtest"
	KindOptimization JobKind = "optimization"
)

// Job is a snapshot of one submitted run. Results are keyed by pair and only
// present once the job completed.
type Job struct {
	ID            string                         `json:"id"`
	Kind          JobKind                        `json:"kind"`
	Status        JobStatus                      `json:"status"`
	Error         string                         `json:"error,omitempty"`
	CreatedAt     time.Time                      `json:"created_at"`
	FinishedAt    *time.Time                     `json:"finished_at,omitempty"`
	Config        any                            `json:"config"`
	Results       map[string]*backtest.Result    `json:"results,omitempty"`
	Optimizations map[string]*OptimizationResult `json:"optimizations,omitempty"`
}
