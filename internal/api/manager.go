package api

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/amirphl/backtester/internal/backtest"
	"github.com/amirphl/backtester/internal/candle"
	"github.com/amirphl/backtester/internal/optimize"
	"github.com/amirphl/backtester/internal/store"
	"github.com/amirphl/backtester/internal/strategy"
)

// Manager runs submitted jobs in the background and tracks their lifecycle.
// Custom strategies registered on the manager take precedence over the
// global native registry when resolving a strategy_id.
type Manager struct {
	log       *zap.Logger
	source    store.Source
	engine    *backtest.Engine
	optimizer *optimize.Optimizer

	mu         sync.RWMutex
	jobs       map[string]*Job
	strategies map[string]strategy.Strategy
	wg         sync.WaitGroup
}

func NewManager(source store.Source, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{
		log:        log,
		source:     source,
		engine:     backtest.NewEngine(log),
		optimizer:  optimize.NewOptimizer(log),
		jobs:       make(map[string]*Job),
		strategies: make(map[string]strategy.Strategy),
	}
}

// RegisterStrategy adds a strategy under its own name, typically a rule
// strategy parsed from JSON.
func (m *Manager) RegisterStrategy(strat strategy.Strategy) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.strategies[strat.Name()]; exists {
		return fmt.Errorf("strategy %q already registered", strat.Name())
	}
	m.strategies[strat.Name()] = strat
	return nil
}

func (m *Manager) resolveStrategy(id string, params map[string]float64) (strategy.Strategy, error) {
	m.mu.RLock()
	custom, ok := m.strategies[id]
	m.mu.RUnlock()
	if ok {
		if len(params) == 0 {
			return custom, nil
		}
		return custom.WithParams(params)
	}
	return strategy.New(id, params)
}

// SubmitBacktest validates the request, starts the run in the background and
// returns the job id immediately.
func (m *Manager) SubmitBacktest(ctx context.Context, req BacktestRequest) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}
	if _, err := m.resolveStrategy(req.StrategyID, req.Params); err != nil {
		return "", err
	}

	job := m.newJob(KindBacktest, req)
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.runBacktest(ctx, job.ID, req)
	}()
	return job.ID, nil
}

// SubmitOptimization validates the request, starts the search in the
// background and returns the job id immediately.
func (m *Manager) SubmitOptimization(ctx context.Context, req OptimizationRequest) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}
	if _, err := m.resolveStrategy(req.StrategyID, req.Params); err != nil {
		return "", err
	}

	job := m.newJob(KindOptimization, req)
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.runOptimization(ctx, job.ID, req)
	}()
	return job.ID, nil
}

// Get returns a snapshot of the job.
func (m *Manager) Get(id string) (Job, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[id]
	if !ok {
		return Job{}, false
	}
	return *job, true
}

// Jobs lists snapshots of every known job.
func (m *Manager) Jobs() []Job {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Job, 0, len(m.jobs))
	for _, job := range m.jobs {
		out = append(out, *job)
	}
	return out
}

// Wait blocks until every background job has finished. Meant for shutdown
// and tests.
func (m *Manager) Wait() {
	m.wg.Wait()
}

func (m *Manager) newJob(kind JobKind, config any) *Job {
	job := &Job{
		ID:        uuid.NewString(),
		Kind:      kind,
		Status:    JobRunning,
		CreatedAt: time.Now().UTC(),
		Config:    config,
	}
	m.mu.Lock()
	m.jobs[job.ID] = job
	m.mu.Unlock()
	return job
}

func (m *Manager) finishJob(id string, mutate func(*Job)) {
	now := time.Now().UTC()
	m.mu.Lock()
	defer m.mu.Unlock()
	job := m.jobs[id]
	mutate(job)
	job.FinishedAt = &now
}

func (m *Manager) failJob(id string, err error) {
	m.log.Warn("job failed", zap.String("job", id), zap.Error(err))
	m.finishJob(id, func(job *Job) {
		job.Status = JobFailed
		job.Error = err.Error()
	})
}

func (m *Manager) loadSeries(ctx context.Context, pair string, req BacktestRequest) (*candle.Series, error) {
	candles, err := m.source.GetCandles(ctx, pair, req.Timeframe, req.StartDate, req.EndDate)
	if err != nil {
		return nil, fmt.Errorf("load candles for %s: %w", pair, err)
	}
	s, err := candle.NewSeries(pair, req.Timeframe, candles)
	if err != nil {
		return nil, fmt.Errorf("build series for %s: %w", pair, err)
	}
	return s, nil
}

func (m *Manager) runBacktest(ctx context.Context, id string, req BacktestRequest) {
	strat, err := m.resolveStrategy(req.StrategyID, req.Params)
	if err != nil {
		m.failJob(id, err)
		return
	}

	results := make(map[string]*backtest.Result, len(req.Pairs))
	for _, pair := range req.Pairs {
		s, err := m.loadSeries(ctx, pair, req)
		if err != nil {
			m.failJob(id, err)
			return
		}
		res, err := m.engine.Run(ctx, s, strat, req.simConfig())
		if err != nil {
			m.failJob(id, err)
			return
		}
		results[pair] = res
	}

	m.finishJob(id, func(job *Job) {
		job.Status = JobCompleted
		job.Results = results
	})
}

func (m *Manager) runOptimization(ctx context.Context, id string, req OptimizationRequest) {
	base, err := m.resolveStrategy(req.StrategyID, req.Params)
	if err != nil {
		m.failJob(id, err)
		return
	}
	opts := optimize.Options{
		MaxTrials:   req.MaxTrials,
		Concurrency: req.Concurrency,
		Seed:        req.Seed,
		Budget:      time.Duration(req.Budget),
	}

	results := make(map[string]*OptimizationResult, len(req.Pairs))
	for _, pair := range req.Pairs {
		s, err := m.loadSeries(ctx, pair, req.BacktestRequest)
		if err != nil {
			m.failJob(id, err)
			return
		}

		run := func(ctx context.Context, params map[string]float64) (*backtest.Result, error) {
			tuned, err := base.WithParams(params)
			if err != nil {
				return nil, err
			}
			return m.engine.Run(ctx, s, tuned, req.simConfig())
		}
		res, err := m.optimizer.Optimize(ctx, req.ParameterSpace, req.Objective, run, opts)
		if err != nil {
			m.failJob(id, err)
			return
		}
		results[pair] = newOptimizationResult(res)
	}

	m.finishJob(id, func(job *Job) {
		job.Status = JobCompleted
		job.Optimizations = results
	})
}
