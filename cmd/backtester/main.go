package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"go.uber.org/zap"

	"github.com/amirphl/backtester/internal/api"
	"github.com/amirphl/backtester/internal/backtest"
	"github.com/amirphl/backtester/internal/config"
	"github.com/amirphl/backtester/internal/logging"
	"github.com/amirphl/backtester/internal/store"
	"github.com/amirphl/backtester/internal/strategy"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	cfg, err := config.Load(args)
	if err != nil {
		return err
	}

	log, err := logging.New(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	source, err := openSource(ctx, cfg, log)
	if err != nil {
		return err
	}

	manager := api.NewManager(source, log)
	strategyID, err := registerStrategy(cfg, manager)
	if err != nil {
		return err
	}

	req := api.BacktestRequest{
		StrategyID:     strategyID,
		Timeframe:      cfg.Timeframe,
		Pairs:          cfg.Pairs,
		StartDate:      cfg.From,
		EndDate:        cfg.To,
		InitialCapital: cfg.InitialCapital,
		FeeRate:        cfg.FeeRate,
		Slippage:       cfg.Slippage,
		Leverage:       cfg.Leverage,
		PositionPct:    cfg.PositionPct,
		StopLossPct:    cfg.StopLossPct,
		TrailingPct:    cfg.TrailingPct,
		Params:         cfg.Params,
	}

	var jobID string
	switch cfg.Mode {
	case "optimize":
		jobID, err = manager.SubmitOptimization(ctx, api.OptimizationRequest{
			BacktestRequest: req,
			ParameterSpace:  cfg.Space,
			Objective:       cfg.Objective,
			MaxTrials:       cfg.MaxTrials,
			Concurrency:     cfg.Concurrency,
			Seed:            cfg.Seed,
			Budget:          api.Duration(cfg.Budget),
		})
	default:
		jobID, err = manager.SubmitBacktest(ctx, req)
	}
	if err != nil {
		return err
	}

	manager.Wait()
	job, ok := manager.Get(jobID)
	if !ok {
		return fmt.Errorf("job %s disappeared", jobID)
	}
	if job.Status == api.JobFailed {
		return fmt.Errorf("job failed: %s", job.Error)
	}

	switch cfg.Mode {
	case "optimize":
		printOptimizations(job)
	default:
		printBacktests(job)
		if cfg.TradesOut != "" {
			if err := saveTrades(cfg.TradesOut, job); err != nil {
				return err
			}
			log.Info("saved trades", zap.String("path", cfg.TradesOut))
		}
	}
	return nil
}

func openSource(ctx context.Context, cfg config.Config, log *zap.Logger) (store.Source, error) {
	if cfg.CandleFile != "" {
		candles, err := store.LoadCSVFile(cfg.CandleFile)
		if err != nil {
			return nil, err
		}
		log.Info("loaded candles from file",
			zap.String("path", cfg.CandleFile),
			zap.Int("candles", len(candles)))
		mem := store.NewMemory()
		mem.Add(cfg.Pairs[0], cfg.Timeframe, candles)
		return mem, nil
	}

	pg, err := store.OpenPostgres(ctx, cfg.DBConnStr)
	if err != nil {
		return nil, err
	}
	log.Info("connected to postgres")
	return pg, nil
}

// registerStrategy resolves the configured strategy: a JSON rule definition
// file is parsed and registered on the manager, otherwise the name must be in
// the native registry.
func registerStrategy(cfg config.Config, manager *api.Manager) (string, error) {
	if cfg.StrategyFile == "" {
		return cfg.Strategy, nil
	}
	data, err := os.ReadFile(cfg.StrategyFile)
	if err != nil {
		return "", fmt.Errorf("read strategy file: %w", err)
	}
	def, err := strategy.ParseDefinition(data)
	if err != nil {
		return "", err
	}
	rule, err := strategy.NewRuleStrategy(def)
	if err != nil {
		return "", err
	}
	if err := manager.RegisterStrategy(rule); err != nil {
		return "", err
	}
	return rule.Name(), nil
}

func sortedPairs[T any](m map[string]T) []string {
	pairs := make([]string, 0, len(m))
	for pair := range m {
		pairs = append(pairs, pair)
	}
	sort.Strings(pairs)
	return pairs
}

func printBacktests(job api.Job) {
	for _, pair := range sortedPairs(job.Results) {
		res := job.Results[pair]
		m := res.Metrics
		fmt.Printf("\n=== %s %s (%s) ===\n", res.Pair, res.Timeframe, res.Strategy)
		fmt.Printf("Trades:        %d (%d won / %d lost)\n", m.TotalTrades, m.WinningTrades, m.LosingTrades)
		fmt.Printf("Profit:        %.2f%%\n", m.ProfitPct)
		fmt.Printf("Win rate:      %.1f%%\n", m.WinRate)
		fmt.Printf("Max drawdown:  %.2f%%\n", m.MaxDrawdownPct)
		fmt.Printf("Sharpe:        %.3f\n", m.Sharpe)
		fmt.Printf("Sortino:       %.3f\n", m.Sortino)
		fmt.Printf("Calmar:        %.3f\n", m.Calmar)
		fmt.Printf("Expectancy:    %.4f\n", m.Expectancy)
		fmt.Printf("Fees paid:     %.4f\n", m.TotalFees)
		fmt.Printf("Final equity:  %.2f\n", m.FinalEquity)
	}
}

func printOptimizations(job api.Job) {
	for _, pair := range sortedPairs(job.Optimizations) {
		opt := job.Optimizations[pair]
		fmt.Printf("\n=== %s (%s, exhaustive=%v, %d trials) ===\n",
			pair, opt.Objective, opt.Exhaustive, len(opt.Trials))
		if opt.BestParams == nil {
			fmt.Println("No trial produced a score.")
			continue
		}
		params, _ := json.Marshal(opt.BestParams)
		fmt.Printf("Best score:    %.4f\n", float64(opt.BestScore))
		fmt.Printf("Best params:   %s\n", params)
		if opt.BestResult != nil {
			fmt.Printf("Best profit:   %.2f%% over %d trades\n",
				opt.BestResult.Metrics.ProfitPct, opt.BestResult.Metrics.TotalTrades)
		}
	}
}

func saveTrades(path string, job api.Job) error {
	var trades []backtest.Trade
	for _, pair := range sortedPairs(job.Results) {
		trades = append(trades, job.Results[pair].Trades...)
	}
	return backtest.SaveTradesCSV(path, trades)
}
