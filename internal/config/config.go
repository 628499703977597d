// Package config loads run configuration from a YAML file with command-line
// overrides.
package config

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/amirphl/backtester/internal/optimize"
	"github.com/amirphl/backtester/internal/tfutils"
)

// Config is the full run configuration. Example YAML:
//
//	mode: "backtest"
//	log_level: "info"
//	strategy: "rsi_reversion"
//	pairs: ["BTCUSDT", "ETHUSDT"]
//	timeframe: "1h"
//	from: "2024-01-01"
//	to: "2024-06-01"
//	initial_capital: 10000
//	fee_rate: 0.001
//	slippage: 0.0005
//	params:
//	  oversold: 30
//	  overbought: 70
//	candle_file: "./data/btcusdt-1h.csv"
//	objective: "sharpe_ratio"
//	parameter_space:
//	  oversold: { min: 20, max: 40, step: 5 }
//	  rsi_period: { values: [7, 14, 21] }
//	max_trials: 200
//	budget: "2m"
type Config struct {
	Mode     string `yaml:"mode"` // backtest | optimize
	LogLevel string `yaml:"log_level"`

	Strategy     string             `yaml:"strategy"`
	StrategyFile string             `yaml:"strategy_file"` // JSON rule definition
	Params       map[string]float64 `yaml:"params"`

	Pairs     []string  `yaml:"pairs"`
	Timeframe string    `yaml:"timeframe"`
	From      time.Time `yaml:"-"`
	To        time.Time `yaml:"-"`
	FromRaw   string    `yaml:"from"`
	ToRaw     string    `yaml:"to"`

	InitialCapital float64 `yaml:"initial_capital"`
	FeeRate        float64 `yaml:"fee_rate"`
	Slippage       float64 `yaml:"slippage"`
	Leverage       float64 `yaml:"leverage"`
	PositionPct    float64 `yaml:"position_pct"`
	StopLossPct    float64 `yaml:"stop_loss_pct"`
	TrailingPct    float64 `yaml:"trailing_stop_pct"`

	CandleFile string `yaml:"candle_file"`
	DBConnStr  string `yaml:"db_conn_str"`
	TradesOut  string `yaml:"trades_out"`

	Objective   string         `yaml:"objective"`
	Space       optimize.Space `yaml:"parameter_space"`
	MaxTrials   int            `yaml:"max_trials"`
	Concurrency int            `yaml:"concurrency"`
	Seed        int64          `yaml:"seed"`
	Budget      time.Duration  `yaml:"-"`
	BudgetRaw   string         `yaml:"budget"`
}

// Load reads the optional YAML file named by -config, applies command-line
// overrides and validates the result.
func Load(args []string) (Config, error) {
	fs := flag.NewFlagSet("backtester", flag.ContinueOnError)

	configPath := fs.String("config", "", "path to YAML config file")
	mode := fs.String("mode", "", "run mode: backtest or optimize")
	logLevel := fs.String("log-level", "", "log level: debug, info, warn, error")
	strategyName := fs.String("strategy", "", "registered strategy name")
	strategyFile := fs.String("strategy-file", "", "path to a JSON rule strategy definition")
	pairs := fs.String("pairs", "", "comma-separated trading pairs")
	timeframe := fs.String("timeframe", "", "candle timeframe, e.g. 1h")
	from := fs.String("from", "", "start date (RFC 3339 or YYYY-MM-DD)")
	to := fs.String("to", "", "end date (RFC 3339 or YYYY-MM-DD)")
	capital := fs.Float64("capital", 0, "initial capital")
	candleFile := fs.String("candle-file", "", "path to a candle CSV file")
	dbConnStr := fs.String("db", "", "postgres connection string")
	tradesOut := fs.String("trades-out", "", "path to write closed trades as CSV")
	objective := fs.String("objective", "", "optimization objective")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	cfg := Config{
		Mode:           "backtest",
		LogLevel:       "info",
		Timeframe:      "1h",
		InitialCapital: 10000,
	}

	if *configPath != "" {
		data, err := os.ReadFile(*configPath)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file: %w", err)
		}
	}

	if *mode != "" {
		cfg.Mode = *mode
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if *strategyName != "" {
		cfg.Strategy = *strategyName
	}
	if *strategyFile != "" {
		cfg.StrategyFile = *strategyFile
	}
	if *pairs != "" {
		cfg.Pairs = nil
		for _, p := range strings.Split(*pairs, ",") {
			if p = strings.TrimSpace(p); p != "" {
				cfg.Pairs = append(cfg.Pairs, p)
			}
		}
	}
	if *timeframe != "" {
		cfg.Timeframe = *timeframe
	}
	if *from != "" {
		cfg.FromRaw = *from
	}
	if *to != "" {
		cfg.ToRaw = *to
	}
	if *capital != 0 {
		cfg.InitialCapital = *capital
	}
	if *candleFile != "" {
		cfg.CandleFile = *candleFile
	}
	if *dbConnStr != "" {
		cfg.DBConnStr = *dbConnStr
	}
	if *tradesOut != "" {
		cfg.TradesOut = *tradesOut
	}
	if *objective != "" {
		cfg.Objective = *objective
	}

	var err error
	if cfg.From, err = parseDate(cfg.FromRaw); err != nil {
		return Config{}, fmt.Errorf("from: %w", err)
	}
	if cfg.To, err = parseDate(cfg.ToRaw); err != nil {
		return Config{}, fmt.Errorf("to: %w", err)
	}
	if cfg.BudgetRaw != "" {
		if cfg.Budget, err = time.ParseDuration(cfg.BudgetRaw); err != nil {
			return Config{}, fmt.Errorf("budget: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("unparseable date %q", s)
}

// Validate checks everything shared by both modes plus the optimize-only
// fields when that mode is selected.
func (c Config) Validate() error {
	if c.Mode != "backtest" && c.Mode != "optimize" {
		return fmt.Errorf("mode must be backtest or optimize, got %q", c.Mode)
	}
	if c.Strategy == "" && c.StrategyFile == "" {
		return fmt.Errorf("either strategy or strategy_file is required")
	}
	if c.Strategy != "" && c.StrategyFile != "" {
		return fmt.Errorf("strategy and strategy_file are mutually exclusive")
	}
	if len(c.Pairs) == 0 {
		return fmt.Errorf("at least one pair is required")
	}
	if !tfutils.IsValidTimeframe(c.Timeframe) {
		return fmt.Errorf("unsupported timeframe %q", c.Timeframe)
	}
	if c.From.IsZero() || c.To.IsZero() {
		return fmt.Errorf("from and to dates are required")
	}
	if !c.To.After(c.From) {
		return fmt.Errorf("to date must be after from date")
	}
	if c.InitialCapital <= 0 {
		return fmt.Errorf("initial capital must be positive")
	}
	if c.CandleFile == "" && c.DBConnStr == "" {
		return fmt.Errorf("either candle_file or db_conn_str is required")
	}
	if c.CandleFile != "" && len(c.Pairs) > 1 {
		return fmt.Errorf("a candle file serves a single pair, got %d", len(c.Pairs))
	}
	if c.Mode == "optimize" {
		if len(c.Space) == 0 {
			return fmt.Errorf("parameter_space is required in optimize mode")
		}
		if !optimize.ValidObjective(c.Objective) {
			return fmt.Errorf("unknown objective %q (supported: %s)", c.Objective, strings.Join(optimize.Objectives(), ", "))
		}
	}
	return nil
}
