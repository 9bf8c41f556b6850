// Package main provides the entry point for the backtesting CLI tool.
package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/yourusername/value-backtest/internal/backtest"
	"github.com/yourusername/value-backtest/internal/config"
	"github.com/yourusername/value-backtest/internal/database"
	"github.com/yourusername/value-backtest/internal/history"
	"github.com/yourusername/value-backtest/internal/logger"
	"github.com/yourusername/value-backtest/internal/repository"
	"github.com/yourusername/value-backtest/internal/scoring"
)

func main() {
	var (
		configPath   = flag.String("config", "config/config.yaml", "Path to config file")
		runID        = flag.String("run-id", "", "Execute an existing pending run by id")
		name         = flag.String("name", "", "Name for the new run or series")
		strategyType = flag.String("strategy", "", "Strategy label (defaults to value score ranking)")
		market       = flag.String("market", "", "Market filter: KOSPI, KOSDAQ, ALL")
		simDate      = flag.String("date", "", "Simulation date for a single run (YYYY-MM-DD)")
		startDate    = flag.String("start-date", "", "Series start date (YYYY-MM-DD)")
		endDate      = flag.String("end-date", "", "Series end date (YYYY-MM-DD)")
		cadence      = flag.String("cadence", "monthly", "Series cadence: monthly, quarterly, yearly")
		lookback     = flag.Int("lookback-years", 0, "Years of history the run may use")
		holding      = flag.Int("holding-months", 0, "Holding period in months")
	)
	flag.Parse()

	ctx := context.Background()

	cfg := loadConfigWithSecrets(*configPath)
	appLog := logger.NewLogger(cfg.App.LogLevel)
	applyBacktestDefaults(cfg, market, lookback, holding)

	db, err := database.Initialize(ctx, cfg)
	if err != nil {
		appLog.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	repos, err := repository.NewRepositories(db)
	if err != nil {
		appLog.Fatalf("Failed to initialize repositories: %v", err)
	}

	provider := history.NewCachedProvider(
		history.NewRepositoryProvider(repos.Price, repos.Fundamentals),
		time.Duration(cfg.Backtest.ProviderCacheTTLHours)*time.Hour,
	)

	engine, err := backtest.NewEngine(repos.Run, repos.Recommendation, repos.Stock,
		provider, scoring.NewScorer(), logger.NewRunLogger(appLog))
	if err != nil {
		appLog.Fatalf("Failed to create engine: %v", err)
	}

	if *runID != "" {
		executeExisting(ctx, engine, *runID, appLog)
		return
	}

	planner := backtest.NewPlanner(repos.Run)
	launcher := backtest.NewLauncher(engine, cfg.Backtest.MaxConcurrentRuns, appLog)

	switch {
	case *simDate != "":
		run, err := planner.CreateRun(ctx, backtest.RunConfig{
			Name:                *name,
			StrategyType:        optional(*strategyType),
			Market:              *market,
			SimulationDate:      *simDate,
			LookbackYears:       *lookback,
			HoldingPeriodMonths: *holding,
		})
		if err != nil {
			appLog.Fatalf("Failed to create run: %v", err)
		}
		submit(ctx, launcher, appLog, run.ID)

	case *startDate != "" && *endDate != "":
		runs, err := planner.CreateSeries(ctx, backtest.SeriesConfig{
			Name:                *name,
			StrategyType:        optional(*strategyType),
			Market:              *market,
			StartDate:           *startDate,
			EndDate:             *endDate,
			LookbackYears:       *lookback,
			HoldingPeriodMonths: *holding,
			Cadence:             backtest.Cadence(*cadence),
		})
		if err != nil {
			appLog.Fatalf("Failed to create series: %v", err)
		}
		appLog.WithField("runs", len(runs)).Info("Series created")
		ids := make([]uuid.UUID, 0, len(runs))
		for _, run := range runs {
			ids = append(ids, run.ID)
		}
		submit(ctx, launcher, appLog, ids...)

	default:
		appLog.Fatal("Either -run-id, -date, or -start-date/-end-date is required")
	}
}

func submit(ctx context.Context, launcher *backtest.Launcher, appLog *logrus.Logger, ids ...uuid.UUID) {
	for _, id := range ids {
		if err := launcher.Submit(ctx, id); err != nil {
			appLog.WithError(err).WithField("run_id", id.String()).Error("Failed to submit run")
		}
	}
	launcher.Wait()
}

func executeExisting(ctx context.Context, engine *backtest.Engine, rawID string, appLog *logrus.Logger) {
	id, err := uuid.Parse(rawID)
	if err != nil {
		appLog.Fatalf("Invalid run id %q: %v", rawID, err)
	}

	run, err := engine.Execute(ctx, id)
	if err != nil {
		appLog.WithError(err).Fatal("Backtest run failed")
	}

	fields := logrus.Fields{"run_id": run.ID.String(), "status": run.Status}
	if run.AvgReturnPct != nil {
		fields["avg_return_pct"] = *run.AvgReturnPct
	}
	if run.WinRatePct != nil {
		fields["win_rate_pct"] = *run.WinRatePct
	}
	appLog.WithFields(fields).Info("Backtest run completed")
}

func applyBacktestDefaults(cfg *config.Config, market *string, lookback, holding *int) {
	if *market == "" {
		*market = cfg.Backtest.DefaultMarket
	}
	if *lookback <= 0 {
		*lookback = cfg.Backtest.DefaultLookbackYears
	}
	if *holding <= 0 {
		*holding = cfg.Backtest.DefaultHoldingMonths
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func loadConfigWithSecrets(path string) *config.Config {
	cfg, err := config.Load(path)
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}
	if os.Getenv("AWS_SECRETS_ENABLED") == "true" {
		region := os.Getenv("AWS_REGION")
		secretName := os.Getenv("AWS_SECRET_NAME")
		if region == "" || secretName == "" {
			logrus.Fatal("AWS_REGION and AWS_SECRET_NAME environment variables must be set when AWS_SECRETS_ENABLED is true")
		}
		if err := config.LoadSecretsFromAWS(cfg, region, secretName); err != nil {
			logrus.Fatalf("Failed to load secrets: %v", err)
		}
	}
	if err := config.Validate(cfg); err != nil {
		logrus.Fatalf("Invalid configuration: %v", err)
	}
	return cfg
}
