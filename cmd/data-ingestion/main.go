// Package main provides the entry point for the data ingestion service.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/yourusername/value-backtest/internal/config"
	"github.com/yourusername/value-backtest/internal/database"
	"github.com/yourusername/value-backtest/internal/datasource"
	"github.com/yourusername/value-backtest/internal/health"
	"github.com/yourusername/value-backtest/internal/logger"
	"github.com/yourusername/value-backtest/internal/metrics"
	"github.com/yourusername/value-backtest/internal/repository"
	"github.com/yourusername/value-backtest/internal/scheduler"
	"github.com/yourusername/value-backtest/internal/scoring"
	"github.com/yourusername/value-backtest/internal/service"
)

func main() {
	var (
		configPath = flag.String("config", "config/config.yaml", "Path to config file")
		mode       = flag.String("mode", "daily", "Ingestion mode: universe, prices, fundamentals, daily, schedule")
		market     = flag.String("market", "ALL", "Market filter for universe sync")
		startDate  = flag.String("start-date", "", "Backfill start date (YYYY-MM-DD)")
		endDate    = flag.String("end-date", "", "Backfill end date (YYYY-MM-DD)")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
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

	appLog := logger.NewLogger(cfg.App.LogLevel)
	appLog.WithFields(logrus.Fields{
		"environment": cfg.App.Environment,
		"mode":        *mode,
	}).Info("Data ingestion service starting")

	ctx := context.Background()
	db, err := database.Initialize(ctx, cfg)
	if err != nil {
		appLog.WithError(err).Fatal("Failed to initialize database")
	}
	defer db.Close()

	repos, err := repository.NewRepositories(db)
	if err != nil {
		appLog.WithError(err).Fatal("Failed to initialize repositories")
	}

	ingestion := buildIngestion(cfg, repos, appLog)

	switch *mode {
	case "universe":
		report, err := ingestion.SyncUniverse(ctx, *market)
		logReport(appLog, report, err)
	case "prices":
		start, end := parseRange(appLog, *startDate, *endDate)
		codes := universeCodes(ctx, repos.Stock, *market, appLog)
		report, err := ingestion.BackfillPrices(ctx, codes, start, end)
		logReport(appLog, report, err)
		benchReport, benchErr := ingestion.BackfillBenchmarks(ctx, start, end)
		logReport(appLog, benchReport, benchErr)
	case "fundamentals":
		asOf := time.Now()
		if *endDate != "" {
			asOf = parseDate(appLog, *endDate)
		}
		codes := universeCodes(ctx, repos.Stock, *market, appLog)
		report, err := ingestion.BackfillFundamentals(ctx, codes, asOf)
		logReport(appLog, report, err)
	case "daily":
		report, err := ingestion.SyncDaily(ctx, time.Now())
		logReport(appLog, report, err)
	case "schedule":
		runScheduled(ctx, cfg, db, repos, ingestion, appLog)
	default:
		appLog.Fatalf("Unknown mode %q", *mode)
	}
}

func buildIngestion(cfg *config.Config, repos *repository.Repositories, appLog *logrus.Logger) *service.Ingestion {
	factory := datasource.NewFactory(appLog)

	krxCfg := cfg.Source("krx")
	if krxCfg == nil {
		appLog.Fatal("Data source \"krx\" is not configured")
	}
	krx, err := factory.NewPriceSource(*krxCfg)
	if err != nil {
		appLog.WithError(err).Fatal("Failed to build KRX client")
	}

	dartCfg := cfg.Source("dart")
	if dartCfg == nil {
		appLog.Fatal("Data source \"dart\" is not configured")
	}
	dart, err := factory.NewFundamentalsSource(*dartCfg)
	if err != nil {
		appLog.WithError(err).Fatal("Failed to build DART client")
	}

	return service.NewIngestion(
		krx, krx, dart,
		repos.Stock, repos.Price, repos.Fundamentals,
		appLog,
		dartCfg.BatchSize,
		time.Duration(dartCfg.BatchCooldownS)*time.Second,
	)
}

// runScheduled keeps the process alive running the cron jobs until a
// termination signal arrives.
func runScheduled(
	ctx context.Context,
	cfg *config.Config,
	db *database.DB,
	repos *repository.Repositories,
	ingestion *service.Ingestion,
	appLog *logrus.Logger,
) {
	scores := scoring.NewService(scoring.NewScorer(), repos.Stock, repos.Fundamentals, repos.ValueScore, appLog)
	staleTimeout := time.Duration(cfg.Backtest.StaleRunTimeoutHours) * time.Hour

	sched := scheduler.NewScheduler(ingestion, scores, repos.Run, appLog, staleTimeout)
	schedule := cfg.DataIngestion.Schedule
	if err := sched.ScheduleDailySync(schedule.DailySync); err != nil {
		appLog.WithError(err).Fatal("Failed to schedule daily sync")
	}
	if err := sched.ScheduleStaleRunSweep(schedule.StaleRunSweep); err != nil {
		appLog.WithError(err).Fatal("Failed to schedule stale run sweep")
	}
	if err := sched.ScheduleScoreRecompute(schedule.ScoreRecompute); err != nil {
		appLog.WithError(err).Fatal("Failed to schedule score recompute")
	}
	if err := sched.Start(); err != nil {
		appLog.WithError(err).Fatal("Failed to start scheduler")
	}

	serverCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var metricsHandler http.Handler
	if cfg.Metrics.Enabled {
		metricsHandler = metrics.Handler()
	}
	healthServer := health.NewServer(health.Config{
		ServiceName: cfg.App.Name,
		Port:        strconv.Itoa(cfg.Metrics.Port),
		Logger:      appLog,
		DB:          db,
		Metrics:     metricsHandler,
		MetricsPath: cfg.Metrics.Path,
	})
	if err := healthServer.Start(serverCtx); err != nil {
		appLog.WithError(err).Fatal("Failed to start health server")
	}
	healthServer.SetReady(true)

	appLog.WithField("next_run", sched.NextRun()).Info("Scheduler running")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	appLog.WithField("signal", sig.String()).Info("Shutting down")

	if err := sched.Stop(); err != nil {
		appLog.WithError(err).Error("Failed to stop scheduler")
	}
	cancel()
}

func universeCodes(ctx context.Context, stocks repository.StockRepository, market string, appLog *logrus.Logger) []string {
	listed, err := stocks.GetByMarket(ctx, market)
	if err != nil {
		appLog.WithError(err).Fatal("Failed to load stock universe")
	}
	if len(listed) == 0 {
		appLog.Fatal("Stock universe is empty; run -mode universe first")
	}
	codes := make([]string, 0, len(listed))
	for _, st := range listed {
		codes = append(codes, st.Code)
	}
	return codes
}

func parseRange(appLog *logrus.Logger, start, end string) (time.Time, time.Time) {
	if start == "" || end == "" {
		appLog.Fatal("-start-date and -end-date are required for this mode")
	}
	return parseDate(appLog, start), parseDate(appLog, end)
}

func parseDate(appLog *logrus.Logger, raw string) time.Time {
	parsed, err := time.Parse("2006-01-02", raw)
	if err != nil {
		appLog.Fatalf("Invalid date %q: %v", raw, err)
	}
	return parsed
}

func logReport(appLog *logrus.Logger, report *service.IngestionReport, err error) {
	if err != nil {
		appLog.WithError(err).Error("Ingestion pass failed")
	}
	if report == nil {
		return
	}
	totals := report.Snapshot()
	appLog.WithFields(logrus.Fields{
		"stocks":       totals.StocksUpserted,
		"price_rows":   totals.PriceRowsInserted,
		"fundamentals": totals.FundamentalsFetched,
		"skipped":      totals.Skipped,
		"errors":       totals.Errors,
		"duration":     totals.Duration.String(),
	}).Info("Ingestion pass finished")
}
