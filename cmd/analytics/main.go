// Package main provides the analytics CLI over completed backtests.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/yourusername/value-backtest/internal/analytics"
	"github.com/yourusername/value-backtest/internal/config"
	"github.com/yourusername/value-backtest/internal/database"
	applogger "github.com/yourusername/value-backtest/internal/logger"
	"github.com/yourusername/value-backtest/internal/repository"
)

var (
	configFile     string
	strategyFilter string
	marketFilter   string
	minOccurrences int

	appLog *logrus.Logger
	db     *database.DB
	svc    *analytics.Service
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "./config/config.yaml", "Path to configuration file")
	timeseriesCmd.Flags().StringVar(&strategyFilter, "strategy", "", "Filter by strategy label")
	timeseriesCmd.Flags().StringVar(&marketFilter, "market", "", "Filter by market")
	frequencyCmd.Flags().IntVar(&minOccurrences, "min-occurrences", 2, "Minimum appearances to include a stock")
}

var rootCmd = &cobra.Command{
	Use:   "analytics",
	Short: "Analyze completed backtest runs",
	Long:  `Compare strategies, inspect recommendation patterns, and summarize backtest history.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setupDependencies()
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if db != nil {
			db.Close()
		}
	},
}

var compareCmd = &cobra.Command{
	Use:   "compare",
	Short: "Compare strategies across completed runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		result, err := svc.CompareStrategies(context.Background())
		if err != nil {
			return err
		}
		return printJSON(result)
	},
}

var patternsCmd = &cobra.Command{
	Use:   "patterns <run-id>",
	Short: "Analyze recommendation patterns of one run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		runID, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid run id %q: %w", args[0], err)
		}
		result, err := svc.AnalyzePatterns(context.Background(), runID)
		if err != nil {
			return err
		}
		return printJSON(result)
	},
}

var timeseriesCmd = &cobra.Command{
	Use:   "timeseries",
	Short: "Completed runs ordered by simulation date",
	RunE: func(cmd *cobra.Command, args []string) error {
		result, err := svc.TimeSeries(context.Background(), optional(strategyFilter), optional(marketFilter))
		if err != nil {
			return err
		}
		return printJSON(result)
	},
}

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Global summary over all backtest runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		result, err := svc.Summarize(context.Background())
		if err != nil {
			return err
		}
		return printJSON(result)
	},
}

var frequencyCmd = &cobra.Command{
	Use:   "frequency",
	Short: "Stocks recurring across evaluated recommendations",
	RunE: func(cmd *cobra.Command, args []string) error {
		result, err := svc.Frequency(context.Background(), minOccurrences)
		if err != nil {
			return err
		}
		return printJSON(result)
	},
}

func main() {
	rootCmd.AddCommand(compareCmd, patternsCmd, timeseriesCmd, summaryCmd, frequencyCmd)

	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("Error: %v", err)
	}
}

func setupDependencies() error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	appLog = applogger.NewLogger(cfg.App.LogLevel)

	db, err = database.Initialize(context.Background(), cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	repos, err := repository.NewRepositories(db)
	if err != nil {
		return fmt.Errorf("failed to initialize repositories: %w", err)
	}

	svc = analytics.NewService(repos.Run, repos.Recommendation, appLog)
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
