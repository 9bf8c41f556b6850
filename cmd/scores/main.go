// Package main provides the value score maintenance CLI.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/yourusername/value-backtest/internal/config"
	"github.com/yourusername/value-backtest/internal/database"
	applogger "github.com/yourusername/value-backtest/internal/logger"
	"github.com/yourusername/value-backtest/internal/models"
	"github.com/yourusername/value-backtest/internal/repository"
	"github.com/yourusername/value-backtest/internal/scoring"
)

var (
	configFile string
	market     string
	asOfDate   string
	limit      int

	appLog *logrus.Logger
	db     *database.DB
	svc    *scoring.Service
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "./config/config.yaml", "Path to configuration file")
	recomputeCmd.Flags().StringVar(&market, "market", models.MarketAll, "Market filter: KOSPI, KOSDAQ, ALL")
	recomputeCmd.Flags().StringVar(&asOfDate, "date", "", "Score as of this date (YYYY-MM-DD, default today)")
	recomputeCmd.Flags().IntVar(&limit, "limit", 0, "Stop after this many stocks (0 for all)")
	computeCmd.Flags().StringVar(&asOfDate, "date", "", "Score as of this date (YYYY-MM-DD, default today)")
}

var rootCmd = &cobra.Command{
	Use:   "scores",
	Short: "Compute and maintain composite value scores",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setupDependencies()
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if db != nil {
			db.Close()
		}
	},
}

var recomputeCmd = &cobra.Command{
	Use:   "recompute",
	Short: "Recompute scores across the universe",
	RunE: func(cmd *cobra.Command, args []string) error {
		asOf, err := resolveDate()
		if err != nil {
			return err
		}
		result, err := svc.RecomputeAll(context.Background(), market, asOf, limit)
		if err != nil {
			return err
		}
		return printJSON(result)
	},
}

var computeCmd = &cobra.Command{
	Use:   "compute <stock-code>",
	Short: "Compute the score for one stock",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		asOf, err := resolveDate()
		if err != nil {
			return err
		}
		score, err := svc.ComputeAndStore(context.Background(), args[0], asOf)
		if err != nil {
			return err
		}
		return printJSON(score)
	},
}

func main() {
	rootCmd.AddCommand(recomputeCmd, computeCmd)

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

	svc = scoring.NewService(scoring.NewScorer(), repos.Stock, repos.Fundamentals, repos.ValueScore, appLog)
	return nil
}

func resolveDate() (time.Time, error) {
	if asOfDate == "" {
		return time.Now(), nil
	}
	parsed, err := time.Parse("2006-01-02", asOfDate)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", asOfDate, err)
	}
	return parsed, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
