package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"github.com/timmy/recap/internal/app"
	"github.com/timmy/recap/internal/config"
	"github.com/timmy/recap/internal/domain"
	"github.com/timmy/recap/internal/logger"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "recap-qa",
	Short:         "End-to-end QA harness for the report pipeline",
	Long:          `Runs coded SMOKE and FULL check suites against synthetic fixtures and records each run.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var smokeCmd = &cobra.Command{
	Use:   "smoke",
	Short: "Run the SMOKE suite once",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runOnce(cmd.Context(), domain.QaRunSmoke)
	},
}

var fullCmd = &cobra.Command{
	Use:   "full",
	Short: "Run the FULL suite once",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runOnce(cmd.Context(), domain.QaRunFull)
	},
}

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run a suite on a cron schedule until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		expr, _ := cmd.Flags().GetString("cron")
		kind, _ := cmd.Flags().GetString("kind")
		return runScheduled(cmd.Context(), expr, domain.QaRunKind(kind))
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent QA runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, _ := cmd.Flags().GetString("kind")
		limit, _ := cmd.Flags().GetInt("limit")
		return showHistory(cmd.Context(), domain.QaRunKind(kind), limit)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", os.Getenv("CONFIG_PATH"), "Path to the config file")

	scheduleCmd.Flags().String("cron", "", "Cron expression (defaults to qa.schedule)")
	scheduleCmd.Flags().String("kind", string(domain.QaRunSmoke), "Suite to run: SMOKE or FULL")

	historyCmd.Flags().String("kind", "", "Filter by suite kind")
	historyCmd.Flags().Int("limit", 20, "Maximum runs to list")

	rootCmd.AddCommand(smokeCmd, fullCmd, scheduleCmd, historyCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	logger.Sync()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func build(ctx context.Context) (*app.App, context.Context, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, ctx, fmt.Errorf("load config: %w", err)
	}
	logger.SetDefault(app.NewLogger(cfg, "recap-qa"))
	ctx = logger.WithTrace(ctx, logger.Trace{Component: "qa"})

	a, err := app.Build(ctx, cfg)
	if err != nil {
		return nil, ctx, err
	}
	return a, ctx, nil
}

func runOnce(ctx context.Context, kind domain.QaRunKind) error {
	a, ctx, err := build(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	run, checks, err := a.Harness.Run(ctx, kind)
	if err != nil {
		return err
	}
	printRun(os.Stdout, run, checks)
	if run.Status == domain.QaRunFailed {
		return errRunFailed{runID: run.RunID}
	}
	return nil
}

func runScheduled(ctx context.Context, expr string, kind domain.QaRunKind) error {
	a, ctx, err := build(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if expr == "" {
		expr = a.Config.QA.Schedule
	}
	if expr == "" {
		return fmt.Errorf("no cron expression given and qa.schedule is empty")
	}

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(expr, func() {
		run, checks, err := a.Harness.Run(ctx, kind)
		if err != nil {
			logger.FromContext(ctx).WithError(err).Error("Scheduled QA run failed to record")
			return
		}
		printRun(os.Stdout, run, checks)
	}); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}

	logger.FromContext(ctx).WithFields(logger.Fields{"cron": expr, "kind": kind}).Info("QA scheduler started")
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	logger.FromContext(ctx).Info("QA scheduler stopped")
	return nil
}

func showHistory(ctx context.Context, kind domain.QaRunKind, limit int) error {
	a, ctx, err := build(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	runs, err := a.Repos.QA.ListRuns(ctx, kind, limit)
	if err != nil {
		return err
	}
	printHistory(os.Stdout, runs)
	return nil
}
