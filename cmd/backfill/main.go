// Command backfill enriches catalog records that lack a product image.
//
// Exactly one run mode is required:
//
//	backfill --test 5       process at most 5 items in a throwaway lineage
//	backfill --all          process every eligible item in a fresh lineage
//	backfill --resume       continue the newest non-test lineage
//
// With --every or --cron the process stays up and starts a fresh full
// run on each tick.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/automaxprocs/maxprocs"

	backfill "github.com/aager/image-backfill"
	"github.com/aager/image-backfill/pkg/config"
	"github.com/aager/image-backfill/pkg/core"
	"github.com/aager/image-backfill/pkg/orchestrator"
	"github.com/aager/image-backfill/pkg/report"
	"github.com/aager/image-backfill/pkg/schedule"
	"github.com/aager/image-backfill/pkg/telemetry"
)

const version = "1.2.0"

func main() {
	os.Exit(run())
}

func run() int {
	var (
		testN        = flag.Int("test", 0, "process at most N items in a throwaway lineage")
		all          = flag.Bool("all", false, "process every eligible item in a fresh lineage")
		resume       = flag.Bool("resume", false, "continue the newest non-test lineage")
		configPath   = flag.String("config", "", "path to YAML configuration")
		xlsxPath     = flag.String("xlsx", "", "write the run report to this XLSX file")
		every        = flag.Duration("every", 0, "daemon mode: start a fresh run at this interval")
		cronExpr     = flag.String("cron", "", "daemon mode: start a fresh run on this cron schedule")
		dsnOverride  = flag.String("dsn", "", "override catalog DSN")
		ckptOverride = flag.String("checkpoint", "", "override checkpoint database path")
		logLevel     = flag.String("log-level", "info", "log level: debug, info, warn, error")
	)
	flag.Parse()

	logger := newLogger(*logLevel)
	slog.SetDefault(logger)
	_, _ = maxprocs.Set(maxprocs.Logger(func(format string, args ...any) {
		logger.Debug(fmt.Sprintf(format, args...))
	}))

	mode, err := config.ParseMode(*testN, *all, *resume)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		flag.Usage()
		return 2
	}
	if (*every > 0 || *cronExpr != "") && mode.Kind != core.ModeAll {
		fmt.Fprintln(os.Stderr, "daemon mode (--every/--cron) requires --all: each tick starts a fresh full run")
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("configuration invalid", "error", err)
		return 2
	}
	if *dsnOverride != "" {
		cfg.Catalog.DSN = *dsnOverride
	}
	if *ckptOverride != "" {
		cfg.Checkpoint.Path = *ckptOverride
	}
	if *xlsxPath != "" {
		cfg.Report.XLSXPath = *xlsxPath
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.InitFromEnv(ctx, "image-backfill", version)
	if err != nil {
		logger.Error("tracing init failed", "error", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(shutdownCtx)
	}()

	sched, err := daemonSchedule(*every, *cronExpr)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	if sched == nil {
		return runOnce(ctx, logger, cfg, mode)
	}

	for {
		if code := runOnce(ctx, logger, cfg, mode); code != 0 {
			return code
		}
		next := sched.Next(time.Now())
		logger.Info("sleeping until next run", "next", next)
		select {
		case <-ctx.Done():
			logger.Info("daemon stopped")
			return 0
		case <-time.After(time.Until(next)):
		}
	}
}

func runOnce(ctx context.Context, logger *slog.Logger, cfg *config.Config, mode config.Mode) int {
	pipeline, err := backfill.Build(ctx, cfg, mode)
	if err != nil {
		logger.Error("pipeline wiring failed", "error", err)
		return 1
	}
	defer pipeline.Close()

	collector := report.NewCollector()
	collectorCtx, stopCollector := context.WithCancel(context.Background())
	defer stopCollector()
	go collector.Run(collectorCtx, pipeline.Orchestrator())
	collector.WaitReady()

	summary, runErr := pipeline.Run(ctx)
	stopCollector()

	fmt.Println()
	_ = summary.WriteText(os.Stdout)

	if cfg.Report.XLSXPath != "" {
		if err := summary.WriteXLSX(cfg.Report.XLSXPath); err != nil {
			logger.Error("xlsx report failed", "path", cfg.Report.XLSXPath, "error", err)
		} else {
			logger.Info("xlsx report written", "path", cfg.Report.XLSXPath)
		}
	}

	if runErr != nil {
		logger.Error("run aborted", "error", runErr)
		return 1
	}
	if pipeline.Orchestrator().Phase() != orchestrator.PhaseCompleted {
		return 1
	}
	return 0
}

func daemonSchedule(every time.Duration, cronExpr string) (schedule.Schedule, error) {
	switch {
	case every > 0 && cronExpr != "":
		return nil, fmt.Errorf("--every and --cron are mutually exclusive")
	case every > 0:
		return schedule.Every(every), nil
	case cronExpr != "":
		return schedule.ParseCron(cronExpr)
	default:
		return nil, nil
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
