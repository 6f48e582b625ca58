package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/Laisky/zap"
	_ "github.com/joho/godotenv/autoload"

	"github.com/devprobe/apidiag/common/config"
	"github.com/devprobe/apidiag/common/logger"
	"github.com/devprobe/apidiag/diagnose"
	"github.com/devprobe/apidiag/environment"
	"github.com/devprobe/apidiag/pipeline"
)

func main() {
	full := flag.Bool("full", false, "run the full battery including the authorized admin probe and platform connectivity checks")
	flag.Parse()

	logger.SetupLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	report := run(ctx, *full)
	diagnose.Render(os.Stdout, report)

	if failed := report.FailedCount(); failed > 0 {
		logger.Logger.Error("diagnostics finished with failures", zap.Int("failed", failed))
		os.Exit(1)
	}
	logger.Logger.Info("all diagnostic checks passed")
}

func run(ctx context.Context, full bool) diagnose.Report {
	cfg := environment.FromEnv()
	logger.Logger.Info("starting diagnostics",
		zap.String("environment", string(cfg.Name)),
		zap.String("base_url", cfg.BaseURL),
		zap.Bool("full", full),
	)

	client := pipeline.New(cfg)
	runner := diagnose.NewRunner(client,
		diagnose.WithToken(config.APIToken),
		diagnose.WithOrigin(config.AppOrigin),
	)

	if full {
		return runner.RunFull(ctx)
	}
	return runner.RunQuick(ctx)
}
