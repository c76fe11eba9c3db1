package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/veris-bms/veris/internal/app"
	"github.com/veris-bms/veris/internal/commission"
	jobmetrics "github.com/veris-bms/veris/internal/jobs"
	"github.com/veris-bms/veris/internal/platform/db"
	"github.com/veris-bms/veris/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	metrics := jobmetrics.NewMetrics(nil)
	tierScan := jobs.NewTierScanHandler(commission.NewRepository(dbpool), logger, metrics)
	digest := jobs.NewSettlementDigestHandler(logger, metrics)

	var cron []jobs.CronRegistration
	if cfg.TierScanCron != "" {
		cron = append(cron, jobs.CronRegistration{
			Spec: cfg.TierScanCron,
			Task: jobs.NewTierScanTask(),
		})
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskTierScan, Handler: tierScan.Handle},
			{Type: jobs.TaskSettlementDigest, Handler: digest.Handle},
		},
		Cron: cron,
	})
	if err != nil {
		logger.Error("build worker", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("worker started", slog.String("redis", cfg.RedisAddr))
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker stopped", slog.Any("error", err))
		os.Exit(1)
	}
}
