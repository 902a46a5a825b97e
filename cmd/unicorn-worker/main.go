// Command unicorn-worker stores unicorns read from an SQS queue.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/baldanca/unicorn-api/app"
	"github.com/baldanca/unicorn-api/config"
	"github.com/baldanca/unicorn-api/logging"
)

func main() {
	cfg, err := config.Load()
	if err == nil {
		err = cfg.RequireQueue()
	}
	if err != nil {
		logging.New(slog.LevelInfo, "json").Error("load config", "error", err)
		os.Exit(1)
	}
	logger := logging.New(logging.ParseLevel(cfg.Logging.Level), cfg.Logging.Format)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("build service", "error", err)
		os.Exit(1)
	}

	src, err := a.NewSQSSource(ctx)
	if err != nil {
		logger.Error("build source", "error", err)
		os.Exit(1)
	}
	defer src.Close()

	logger.Info("consuming", "queue", cfg.SQS.QueueURL)
	if err := a.Ingestor.Consume(ctx, src); err != nil {
		logger.Error("consume", "error", err)
		src.Close()
		os.Exit(1)
	}
	logger.Info("worker stopped")
}
