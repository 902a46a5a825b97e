// Command unicorn-lambda serves the Unicorn API from AWS Lambda behind API
// Gateway or a function URL.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"

	"github.com/baldanca/unicorn-api/app"
	"github.com/baldanca/unicorn-api/config"
	"github.com/baldanca/unicorn-api/lambdaproxy"
	"github.com/baldanca/unicorn-api/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.New(slog.LevelInfo, "json").Error("load config", "error", err)
		os.Exit(1)
	}
	logger := logging.New(logging.ParseLevel(cfg.Logging.Level), cfg.Logging.Format)
	slog.SetDefault(logger)

	a, err := app.New(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("build service", "error", err)
		os.Exit(1)
	}

	lambda.Start(lambdaproxy.New(a.Handler).Handle)
}
