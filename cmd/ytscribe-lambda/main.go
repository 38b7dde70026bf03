// Package main is the entry point for the transcription Lambda function.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"

	"github.com/jo-hoe/ytscribe/internal/app"
	appcfg "github.com/jo-hoe/ytscribe/internal/config"
	"github.com/jo-hoe/ytscribe/internal/lambdaapi"
)

func main() {
	cfg, err := appcfg.Load("")
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}
	logger := app.NewLogger(os.Stdout, cfg.Server)
	slog.SetDefault(logger)

	a, err := app.New(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("init app", "err", err)
		os.Exit(1)
	}
	defer func() { _ = a.Close() }()

	lambda.Start(lambdaapi.New(logger, a.Handler).Handle)
}
