package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/BearBump/RekaTrack/config"
	"github.com/BearBump/RekaTrack/internal/logging"
	"github.com/pkg/errors"
)

func main() {
	cfg, err := config.LoadConfig(os.Getenv("configPath"))
	if err != nil {
		panic(fmt.Sprintf("ошибка парсинга конфига, %v", err))
	}
	logging.Setup(cfg.Log, os.Stderr)

	swaggerPath := os.Getenv("swaggerPath")
	if swaggerPath == "" {
		swaggerPath = cfg.Agent.SwaggerPath
	}
	if swaggerPath == "" {
		swaggerPath = "api/swagger/agent.json"
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	err = RunTracerAgent(ctx, cfg, defaultAgentFactories(), agentHTTPOpts{
		httpAddr:    cfg.Agent.HTTPAddr,
		swaggerPath: swaggerPath,
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("tracer agent stopped", "error", err.Error())
		os.Exit(1)
	}
}
