package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"

	"scrivener/internal/api"
	"scrivener/internal/config"
	"scrivener/internal/daemon"
	"scrivener/internal/entities"
	"scrivener/internal/logging"
	"scrivener/internal/mcp"
	"scrivener/internal/queue"
	"scrivener/internal/worker"
)

func main() {
	configPath := flag.String("config", "", "configuration file path")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, _, _, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		log.Fatalf("prepare directories: %v", err)
	}

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}

	store, err := queue.Open(cfg)
	if err != nil {
		logger.Error("open queue store", logging.Error(err))
		return
	}

	engine, err := buildEngine(cfg)
	if err != nil {
		logger.Error("build pipeline engine", logging.Error(err))
		return
	}
	scanner := worker.New(cfg, store, engine, nil, logger)

	entityStore, err := entities.OpenFile(cfg.EntitiesPath)
	if err != nil {
		logger.Error("open entity store", logging.Error(err))
		return
	}

	queueSvc := api.NewQueueService(cfg, store, logger)
	mcpSrv := mcp.NewServer(cfg, mcp.NewRegistry(), queueSvc, scanner, entityStore, store, logger)

	d, err := daemon.New(cfg, store, scanner, mcpSrv, logger)
	if err != nil {
		logger.Error("create daemon", logging.Error(err))
		return
	}
	defer d.Close()

	if err := d.Start(ctx); err != nil {
		logger.Error("daemon start", logging.Error(err))
		return
	}

	<-ctx.Done()
	logger.Info("scrivenerd shutting down")
}
