package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/akarazhev/crypto-scout-collector-sub000/config"
	"github.com/akarazhev/crypto-scout-collector-sub000/internal/logger"
	"github.com/akarazhev/crypto-scout-collector-sub000/internal/service"
)

func main() {
	configPath := flag.String("config", "config/collector.yml", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "collector: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.Init(logger.Options{
		Service: cfg.Service,
		Level:   cfg.Log.Level,
		Format:  cfg.Log.Format,
		Output:  cfg.Log.Output,
		MaxAge:  cfg.Log.MaxAge,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "collector: %v\n", err)
		os.Exit(1)
	}

	svc, err := service.New(cfg)
	if err != nil {
		log.WithError(err).Fatal("init failed")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := svc.Run(ctx); err != nil {
		log.WithError(err).Fatal("collector stopped")
	}
}
