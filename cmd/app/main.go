package main

import (
	"context"
	"flag"
	"log"
	"os"

	"PriceOpt/internal/di"
	"PriceOpt/pkg/config"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "config file path")
	flag.Parse()

	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	log.Printf("env=%s storage=%s kafka=%t clickhouse=%t competitor_feed=%t",
		cfg.Environment, cfg.Storage.Backend, cfg.Kafka.Enabled, cfg.ClickHouse.Enabled, cfg.Competitor.Enabled)

	app, err := di.InitializeApp(cfg)
	if err != nil {
		log.Fatalf("app initialization failed: %v", err)
	}

	// Run application (blocks until signal)
	if err := app.Run(context.Background()); err != nil {
		log.Printf("app error: %v", err)
		os.Exit(1)
	}
}
