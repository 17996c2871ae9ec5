package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"ConfluenceCal/internal/di"
	"ConfluenceCal/pkg/config"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "config file path")
	check := flag.Bool("check", false, "validate the config and exit")
	flag.Parse()

	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	if *check {
		fmt.Printf("config ok: env=%s clickhouse=%t redis=%t kafka=%t symbols=%v schedule=%s\n",
			cfg.Environment, cfg.ClickHouse.Enabled, cfg.Redis.Enabled, cfg.Kafka.Enabled,
			cfg.Calibration.Symbols, cfg.Calibration.Schedule)
		return
	}

	app, err := di.InitializeApp(cfg)
	if err != nil {
		log.Fatalf("app initialization failed: %v", err)
	}

	// blocks until SIGINT/SIGTERM
	if err := app.Run(); err != nil {
		log.Printf("app error: %v", err)
		os.Exit(1)
	}
}
