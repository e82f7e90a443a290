package main

import (
	"flag"
	"log"
	"os"

	"FinSignal/internal/di"
	"FinSignal/pkg/config"
)

func main() {
	// Parse flags
	configPath := flag.String("config", "configs/config.yaml", "config file path")
	flag.Parse()

	// Load config
	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	log.Printf("env=%s feed=%s store=%s generators=%v", cfg.Environment, cfg.Feed.Type, cfg.Store.Type, cfg.EnabledGenerators())

	// Wire DI: Initialize all dependencies
	app, err := di.InitializeApp(cfg)
	if err != nil {
		log.Fatalf("app initialization failed: %v", err)
	}

	// Run application (blocks until signal)
	if err := app.Run(); err != nil {
		log.Printf("app error: %v", err)
		os.Exit(1)
	}
}
