package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/npv2k1/open-gateway/internal/config"
	"github.com/npv2k1/open-gateway/internal/gateway"
	"github.com/npv2k1/open-gateway/internal/logging"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	configPath := flag.String("config", "configs/gateway.yaml", "Path to configuration file")
	showVersion := flag.Bool("version", false, "Show version information")
	validateOnly := flag.Bool("validate", false, "Validate configuration and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("open-gateway %s (built %s)\n", version, buildTime)
		os.Exit(0)
	}

	loader := config.NewLoader()
	cfg, err := loader.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if *validateOnly {
		fmt.Println("Configuration is valid")
		os.Exit(0)
	}

	logger, err := logging.NewWithOptions(cfg.Logging.Level, logging.Options{
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	logging.SetGlobal(logger)

	logging.Info("Starting gateway",
		zap.String("version", version),
		zap.String("config", *configPath),
		zap.Int("servers", len(cfg.Servers)),
		zap.Int("routes", len(cfg.Routes)),
	)

	gw, err := gateway.New(cfg, gateway.Options{Version: version})
	if err != nil {
		logging.Error("Failed to create gateway", zap.Error(err))
		os.Exit(1)
	}

	watcher, err := config.NewWatcher(*configPath)
	if err != nil {
		logging.Error("Failed to watch configuration", zap.Error(err))
		os.Exit(1)
	}
	watcher.OnChange(func(candidate *config.Config) {
		if err := gw.Reload(candidate); err != nil {
			logging.Warn("Keeping previous configuration", zap.Error(err))
		}
	})
	if err := watcher.Start(); err != nil {
		logging.Error("Failed to start configuration watcher", zap.Error(err))
		os.Exit(1)
	}
	defer watcher.Stop()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := gw.Run(ctx); err != nil {
		logging.Error("Gateway error", zap.Error(err))
		os.Exit(1)
	}
	logging.Info("Gateway stopped")
}
