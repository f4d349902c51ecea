package main

import (
	"context"
	"flag"
	"os"
	"strings"

	"github.com/Temutjin2k/hust-run/config"
	"github.com/Temutjin2k/hust-run/internal/app"
	"github.com/Temutjin2k/hust-run/internal/domain/types"
	"github.com/Temutjin2k/hust-run/pkg/logger"
)

var (
	helpFlag   = flag.Bool("help", false, "Show help message")
	configPath = flag.String("config-path", "config.yaml", "Path to the config yaml file")
)

func main() {
	flag.Parse()
	if *helpFlag {
		config.PrintHelp()
		return
	}

	ctx := context.Background()
	// stdout carries the mode result, logs go to stderr
	log := logger.New(os.Stderr, "hust-run", logger.LevelInfo)

	cfg, err := config.NewConfig(*configPath)
	if err != nil {
		log.Error(ctx, "failed to configure application", err)
		config.PrintHelp()
		os.Exit(2)
	}

	if cfg.Mode == types.RunMode {
		config.PrintConfig(cfg)
	}

	log = logger.New(os.Stderr, "hust-run-"+string(cfg.Mode), strings.ToUpper(cfg.Log.Level))

	application, err := app.NewApplication(ctx, *cfg, log)
	if err != nil {
		log.Error(ctx, "failed to init application", err)
		os.Exit(1)
	}

	if err = application.Run(ctx); err != nil {
		log.Error(ctx, "failed to run application", err)
		os.Exit(1)
	}
}
