package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/OCharnyshevich/planetgen/internal/server/config"
)

func main() {
	var (
		src = flag.String("src", "", "config source (path, https://, git::, s3:: ...)")
		out = flag.String("o", "./planet.yaml", "output file path")
	)
	flag.Parse()

	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	if *src == "" {
		log.Error("config source required")
		os.Exit(2)
	}
	if *out == "" {
		log.Error("output file path required")
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Info("start downloading config", "src", *src, "dst", *out)
	if err := config.Fetch(ctx, *src, *out); err != nil {
		log.Error("fetch config", "error", err)
		os.Exit(1)
	}

	cfg, err := config.Load(*out)
	if err != nil {
		log.Error("load fetched config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		log.Error("fetched config is invalid", "error", err)
		os.Exit(1)
	}
	log.Info("done downloading config", "dst", *out)
}
