package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/OCharnyshevich/planetgen/internal/server"
	"github.com/OCharnyshevich/planetgen/internal/server/config"
)

func main() {
	cfg := config.DefaultConfig()

	configSrc := flag.String("config", "", "config file or remote source (https://, git::, s3:: ...)")
	flag.StringVar(&cfg.Listen, "listen", cfg.Listen, "listen address")
	flag.Int64Var(&cfg.Seed, "seed", cfg.Seed, "world seed (0 = random)")
	flag.IntVar(&cfg.ChunkSize, "chunk-size", cfg.ChunkSize, "chunk edge length in voxels")
	flag.IntVar(&cfg.CacheLimit, "cache-limit", cfg.CacheLimit, "generated chunks kept in memory")
	flag.IntVar(&cfg.PreGenRadius, "pregen-radius", cfg.PreGenRadius, "chunks around spawn generated at startup (-1 = none)")
	flag.IntVar(&cfg.MaxInFlight, "max-in-flight", cfg.MaxInFlight, "concurrent chunk requests per connection")
	flag.StringVar(&cfg.StoragePath, "storage", cfg.StoragePath, "sqlite file for block edits (empty = none)")
	flag.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "debug, info, warn or error")
	flag.IntVar(&cfg.SpawnY, "spawn-y", cfg.SpawnY, "minimum spawn height")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	boot := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	if *configSrc != "" {
		explicit := make(map[string]bool)
		flag.Visit(func(f *flag.Flag) { explicit[f.Name] = true })

		cacheDir := filepath.Join(os.TempDir(), "planetgen")
		fromFile, err := config.LoadSource(ctx, *configSrc, cacheDir)
		if err != nil {
			boot.Error("load config", "error", err)
			os.Exit(1)
		}
		config.Merge(cfg, fromFile, explicit)
		boot.Info("loaded config", "src", *configSrc)
	}

	level, err := cfg.Level()
	if err != nil {
		boot.Error("invalid config", "error", err)
		os.Exit(1)
	}
	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))

	srv, err := server.New(ctx, cfg, log)
	if err != nil {
		log.Error("create server", "error", err)
		os.Exit(1)
	}
	if err := srv.Start(ctx); err != nil {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
}
