package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"signal-systemv1/config"
	"signal-systemv1/internal/logger"
	"signal-systemv1/internal/sigengine"
)

func main() {
	cfg := config.Load()
	log := logger.Init("sigengine", logger.ParseLevel(cfg.LogLevel))

	pairs, err := cfg.LoadPairs()
	if err != nil {
		log.Error("pairs config invalid", "err", err)
		os.Exit(1)
	}
	names := make([]string, len(pairs))
	for i, p := range pairs {
		names[i] = p.Name
	}
	log.Info("pairs loaded", "pairs", names, "snapshot_interval", cfg.SnapshotInterval.String())

	svc, err := sigengine.Open(cfg, pairs)
	if err != nil {
		log.Error("init failed", "err", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		s := <-sigCh
		slog.Info("signal received", "signal", s.String())
		cancel()
	}()

	if err := svc.Run(ctx); err != nil {
		log.Error("fatal", "err", err)
		os.Exit(1)
	}
}
