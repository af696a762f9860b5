package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bpx/pkg/bpxhandler"
	"bpx/pkg/config"
	"bpx/pkg/diff"
	"bpx/pkg/resourcestore"
	"bpx/pkg/server"
	"bpx/pkg/session"
)

func main() {
	addr := flag.String("addr", "", "Listen address for the server (overrides config file)")
	configPath := flag.String("config", "", "Path to a YAML config file")
	flag.Parse()

	logger := log.New(os.Stderr, "[bpx] ", log.LstdFlags)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("config error: %v", err)
	}
	if *addr != "" {
		cfg.Addr = *addr
	}

	sessions := session.NewStore(session.Config{
		MaxSessions:            cfg.BPX.MaxSessions,
		MaxResourcesPerSession: cfg.BPX.MaxResourcesPerSession,
		SessionTTL:             cfg.BPX.SessionTTL.Duration(),
	})
	store := resourcestore.NewMemory(16)
	engine := diff.New(cfg.BPX.MaxDiffSize)
	handler := bpxhandler.New(sessions, engine, store, bpxhandler.Config{
		MinCompressionRatio: cfg.BPX.MinCompressionRatio,
		CacheTTL:            cfg.BPX.CacheTTL.Duration(),
	}, logger)

	srv := server.New(sessions, store, handler, cfg.BPX, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go runSweeper(ctx, sessions, cfg.BPX.CleanupInterval.Duration(), logger)

	logger.Printf("starting bpx on %s", cfg.Addr)
	if err := srv.Run(cfg.Addr); err != nil {
		logger.Fatalf("server error: %v", err)
	}
}

// runSweeper periodically reclaims idle sessions until ctx is
// cancelled. It runs as a single long-lived task, mirroring the
// server's own blocking Run loop.
func runSweeper(ctx context.Context, sessions *session.Store, interval time.Duration, logger *log.Logger) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := sessions.Sweep(); n > 0 {
				logger.Printf("sweeper: reclaimed %d idle session(s)", n)
			}
		}
	}
}
