// Command xmemory-web serves the XMemory web console.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/scrypster/xmemory/internal/config"
	"github.com/scrypster/xmemory/internal/logging"
	"github.com/scrypster/xmemory/internal/server"
	"github.com/scrypster/xmemory/internal/session"
	"go.uber.org/zap"
)

const (
	janitorInterval = time.Hour
	// Logged-out and expired session records are kept this long.
	inactiveSessionAge = 7 * 24 * time.Hour
)

func main() {
	configPath := flag.String("config", "", "Path to a YAML config file (default: $XMEMORY_CONFIG)")
	flag.Parse()

	if *configPath == "" {
		*configPath = os.Getenv("XMEMORY_CONFIG")
	}
	cfg, err := config.LoadConfigFile(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to initialize logging: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	// Setup context for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	addr, closeStore, err := startServer(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to start", zap.Error(err))
	}
	defer closeStore()
	logger.Info("XMemory console running", zap.String("url", "http://"+addr))

	<-ctx.Done()
	logger.Info("shutting down gracefully")
	time.Sleep(500 * time.Millisecond) // Give time for connections to close
}

// startServer opens the session store and starts the console. The returned
// func closes the store once the server has stopped.
func startServer(ctx context.Context, cfg *config.Config, logger *zap.Logger) (string, func(), error) {
	store, err := session.Open(cfg)
	if err != nil {
		return "", nil, fmt.Errorf("open session store: %w", err)
	}

	sessions := session.NewManager(store, logger)
	go sessions.RunJanitor(ctx, janitorInterval, inactiveSessionAge)

	addr, hub, err := server.Start(ctx, cfg, sessions, logger)
	if err != nil {
		_ = store.Close()
		return "", nil, err
	}

	return addr, func() {
		hub.Wait()
		if err := store.Close(); err != nil {
			logger.Warn("failed to close session store", zap.Error(err))
		}
	}, nil
}
