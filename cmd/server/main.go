// File: cmd/server/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"log" // Standard log for critical startup/shutdown messages before/after zap is active
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"onboarding_backend/internal/config"
	"onboarding_backend/internal/dashboard"
)

const usage = `usage: server [command]

commands:
  serve            run the HTTP server (default)
  seed-customers   insert the starter customers into an empty directory
  sync-customers   re-index every customer into Elasticsearch
`

func main() {
	cmd := "serve"
	if len(os.Args) > 1 {
		cmd = os.Args[1]
	}

	switch cmd {
	case "serve":
		startServer()
	case "seed-customers", "sync-customers":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		timeout := fs.Duration("timeout", 5*time.Minute, "Maximum run time of the command")
		_ = fs.Parse(os.Args[2:])
		if err := runDirectoryCommand(cmd, *timeout); err != nil {
			log.Fatalf("FATAL: %s failed: %v", cmd, err)
		}
	case "-h", "--help", "help":
		fmt.Print(usage)
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
}

func startServer() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}

	server, cleanup, err := initializeServer(cfg)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize server: %v", err)
	}
	defer cleanup()

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		log.Printf("INFO: Received signal '%s'. Shutting down server...", sig)
	case err := <-serverErr:
		if err != nil {
			log.Printf("ERROR: Server failed: %v", err)
		}
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.ServerTimeout)
	defer cancelShutdown()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("ERROR: Server forced to shutdown due to error: %v", err)
	} else {
		log.Println("INFO: Server shutdown complete.")
	}
}

// runDirectoryCommand runs a one-off maintenance command against the customer directory.
func runDirectoryCommand(cmd string, timeout time.Duration) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	appLogger, flush, err := provideLogger(cfg)
	if err != nil {
		return fmt.Errorf("initialize logger: %w", err)
	}
	defer flush()

	db, closeDB, err := provideDatabase(cfg, appLogger)
	if err != nil {
		return err
	}
	defer closeDB()

	searcher, err := provideSearcher(cfg, appLogger)
	if err != nil {
		return err
	}
	svc := dashboard.NewService(dashboard.NewGORMRepository(db), searcher, cfg, appLogger)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	switch cmd {
	case "seed-customers":
		n, err := svc.Seed(ctx)
		if err != nil {
			return err
		}
		appLogger.Info("Seed finished", zap.Int("customers_added", n))
	case "sync-customers":
		n, err := svc.SyncSearchIndex(ctx)
		if err != nil {
			return err
		}
		appLogger.Info("Customer synchronization completed successfully.", zap.Int("customers_indexed", n))
	}
	return nil
}
