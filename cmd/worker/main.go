package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/JLAD75/FileGuard/internal/backend"
	"github.com/JLAD75/FileGuard/internal/cleanup"
	"github.com/JLAD75/FileGuard/internal/configuration"
	"github.com/JLAD75/FileGuard/internal/queue"
	"github.com/JLAD75/FileGuard/internal/scan"
	"github.com/JLAD75/FileGuard/internal/store"
)

// The worker consumes scan and cleanup jobs from JetStream, decoupled from
// request latency in the HTTP process.
func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}
	cfg := configuration.Load()

	st, err := store.NewPostgresStore(cfg.Database.ConnectionString())
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	be, err := backend.Select(cfg.Backend)
	if err != nil {
		log.Fatalf("Failed to initialize storage backend: %v", err)
	}

	jobs, err := queue.Connect(cfg.NATSURL)
	if err != nil {
		log.Fatalf("Failed to connect to NATS: %v", err)
	}
	defer jobs.Close()

	scanner := scan.NewClamAVScanner(cfg.ClamAV.Address, cfg.ClamAV.Timeout)
	orchestrator := scan.NewOrchestrator(st, be, scanner, cfg.ClamAV.Enabled)
	janitor := cleanup.NewJanitor(st, be)

	if _, err := jobs.ConsumeScans("scan-workers", orchestrator.ProcessJob); err != nil {
		log.Fatalf("Failed to subscribe to scan jobs: %v", err)
	}
	if _, err := jobs.ConsumeCleanups("cleanup-workers", func(ctx context.Context, job queue.CleanupJob) error {
		_, err := janitor.Run(ctx, job.Days)
		return err
	}); err != nil {
		log.Fatalf("Failed to subscribe to cleanup jobs: %v", err)
	}

	log.Println("Worker started, waiting for jobs...")

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c
	log.Println("Shutting down gracefully...")
}
