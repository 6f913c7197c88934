package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dverett/pricefeed-backend/internal/api"
	"github.com/dverett/pricefeed-backend/internal/backfill"
	"github.com/dverett/pricefeed-backend/internal/config"
	"github.com/dverett/pricefeed-backend/internal/db"
	"github.com/dverett/pricefeed-backend/internal/external"
	"github.com/dverett/pricefeed-backend/internal/notifications"
	"github.com/dverett/pricefeed-backend/internal/objectstore"
	"github.com/dverett/pricefeed-backend/internal/progress"
	"github.com/dverett/pricefeed-backend/internal/repository"
	"github.com/dverett/pricefeed-backend/internal/scheduler"
	"github.com/dverett/pricefeed-backend/internal/worker"
)

const banner = `
╔══════════════════════════════════════╗
║     Pricefeed Backend v0.3           ║
║     daily bars + historical backfill ║
╚══════════════════════════════════════╝
`

func main() {
	fmt.Print(banner)

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load error: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	cfg.Print()

	// Database
	fmt.Printf("\n[DB] Connecting to %s:%d/%s ...\n", cfg.DBHost, cfg.DBPort, cfg.DBName)
	pool, err := db.Connect(cfg.DSN())
	if err != nil {
		fmt.Fprintf(os.Stderr, "[DB] Connection failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		pool.Close()
		fmt.Println("[DB] Connection pool closed")
	}()

	if err := db.TestConnection(pool); err != nil {
		fmt.Fprintf(os.Stderr, "[DB] Test query failed: %v\n", err)
		os.Exit(1)
	}

	// Object store
	fmt.Printf("[STORE] Connecting to %s (bucket %s) ...\n", cfg.StoreEndpoint, cfg.StoreBucket)
	objects, err := objectstore.NewMinioStore(objectstore.MinioConfig{
		Endpoint:  cfg.StoreEndpoint,
		AccessKey: cfg.StoreAccessKey,
		SecretKey: cfg.StoreSecretKey,
		Bucket:    cfg.StoreBucket,
		UseSSL:    cfg.StoreUseSSL,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "[STORE] Connection failed: %v\n", err)
		os.Exit(1)
	}

	// Repos and services
	barRepo := repository.NewBarRepo(pool)
	progressStore := progress.NewStore(objects, cfg.CheckpointPrefix)
	notify := notifications.NewSender(cfg.WebhookURL, cfg.ServiceName)

	// The in-process worker always exists: it backs the daily scrape and
	// the /v1/worker/fetch endpoint even when chunk fetches go remote.
	tiingo := external.NewTiingoClient(cfg.TiingoAPIKey, external.TiingoOptions{})
	localWorker := worker.New(tiingo, objects, barRepo)

	// Chunk fetches go to a remote worker deployment when configured.
	var fetcher backfill.Fetcher = localWorker
	if cfg.WorkerURL != "" {
		fetcher = worker.NewHTTPInvoker(cfg.WorkerURL, cfg.APIKey)
		fmt.Printf("[BACKFILL] Using remote worker at %s\n", cfg.WorkerURL)
	}

	orch := backfill.New(progressStore, fetcher, notify, backfill.Config{
		ChunkSpanDays: cfg.ChunkSpanDays,
		TargetStart:   cfg.TargetStartDate,
		Timeout:       cfg.WorkerTimeout,
	})

	// Graceful shutdown context
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 1. API server
	srv := api.NewServer(pool, objects, orch, localWorker, cfg.Symbols, cfg.APIPort, cfg.APIKey, cfg.CORSAllowOrigin)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fmt.Fprintf(os.Stderr, "[API] Server error: %v\n", err)
			os.Exit(1)
		}
	}()

	// 2. Backfill scheduler (the periodic trigger; each tick is one
	// independent, restartable invocation)
	backfillSched := scheduler.NewBackfillScheduler(orch, scheduler.BackfillSchedulerConfig{
		Interval:         cfg.BackfillInterval,
		Symbols:          cfg.Symbols,
		InvocationBudget: cfg.WorkerTimeout + 5*time.Minute,
	})
	backfillSched.Start()

	// 3. Daily scrape scheduler
	dailySched := scheduler.NewDailyScheduler(localWorker, scheduler.DailySchedulerConfig{
		Interval: cfg.DailyInterval,
		Symbols:  cfg.Symbols,
	})
	dailySched.Start()

	fmt.Println("\nAll services started successfully")

	// Wait for shutdown signal
	<-ctx.Done()
	fmt.Println("\nShutting down gracefully...")

	dailySched.Stop()
	backfillSched.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		fmt.Fprintf(os.Stderr, "[API] Shutdown error: %v\n", err)
	}
	fmt.Println("[API] Server closed")
	fmt.Println("Shutdown complete")
}
