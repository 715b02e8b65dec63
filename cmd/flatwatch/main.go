package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/flatwatch/flatwatch/internal/api"
	"github.com/flatwatch/flatwatch/internal/buildinfo"
	"github.com/flatwatch/flatwatch/internal/config"
	"github.com/flatwatch/flatwatch/internal/dedupe"
	"github.com/flatwatch/flatwatch/internal/feed"
	"github.com/flatwatch/flatwatch/internal/janitor"
	"github.com/flatwatch/flatwatch/internal/monitor"
	"github.com/flatwatch/flatwatch/internal/normalize"
	"github.com/flatwatch/flatwatch/internal/notify"
	"github.com/flatwatch/flatwatch/internal/provider"
	"github.com/flatwatch/flatwatch/internal/store"
)

func main() {
	// 1. Load and validate environment config
	cfg, err := config.LoadEnvConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}

	log.Printf("flatwatch %s (%s, built %s)", buildinfo.Version, buildinfo.GitCommit, buildinfo.BuildTime)

	// 2. Open the store; a broken database is fatal
	if err := os.MkdirAll(cfg.StateDir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: create state dir: %v\n", err)
		os.Exit(1)
	}
	st, err := store.Open(filepath.Join(cfg.StateDir, "flatwatch.db"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: open store: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	// 3. Warm the known-listing set so restarts do not re-notify
	ids, err := st.KnownSurrogateIDs()
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: load known listings: %v\n", err)
		os.Exit(1)
	}
	known := dedupe.NewKnownSet()
	known.Warm(ids)
	log.Printf("known set warmed with %d listings", known.Len())

	// 4. Wire adapters, optionally overridden by the provider registry
	var specs []config.ProviderSpec
	if cfg.ProvidersFile != "" {
		specs, err = config.LoadProviderRegistry(cfg.ProvidersFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
			os.Exit(1)
		}
	}
	httpClient := &http.Client{Timeout: cfg.ActorTimeout}
	adapters := provider.BuildAdapters(*cfg, specs, httpClient)
	if len(adapters) == 0 {
		fmt.Fprintln(os.Stderr, "fatal: no provider adapters enabled")
		os.Exit(1)
	}

	// 5. Notification dispatcher and ingestion loop
	dispatcher := notify.NewDispatcher(notify.LogSender{}, st, cfg.NotifyThrottle, cfg.MaxNotifyPerCycle)
	enricher := normalize.NewEnricher(&http.Client{Timeout: cfg.EnrichTimeout}, cfg.EnrichTimeout)

	sched := monitor.New(monitor.Config{
		DefaultCity:         cfg.DefaultCity,
		MaxPriceCap:         cfg.MaxPriceCap,
		CheckIntervalNormal: cfg.CheckIntervalNormal,
		CheckIntervalQuiet:  cfg.CheckIntervalQuiet,
		QuietHours:          cfg.QuietHours,
		Workers:             cfg.Workers,
		MaxApartmentsPerJob: cfg.MaxApartmentsPerJob,
	}, st, adapters, known, dispatcher, enricher)

	if err := sched.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: start scheduler: %v\n", err)
		os.Exit(1)
	}

	// 6. Retention janitor
	jan := janitor.New(st, cfg.JanitorSchedule, time.Duration(cfg.RetentionDays)*24*time.Hour)
	if err := jan.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}

	// 7. Operational HTTP API
	feedSvc := feed.New(st, adapters, cfg.FeedCacheTTL, 256)
	srv := api.NewServer(cfg.APIPort, sched, feedSvc)
	go func() {
		log.Printf("api listening on :%d", cfg.APIPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("api server: %v", err)
		}
	}()

	// 8. Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Printf("received signal %s, shutting down...", sig)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("api shutdown: %v", err)
	}
	jan.Stop()
	if err := sched.Stop(); err != nil {
		log.Printf("scheduler stop: %v", err)
	}
	log.Println("stopped")
}
