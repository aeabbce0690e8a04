package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"gemscope/internal/api"
	"gemscope/internal/blob"
	"gemscope/internal/cfg"
	"gemscope/internal/jobs"
	"gemscope/internal/metrics"
	"gemscope/internal/model"
	"gemscope/internal/registry"
	"gemscope/internal/storage"
	"gemscope/internal/warehouse"
)

func main() {
	c, err := cfg.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}
	setupLogging(c.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.New()
	mw := metrics.NewWrapper(m)

	store, err := storage.New(c.MetaDBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", c.MetaDBPath).Msg("metadata store unavailable")
	}
	defer store.Close()

	blobs, err := blob.NewStore(c.BlobDir, c.BlobBucket)
	if err != nil {
		log.Fatal().Err(err).Str("dir", c.BlobDir).Msg("blob store unavailable")
	}

	whClient, err := warehouse.NewClient(c.WarehousePath)
	if err != nil {
		log.Fatal().Err(err).Str("path", c.WarehousePath).Msg("warehouse unavailable")
	}
	defer whClient.Close()

	cache := model.NewLRUCache(c.ModelCacheSize, c.ModelCacheTTL, mw)
	tracker := jobs.NewTracker(store, c.JobRetention, mw)
	defer tracker.Stop()
	runner := jobs.NewRunner(tracker, c.JobWorkers, c.JobQueueSize, mw)
	defer runner.Stop()

	srv := api.New(c, api.Deps{
		Store:     store,
		Blobs:     blobs,
		Signer:    blob.NewSigner(c.SignSecret),
		Warehouse: warehouse.New(whClient),
		Models:    model.NewManager(store, blobs, cache, mw),
		Cache:     cache,
		Registry: registry.New(registry.Config{
			BaseURL: c.RegistryBaseURL,
			AppID:   c.RegistryAppID,
			Token:   c.RegistryToken,
			Timeout: c.RegistryTimeout,
		}, mw),
		Tracker: tracker,
		Runner:  runner,
		Metrics: m,
	})
	srv.Start()

	startMetricsServer(ctx, c)

	log.Info().
		Int("apiPort", c.APIPort).
		Int("metricsPort", c.MetricsPort).
		Str("blobDir", c.BlobDir).
		Str("warehouse", c.WarehousePath).
		Bool("registry", c.RegistryEnabled()).
		Msg("gemscope is up")

	waitForShutdown(ctx)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("API shutdown failed")
	}
	log.Info().Msg("gemscope stopped")
}

func setupLogging(levelName string) {
	level, err := zerolog.ParseLevel(levelName)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}

// startMetricsServer serves Prometheus metrics and a liveness probe on
// the metrics port, separate from the API listener.
func startMetricsServer(ctx context.Context, c cfg.Settings) {
	go func() {
		mux := http.NewServeMux()
		mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("OK"))
		})
		mux.Handle("/metrics", promhttp.Handler())

		server := &http.Server{
			Addr:              fmt.Sprintf(":%d", c.MetricsPort),
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		}

		go func() {
			<-ctx.Done()
			if err := server.Shutdown(context.Background()); err != nil {
				log.Error().Err(err).Msg("failed to shutdown metrics server")
			}
		}()

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("metrics server failed")
		}
	}()
}

// waitForShutdown blocks until an interrupt arrives or the root context
// is canceled.
func waitForShutdown(ctx context.Context) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.Info().Str("signal", sig.String()).Msg("shutdown signal received")
	case <-ctx.Done():
		log.Info().Msg("context canceled")
	}
}
