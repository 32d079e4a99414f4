package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"physio-predictor/internal/cfg"
	"physio-predictor/internal/metrics"
	"physio-predictor/internal/ml"
	"physio-predictor/internal/pipeline"
	"physio-predictor/internal/server"
	"physio-predictor/internal/storage"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	c, err := cfg.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}
	zerolog.SetGlobalLevel(c.Level())
	if c.Level() > zerolog.DebugLevel {
		gin.SetMode(gin.ReleaseMode)
	}

	// Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	artifacts := loadArtifacts(ctx, c)

	m := metrics.New()
	mw := metrics.NewWrapper(m)
	mw.ModelClassesSet(len(artifacts.Info().Classes))

	p := pipeline.New(artifacts, pipeline.Options{
		TopK:        c.TopK,
		StrictCells: c.StrictCells,
	}, mw)

	srv := server.New(p, server.Options{
		Port:           c.Port,
		MaxUploadBytes: c.MaxUploadBytes,
		MetricsEnabled: c.MetricsEnabled,
		Gatherer:       prometheus.DefaultGatherer,
	})

	go func() {
		if err := srv.Start(); err != nil {
			log.Error().Err(err).Msg("prediction server failed")
			cancel()
		}
	}()

	waitForShutdown(ctx, cancel, srv, c)
}

// loadArtifacts loads the scaler, model and labels once. The server cannot
// work without them, so any failure ends the process.
func loadArtifacts(ctx context.Context, c cfg.Settings) *ml.Artifacts {
	src, closer, err := storage.OpenSource(c.ArtifactsDir, c.BundlePath)
	if err != nil {
		log.Fatal().Err(err).Msg("model artifacts could not be opened")
	}
	defer closer.Close()

	artifacts, err := ml.Load(ctx, src, ml.LoadOptions{
		Backend:       c.ModelBackend,
		RemoteURL:     c.RemoteModelURL,
		RemoteTimeout: c.RemoteTimeout,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("model artifacts could not be loaded, check the artifacts directory or bundle")
	}
	return artifacts
}

func waitForShutdown(ctx context.Context, cancel context.CancelFunc, srv *server.Server, c cfg.Settings) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigChan:
		log.Info().Msg("shutdown signal received")
	case <-ctx.Done():
		log.Info().Msg("context canceled")
	}

	log.Info().Msg("shutting down gracefully...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), c.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("shutdown timeout, forcing exit")
		return
	}
	log.Info().Msg("server stopped")
}
