package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"physio-predictor/internal/cfg"
	"physio-predictor/internal/ml"
	"physio-predictor/internal/pipeline"
	"physio-predictor/internal/report"
	"physio-predictor/internal/storage"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	var (
		filePath     = flag.String("file", "", "Recording to classify (.txt or .csv, semicolon separated)")
		bundlePath   = flag.String("bundle", "", "Artifact bundle to read, or to write when -pack is set")
		pack         = flag.Bool("pack", false, "Pack the artifacts directory into -bundle and exit")
		artifactsDir = flag.String("artifacts", "", "Artifacts directory (overrides config)")
		backend      = flag.String("backend", "", "Model backend: softmax or remote (overrides config)")
		remoteURL    = flag.String("remote-url", "", "Remote model server URL (overrides config)")
		topK         = flag.Int("top-k", 0, "Number of ranked classes to show (overrides config)")
		strictCells  = flag.Bool("strict-cells", false, "Reject recordings with unreadable cells instead of zero-filling them")
		outputPath   = flag.String("output", "", "Directory for prediction.txt, prediction.json and ranking.csv")
		jsonOut      = flag.Bool("json", false, "Print the JSON response instead of the text report")
		logLevel     = flag.String("log-level", "warn", "Log level: debug, info, warn, error")
	)
	flag.Parse()

	level, err := zerolog.ParseLevel(*logLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	config, err := cfg.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	// Override config with command line arguments
	if *artifactsDir != "" {
		config.ArtifactsDir = *artifactsDir
	}
	if *bundlePath != "" {
		config.BundlePath = *bundlePath
	}
	if *backend != "" {
		config.ModelBackend = *backend
	}
	if *remoteURL != "" {
		config.RemoteModelURL = *remoteURL
	}
	if *topK > 0 {
		config.TopK = *topK
	}
	if *strictCells {
		config.StrictCells = true
	}

	if *pack {
		if err := packBundle(config.ArtifactsDir, config.BundlePath); err != nil {
			log.Fatal().Err(err).Msg("Failed to pack bundle")
		}
		fmt.Printf("Packed %s into %s\n", config.ArtifactsDir, config.BundlePath)
		return
	}

	if *filePath == "" {
		fmt.Fprintln(os.Stderr, "usage: classify -file recording.txt [-artifacts dir | -bundle file.db]")
		fmt.Fprintln(os.Stderr, "       classify -pack -artifacts dir -bundle file.db")
		os.Exit(pipeline.ExitUsage)
	}

	os.Exit(classify(config, *filePath, *outputPath, *jsonOut, os.Stdout))
}

func packBundle(dir, bundlePath string) error {
	if bundlePath == "" {
		return errors.New("-bundle is required with -pack")
	}
	src := ml.DirSource{Dir: dir}

	// Refuse to pack something the server would not load
	if _, err := ml.Load(context.Background(), src, ml.LoadOptions{}); err != nil {
		return err
	}

	b, err := storage.Create(bundlePath)
	if err != nil {
		return err
	}
	if err := storage.Pack(b, src); err != nil {
		b.Close()
		return err
	}
	return b.Close()
}

// classify runs one recording through the pipeline and returns the process
// exit code.
func classify(config cfg.Settings, filePath, outputPath string, jsonOut bool, out io.Writer) int {
	raw, err := os.ReadFile(filePath)
	if err != nil {
		log.Error().Err(err).Str("file", filePath).Msg("Failed to read recording")
		return pipeline.ExitFailure
	}

	ctx, cancel := context.WithTimeout(context.Background(), config.RemoteTimeout+30*time.Second)
	defer cancel()

	src, closer, err := storage.OpenSource(config.ArtifactsDir, config.BundlePath)
	if err != nil {
		log.Error().Err(err).Msg("Model artifacts could not be opened")
		return pipeline.ExitFailure
	}
	defer closer.Close()

	artifacts, err := ml.Load(ctx, src, ml.LoadOptions{
		Backend:       config.ModelBackend,
		RemoteURL:     config.RemoteModelURL,
		RemoteTimeout: config.RemoteTimeout,
	})
	if err != nil {
		log.Error().Err(err).Msg("Model artifacts could not be loaded")
		return pipeline.ExitFailure
	}

	p := pipeline.New(artifacts, pipeline.Options{TopK: config.TopK, StrictCells: config.StrictCells}, nil)
	res, err := p.Run(ctx, raw)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return pipeline.ExitCode(err)
	}

	rep := report.NewReporter(res, filepath.Base(filePath))
	if jsonOut {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(rep.Response()); err != nil {
			log.Error().Err(err).Msg("Failed to encode response")
			return pipeline.ExitFailure
		}
	} else if err := rep.WriteText(out); err != nil {
		log.Error().Err(err).Msg("Failed to write report")
		return pipeline.ExitFailure
	}

	if outputPath != "" {
		if err := rep.WriteFiles(outputPath); err != nil {
			log.Error().Err(err).Msg("Failed to write report files")
			return pipeline.ExitFailure
		}
	}
	return pipeline.ExitOK
}
