// Copyright 2026 The Sideline Authors
// SPDX-License-Identifier: Apache-2.0

// sideline-orchestrator runs the Sideline pipeline: it consumes meeting
// transcript fragments from the event log, extracts entities, fans out
// enrichment lookups, synthesizes talking points, and publishes the
// ranked results back onto the log for any subscriber to render.
//
// Configuration comes from a single YAML file, named by --config or the
// SIDELINE_CONFIG environment variable. The process runs until SIGINT
// or SIGTERM, then drains in-flight work before exiting.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/sideline-ai/sideline/agent"
	"github.com/sideline-ai/sideline/agent/enrich"
	"github.com/sideline-ai/sideline/agent/extract"
	"github.com/sideline-ai/sideline/agent/rank"
	"github.com/sideline-ai/sideline/agent/synth"
	"github.com/sideline-ai/sideline/capture"
	"github.com/sideline-ai/sideline/eventlog"
	"github.com/sideline-ai/sideline/lib/config"
	"github.com/sideline-ai/sideline/lib/logging"
	"github.com/sideline-ai/sideline/lib/version"
	"github.com/sideline-ai/sideline/orchestrator"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var configPath string
	var captureSession string
	var showVersion bool

	flags := pflag.NewFlagSet("sideline-orchestrator", pflag.ContinueOnError)
	flags.StringVar(&configPath, "config", "", "path to sideline.yaml (default: $SIDELINE_CONFIG)")
	flags.StringVar(&captureSession, "capture-session", "", "also read transcript fragments from stdin into this session")
	flags.BoolVar(&showVersion, "version", false, "print version and exit")
	if err := flags.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}

	if showVersion {
		fmt.Printf("sideline-orchestrator %s\n", version.Info())
		return nil
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log, err := eventlog.Open(eventlog.Config{
		Path:                cfg.Bus.Path,
		PoolSize:            cfg.Bus.PoolSize,
		PollInterval:        cfg.Bus.PollInterval.Std(),
		MaxDeliveryAttempts: cfg.Bus.MaxDeliveryAttempts,
		Logger:              logger,
	})
	if err != nil {
		return err
	}
	defer log.Close()

	enrichers, cacheCleanup, err := buildEnrichers(cfg.Enrichment, logger)
	if err != nil {
		return err
	}
	defer cacheCleanup()

	synthesizer, err := buildSynthesizer(cfg.Synthesis, logger)
	if err != nil {
		return err
	}

	orch, err := orchestrator.New(orchestrator.Config{
		Log:          log,
		Extractor:    extract.New(),
		Enrichers:    enrichers,
		Synthesizer:  synthesizer,
		Ranker:       rank.New(),
		Workers:      cfg.Orchestrator.Workers,
		JobTimeout:   cfg.Orchestrator.JobTimeout.Std(),
		ConsumerName: cfg.Orchestrator.ConsumerName,
		Logger:       logger,
	})
	if err != nil {
		return err
	}
	if err := orch.Start(ctx); err != nil {
		return err
	}

	if captureSession != "" {
		bridge, err := capture.New(capture.Config{
			Publisher: log,
			SessionID: captureSession,
			Logger:    logger,
		})
		if err != nil {
			return err
		}
		go func() {
			if err := bridge.Run(ctx, os.Stdin); err != nil && ctx.Err() == nil {
				logger.Error("stdin capture stopped", "error", err)
			}
		}()
	}

	logger.Info("orchestrator running",
		"bus", cfg.Bus.Path,
		"consumer", cfg.Orchestrator.ConsumerName,
		"workers", cfg.Orchestrator.Workers,
		"enrichers", len(enrichers),
	)

	<-ctx.Done()
	logger.Info("shutting down")
	orch.Drain()
	return nil
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}

// buildEnrichers assembles the enrichment collaborators the config
// enables. The company profile agent is always present (Wikipedia needs
// no endpoint); the rest require an endpoint. The returned cleanup
// closes the shared lookup cache.
func buildEnrichers(cfg config.EnrichmentConfig, logger *slog.Logger) ([]agent.Enricher, func(), error) {
	cleanup := func() {}
	base := enrich.Config{
		HTTPClient: &http.Client{Timeout: cfg.Timeout.Std()},
		Logger:     logger,
	}
	if cfg.CachePath != "" {
		cache, err := enrich.OpenCache(cfg.CachePath, nil, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("opening enrichment cache: %w", err)
		}
		base.Cache = cache
		cleanup = func() { cache.Close() }
	}

	enrichers := []agent.Enricher{enrich.NewProfile(base, cfg.WikipediaBaseURL)}
	if cfg.NewsEndpoint != "" {
		enrichers = append(enrichers, enrich.NewNews(base, cfg.NewsEndpoint))
	}
	if cfg.CompetitorsEndpoint != "" {
		enrichers = append(enrichers, enrich.NewCompetitors(base, cfg.CompetitorsEndpoint))
	}
	if cfg.PersonEndpoint != "" {
		enrichers = append(enrichers, enrich.NewPerson(base, cfg.PersonEndpoint))
	}
	return enrichers, cleanup, nil
}

// buildSynthesizer returns the LLM client, or a stub that fails every
// call when no base URL is configured. The orchestrator turns each
// failure into the canned fallback suggestion, so a Sideline without an
// LLM still produces output.
func buildSynthesizer(cfg config.SynthesisConfig, logger *slog.Logger) (agent.Synthesizer, error) {
	if cfg.BaseURL == "" {
		logger.Warn("synthesis.base_url not configured; suggestions will use the fallback")
		return unconfiguredSynthesizer{}, nil
	}
	return synth.New(synth.Config{
		BaseURL:   cfg.BaseURL,
		APIKey:    cfg.APIKey,
		Model:     cfg.Model,
		MaxTokens: cfg.MaxTokens,
		Logger:    logger,
	})
}

type unconfiguredSynthesizer struct{}

func (unconfiguredSynthesizer) Synthesize(ctx context.Context, sessionID string, evidence agent.Evidence, transcript string) (*agent.Synthesis, error) {
	return nil, fmt.Errorf("synthesis: no base_url configured")
}
