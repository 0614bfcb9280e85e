// Copyright 2026 The Sideline Authors
// SPDX-License-Identifier: Apache-2.0

// sideline-say feeds transcript fragments into the event log, standing
// in for a live capture pipeline. With arguments it publishes them as
// one fragment; without, it streams stdin line by line, so
//
//	sideline-say --session demo "We're meeting with Acme Corp tomorrow."
//	tail -f meeting.txt | sideline-say --session demo
//
// both work. A running sideline-orchestrator picks the fragments up
// from the shared log; the two processes only meet at the SQLite file.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/sideline-ai/sideline/capture"
	"github.com/sideline-ai/sideline/eventlog"
	"github.com/sideline-ai/sideline/lib/config"
	"github.com/sideline-ai/sideline/lib/logging"
	"github.com/sideline-ai/sideline/lib/version"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var configPath string
	var sessionID string
	var showVersion bool

	flags := pflag.NewFlagSet("sideline-say", pflag.ContinueOnError)
	flags.StringVar(&configPath, "config", "", "path to sideline.yaml (default: $SIDELINE_CONFIG)")
	flags.StringVar(&sessionID, "session", "", "meeting session the fragments belong to (required)")
	flags.BoolVar(&showVersion, "version", false, "print version and exit")
	if err := flags.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}

	if showVersion {
		fmt.Printf("sideline-say %s\n", version.Info())
		return nil
	}
	if sessionID == "" {
		return fmt.Errorf("--session is required")
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

	bridge, err := capture.New(capture.Config{
		Publisher: log,
		SessionID: sessionID,
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	if args := flags.Args(); len(args) > 0 {
		return bridge.Run(ctx, strings.NewReader(strings.Join(args, " ")+"\n"))
	}
	return bridge.Run(ctx, os.Stdin)
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}
