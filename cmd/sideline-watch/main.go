// Copyright 2026 The Sideline Authors
// SPDX-License-Identifier: Apache-2.0

// sideline-watch is a terminal dashboard for a running Sideline. It
// subscribes to the agent status and suggestions topics under a fresh
// consumer group, so it replays history on startup and then follows the
// log live: per-agent state on top, the latest ranked talking points
// below.
package main

import (
	"context"
	"fmt"
	"io"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/pflag"

	"github.com/sideline-ai/sideline/eventlog"
	"github.com/sideline-ai/sideline/lib/config"
	"github.com/sideline-ai/sideline/lib/logging"
	"github.com/sideline-ai/sideline/lib/version"
	"github.com/sideline-ai/sideline/schema"
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
	var logOutput string
	var showVersion bool

	flags := pflag.NewFlagSet("sideline-watch", pflag.ContinueOnError)
	flags.StringVar(&configPath, "config", "", "path to sideline.yaml (default: $SIDELINE_CONFIG)")
	flags.StringVar(&sessionID, "session", "", "only show events for this session (default: all)")
	flags.StringVar(&logOutput, "log-output", "", "write log records to this file instead of discarding them")
	flags.BoolVar(&showVersion, "version", false, "print version and exit")
	if err := flags.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}

	if showVersion {
		fmt.Printf("sideline-watch %s\n", version.Info())
		return nil
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	// The TUI owns the terminal, so logs go to a file or nowhere.
	logDest := io.Discard
	if logOutput != "" {
		file, err := os.OpenFile(logOutput, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return fmt.Errorf("opening log output: %w", err)
		}
		defer file.Close()
		logDest = file
	}
	logger, err := logging.NewWriter(logDest, cfg.Logging)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

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

	// A fresh per-process group: replay rebuilds the dashboard state,
	// then the subscription follows the live tail.
	group := fmt.Sprintf("watch-%d", os.Getpid())
	events := make(chan busEventMsg, 64)
	handler := func(ctx context.Context, event schema.Event) error {
		payload, err := schema.DecodePayload(event)
		if err != nil {
			// Unknown or malformed events are someone else's problem;
			// the dashboard just skips them.
			logger.Warn("skipping undecodable event", "type", event.Type, "error", err)
			return nil
		}
		select {
		case events <- busEventMsg{event: event, payload: payload}:
		case <-ctx.Done():
			return ctx.Err()
		}
		return nil
	}
	for _, topic := range []schema.Topic{schema.TopicAgentStatus, schema.TopicSuggestions} {
		if err := log.Subscribe(ctx, topic, group, "watch", handler); err != nil {
			return fmt.Errorf("subscribing to %s: %w", topic, err)
		}
	}

	program := tea.NewProgram(NewModel(events, sessionID), tea.WithAltScreen())
	_, err = program.Run()
	return err
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}
