// Copyright 2026 The Sideline Authors
// SPDX-License-Identifier: Apache-2.0

// Package logging builds the slog.Logger the Sideline binaries share,
// from the logging section of the config file.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/sideline-ai/sideline/lib/config"
)

// New returns a logger writing to stderr per cfg.
func New(cfg config.LoggingConfig) (*slog.Logger, error) {
	return NewWriter(os.Stderr, cfg)
}

// NewWriter is New with an explicit destination, for tests and for
// TUIs that must keep stderr clean.
func NewWriter(w io.Writer, cfg config.LoggingConfig) (*slog.Logger, error) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info", "":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return nil, fmt.Errorf("logging: unknown level %q", cfg.Level)
	}
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	case "text", "":
		handler = slog.NewTextHandler(w, opts)
	default:
		return nil, fmt.Errorf("logging: unknown format %q", cfg.Format)
	}
	return slog.New(handler), nil
}
