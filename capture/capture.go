// Copyright 2026 The Sideline Authors
// SPDX-License-Identifier: Apache-2.0

// Package capture bridges a transcript source to the event bus. The
// shipped source is line-oriented text (stdin in the CLI); a real
// speech pipeline would sit behind the same Publisher seam.
package capture

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/sideline-ai/sideline/lib/clock"
	"github.com/sideline-ai/sideline/schema"
)

// AgentID is the capture bridge's name on transcript envelopes.
const AgentID = "capture-bridge"

// Publisher is the slice of the event log the bridge needs.
type Publisher interface {
	Publish(ctx context.Context, topic schema.Topic, event schema.Event) (int64, error)
}

// Config configures a Bridge.
type Config struct {
	// Publisher receives the transcript events. Required.
	Publisher Publisher

	// SessionID is the meeting session all fragments belong to.
	// Required.
	SessionID string

	// Buffer is the utterance channel capacity between the reader and
	// the publisher goroutine. When the publisher falls behind, the
	// reader blocks — backpressure, not loss. Defaults to 16.
	Buffer int

	// Logger receives bridge diagnostics. Defaults to discard.
	Logger *slog.Logger

	// Clock supplies event timestamps. Defaults to real time.
	Clock clock.Clock
}

// Bridge pumps utterances from a reader onto the transcripts topic.
type Bridge struct {
	cfg Config
}

// New validates cfg and returns a Bridge.
func New(cfg Config) (*Bridge, error) {
	if cfg.Publisher == nil {
		return nil, fmt.Errorf("capture: config requires a publisher")
	}
	if cfg.SessionID == "" {
		return nil, fmt.Errorf("capture: config requires a session id")
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = 16
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	return &Bridge{cfg: cfg}, nil
}

// Run reads utterances from source until EOF or ctx cancellation,
// publishing each non-blank line as a transcript_received event. The
// reader and the publisher run as separate goroutines joined by a
// bounded channel, so a slow bus applies backpressure to the source
// instead of buffering unboundedly.
func (b *Bridge) Run(ctx context.Context, source io.Reader) error {
	utterances := make(chan string, b.cfg.Buffer)
	done := make(chan error, 1)

	go func() {
		done <- b.publishLoop(ctx, utterances)
	}()

	scanner := bufio.NewScanner(source)
	var scanErr error
scan:
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		select {
		case utterances <- line:
		case <-ctx.Done():
			scanErr = ctx.Err()
			break scan
		}
	}
	if scanErr == nil {
		scanErr = scanner.Err()
	}
	close(utterances)

	publishErr := <-done
	if scanErr != nil {
		return fmt.Errorf("capture: reading source: %w", scanErr)
	}
	return publishErr
}

// publishLoop drains the utterance channel onto the bus. A failed
// publish is logged and the utterance dropped — the bus signalled the
// failure explicitly, and stalling capture on it would lose more.
func (b *Bridge) publishLoop(ctx context.Context, utterances <-chan string) error {
	for utterance := range utterances {
		event, err := schema.NewEvent(schema.EventTypeTranscriptReceived, b.cfg.SessionID, AgentID,
			schema.TranscriptPayload{Text: utterance}, b.cfg.Clock.Now())
		if err != nil {
			return fmt.Errorf("capture: building transcript event: %w", err)
		}
		if _, err := b.cfg.Publisher.Publish(ctx, schema.TopicTranscripts, event); err != nil {
			b.cfg.Logger.Warn("transcript publish failed, utterance dropped",
				"session_id", b.cfg.SessionID,
				"error", err)
		}
	}
	return nil
}
