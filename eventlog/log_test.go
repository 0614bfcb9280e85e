// Copyright 2026 The Sideline Authors
// SPDX-License-Identifier: Apache-2.0

package eventlog

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sideline-ai/sideline/lib/testutil"
	"github.com/sideline-ai/sideline/schema"
)

const testTimeout = 5 * time.Second

func openTestLog(t *testing.T, cfg Config) *Log {
	t.Helper()
	if cfg.Path == "" {
		cfg.Path = filepath.Join(t.TempDir(), "events.db")
	}
	cfg.PollInterval = 50 * time.Millisecond
	cfg.Logger = slog.New(slog.DiscardHandler)
	log, err := Open(cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() {
		if err := log.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return log
}

func testEvent(t *testing.T, sessionID, text string) schema.Event {
	t.Helper()
	event, err := schema.NewEvent(
		schema.EventTypeTranscriptReceived,
		sessionID,
		"capture-bridge",
		schema.TranscriptPayload{Text: text},
		time.Now().Truncate(time.Second),
	)
	if err != nil {
		t.Fatalf("NewEvent: %v", err)
	}
	return event
}

// collector returns a handler that forwards every delivered event to a
// channel and acks it.
func collector(ch chan<- schema.Event) Handler {
	return func(ctx context.Context, event schema.Event) error {
		ch <- event
		return nil
	}
}

func TestPublishAssignsSequentialNumbers(t *testing.T) {
	log := openTestLog(t, Config{})
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		seq, err := log.Publish(ctx, schema.TopicTranscripts, testEvent(t, "s1", fmt.Sprintf("fragment %d", want)))
		if err != nil {
			t.Fatalf("Publish: %v", err)
		}
		if seq != want {
			t.Errorf("Publish seq = %d, want %d", seq, want)
		}
	}

	// Sequences are per topic, so a different topic starts at 1.
	seq, err := log.Publish(ctx, schema.TopicEntities, testEvent(t, "s1", "other topic"))
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if seq != 1 {
		t.Errorf("first seq on second topic = %d, want 1", seq)
	}
}

func TestPublishRejectsInvalidEvents(t *testing.T) {
	log := openTestLog(t, Config{})
	ctx := context.Background()

	tests := []struct {
		name  string
		event schema.Event
	}{
		{"missing type", schema.Event{SessionID: "s1", AgentID: "a", Data: []byte(`{}`), Timestamp: time.Now()}},
		{"missing session", schema.Event{Type: "t", AgentID: "a", Data: []byte(`{}`), Timestamp: time.Now()}},
		{"missing data", schema.Event{Type: "t", SessionID: "s1", AgentID: "a", Timestamp: time.Now()}},
		{"invalid json data", schema.Event{Type: "t", SessionID: "s1", AgentID: "a", Data: []byte(`{`), Timestamp: time.Now()}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := log.Publish(ctx, schema.TopicTranscripts, tt.event); err == nil {
				t.Error("Publish accepted an invalid event")
			}
		})
	}
}

func TestSubscribeDeliversInOrder(t *testing.T) {
	log := openTestLog(t, Config{})
	ctx := context.Background()

	// Two published before the subscription exists, one after: the
	// fresh group replays from the start and then receives live.
	for i := 1; i <= 2; i++ {
		if _, err := log.Publish(ctx, schema.TopicTranscripts, testEvent(t, "s1", fmt.Sprintf("fragment %d", i))); err != nil {
			t.Fatalf("Publish: %v", err)
		}
	}

	delivered := make(chan schema.Event, 8)
	if err := log.Subscribe(ctx, schema.TopicTranscripts, "readers", "reader-1", collector(delivered)); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	if _, err := log.Publish(ctx, schema.TopicTranscripts, testEvent(t, "s1", "fragment 3")); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	for i := 1; i <= 3; i++ {
		event := testutil.RequireReceive(t, delivered, testTimeout, "fragment %d", i)
		decoded, err := schema.DecodePayload(event)
		if err != nil {
			t.Fatalf("DecodePayload: %v", err)
		}
		payload := decoded.(schema.TranscriptPayload)
		if want := fmt.Sprintf("fragment %d", i); payload.Text != want {
			t.Errorf("delivery %d text = %q, want %q", i, payload.Text, want)
		}
	}
}

func TestGroupResumesAfterRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.db")
	ctx := context.Background()

	log := openTestLog(t, Config{Path: path})
	delivered := make(chan schema.Event, 8)

	subCtx, cancel := context.WithCancel(ctx)
	if err := log.Subscribe(subCtx, schema.TopicTranscripts, "readers", "reader-1", collector(delivered)); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if _, err := log.Publish(ctx, schema.TopicTranscripts, testEvent(t, "s1", "before restart")); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	testutil.RequireReceive(t, delivered, testTimeout, "first delivery")
	cancel()

	// With no consumer running, publish more. Re-subscribing the same
	// group must pick up where the cursor stopped, not replay.
	if _, err := log.Publish(ctx, schema.TopicTranscripts, testEvent(t, "s1", "after restart")); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if err := log.Subscribe(ctx, schema.TopicTranscripts, "readers", "reader-2", collector(delivered)); err != nil {
		t.Fatalf("re-Subscribe: %v", err)
	}

	event := testutil.RequireReceive(t, delivered, testTimeout, "post-restart delivery")
	decoded, err := schema.DecodePayload(event)
	if err != nil {
		t.Fatalf("DecodePayload: %v", err)
	}
	if text := decoded.(schema.TranscriptPayload).Text; text != "after restart" {
		t.Errorf("resumed delivery text = %q, want %q (group replayed instead of resuming)", text, "after restart")
	}
}

func TestIndependentGroupsEachSeeEverything(t *testing.T) {
	log := openTestLog(t, Config{})
	ctx := context.Background()

	alpha := make(chan schema.Event, 8)
	beta := make(chan schema.Event, 8)
	if err := log.Subscribe(ctx, schema.TopicTranscripts, "alpha", "a-1", collector(alpha)); err != nil {
		t.Fatalf("Subscribe alpha: %v", err)
	}
	if err := log.Subscribe(ctx, schema.TopicTranscripts, "beta", "b-1", collector(beta)); err != nil {
		t.Fatalf("Subscribe beta: %v", err)
	}

	for i := 1; i <= 3; i++ {
		if _, err := log.Publish(ctx, schema.TopicTranscripts, testEvent(t, "s1", fmt.Sprintf("fragment %d", i))); err != nil {
			t.Fatalf("Publish: %v", err)
		}
	}
	for i := 1; i <= 3; i++ {
		testutil.RequireReceive(t, alpha, testTimeout, "alpha delivery %d", i)
		testutil.RequireReceive(t, beta, testTimeout, "beta delivery %d", i)
	}
}

func TestFreshGroupReplaysHistory(t *testing.T) {
	log := openTestLog(t, Config{})
	ctx := context.Background()

	first := make(chan schema.Event, 8)
	if err := log.Subscribe(ctx, schema.TopicTranscripts, "first", "f-1", collector(first)); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	for i := 1; i <= 3; i++ {
		if _, err := log.Publish(ctx, schema.TopicTranscripts, testEvent(t, "s1", fmt.Sprintf("fragment %d", i))); err != nil {
			t.Fatalf("Publish: %v", err)
		}
		testutil.RequireReceive(t, first, testTimeout, "first-group delivery %d", i)
	}

	// A group created long after the fact replays the full topic.
	audit := make(chan schema.Event, 8)
	if err := log.Subscribe(ctx, schema.TopicTranscripts, "audit", "audit-1", collector(audit)); err != nil {
		t.Fatalf("Subscribe audit: %v", err)
	}
	for i := 1; i <= 3; i++ {
		event := testutil.RequireReceive(t, audit, testTimeout, "audit replay %d", i)
		decoded, err := schema.DecodePayload(event)
		if err != nil {
			t.Fatalf("DecodePayload: %v", err)
		}
		if want := fmt.Sprintf("fragment %d", i); decoded.(schema.TranscriptPayload).Text != want {
			t.Errorf("replay %d = %q, want %q", i, decoded.(schema.TranscriptPayload).Text, want)
		}
	}
}

func TestHandlerErrorTriggersRedelivery(t *testing.T) {
	log := openTestLog(t, Config{})
	ctx := context.Background()

	var attempts atomic.Int64
	done := make(chan schema.Event, 1)
	handler := func(ctx context.Context, event schema.Event) error {
		if attempts.Add(1) < 3 {
			return fmt.Errorf("transient failure")
		}
		done <- event
		return nil
	}
	if err := log.Subscribe(ctx, schema.TopicTranscripts, "flaky", "f-1", handler); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if _, err := log.Publish(ctx, schema.TopicTranscripts, testEvent(t, "s1", "needs retries")); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	testutil.RequireReceive(t, done, testTimeout, "delivery after retries")
	if got := attempts.Load(); got != 3 {
		t.Errorf("handler ran %d times, want 3", got)
	}

	letters, err := log.DeadLetters(ctx, schema.TopicTranscripts, "flaky")
	if err != nil {
		t.Fatalf("DeadLetters: %v", err)
	}
	if len(letters) != 0 {
		t.Errorf("recovered message was dead-lettered: %+v", letters)
	}
}

func TestPoisonMessageIsDeadLettered(t *testing.T) {
	log := openTestLog(t, Config{MaxDeliveryAttempts: 2})
	ctx := context.Background()

	delivered := make(chan schema.Event, 8)
	handler := func(ctx context.Context, event schema.Event) error {
		decoded, err := schema.DecodePayload(event)
		if err != nil {
			return err
		}
		if decoded.(schema.TranscriptPayload).Text == "poison" {
			return fmt.Errorf("handler cannot process this")
		}
		delivered <- event
		return nil
	}
	if err := log.Subscribe(ctx, schema.TopicTranscripts, "readers", "r-1", handler); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	poisonSeq, err := log.Publish(ctx, schema.TopicTranscripts, testEvent(t, "s1", "poison"))
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if _, err := log.Publish(ctx, schema.TopicTranscripts, testEvent(t, "s1", "healthy")); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	// The poison message must not block the one behind it.
	event := testutil.RequireReceive(t, delivered, testTimeout, "delivery past the poison message")
	decoded, err := schema.DecodePayload(event)
	if err != nil {
		t.Fatalf("DecodePayload: %v", err)
	}
	if decoded.(schema.TranscriptPayload).Text != "healthy" {
		t.Fatalf("unexpected delivery: %+v", decoded)
	}

	letters, err := log.DeadLetters(ctx, schema.TopicTranscripts, "readers")
	if err != nil {
		t.Fatalf("DeadLetters: %v", err)
	}
	if len(letters) != 1 {
		t.Fatalf("dead letters = %+v, want exactly one", letters)
	}
	if letters[0].Seq != poisonSeq {
		t.Errorf("dead letter seq = %d, want %d", letters[0].Seq, poisonSeq)
	}
	if !strings.Contains(letters[0].Reason, "failed deliveries") {
		t.Errorf("dead letter reason = %q, want attempt summary", letters[0].Reason)
	}
}

func TestPermanentErrorSkipsRetries(t *testing.T) {
	log := openTestLog(t, Config{})
	ctx := context.Background()

	var attempts atomic.Int64
	handler := func(ctx context.Context, event schema.Event) error {
		attempts.Add(1)
		return fmt.Errorf("unknown payload shape: %w", ErrPermanent)
	}
	if err := log.Subscribe(ctx, schema.TopicTranscripts, "strict", "s-1", handler); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if _, err := log.Publish(ctx, schema.TopicTranscripts, testEvent(t, "s1", "rejected")); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	deadline := time.After(testTimeout)
	for {
		letters, err := log.DeadLetters(ctx, schema.TopicTranscripts, "strict")
		if err != nil {
			t.Fatalf("DeadLetters: %v", err)
		}
		if len(letters) == 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("message never dead-lettered")
		case <-time.After(10 * time.Millisecond):
		}
	}
	if got := attempts.Load(); got != 1 {
		t.Errorf("handler ran %d times, want 1 (permanent errors skip retries)", got)
	}
}

func TestLargePayloadRoundTrips(t *testing.T) {
	log := openTestLog(t, Config{})
	ctx := context.Background()

	// Well over the compression threshold, and compressible.
	text := strings.Repeat("the quarterly numbers look strong ", 400)
	delivered := make(chan schema.Event, 1)
	if err := log.Subscribe(ctx, schema.TopicTranscripts, "readers", "r-1", collector(delivered)); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if _, err := log.Publish(ctx, schema.TopicTranscripts, testEvent(t, "s1", text)); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	event := testutil.RequireReceive(t, delivered, testTimeout, "large payload delivery")
	decoded, err := schema.DecodePayload(event)
	if err != nil {
		t.Fatalf("DecodePayload: %v", err)
	}
	if decoded.(schema.TranscriptPayload).Text != text {
		t.Error("large payload did not round-trip intact")
	}
}

func TestCompressionHelpers(t *testing.T) {
	t.Run("small payloads stay uncompressed", func(t *testing.T) {
		small := []byte("tiny")
		stored, tag := maybeCompress(small)
		if tag != compressionNone {
			t.Fatalf("tag = %d, want compressionNone", tag)
		}
		if string(stored) != "tiny" {
			t.Errorf("small payload was altered")
		}
	})
	t.Run("large payloads shrink and round-trip", func(t *testing.T) {
		large := []byte(strings.Repeat("compressible text block ", 200))
		stored, tag := maybeCompress(large)
		if tag != compressionZstd {
			t.Fatalf("tag = %d, want compressionZstd", tag)
		}
		if len(stored) >= len(large) {
			t.Errorf("compressed size %d >= original %d", len(stored), len(large))
		}
		back, err := decompress(stored, tag)
		if err != nil {
			t.Fatalf("decompress: %v", err)
		}
		if string(back) != string(large) {
			t.Error("round-trip mismatch")
		}
	})
	t.Run("unknown tag rejected", func(t *testing.T) {
		if _, err := decompress([]byte("x"), compressionTag(99)); err == nil {
			t.Error("decompress accepted an unknown tag")
		}
	})
}

func TestClosedLogRejectsOperations(t *testing.T) {
	log := openTestLog(t, Config{})
	ctx := context.Background()

	if err := log.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := log.Publish(ctx, schema.TopicTranscripts, testEvent(t, "s1", "too late")); err != ErrClosed {
		t.Errorf("Publish after Close = %v, want ErrClosed", err)
	}
	if err := log.Subscribe(ctx, schema.TopicTranscripts, "g", "c", collector(make(chan schema.Event, 1))); err != ErrClosed {
		t.Errorf("Subscribe after Close = %v, want ErrClosed", err)
	}
	// Cleanup calls Close again; it must stay a no-op.
	if err := log.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}
