// Copyright 2026 The Sideline Authors
// SPDX-License-Identifier: Apache-2.0

package eventlog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sideline-ai/sideline/lib/clock"
	"github.com/sideline-ai/sideline/lib/codec"
	"github.com/sideline-ai/sideline/lib/sqlitepool"
	"github.com/sideline-ai/sideline/schema"
)

// ErrPermanent marks a handler failure that redelivery cannot fix,
// such as a payload the handler does not understand. A handler that
// returns an error wrapping ErrPermanent sends the message straight to
// the dead-letter table instead of burning through the attempt limit.
var ErrPermanent = errors.New("eventlog: permanent handler failure")

// Handler processes one delivered event. Returning nil acknowledges
// the message; returning an error leaves it unacknowledged for
// redelivery. Handlers are called from the subscription's own
// goroutine and must tolerate duplicate deliveries.
type Handler func(ctx context.Context, event schema.Event) error

// DeadLetter is a poison message recorded for a consumer group.
type DeadLetter struct {
	Topic  schema.Topic
	Group  string
	Seq    int64
	Reason string
	DeadAt time.Time
}

// Config configures a Log. Path is required; everything else has a
// working default.
type Config struct {
	// Path is the SQLite database file backing the log. Use ":memory:"
	// only in tests (the pool shares one in-memory database across
	// connections).
	Path string

	// PoolSize is the connection pool size. Defaults to 4.
	PoolSize int

	// MaxDeliveryAttempts is the number of handler failures after which
	// a message is dead-lettered for a group. Defaults to 5.
	MaxDeliveryAttempts int

	// PollInterval is the fallback polling cadence for subscriptions.
	// In-process publishes wake subscribers immediately; the ticker only
	// matters for writers in other processes. Defaults to 500ms.
	PollInterval time.Duration

	// Logger receives delivery and dead-letter diagnostics. Defaults to
	// slog.Default.
	Logger *slog.Logger

	// Clock drives redelivery backoff and timestamps. Defaults to the
	// real clock; tests substitute a fake.
	Clock clock.Clock
}

// Log is a durable topic-keyed event bus backed by SQLite. See the
// package documentation for the delivery contract.
type Log struct {
	pool     *sqlitepool.Pool
	notifier *notifier
	logger   *slog.Logger
	clock    clock.Clock

	maxAttempts  int64
	pollInterval time.Duration

	mu     sync.Mutex
	closed bool
	cancel context.CancelFunc
	ctx    context.Context
	wg     sync.WaitGroup
}

// Open opens (creating if needed) the event log at cfg.Path.
func Open(cfg Config) (*Log, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("eventlog: config requires a database path")
	}
	if cfg.PoolSize == 0 {
		cfg.PoolSize = 4
	}
	if cfg.MaxDeliveryAttempts == 0 {
		cfg.MaxDeliveryAttempts = 5
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 500 * time.Millisecond
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}

	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:      cfg.Path,
		PoolSize:  cfg.PoolSize,
		Logger:    cfg.Logger,
		OnConnect: createSchema,
	})
	if err != nil {
		return nil, fmt.Errorf("eventlog: opening %s: %w", cfg.Path, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Log{
		pool:         pool,
		notifier:     newNotifier(),
		logger:       cfg.Logger.With("component", "eventlog"),
		clock:        cfg.Clock,
		maxAttempts:  int64(cfg.MaxDeliveryAttempts),
		pollInterval: cfg.PollInterval,
		ctx:          ctx,
		cancel:       cancel,
	}, nil
}

// Publish appends an event to a topic and returns its sequence number.
// Consumers are woken after the transaction commits. Publish does not
// retry: on error the event was not stored and the caller decides what
// to do.
func (l *Log) Publish(ctx context.Context, topic schema.Topic, event schema.Event) (int64, error) {
	if topic == "" {
		return 0, fmt.Errorf("eventlog: publish requires a topic")
	}
	if err := event.Validate(); err != nil {
		return 0, fmt.Errorf("eventlog: publish to %s: %w", topic, err)
	}
	l.mu.Lock()
	closed := l.closed
	l.mu.Unlock()
	if closed {
		return 0, ErrClosed
	}

	encoded, err := codec.Marshal(event)
	if err != nil {
		return 0, fmt.Errorf("eventlog: encoding event for %s: %w", topic, err)
	}
	blob, tag := maybeCompress(encoded)

	conn, err := l.pool.Take(ctx)
	if err != nil {
		return 0, fmt.Errorf("eventlog: publish to %s: %w", topic, err)
	}
	defer l.pool.Put(conn)

	seq, err := insertMessage(conn, topic, blob, tag, l.clock.Now())
	if err != nil {
		return 0, err
	}
	l.notifier.wake(topic)

	l.logger.Debug("event published",
		"topic", topic,
		"seq", seq,
		"type", event.Type,
		"session_id", event.SessionID,
		"bytes", len(blob))
	return seq, nil
}

// Subscribe registers a handler for a (topic, group) pair and starts
// its read loop. The group cursor is created before Subscribe returns,
// so a fresh group on an old topic replays history from the start; an
// existing group resumes where it left off. The loop runs until ctx is
// cancelled or the log is closed.
func (l *Log) Subscribe(ctx context.Context, topic schema.Topic, group, consumer string, handler Handler) error {
	if topic == "" || group == "" || consumer == "" {
		return fmt.Errorf("eventlog: subscribe requires topic, group, and consumer names")
	}
	if handler == nil {
		return fmt.Errorf("eventlog: subscribe requires a handler")
	}

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrClosed
	}
	l.wg.Add(1)
	l.mu.Unlock()

	conn, err := l.pool.Take(ctx)
	if err != nil {
		l.wg.Done()
		return fmt.Errorf("eventlog: subscribe %s/%s: %w", topic, group, err)
	}
	err = ensureGroup(conn, topic, group)
	l.pool.Put(conn)
	if err != nil {
		l.wg.Done()
		return err
	}

	sub := &subscription{
		log:      l,
		topic:    topic,
		group:    group,
		consumer: consumer,
		handler:  handler,
		logger: l.logger.With(
			"topic", topic,
			"group", group,
			"consumer", consumer),
	}
	go sub.run(ctx)
	return nil
}

// DeadLetters returns the poison messages recorded for a consumer
// group, oldest first.
func (l *Log) DeadLetters(ctx context.Context, topic schema.Topic, group string) ([]DeadLetter, error) {
	conn, err := l.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("eventlog: reading dead letters: %w", err)
	}
	defer l.pool.Put(conn)
	return selectDeadLetters(conn, topic, group)
}

// Close stops all subscription loops, waits for them to exit, and
// closes the database pool. Safe to call more than once.
func (l *Log) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	l.mu.Unlock()

	l.cancel()
	l.wg.Wait()
	if err := l.pool.Close(); err != nil {
		return fmt.Errorf("eventlog: closing pool: %w", err)
	}
	return nil
}
