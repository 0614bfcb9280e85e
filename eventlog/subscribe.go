// Copyright 2026 The Sideline Authors
// SPDX-License-Identifier: Apache-2.0

package eventlog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/sideline-ai/sideline/lib/codec"
	"github.com/sideline-ai/sideline/schema"
)

const (
	// storageBackoffInitial and storageBackoffMax bound the exponential
	// backoff a read loop applies after a storage error. The loop never
	// gives up on storage faults.
	storageBackoffInitial = 100 * time.Millisecond
	storageBackoffMax     = 5 * time.Second

	// redeliveryDelay spaces out retries of a message whose handler
	// failed, so a transiently-failing handler does not spin on the
	// same message.
	redeliveryDelay = 250 * time.Millisecond
)

// subscription is one (topic, group, consumer) read loop.
type subscription struct {
	log      *Log
	topic    schema.Topic
	group    string
	consumer string
	handler  Handler
	logger   *slog.Logger
}

// run is the subscription's read loop. It drains available messages,
// then blocks on the in-process notifier with a ticker fallback for
// out-of-process writers. Storage errors back off and retry; only
// context cancellation or log closure ends the loop.
func (s *subscription) run(ctx context.Context) {
	defer s.log.wg.Done()

	ticker := s.log.clock.NewTicker(s.log.pollInterval)
	defer ticker.Stop()

	backoff := storageBackoffInitial
	for {
		// Grab the wake channel before reading, so a publish that lands
		// between the read and the select still wakes us.
		wake := s.log.notifier.channel(s.topic)

		delivered, err := s.deliverNext(ctx)
		switch {
		case err != nil:
			s.logger.Warn("delivery failed, backing off",
				"error", err,
				"backoff", backoff)
			if !s.pause(ctx, backoff) {
				return
			}
			backoff = min(backoff*2, storageBackoffMax)
			continue
		case delivered:
			backoff = storageBackoffInitial
			continue
		}
		backoff = storageBackoffInitial

		select {
		case <-ctx.Done():
			return
		case <-s.log.ctx.Done():
			return
		case <-wake:
		case <-ticker.C:
		}
	}
}

// deliverNext reads the group's next unacknowledged message and runs
// the handler on it. Returns (false, nil) when the group is caught up.
// The returned error covers storage faults only; handler and decode
// failures are absorbed into the attempt counter or the dead-letter
// table.
func (s *subscription) deliverNext(ctx context.Context) (bool, error) {
	conn, err := s.log.pool.Take(ctx)
	if err != nil {
		return false, fmt.Errorf("eventlog: taking connection: %w", err)
	}
	position, err := cursorPosition(conn, s.topic, s.group)
	if err != nil {
		s.log.pool.Put(conn)
		return false, err
	}
	message, ok, err := nextAfter(conn, s.topic, position)
	s.log.pool.Put(conn)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}

	event, decodeErr := decodeEnvelope(message)
	if decodeErr != nil {
		// The stored envelope itself is unreadable. No amount of
		// redelivery fixes that: dead-letter and move on.
		s.logger.Error("undecodable message dead-lettered",
			"seq", message.seq,
			"error", decodeErr)
		if err := s.deadLetter(ctx, message.seq, decodeErr.Error()); err != nil {
			return false, err
		}
		return true, nil
	}

	// The handler runs without a pooled connection held, so slow
	// handlers do not starve publishers.
	handlerErr := s.handler(ctx, event)
	if handlerErr == nil {
		if err := s.acknowledge(ctx, message.seq); err != nil {
			return false, err
		}
		return true, nil
	}

	if errors.Is(handlerErr, ErrPermanent) {
		s.logger.Error("message dead-lettered after permanent handler failure",
			"seq", message.seq,
			"type", event.Type,
			"error", handlerErr)
		if err := s.deadLetter(ctx, message.seq, handlerErr.Error()); err != nil {
			return false, err
		}
		return true, nil
	}

	count, err := s.countAttempt(ctx, message.seq)
	if err != nil {
		return false, err
	}
	if count >= s.log.maxAttempts {
		s.logger.Error("message dead-lettered after repeated handler failures",
			"seq", message.seq,
			"type", event.Type,
			"attempts", count,
			"error", handlerErr)
		reason := fmt.Sprintf("%d failed deliveries, last: %v", count, handlerErr)
		if err := s.deadLetter(ctx, message.seq, reason); err != nil {
			return false, err
		}
		return true, nil
	}

	s.logger.Warn("handler failed, message will be redelivered",
		"seq", message.seq,
		"type", event.Type,
		"attempt", count,
		"error", handlerErr)
	if !s.pause(ctx, redeliveryDelay) {
		return false, nil
	}
	return true, nil
}

// acknowledge advances the group cursor past seq and drops its attempt
// counter, atomically.
func (s *subscription) acknowledge(ctx context.Context, seq int64) (err error) {
	conn, err := s.log.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("eventlog: taking connection for ack: %w", err)
	}
	defer s.log.pool.Put(conn)
	defer sqlitex.Save(conn)(&err)

	if err := advanceCursor(conn, s.topic, s.group, seq); err != nil {
		return err
	}
	return clearAttempts(conn, s.topic, s.group, seq)
}

// deadLetter records seq as poison for this group and advances the
// cursor past it, atomically.
func (s *subscription) deadLetter(ctx context.Context, seq int64, reason string) (err error) {
	conn, err := s.log.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("eventlog: taking connection for dead letter: %w", err)
	}
	defer s.log.pool.Put(conn)
	defer sqlitex.Save(conn)(&err)

	if err := insertDeadLetter(conn, s.topic, s.group, seq, reason, s.log.clock.Now()); err != nil {
		return err
	}
	if err := clearAttempts(conn, s.topic, s.group, seq); err != nil {
		return err
	}
	return advanceCursor(conn, s.topic, s.group, seq)
}

// countAttempt records one more failed delivery of seq and returns the
// running total.
func (s *subscription) countAttempt(ctx context.Context, seq int64) (int64, error) {
	conn, err := s.log.pool.Take(ctx)
	if err != nil {
		return 0, fmt.Errorf("eventlog: taking connection for attempt count: %w", err)
	}
	defer s.log.pool.Put(conn)
	return incrementAttempts(conn, s.topic, s.group, seq)
}

// pause sleeps for d on the log's clock, returning false if the
// subscription should stop instead.
func (s *subscription) pause(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-s.log.ctx.Done():
		return false
	case <-s.log.clock.After(d):
		return true
	}
}

// decodeEnvelope turns a stored row back into an event.
func decodeEnvelope(message storedMessage) (schema.Event, error) {
	raw, err := decompress(message.blob, message.tag)
	if err != nil {
		return schema.Event{}, err
	}
	var event schema.Event
	if err := codec.Unmarshal(raw, &event); err != nil {
		return schema.Event{}, fmt.Errorf("eventlog: decoding envelope: %w", err)
	}
	if err := event.Validate(); err != nil {
		return schema.Event{}, fmt.Errorf("eventlog: invalid stored envelope: %w", err)
	}
	return event, nil
}
