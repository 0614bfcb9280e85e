// Copyright 2026 The Sideline Authors
// SPDX-License-Identifier: Apache-2.0

package eventlog

import (
	"sync"

	"github.com/sideline-ai/sideline/schema"
)

// notifier wakes idle subscription loops when a topic receives a new
// message, so loops block on a channel instead of hot-polling the
// database. A periodic ticker in the read loop remains as a fallback
// for writers in other processes, which this in-process notifier
// cannot see.
type notifier struct {
	mu      sync.Mutex
	waiters map[schema.Topic]chan struct{}
}

func newNotifier() *notifier {
	return &notifier{waiters: make(map[schema.Topic]chan struct{})}
}

// channel returns the wait channel for a topic. The channel is closed
// by the next wake call for that topic; callers select on it alongside
// their ticker and context.
func (n *notifier) channel(topic schema.Topic) <-chan struct{} {
	n.mu.Lock()
	defer n.mu.Unlock()
	ch, ok := n.waiters[topic]
	if !ok {
		ch = make(chan struct{})
		n.waiters[topic] = ch
	}
	return ch
}

// wake releases every goroutine waiting on the topic by closing the
// current wait channel. The next channel call creates a fresh one.
func (n *notifier) wake(topic schema.Topic) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if ch, ok := n.waiters[topic]; ok {
		close(ch)
		delete(n.waiters, topic)
	}
}
