// Copyright 2026 The Sideline Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"testing"
	"time"
)

var testEpoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestFakeNow(t *testing.T) {
	c := Fake(testEpoch)
	if got := c.Now(); !got.Equal(testEpoch) {
		t.Fatalf("Now() = %v, want %v", got, testEpoch)
	}
	c.Advance(time.Minute)
	if got := c.Now(); !got.Equal(testEpoch.Add(time.Minute)) {
		t.Fatalf("Now() after Advance = %v, want %v", got, testEpoch.Add(time.Minute))
	}
}

func TestFakeAfter(t *testing.T) {
	t.Run("fires on advance past deadline", func(t *testing.T) {
		c := Fake(testEpoch)
		ch := c.After(5 * time.Second)

		select {
		case <-ch:
			t.Fatal("After fired before Advance")
		default:
		}

		c.Advance(5 * time.Second)
		select {
		case <-ch:
		default:
			t.Fatal("After did not fire after Advance")
		}
	})

	t.Run("non-positive duration fires immediately", func(t *testing.T) {
		c := Fake(testEpoch)
		select {
		case <-c.After(0):
		default:
			t.Fatal("After(0) did not fire immediately")
		}
	})

	t.Run("partial advance does not fire", func(t *testing.T) {
		c := Fake(testEpoch)
		ch := c.After(10 * time.Second)
		c.Advance(9 * time.Second)
		select {
		case <-ch:
			t.Fatal("After fired before its deadline")
		default:
		}
		c.Advance(time.Second)
		select {
		case <-ch:
		default:
			t.Fatal("After did not fire at its deadline")
		}
	})
}

func TestFakeSleep(t *testing.T) {
	c := Fake(testEpoch)
	done := make(chan struct{})
	go func() {
		c.Sleep(3 * time.Second)
		close(done)
	}()

	c.WaitForTimers(1)
	c.Advance(3 * time.Second)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Sleep did not return after Advance")
	}
}

func TestFakeTicker(t *testing.T) {
	c := Fake(testEpoch)
	ticker := c.NewTicker(time.Second)
	defer ticker.Stop()

	c.Advance(time.Second)
	select {
	case <-ticker.C:
	default:
		t.Fatal("ticker did not fire after one interval")
	}

	// A multi-interval advance delivers at most one tick (capacity 1,
	// overflow dropped) but keeps the ticker scheduled.
	c.Advance(3 * time.Second)
	select {
	case <-ticker.C:
	default:
		t.Fatal("ticker did not fire after multi-interval advance")
	}

	ticker.Stop()
	c.Advance(10 * time.Second)
	select {
	case <-ticker.C:
		t.Fatal("stopped ticker fired")
	default:
	}
}

func TestPendingCount(t *testing.T) {
	c := Fake(testEpoch)
	if got := c.PendingCount(); got != 0 {
		t.Fatalf("PendingCount = %d, want 0", got)
	}
	c.After(time.Second)
	ticker := c.NewTicker(time.Second)
	if got := c.PendingCount(); got != 2 {
		t.Fatalf("PendingCount = %d, want 2", got)
	}
	ticker.Stop()
	if got := c.PendingCount(); got != 1 {
		t.Fatalf("PendingCount after Stop = %d, want 1", got)
	}
}
