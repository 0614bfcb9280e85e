// Copyright 2026 The Sideline Authors
// SPDX-License-Identifier: Apache-2.0

package eventlog

import "errors"

// ErrClosed is returned by Publish and Subscribe after Close has been
// called.
var ErrClosed = errors.New("eventlog: log is closed")
