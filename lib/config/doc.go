// Copyright 2026 The Sideline Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads Sideline configuration from a single YAML file
// named by the SIDELINE_CONFIG environment variable or the --config
// flag. There is no discovery and no environment-variable overrides:
// the file is the whole configuration.
package config
