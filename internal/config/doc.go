// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config handles chuli configuration.
//
// Configuration is read from ~/.chuli/config.toml, then environment
// variables override individual settings. A .env file in the working
// directory or in ~/.chuli is loaded into the environment first.
//
// # Sections
//
//   - server: backend base URL, token, timeout and client-side rate limit
//   - session: default session id, page size, reconcile-after-stream
//   - scroll: near-top and near-bottom thresholds, follow budget, locator time
//   - gesture: swipe action width and snap fraction
//   - stream: fallback text for failed replies
//   - storage: data directory, blob database, blob cache TTL
//   - log: level and rotated log file
//   - metrics: optional Prometheus listen address
//   - ui: markdown rendering and timestamps
//
// # Environment Variables
//
//   - CHULI_BASE_URL, CHULI_TOKEN, CHULI_SESSION
//   - CHULI_DATA_DIR, CHULI_LOG_LEVEL, CHULI_METRICS_ADDR
//
// # Usage
//
//	cfg, err := config.Load()
//	stop, err := config.Watch(ctx, path, func(c *config.Config) { apply(c) }, nil)
package config
