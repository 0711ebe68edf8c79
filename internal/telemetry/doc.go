// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package telemetry provides Prometheus metrics and stream statistics for chuli.
//
// # Key Types
//
//   - Metrics: counters for streams, pages, and transcript edits
//   - StreamStats: running per-session summary of reply streams
//
// # Usage
//
//	reg := prometheus.NewRegistry()
//	m := telemetry.New(reg)
//	m.StreamFinished("completed", 42)
//
// Serve the registry when metrics.listen_addr is set:
//
//	srv := telemetry.Serve(ctx, "127.0.0.1:9464", reg, log)
//
// # Privacy
//
// Metrics are local-only. Message text never becomes a label value.
package telemetry
