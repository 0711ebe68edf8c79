// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli provides the chuli command line.
//
// # Commands
//
//   - chuli: the transcript TUI (requires a terminal)
//   - chuli chat: line-mode chat with readline-style history
//   - chuli history: print pages of a session's history
//   - chuli version: print build information
//
// Every command loads ~/.chuli/config.toml (or --config), applies .env and
// CHULI_* overrides, and logs to a rotating file in the data directory.
package cli
