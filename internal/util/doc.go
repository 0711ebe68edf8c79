// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides small helpers shared across chuli packages.
//
// # Contents
//
//   - AtomicWriteFile: crash-safe file replacement (temp file, fsync, rename)
//   - Width-aware string helpers built on go-runewidth, so CJK text and emoji
//     line up in the terminal
package util
