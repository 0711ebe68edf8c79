// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package gesture implements the single-axis drag recognizer behind
// swipe-to-delete rows.
//
// A Controller tracks one pointer per row:
//
//	Idle -> (down) -> Undecided -> (5 units) -> Horizontal | Vertical -> (up) -> Idle
//
// In Horizontal the row offset follows the pointer, clamped to
// [-ActionWidth, 0], and vertical scrolling is consumed. In Vertical the
// controller lets go and the surrounding scroll container handles the
// gesture. On release the row snaps open or closed with a spring animation.
//
// Opening a row never deletes anything: OnDelete fires only when the user
// taps the revealed action of a fully open row.
//
// # Key Types
//
//   - Controller: Per-row state machine
//   - Animation: Spring-eased transition between offsets
//   - List: One-open-row policy across the rows of a list
package gesture
