// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package conversation drives one chat transcript.
//
// A Conversation owns the transcript store, the pagination cursor and the
// stream controller of a session, and wires them to a Backend (history,
// streaming, remote mutations), an optional blob store for attachments and
// an optional scroll Anchor. Front-ends call its operations and re-render on
// the Events it publishes.
//
// # Control flow
//
//	Mount      initial fetch, replace window, pin bottom
//	OnScroll   near-top check, LoadOlder, restore offset
//	Send       optimistic user row + placeholder, stream patches, follow bottom
//	Regenerate delete reply, rebuild the user payload, stream again
//	Delete     local first, remote fire-and-forget
//	Edit       local patch, remote error returned
//	JumpTo     fetch the page ending at the target, replace window, centre it
package conversation
