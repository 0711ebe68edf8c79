// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package transcript holds the ordered, duplicate-free message sequence of a
// chat session.
//
// Three sources feed the store: backward history pages, the live stream
// patching a placeholder row, and optimistic local edits. All of them go
// through Store, which keeps rows sorted by ascending id and never holds two
// rows with the same id.
//
// # Key Types
//
//   - Store: Mutex-guarded ordered collection with prepend, append, patch and remove
//   - SplitMultiPart: Pure, idempotent expansion of a multi-part assistant reply
//   - Attachment: Blob reference embedded in user text as an inline marker
//   - DayGroup: Rows grouped by calendar day for date dividers
//
// # Usage
//
//	store := transcript.NewStore(logger)
//	store.PrependPage(page.Messages)
//	store.AppendLocal(placeholder)
//	store.Patch(placeholder.ID, func(m *model.Message) { m.Content = buffer })
//	rows := store.Visible()
package transcript
