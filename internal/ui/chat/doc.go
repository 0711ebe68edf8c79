// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat provides the transcript screen of the TUI.
//
// The screen is a Bubble Tea model over a conversation.Conversation. The
// transcript is rendered into a bubbles viewport; a Surface mirrors the
// viewport's geometry and the rendered row positions so a scroll.Anchor can
// keep the view steady across prepends, streamed growth and jumps.
//
// Rows can be dragged left with the mouse to reveal a delete action. The drag
// is driven by a gesture.List so at most one row is open at a time.
//
// Slash commands:
//
//	/jump <id>          load the page ending at a message and centre it
//	/search <query>     filter the transcript (empty query clears)
//	/edit <id> <text>   replace a message's content
//	/regen [id]         regenerate an assistant reply (default: the last one)
//	/delete <id>        delete a message after confirmation
//	/attach <path>      attach a file to the next message
//	/mode chat|compact  switch the row layout
//	/stats              show stream statistics for this session
//	/quit               leave
package chat
