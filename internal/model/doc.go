// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for transcripts and messages.
//
// This package defines the core domain types shared by the transcript store,
// the pagination cursor, the stream session and the HTTP backend.
//
// # Key Types
//
//   - Message: Single transcript row with numeric identity, role and content
//   - MessageID: Ordered (Seq, Part) identity; Part is the multi-part sibling index
//   - IDGenerator: Monotonic synthetic ids for optimistic rows
//   - Payload / Part: Outgoing stream payload, plain text or multimodal parts
//   - Page / FetchOptions: One page of history and the query that produced it
//
// # Usage
//
// Create an optimistic user row and its placeholder reply:
//
//	ids := model.NewIDGenerator(nil)
//	user := model.NewPendingMessage(ids.Next(), model.RoleUser, "hello")
//	reply := model.NewPendingMessage(ids.Next(), model.RoleAssistant, "")
//	reply.IsEmpty() // true until the stream patches it
package model
