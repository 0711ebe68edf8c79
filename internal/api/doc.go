// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package api is the HTTP client for the chat backend.
//
// Client implements the transport interfaces the transcript engine consumes:
// pagination.Fetcher (FetchMessages), stream.Streamer (Stream) and the
// conversation mutator (DeleteMessage, EditMessage).
//
// # Endpoints
//
//	GET    /api/sessions/{sid}/messages?limit=&before_id=&search=
//	POST   /api/sessions/{sid}/stream          (Server-Sent Events)
//	DELETE /api/sessions/{sid}/messages/{id}
//	PATCH  /api/sessions/{sid}/messages/{id}
//
// Requests share a client-side token bucket (golang.org/x/time/rate).
package api
