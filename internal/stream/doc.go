// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package stream drives one live assistant reply into a placeholder row.
//
// A Session opens the streaming request, accumulates chunks into a buffer
// and, for every non-empty chunk, replaces the placeholder's content with the
// whole buffer. On completion the buffer is cleaned up and patched once more;
// on failure the partial buffer is kept, or a fallback string is written when
// nothing arrived. Sessions are never retried.
//
// # Key Types
//
//   - Session: One in-flight generation (pending, streaming, completed, failed, aborted)
//   - Controller: Enforces a single active session per transcript
//   - Streamer: Transport that delivers chunks in arrival order
//   - Patcher: Target of the content patches, normally a transcript.Store
//
// # Usage
//
//	ctrl := stream.NewController(client, store, stream.Options{})
//	sess, err := ctrl.Start(ctx, sessionID, placeholder.ID, payload)
//	if errors.Is(err, stream.ErrSessionActive) {
//	    // send controls should have been disabled
//	}
//	<-sess.Done()
package stream
