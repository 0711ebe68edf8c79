// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session keeps per-session user preferences for chuli.
//
// Preferences are a typed map keyed by session id (last-read time, display
// mode, unsent draft), persisted as one JSON document through
// storage.DocumentStore. Writes mark the set dirty; Save or Flush persist it.
//
// # Usage
//
//	prefs := session.NewPreferences(docs)
//	if err := prefs.Load(); err != nil {
//	    return err
//	}
//	prefs.MarkRead("s-1", time.Now())
//	defer prefs.Flush()
package session
