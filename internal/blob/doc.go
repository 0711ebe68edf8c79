// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package blob resolves attachment references to their binary content.
//
// Attachments travel inside user text as inline markers carrying an opaque
// blob id. Sending, and later regenerating, a multimodal message needs the
// bytes back; this package provides the key-value store for them.
//
// # Key Types
//
//   - Store: Key-value interface keyed by opaque string ids
//   - SQLiteStore: Persistent store backed by modernc.org/sqlite
//   - Cached: Read-through go-cache layer in front of any Store
//
// # Usage
//
//	db, err := blob.OpenSQLite(filepath.Join(dataDir, "blobs.db"))
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//	store := blob.NewCached(db, 10*time.Minute)
//	b, err := store.Get(ctx, "img-1")
//	if errors.Is(err, blob.ErrNotFound) {
//	    // fall back to plain text
//	}
package blob
