// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage provides small JSON document persistence for chuli.
//
// Documents are stored one per file under a base directory (by default
// ~/.chuli/state/) and written atomically, so a crash leaves either the old
// or the new document on disk, never a torn one.
//
// # Key Types
//
//   - DocumentStore: Save, Load, Delete and List JSON documents by key
//   - DocumentError: Error type comparable with errors.Is
//
// # Usage
//
//	store, err := storage.NewDocumentStore()
//	if err != nil {
//	    return err
//	}
//	var prefs map[string]Preferences
//	if err := store.Load("preferences", &prefs); errors.Is(err, storage.ErrDocumentNotFound) {
//	    prefs = map[string]Preferences{}
//	}
package storage
