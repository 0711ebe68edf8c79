// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chuli1122/chuli-home-sub001/internal/storage"
)

func newDocs(t *testing.T) *storage.DocumentStore {
	t.Helper()
	docs, err := storage.NewDocumentStoreWithDir(t.TempDir())
	require.NoError(t, err)
	return docs
}

func TestLoadMissingDocument(t *testing.T) {
	s := NewPreferences(newDocs(t))
	require.NoError(t, s.Load())
	assert.Equal(t, 0, s.Sessions())
	assert.Equal(t, ModeChat, s.Get("any").Mode)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	docs := newDocs(t)
	read := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	s := NewPreferences(docs)
	s.MarkRead("s-1", read)
	s.SetMode("s-1", ModeCompact)
	s.SetDraft("s-2", "half a thought")
	require.True(t, s.Dirty())
	require.NoError(t, s.Flush())
	assert.False(t, s.Dirty())

	loaded := NewPreferences(docs)
	require.NoError(t, loaded.Load())
	p := loaded.Get("s-1")
	assert.True(t, read.Equal(p.LastReadAt))
	assert.Equal(t, ModeCompact, p.Mode)
	assert.Equal(t, "half a thought", loaded.Get("s-2").Draft)
}

func TestMarkReadNeverMovesBack(t *testing.T) {
	s := NewPreferences(nil)
	now := time.Now()
	s.MarkRead("s", now)
	s.MarkRead("s", now.Add(-time.Hour))
	assert.True(t, now.Equal(s.Get("s").LastReadAt))
}

func TestUnread(t *testing.T) {
	s := NewPreferences(nil)
	now := time.Now()
	assert.True(t, s.Unread("s", now), "never read")

	s.MarkRead("s", now)
	assert.False(t, s.Unread("s", now))
	assert.False(t, s.Unread("s", now.Add(-time.Minute)))
	assert.True(t, s.Unread("s", now.Add(time.Minute)))
}

func TestUnchangedUpdateIsClean(t *testing.T) {
	s := NewPreferences(nil)
	s.SetMode("s", ModeCompact)
	require.NoError(t, s.Save())
	s.SetMode("s", ModeCompact)
	assert.False(t, s.Dirty())
}

func TestLoadCorruptDocument(t *testing.T) {
	dir := t.TempDir()
	docs, err := storage.NewDocumentStoreWithDir(dir)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "preferences.json"), []byte("{not json"), 0600))

	err = NewPreferences(docs).Load()
	assert.Error(t, err)
}

func TestLoadNullDocument(t *testing.T) {
	dir := t.TempDir()
	docs, err := storage.NewDocumentStoreWithDir(dir)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "preferences.json"), []byte("null"), 0600))

	s := NewPreferences(docs)
	require.NoError(t, s.Load())
	read := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	assert.NotPanics(t, func() { s.MarkRead("s-1", read) })
	assert.Equal(t, read, s.Get("s-1").LastReadAt)
}
