// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chuli1122/chuli-home-sub001/internal/storage"
)

// documentKey is the storage key of the preferences document.
const documentKey = "preferences"

// Display modes.
const (
	ModeChat    = "chat"
	ModeCompact = "compact"
)

// Preferences holds the per-session settings.
type Preferences struct {
	LastReadAt time.Time `json:"last_read_at,omitempty"`
	Mode       string    `json:"mode,omitempty"`
	Draft      string    `json:"draft,omitempty"`
}

// Store is the typed preferences map.
type Store struct {
	mu    sync.Mutex
	docs  *storage.DocumentStore
	prefs map[string]Preferences
	dirty bool
}

// NewPreferences creates an empty store backed by docs. A nil docs keeps
// preferences in memory only.
func NewPreferences(docs *storage.DocumentStore) *Store {
	return &Store{docs: docs, prefs: make(map[string]Preferences)}
}

// Load replaces the in-memory map with the persisted document. A missing
// document leaves the map empty.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.docs == nil {
		return nil
	}
	loaded := make(map[string]Preferences)
	if err := s.docs.Load(documentKey, &loaded); err != nil {
		if errors.Is(err, storage.ErrDocumentNotFound) {
			s.prefs = make(map[string]Preferences)
			s.dirty = false
			return nil
		}
		return fmt.Errorf("failed to load preferences: %w", err)
	}
	if loaded == nil {
		loaded = make(map[string]Preferences)
	}
	s.prefs = loaded
	s.dirty = false
	return nil
}

// Save persists the map unconditionally.
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked()
}

// Flush persists the map only if it changed since the last Load or Save.
func (s *Store) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.dirty {
		return nil
	}
	return s.saveLocked()
}

func (s *Store) saveLocked() error {
	if s.docs == nil {
		s.dirty = false
		return nil
	}
	if err := s.docs.Save(documentKey, s.prefs); err != nil {
		return fmt.Errorf("failed to save preferences: %w", err)
	}
	s.dirty = false
	return nil
}

// Dirty reports whether there are unsaved changes.
func (s *Store) Dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirty
}

// Get returns the preferences for sessionID. Unknown sessions get the
// zero value with Mode set to ModeChat.
func (s *Store) Get(sessionID string) Preferences {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.prefs[sessionID]
	if p.Mode == "" {
		p.Mode = ModeChat
	}
	return p
}

// Set replaces the preferences for sessionID.
func (s *Store) Set(sessionID string, p Preferences) {
	s.update(sessionID, func(cur *Preferences) { *cur = p })
}

// MarkRead advances LastReadAt to at. It never moves backwards.
func (s *Store) MarkRead(sessionID string, at time.Time) {
	s.update(sessionID, func(p *Preferences) {
		if at.After(p.LastReadAt) {
			p.LastReadAt = at
		}
	})
}

// SetMode sets the display mode.
func (s *Store) SetMode(sessionID, mode string) {
	s.update(sessionID, func(p *Preferences) { p.Mode = mode })
}

// SetDraft stores the unsent input text.
func (s *Store) SetDraft(sessionID, draft string) {
	s.update(sessionID, func(p *Preferences) { p.Draft = draft })
}

// Unread reports whether newest is later than the session's last read time.
func (s *Store) Unread(sessionID string, newest time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return newest.After(s.prefs[sessionID].LastReadAt)
}

// Sessions returns the number of sessions with stored preferences.
func (s *Store) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.prefs)
}

func (s *Store) update(sessionID string, fn func(*Preferences)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.prefs[sessionID]
	before := p
	fn(&p)
	if p != before {
		s.prefs[sessionID] = p
		s.dirty = true
	}
}
