// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package transcript

import (
	"slices"
	"sync"

	"go.uber.org/zap"

	"github.com/chuli1122/chuli-home-sub001/internal/model"
)

// =============================================================================
// STORE
// =============================================================================

// Store is the ordered message sequence of one session.
// Rows are kept sorted by ascending id with no duplicates.
// Thread-safe: all methods take the store mutex.
type Store struct {
	mu   sync.RWMutex
	rows []model.Message
	log  *zap.Logger
}

// NewStore creates an empty store. A nil logger disables logging.
func NewStore(log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{log: log.Named("transcript")}
}

// search returns the index of id, or the insertion point and false.
// Caller must hold the lock.
func (s *Store) search(id model.MessageID) (int, bool) {
	return slices.BinarySearchFunc(s.rows, id, func(m model.Message, target model.MessageID) int {
		return m.ID.Compare(target)
	})
}

// merge inserts m at its sorted position. An existing row with the same id
// is replaced only when m carries a strictly newer version.
// Caller must hold the lock.
func (s *Store) merge(m model.Message) bool {
	i, found := s.search(m.ID)
	if found {
		if m.Version > s.rows[i].Version {
			s.log.Debug("replacing row with newer version",
				zap.Stringer("id", m.ID),
				zap.Uint64("old_version", s.rows[i].Version),
				zap.Uint64("new_version", m.Version))
			s.rows[i] = m
			return true
		}
		s.log.Debug("dropping duplicate row", zap.Stringer("id", m.ID))
		return false
	}
	s.rows = slices.Insert(s.rows, i, m)
	return true
}

// PrependPage merges an older page into the store and returns how many rows
// were inserted or replaced. Pages normally hold ids below the current
// minimum; duplicates from a racing fetch are dropped unless they carry a
// newer version.
func (s *Store) PrependPage(msgs []model.Message) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	changed := 0
	for _, m := range msgs {
		if s.merge(m) {
			changed++
		}
	}
	return changed
}

// AppendLocal inserts an optimistic or placeholder row at the tail.
// It returns false if a row with the same id already exists.
func (s *Store) AppendLocal(m model.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n := len(s.rows); n > 0 && !s.rows[n-1].ID.Less(m.ID) {
		if _, found := s.search(m.ID); found {
			s.log.Debug("ignoring append of existing id", zap.Stringer("id", m.ID))
			return false
		}
		s.log.Warn("appended id is below the newest row",
			zap.Stringer("id", m.ID),
			zap.Stringer("newest", s.rows[n-1].ID))
		i, _ := s.search(m.ID)
		s.rows = slices.Insert(s.rows, i, m)
		return true
	}
	s.rows = append(s.rows, m)
	return true
}

// Patch applies update to the row with the given id.
// It is a no-op returning false when the id is absent, for example when the
// row was deleted while a stream still targets it. The updater cannot change
// the row's id.
func (s *Store) Patch(id model.MessageID, update func(*model.Message)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, found := s.search(id)
	if !found {
		return false
	}
	update(&s.rows[i])
	s.rows[i].ID = id
	return true
}

// Remove deletes the row with the given id.
func (s *Store) Remove(id model.MessageID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, found := s.search(id)
	if !found {
		return false
	}
	s.rows = slices.Delete(s.rows, i, i+1)
	return true
}

// Replace swaps the whole window for msgs, used on mount and jump-to.
func (s *Store) Replace(msgs []model.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.rows = s.rows[:0]
	for _, m := range msgs {
		s.merge(m)
	}
}

// ApplySplit replaces the row with the given id by its multi-part siblings
// and returns the sibling ids. It returns nil when the row is absent.
func (s *Store) ApplySplit(id model.MessageID) []model.MessageID {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, found := s.search(id)
	if !found {
		return nil
	}
	parts := SplitMultiPart(s.rows[i])
	ids := make([]model.MessageID, 0, len(parts))
	s.rows = slices.Delete(s.rows, i, i+1)
	for _, p := range parts {
		s.merge(p)
		ids = append(ids, p.ID)
	}
	return ids
}

// Reconcile drops every pending row and merges confirmed rows from the
// server. Synthetic ids are never reused once the real rows are known.
func (s *Store) Reconcile(confirmed []model.Message) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.rows = slices.DeleteFunc(s.rows, func(m model.Message) bool {
		return m.Pending
	})
	changed := 0
	for _, m := range confirmed {
		m.Pending = false
		if s.merge(m) {
			changed++
		}
	}
	return changed
}

// =============================================================================
// QUERIES
// =============================================================================

// Get returns a copy of the row with the given id.
func (s *Store) Get(id model.MessageID) (model.Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i, found := s.search(id)
	if !found {
		return model.Message{}, false
	}
	return s.rows[i], true
}

// Messages returns a copy of every row, including hidden ones.
func (s *Store) Messages() []model.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.rows)
}

// Visible returns the rows to render: empty assistant rows are skipped.
func (s *Store) Visible() []model.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Message, 0, len(s.rows))
	for _, m := range s.rows {
		if !m.IsEmpty() {
			out = append(out, m)
		}
	}
	return out
}

// Len returns the number of rows, including hidden ones.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rows)
}

// Oldest returns the smallest id in the store.
func (s *Store) Oldest() (model.MessageID, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.rows) == 0 {
		return model.MessageID{}, false
	}
	return s.rows[0].ID, true
}

// Newest returns the largest id in the store.
func (s *Store) Newest() (model.MessageID, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.rows) == 0 {
		return model.MessageID{}, false
	}
	return s.rows[len(s.rows)-1].ID, true
}

// PrecedingUser returns the nearest user row ordered before id.
func (s *Store) PrecedingUser(id model.MessageID) (model.Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i, _ := s.search(id)
	for j := i - 1; j >= 0; j-- {
		if s.rows[j].IsUser() {
			return s.rows[j], true
		}
	}
	return model.Message{}, false
}

// LastAssistant returns the newest visible assistant row.
func (s *Store) LastAssistant() (model.Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for j := len(s.rows) - 1; j >= 0; j-- {
		if s.rows[j].IsAssistant() && !s.rows[j].IsEmpty() {
			return s.rows[j], true
		}
	}
	return model.Message{}, false
}
