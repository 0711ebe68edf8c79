// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"sort"
	"sync"

	"github.com/chuli1122/chuli-home-sub001/internal/model"
)

// rowSpan is where a row landed in the rendered transcript, in lines.
type rowSpan struct {
	ID     model.MessageID
	Top    int
	Height int
}

// Surface mirrors the transcript viewport for the scroll anchor. The model
// records each layout pass into it and copies the scroll offset back into the
// bubbles viewport afterwards. Safe for concurrent use, since the
// conversation announces mutations from background goroutines.
type Surface struct {
	mu     sync.Mutex
	height int
	top    int
	client int
	rows   []rowSpan
	index  map[model.MessageID]int
}

// NewSurface creates an empty surface.
func NewSurface() *Surface {
	return &Surface{index: make(map[model.MessageID]int)}
}

// ScrollHeight returns the rendered transcript height in lines.
func (s *Surface) ScrollHeight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.height
}

// ScrollTop returns the first visible line.
func (s *Surface) ScrollTop() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.top
}

// ClientHeight returns the number of visible lines.
func (s *Surface) ClientHeight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.client
}

// SetScrollTop moves the first visible line, clamped to the content.
func (s *Surface) SetScrollTop(top int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.top = min(max(top, 0), max(0, s.height-s.client))
}

// RowBounds reports where id was rendered in the last layout pass.
func (s *Surface) RowBounds(id model.MessageID) (top, height int, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.index[id]
	if !ok {
		return 0, 0, false
	}
	r := s.rows[i]
	return r.Top, r.Height, true
}

// RowAt returns the row covering content line.
func (s *Surface) RowAt(line int) (model.MessageID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := sort.Search(len(s.rows), func(i int) bool {
		return s.rows[i].Top+s.rows[i].Height > line
	})
	if i == len(s.rows) || s.rows[i].Top > line {
		return model.MessageID{}, false
	}
	return s.rows[i].ID, true
}

// setLayout records a layout pass. rows must be ordered by Top.
func (s *Surface) setLayout(rows []rowSpan, height int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = rows
	s.height = height
	s.index = make(map[model.MessageID]int, len(rows))
	for i, r := range rows {
		s.index[r.ID] = i
	}
}

// setClient records the viewport height.
func (s *Surface) setClient(lines int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.client = lines
}

// syncTop records a scroll the viewport performed on its own.
func (s *Surface) syncTop(top int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.top = top
}
