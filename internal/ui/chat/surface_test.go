// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/chuli1122/chuli-home-sub001/internal/model"
)

func TestSurfaceRowLookup(t *testing.T) {
	s := NewSurface()
	s.setLayout([]rowSpan{
		{ID: model.ID(1), Top: 2, Height: 3},
		{ID: model.ID(2), Top: 6, Height: 2},
	}, 10)

	top, height, ok := s.RowBounds(model.ID(2))
	assert.True(t, ok)
	assert.Equal(t, 6, top)
	assert.Equal(t, 2, height)

	_, _, ok = s.RowBounds(model.ID(9))
	assert.False(t, ok)

	id, ok := s.RowAt(4)
	assert.True(t, ok)
	assert.Equal(t, model.ID(1), id)

	_, ok = s.RowAt(5) // separator line
	assert.False(t, ok)
	_, ok = s.RowAt(0)
	assert.False(t, ok)
	_, ok = s.RowAt(8)
	assert.False(t, ok)
}

func TestSurfaceClampsScrollTop(t *testing.T) {
	s := NewSurface()
	s.setLayout(nil, 50)
	s.setClient(20)

	s.SetScrollTop(100)
	assert.Equal(t, 30, s.ScrollTop())
	s.SetScrollTop(-4)
	assert.Equal(t, 0, s.ScrollTop())

	s.syncTop(12)
	assert.Equal(t, 12, s.ScrollTop())
	assert.Equal(t, 50, s.ScrollHeight())
	assert.Equal(t, 20, s.ClientHeight())
}
