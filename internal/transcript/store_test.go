// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package transcript

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chuli1122/chuli-home-sub001/internal/model"
)

func msg(seq int64, role model.Role, content string) model.Message {
	return model.Message{ID: model.ID(seq), Role: role, Content: content}
}

func ids(msgs []model.Message) []int64 {
	out := make([]int64, len(msgs))
	for i, m := range msgs {
		out[i] = m.ID.Seq
	}
	return out
}

func assertOrdered(t *testing.T, msgs []model.Message) {
	t.Helper()
	seen := make(map[model.MessageID]bool, len(msgs))
	for i, m := range msgs {
		require.False(t, seen[m.ID], "duplicate id %v", m.ID)
		seen[m.ID] = true
		if i > 0 {
			require.True(t, msgs[i-1].ID.Less(m.ID), "rows %v and %v out of order", msgs[i-1].ID, m.ID)
		}
	}
}

// =============================================================================
// PREPEND / APPEND TESTS
// =============================================================================

func TestPrependPage(t *testing.T) {
	s := NewStore(nil)
	s.PrependPage([]model.Message{msg(10, model.RoleUser, "a"), msg(11, model.RoleAssistant, "b")})
	n := s.PrependPage([]model.Message{msg(7, model.RoleUser, "c"), msg(8, model.RoleAssistant, "d")})

	assert.Equal(t, 2, n)
	assert.Equal(t, []int64{7, 8, 10, 11}, ids(s.Messages()))
}

func TestPrependPageDropsDuplicates(t *testing.T) {
	s := NewStore(nil)
	s.AppendLocal(msg(5, model.RoleUser, "local edit"))

	n := s.PrependPage([]model.Message{msg(4, model.RoleUser, "older"), msg(5, model.RoleUser, "stale")})

	assert.Equal(t, 1, n)
	got, ok := s.Get(model.ID(5))
	require.True(t, ok)
	assert.Equal(t, "local edit", got.Content)
}

func TestPrependPageNewerVersionWins(t *testing.T) {
	s := NewStore(nil)
	s.PrependPage([]model.Message{{ID: model.ID(5), Role: model.RoleUser, Content: "v1", Version: 1}})

	s.PrependPage([]model.Message{{ID: model.ID(5), Role: model.RoleUser, Content: "v1 again", Version: 1}})
	got, _ := s.Get(model.ID(5))
	assert.Equal(t, "v1", got.Content, "equal version keeps the stored row")

	s.PrependPage([]model.Message{{ID: model.ID(5), Role: model.RoleUser, Content: "v2", Version: 2}})
	got, _ = s.Get(model.ID(5))
	assert.Equal(t, "v2", got.Content)
	assert.Equal(t, 1, s.Len())
}

func TestAppendLocal(t *testing.T) {
	s := NewStore(nil)
	require.True(t, s.AppendLocal(msg(1, model.RoleUser, "hi")))
	require.True(t, s.AppendLocal(msg(2, model.RoleAssistant, "")))
	assert.False(t, s.AppendLocal(msg(2, model.RoleAssistant, "again")))
	assert.Equal(t, []int64{1, 2}, ids(s.Messages()))
}

func TestOrderingInvariantRandomOps(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	s := NewStore(nil)

	for round := 0; round < 500; round++ {
		switch rng.Intn(4) {
		case 0:
			page := make([]model.Message, rng.Intn(5))
			for i := range page {
				page[i] = msg(int64(rng.Intn(200)), model.RoleUser, "p")
			}
			s.PrependPage(page)
		case 1:
			s.AppendLocal(msg(int64(rng.Intn(200)), model.RoleAssistant, "a"))
		case 2:
			s.Patch(model.ID(int64(rng.Intn(200))), func(m *model.Message) {
				m.Content += "x"
				m.ID = model.ID(999) // ignored
			})
		case 3:
			s.Remove(model.ID(int64(rng.Intn(200))))
		}
		assertOrdered(t, s.Messages())
	}
}

// =============================================================================
// PATCH / REMOVE TESTS
// =============================================================================

func TestPatchMissingIsNoop(t *testing.T) {
	s := NewStore(nil)
	called := false
	ok := s.Patch(model.ID(3), func(m *model.Message) { called = true })
	assert.False(t, ok)
	assert.False(t, called)
}

func TestPatchAfterRemoveDoesNotResurrect(t *testing.T) {
	s := NewStore(nil)
	s.AppendLocal(msg(1, model.RoleAssistant, "partial"))
	require.True(t, s.Remove(model.ID(1)))

	assert.False(t, s.Patch(model.ID(1), func(m *model.Message) { m.Content = "more" }))
	assert.Equal(t, 0, s.Len())
	assert.False(t, s.Remove(model.ID(1)))
}

func TestEmptyAssistantFiltering(t *testing.T) {
	s := NewStore(nil)
	s.AppendLocal(msg(1, model.RoleUser, "hello"))
	s.AppendLocal(msg(2, model.RoleAssistant, ""))
	s.AppendLocal(msg(3, model.RoleAssistant, "EMPTY"))

	assert.Equal(t, []int64{1}, ids(s.Visible()))
	assert.Equal(t, 3, s.Len())

	s.Patch(model.ID(2), func(m *model.Message) { m.Content = "hi there" })
	assert.Equal(t, []int64{1, 2}, ids(s.Visible()))
}

// =============================================================================
// WINDOW TESTS
// =============================================================================

func TestReplaceAndReconcile(t *testing.T) {
	s := NewStore(nil)
	s.Replace([]model.Message{msg(3, model.RoleUser, "q"), msg(1, model.RoleUser, "p")})
	assert.Equal(t, []int64{1, 3}, ids(s.Messages()))

	pendingUser := model.NewPendingMessage(model.ID(1_700_000_000_000), model.RoleUser, "new")
	pendingReply := model.NewPendingMessage(model.ID(1_700_000_000_001), model.RoleAssistant, "answer")
	s.AppendLocal(pendingUser)
	s.AppendLocal(pendingReply)

	n := s.Reconcile([]model.Message{msg(4, model.RoleUser, "new"), msg(5, model.RoleAssistant, "answer")})
	assert.Equal(t, 2, n)
	assert.Equal(t, []int64{1, 3, 4, 5}, ids(s.Messages()))
}

func TestPrecedingUser(t *testing.T) {
	s := NewStore(nil)
	s.Replace([]model.Message{
		msg(1, model.RoleUser, "first"),
		msg(2, model.RoleAssistant, "a"),
		msg(3, model.RoleSystem, "note"),
		msg(4, model.RoleAssistant, "b"),
	})

	u, ok := s.PrecedingUser(model.ID(4))
	require.True(t, ok)
	assert.Equal(t, "first", u.Content)

	_, ok = s.PrecedingUser(model.ID(1))
	assert.False(t, ok)

	last, ok := s.LastAssistant()
	require.True(t, ok)
	assert.Equal(t, int64(4), last.ID.Seq)
}

func TestApplySplit(t *testing.T) {
	s := NewStore(nil)
	s.AppendLocal(msg(1, model.RoleUser, "q"))
	s.AppendLocal(msg(2, model.RoleAssistant, "one[[next]]two [[used:3]][[next]]three"))
	s.AppendLocal(msg(3, model.RoleUser, "next question"))

	got := s.ApplySplit(model.ID(2))
	require.Len(t, got, 3)

	rows := s.Messages()
	assertOrdered(t, rows)
	require.Len(t, rows, 5)
	assert.Equal(t, "one", rows[1].Content)
	assert.Equal(t, "two", rows[2].Content)
	assert.Equal(t, "three", rows[3].Content)
	assert.Equal(t, "next question", rows[4].Content)

	assert.Nil(t, s.ApplySplit(model.ID(99)))
}

func TestGroupByDay(t *testing.T) {
	day1 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.Local)
	day2 := day1.Add(24 * time.Hour)
	msgs := []model.Message{
		{ID: model.ID(1), CreatedAt: day1},
		{ID: model.ID(2), CreatedAt: day1.Add(time.Hour)},
		{ID: model.ID(3), CreatedAt: day2},
	}

	groups := GroupByDay(msgs)
	require.Len(t, groups, 2)
	assert.Len(t, groups[0].Messages, 2)
	assert.Len(t, groups[1].Messages, 1)
	assert.Equal(t, "Today", groups[1].Label(day2.Add(2*time.Hour)))
	assert.Equal(t, "Yesterday", groups[0].Label(day2.Add(2*time.Hour)))
}
