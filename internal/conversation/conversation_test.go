// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package conversation

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chuli1122/chuli-home-sub001/internal/blob"
	"github.com/chuli1122/chuli-home-sub001/internal/model"
	"github.com/chuli1122/chuli-home-sub001/internal/pagination"
	"github.com/chuli1122/chuli-home-sub001/internal/stream"
	"github.com/chuli1122/chuli-home-sub001/internal/transcript"
)

type harness struct {
	backend *fakeBackend
	anchor  *recordingAnchor
	conv    *Conversation

	mu     sync.Mutex
	events []Event
}

func newHarness(t *testing.T, backend *fakeBackend, mutate func(*Options)) *harness {
	t.Helper()
	h := &harness{backend: backend, anchor: newRecordingAnchor()}
	opts := Options{
		SessionID: "s-1",
		Paging:    pagination.Config{PageSize: 4, NearTopThreshold: 2},
		Anchor:    h.anchor,
	}
	if mutate != nil {
		mutate(&opts)
	}
	h.conv = New(backend, opts)
	h.conv.Subscribe(func(ev Event) {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.events = append(h.events, ev)
	})
	t.Cleanup(h.conv.Close)
	return h
}

func (h *harness) kinds() []EventKind {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]EventKind, 0, len(h.events))
	for _, ev := range h.events {
		out = append(out, ev.Kind)
	}
	return out
}

func (h *harness) lastEvent(kind EventKind) (Event, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i := len(h.events) - 1; i >= 0; i-- {
		if h.events[i].Kind == kind {
			return h.events[i], true
		}
	}
	return Event{}, false
}

func ids(msgs []model.Message) []int64 {
	out := make([]int64, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.ID.Seq)
	}
	return out
}

// =============================================================================
// HISTORY TESTS
// =============================================================================

func TestMountAndLoadOlder(t *testing.T) {
	h := newHarness(t, newFakeBackend(history(1, 10)...), nil)
	ctx := context.Background()

	require.NoError(t, h.conv.Mount(ctx))
	assert.Equal(t, []int64{7, 8, 9, 10}, ids(h.conv.Visible()))
	assert.Equal(t, 1, h.anchor.count("pin"))

	ok, err := h.conv.LoadOlder(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []int64{3, 4, 5, 6, 7, 8, 9, 10}, ids(h.conv.Visible()))

	ok, err = h.conv.LoadOlder(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Len(t, h.conv.Visible(), 10)
	assert.False(t, h.conv.Cursor().HasMore())

	ok, err = h.conv.LoadOlder(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "no more history")

	assert.Equal(t, 2, h.anchor.count("prepend"))
	ev, found := h.lastEvent(EventPrepended)
	require.True(t, found)
	assert.Equal(t, 2, ev.Count)
	assert.False(t, ev.HasMore)
}

func TestOnScrollTriggersNearTop(t *testing.T) {
	h := newHarness(t, newFakeBackend(history(1, 10)...), nil)
	ctx := context.Background()
	require.NoError(t, h.conv.Mount(ctx))

	loaded, err := h.conv.OnScroll(ctx, 10)
	require.NoError(t, err)
	assert.False(t, loaded)

	loaded, err = h.conv.OnScroll(ctx, 1)
	require.NoError(t, err)
	assert.True(t, loaded)
	assert.Equal(t, 2, h.anchor.count("scroll"))
	assert.Len(t, h.conv.Visible(), 8)
}

func TestMountSplitsStoredMultiPart(t *testing.T) {
	rows := []model.Message{
		{ID: model.ID(1), Role: model.RoleUser, Content: "hi"},
		{ID: model.ID(2), Role: model.RoleAssistant, Content: "a[[next]]b"},
	}
	h := newHarness(t, newFakeBackend(rows...), nil)
	require.NoError(t, h.conv.Mount(context.Background()))

	visible := h.conv.Visible()
	require.Len(t, visible, 3)
	assert.Equal(t, model.MessageID{Seq: 2, Part: 1}, visible[2].ID)
}

func TestJumpTo(t *testing.T) {
	h := newHarness(t, newFakeBackend(history(1, 20)...), nil)
	ctx := context.Background()
	require.NoError(t, h.conv.Mount(ctx))

	require.NoError(t, h.conv.JumpTo(ctx, model.ID(7)))
	assert.Equal(t, []int64{4, 5, 6, 7}, ids(h.conv.Visible()))
	assert.Equal(t, model.ID(4), h.conv.Cursor().OldestLoadedID())
	assert.True(t, h.conv.Cursor().HasMore())
	assert.Equal(t, model.ID(7), h.anchor.jump)

	// Already loaded: no fetch, just re-centre.
	fetches := h.backend.fetches
	require.NoError(t, h.conv.JumpTo(ctx, model.ID(5)))
	assert.Equal(t, fetches, h.backend.fetches)
	assert.Equal(t, model.ID(5), h.anchor.jump)

	err := h.conv.JumpTo(ctx, model.ID(99))
	assert.ErrorIs(t, err, ErrUnknownMessage)
	assert.Equal(t, []int64{4, 5, 6, 7}, ids(h.conv.Visible()), "window unchanged on a failed jump")
}

// =============================================================================
// SEND TESTS
// =============================================================================

func TestSendStreamsIntoPlaceholder(t *testing.T) {
	backend := newFakeBackend(history(1, 2)...)
	backend.chunks = []string{"Hel", "lo [[used:3]]  "}
	h := newHarness(t, backend, nil)
	ctx := context.Background()
	require.NoError(t, h.conv.Mount(ctx))

	s, err := h.conv.Send(ctx, "  hi  ", nil)
	require.NoError(t, err)
	require.NoError(t, s.Wait(ctx))

	assert.Equal(t, stream.StateCompleted, s.State())
	assert.Equal(t, "hi", backend.lastPayload().Text)

	visible := h.conv.Visible()
	require.Len(t, visible, 4)
	assert.Equal(t, model.RoleUser, visible[2].Role)
	assert.Equal(t, "hi", visible[2].Content)
	assert.True(t, visible[2].Pending)
	assert.Equal(t, "Hello", visible[3].Content)
	assert.True(t, visible[2].ID.Less(visible[3].ID))
	assert.True(t, model.ID(2).Less(visible[2].ID), "optimistic ids sort after history")

	kinds := h.kinds()
	assert.Contains(t, kinds, EventAppended)
	assert.Contains(t, kinds, EventChunk)
	assert.Contains(t, kinds, EventStreamFinished)
	assert.GreaterOrEqual(t, h.anchor.count("grew"), 2)
	assert.Equal(t, 1, h.anchor.count("ended"))
}

func TestSendEmpty(t *testing.T) {
	h := newHarness(t, newFakeBackend(), nil)
	_, err := h.conv.Send(context.Background(), "   ", nil)
	assert.ErrorIs(t, err, ErrEmptyMessage)
	assert.Equal(t, 0, h.conv.Store().Len())
}

func TestSendSplitsReply(t *testing.T) {
	backend := newFakeBackend()
	backend.chunks = []string{"one", "[[next]]two"}
	h := newHarness(t, backend, nil)
	ctx := context.Background()

	s, err := h.conv.Send(ctx, "go", nil)
	require.NoError(t, err)
	require.NoError(t, s.Wait(ctx))

	visible := h.conv.Visible()
	require.Len(t, visible, 3)
	assert.Equal(t, "one", visible[1].Content)
	assert.Equal(t, "two", visible[2].Content)
	assert.Equal(t, visible[1].ID.Seq, visible[2].ID.Seq)
	assert.Equal(t, uint8(1), visible[2].ID.Part)

	ev, ok := h.lastEvent(EventStreamFinished)
	require.True(t, ok)
	assert.Len(t, ev.Parts, 2)
}

func TestSendFailureKeepsPartial(t *testing.T) {
	backend := newFakeBackend()
	backend.chunks = []string{"Hel"}
	backend.err = errors.New("connection reset")
	h := newHarness(t, backend, nil)
	ctx := context.Background()

	s, err := h.conv.Send(ctx, "hi", nil)
	require.NoError(t, err)
	require.NoError(t, s.Wait(ctx))

	assert.Equal(t, stream.StateFailed, s.State())
	reply, ok := h.conv.Store().Get(s.TargetID())
	require.True(t, ok)
	assert.Equal(t, "Hel", reply.Content)
}

func TestSendWhileStreamingIsRejected(t *testing.T) {
	backend := newFakeBackend()
	backend.chunks = []string{"Hel", "lo"}
	backend.gate = make(chan struct{})
	h := newHarness(t, backend, nil)
	ctx := context.Background()

	s, err := h.conv.Send(ctx, "first", nil)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return s.Buffer() == "Hel" }, time.Second, 5*time.Millisecond)

	_, err = h.conv.Send(ctx, "second", nil)
	assert.ErrorIs(t, err, stream.ErrSessionActive)
	assert.Equal(t, 2, h.conv.Store().Len(), "rejected send creates no rows")

	_, err = h.conv.Regenerate(ctx, s.TargetID())
	assert.ErrorIs(t, err, stream.ErrSessionActive)

	require.True(t, h.conv.Abort())
	require.NoError(t, s.Wait(ctx))
	assert.Equal(t, stream.StateAborted, s.State())

	reply, ok := h.conv.Store().Get(s.TargetID())
	require.True(t, ok)
	assert.Equal(t, "Hel", reply.Content)
	assert.False(t, h.conv.Streaming())
}

func TestAbortedReplyFinishingLateKeepsFollow(t *testing.T) {
	backend := newFakeBackend()
	backend.chunks = []string{"Hel", "lo"}
	backend.gate = make(chan struct{})
	backend.hold = make(chan struct{})
	h := newHarness(t, backend, nil)
	ctx := context.Background()

	first, err := h.conv.Send(ctx, "first", nil)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return first.Buffer() == "Hel" }, time.Second, 5*time.Millisecond)
	require.True(t, h.conv.Abort())

	// The aborted run is still inside Stream; a new reply may start.
	second, err := h.conv.Send(ctx, "second", nil)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return second.Buffer() == "Hel" }, time.Second, 5*time.Millisecond)

	close(backend.hold)
	require.NoError(t, first.Wait(ctx))
	assert.Equal(t, 0, h.anchor.count("ended"), "stale finish leaves the new reply following")

	close(backend.gate)
	require.NoError(t, second.Wait(ctx))
	assert.Equal(t, stream.StateCompleted, second.State())
	assert.Equal(t, 1, h.anchor.count("ended"))
}

func TestSendWithAttachments(t *testing.T) {
	backend := newFakeBackend()
	backend.chunks = []string{"nice"}
	blobs := newMemBlobs(blob.Blob{ID: "img1", MIME: "image/png", Data: []byte{1, 2, 3}})
	h := newHarness(t, backend, func(o *Options) { o.Blobs = blobs })
	ctx := context.Background()

	atts := []transcript.Attachment{
		{Kind: transcript.AttachmentImage, BlobID: "img1"},
		{Kind: transcript.AttachmentFile, BlobID: "gone", Name: "a.pdf"},
	}
	s, err := h.conv.Send(ctx, "look", atts)
	require.NoError(t, err)
	require.NoError(t, s.Wait(ctx))

	payload := backend.lastPayload()
	require.True(t, payload.IsMultimodal())
	require.Len(t, payload.Parts, 2, "missing blob is skipped")
	assert.Equal(t, model.PartText, payload.Parts[0].Type)
	assert.Equal(t, model.PartImageURL, payload.Parts[1].Type)
	assert.True(t, strings.HasPrefix(payload.Parts[1].ImageURL.URL, "data:image/png;base64,"))

	user := h.conv.Visible()[0]
	assert.Contains(t, user.Content, "[[image:img1]]")
	assert.Contains(t, user.Content, "[[file:gone|a.pdf]]")
}

func TestReconcileReplacesOptimisticRows(t *testing.T) {
	backend := newFakeBackend(history(1, 2)...)
	backend.chunks = []string{"reply"}
	backend.persist = true
	h := newHarness(t, backend, func(o *Options) { o.Reconcile = true })
	ctx := context.Background()
	require.NoError(t, h.conv.Mount(ctx))

	_, err := h.conv.Send(ctx, "hi", nil)
	require.NoError(t, err)
	h.conv.Wait()

	msgs := h.conv.Store().Messages()
	assert.Equal(t, []int64{1, 2, 3, 4}, ids(msgs))
	for _, m := range msgs {
		assert.False(t, m.Pending)
	}
	assert.Contains(t, h.kinds(), EventReconciled)
}

// =============================================================================
// MUTATION TESTS
// =============================================================================

func TestDeleteIsLocalFirst(t *testing.T) {
	backend := newFakeBackend(history(1, 4)...)
	backend.deleteErr = errors.New("backend down")
	h := newHarness(t, backend, nil)
	ctx := context.Background()
	require.NoError(t, h.conv.Mount(ctx))

	require.NoError(t, h.conv.Delete(ctx, model.ID(3)))
	assert.Equal(t, []int64{1, 2, 4}, ids(h.conv.Visible()))

	h.conv.Wait()
	assert.Equal(t, []model.MessageID{model.ID(3)}, backend.deletedIDs())
	assert.Equal(t, []int64{1, 2, 4}, ids(h.conv.Visible()), "remote failure is not rolled back")

	assert.ErrorIs(t, h.conv.Delete(ctx, model.ID(3)), ErrUnknownMessage)
}

func TestDeleteWhileStreaming(t *testing.T) {
	backend := newFakeBackend()
	backend.chunks = []string{"Hel", "lo"}
	backend.gate = make(chan struct{})
	h := newHarness(t, backend, nil)
	ctx := context.Background()

	s, err := h.conv.Send(ctx, "hi", nil)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return s.Buffer() == "Hel" }, time.Second, 5*time.Millisecond)

	require.NoError(t, h.conv.Delete(ctx, s.TargetID()))
	close(backend.gate)
	require.NoError(t, s.Wait(ctx))

	_, ok := h.conv.Store().Get(s.TargetID())
	assert.False(t, ok, "deleted placeholder is not resurrected")
	assert.Equal(t, 1, h.conv.Store().Len())
	assert.Empty(t, backend.deletedIDs(), "pending rows have no remote copy")
}

func TestEditAppliesLocallyRegardless(t *testing.T) {
	backend := newFakeBackend(history(1, 2)...)
	backend.editErr = errors.New("conflict")
	h := newHarness(t, backend, nil)
	ctx := context.Background()
	require.NoError(t, h.conv.Mount(ctx))

	err := h.conv.Edit(ctx, model.ID(1), "edited")
	assert.Error(t, err)

	m, ok := h.conv.Store().Get(model.ID(1))
	require.True(t, ok)
	assert.Equal(t, "edited", m.Content)
	assert.Equal(t, "edited", backend.edits[model.ID(1)])

	assert.ErrorIs(t, h.conv.Edit(ctx, model.ID(42), "x"), ErrUnknownMessage)
}

func splitHistory() []model.Message {
	return []model.Message{
		{ID: model.ID(1), Role: model.RoleUser, Content: "hi"},
		{ID: model.ID(2), Role: model.RoleAssistant, Content: "first[[next]]second"},
	}
}

func TestEditSplitPartRewritesParent(t *testing.T) {
	backend := newFakeBackend(splitHistory()...)
	h := newHarness(t, backend, nil)
	ctx := context.Background()
	require.NoError(t, h.conv.Mount(ctx))
	require.Len(t, h.conv.Visible(), 3)

	require.NoError(t, h.conv.Edit(ctx, model.ID(2), "first edited"))
	got, ok := backend.editFor(model.ID(2))
	require.True(t, ok)
	assert.Equal(t, "first edited[[next]]second", got)

	second := model.MessageID{Seq: 2, Part: 1}
	require.NoError(t, h.conv.Edit(ctx, second, "second edited"))
	got, _ = backend.editFor(model.ID(2))
	assert.Equal(t, "first edited[[next]]second edited", got)

	_, ok = backend.editFor(second)
	assert.False(t, ok, "client-side part ids never reach the backend")

	m, ok := h.conv.Store().Get(second)
	require.True(t, ok)
	assert.Equal(t, "second edited", m.Content)
}

func TestDeleteSplitPartDeletesParent(t *testing.T) {
	backend := newFakeBackend(splitHistory()...)
	h := newHarness(t, backend, nil)
	ctx := context.Background()
	require.NoError(t, h.conv.Mount(ctx))

	require.NoError(t, h.conv.Delete(ctx, model.MessageID{Seq: 2, Part: 1}))
	assert.Equal(t, []int64{1}, ids(h.conv.Visible()))

	h.conv.Wait()
	assert.Equal(t, []model.MessageID{model.ID(2)}, backend.deletedIDs())
}

// =============================================================================
// REGENERATE TESTS
// =============================================================================

func regenHistory() []model.Message {
	return []model.Message{
		{ID: model.ID(1), Role: model.RoleUser, Content: "look\n[[image:b1]]"},
		{ID: model.ID(2), Role: model.RoleAssistant, Content: "old reply"},
	}
}

func TestRegenerateMultimodal(t *testing.T) {
	backend := newFakeBackend(regenHistory()...)
	backend.chunks = []string{"new reply"}
	blobs := newMemBlobs(blob.Blob{ID: "b1", MIME: "image/jpeg", Data: []byte("jpg")})
	h := newHarness(t, backend, func(o *Options) { o.Blobs = blobs })
	ctx := context.Background()
	require.NoError(t, h.conv.Mount(ctx))

	s, err := h.conv.Regenerate(ctx, model.ID(2))
	require.NoError(t, err)
	require.NoError(t, s.Wait(ctx))
	h.conv.Wait()

	payload := backend.lastPayload()
	require.True(t, payload.IsMultimodal())
	assert.False(t, payload.Regenerate)
	assert.Equal(t, "look", payload.Parts[0].Text)
	assert.Equal(t, model.PartImageURL, payload.Parts[1].Type)

	assert.ElementsMatch(t, []model.MessageID{model.ID(1), model.ID(2)}, backend.deletedIDs())

	visible := h.conv.Visible()
	require.Len(t, visible, 2)
	assert.True(t, visible[0].Pending, "user message was re-sent")
	assert.Equal(t, "look\n[[image:b1]]", visible[0].Content)
	assert.Equal(t, "new reply", visible[1].Content)
}

func TestRegenerateDegradesWhenBlobMissing(t *testing.T) {
	backend := newFakeBackend(regenHistory()...)
	backend.chunks = []string{"again"}
	h := newHarness(t, backend, func(o *Options) { o.Blobs = newMemBlobs() })
	ctx := context.Background()
	require.NoError(t, h.conv.Mount(ctx))

	s, err := h.conv.Regenerate(ctx, model.ID(2))
	require.NoError(t, err)
	require.NoError(t, s.Wait(ctx))
	h.conv.Wait()

	payload := backend.lastPayload()
	assert.False(t, payload.IsMultimodal())
	assert.True(t, payload.Regenerate)
	assert.Equal(t, "look", payload.Text)

	assert.Equal(t, []model.MessageID{model.ID(2)}, backend.deletedIDs())
	visible := h.conv.Visible()
	require.Len(t, visible, 2)
	assert.Equal(t, model.ID(1), visible[0].ID, "original user message kept")
	assert.Equal(t, "again", visible[1].Content)
}

func TestRegenerateDegradesWhenDeleteFails(t *testing.T) {
	backend := newFakeBackend(regenHistory()...)
	backend.chunks = []string{"again"}
	backend.deleteErr = errors.New("nope")
	blobs := newMemBlobs(blob.Blob{ID: "b1", Data: []byte("jpg")})
	h := newHarness(t, backend, func(o *Options) { o.Blobs = blobs })
	ctx := context.Background()
	require.NoError(t, h.conv.Mount(ctx))

	s, err := h.conv.Regenerate(ctx, model.ID(2))
	require.NoError(t, err)
	require.NoError(t, s.Wait(ctx))

	payload := backend.lastPayload()
	assert.False(t, payload.IsMultimodal())
	assert.True(t, payload.Regenerate)
	_, ok := h.conv.Store().Get(model.ID(1))
	assert.True(t, ok)
}

func TestRegenerateRemovesSplitSiblings(t *testing.T) {
	rows := []model.Message{
		{ID: model.ID(1), Role: model.RoleUser, Content: "hi"},
		{ID: model.ID(2), Role: model.RoleAssistant, Content: "a[[next]]b[[next]]c"},
	}
	backend := newFakeBackend(rows...)
	backend.chunks = []string{"fresh"}
	h := newHarness(t, backend, nil)
	ctx := context.Background()
	require.NoError(t, h.conv.Mount(ctx))
	require.Len(t, h.conv.Visible(), 4)

	s, err := h.conv.Regenerate(ctx, model.MessageID{Seq: 2, Part: 1})
	require.NoError(t, err)
	require.NoError(t, s.Wait(ctx))

	visible := h.conv.Visible()
	require.Len(t, visible, 2)
	assert.Equal(t, "fresh", visible[1].Content)

	h.conv.Wait()
	assert.Equal(t, []model.MessageID{model.ID(2)}, backend.deletedIDs(), "parts are deleted through their parent")
}

func TestRegenerateErrors(t *testing.T) {
	rows := []model.Message{{ID: model.ID(1), Role: model.RoleAssistant, Content: "orphan"}}
	h := newHarness(t, newFakeBackend(append(rows, model.Message{ID: model.ID(2), Role: model.RoleUser, Content: "q"})...), nil)
	ctx := context.Background()
	require.NoError(t, h.conv.Mount(ctx))

	_, err := h.conv.Regenerate(ctx, model.ID(1))
	assert.ErrorIs(t, err, ErrNoUserMessage)
	_, ok := h.conv.Store().Get(model.ID(1))
	assert.True(t, ok, "nothing deleted when there is no user message")

	_, err = h.conv.Regenerate(ctx, model.ID(2))
	assert.ErrorIs(t, err, ErrNotAssistant)

	_, err = h.conv.Regenerate(ctx, model.ID(9))
	assert.ErrorIs(t, err, ErrUnknownMessage)
}
