// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package conversation

import (
	"context"
	"sync"
	"time"

	"github.com/chuli1122/chuli-home-sub001/internal/blob"
	"github.com/chuli1122/chuli-home-sub001/internal/model"
)

// fakeBackend serves history from an ascending slice and streams scripted
// replies.
type fakeBackend struct {
	mu sync.Mutex

	history []model.Message
	fetches int

	chunks []string
	err    error

	// gate, when set, holds the stream after its first chunk until closed
	// or the request is cancelled.
	gate chan struct{}

	// hold, when set, keeps a cancelled stream from returning until closed.
	hold chan struct{}

	// persist stores the exchange under server ids once a stream completes.
	persist bool
	nextID  int64

	payloads  []model.Payload
	deleted   []model.MessageID
	deleteErr error
	edits     map[model.MessageID]string
	editErr   error
}

func newFakeBackend(history ...model.Message) *fakeBackend {
	f := &fakeBackend{history: history, edits: make(map[model.MessageID]string)}
	for _, m := range history {
		if m.ID.Seq > f.nextID {
			f.nextID = m.ID.Seq
		}
	}
	return f
}

func (f *fakeBackend) FetchMessages(ctx context.Context, sessionID string, opts model.FetchOptions) (model.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++

	var eligible []model.Message
	for _, m := range f.history {
		if opts.BeforeID == nil || m.ID.Less(*opts.BeforeID) {
			eligible = append(eligible, m)
		}
	}
	start := 0
	if opts.Limit > 0 && len(eligible) > opts.Limit {
		start = len(eligible) - opts.Limit
	}
	page := model.Page{
		Messages: append([]model.Message(nil), eligible[start:]...),
		HasMore:  start > 0,
	}
	return page, nil
}

func (f *fakeBackend) Stream(ctx context.Context, sessionID string, payload model.Payload, onChunk func(string)) error {
	f.mu.Lock()
	f.payloads = append(f.payloads, payload)
	chunks := append([]string(nil), f.chunks...)
	gate := f.gate
	hold := f.hold
	err := f.err
	f.mu.Unlock()

	var reply string
	for i, c := range chunks {
		if i == 1 && gate != nil {
			select {
			case <-gate:
			case <-ctx.Done():
				if hold != nil {
					<-hold
				}
				return ctx.Err()
			}
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		onChunk(c)
		reply += c
	}
	if err != nil {
		return err
	}

	f.mu.Lock()
	if f.persist {
		f.nextID++
		f.history = append(f.history, model.Message{ID: model.ID(f.nextID), Role: model.RoleUser, Content: payload.PlainText()})
		f.nextID++
		f.history = append(f.history, model.Message{ID: model.ID(f.nextID), Role: model.RoleAssistant, Content: reply})
	}
	f.mu.Unlock()
	return nil
}

func (f *fakeBackend) DeleteMessage(ctx context.Context, sessionID string, id model.MessageID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, id)
	return f.deleteErr
}

func (f *fakeBackend) EditMessage(ctx context.Context, sessionID string, id model.MessageID, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edits[id] = content
	return f.editErr
}

func (f *fakeBackend) editFor(id model.MessageID) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	content, ok := f.edits[id]
	return content, ok
}

func (f *fakeBackend) lastPayload() model.Payload {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.payloads) == 0 {
		return model.Payload{}
	}
	return f.payloads[len(f.payloads)-1]
}

func (f *fakeBackend) deletedIDs() []model.MessageID {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.MessageID(nil), f.deleted...)
}

// memBlobs is an in-memory blob.Store.
type memBlobs struct {
	mu    sync.Mutex
	blobs map[string]blob.Blob
}

func newMemBlobs(bs ...blob.Blob) *memBlobs {
	m := &memBlobs{blobs: make(map[string]blob.Blob)}
	for _, b := range bs {
		m.blobs[b.ID] = b
	}
	return m
}

func (m *memBlobs) Get(ctx context.Context, id string) (blob.Blob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.blobs[id]
	if !ok {
		return blob.Blob{}, blob.ErrNotFound
	}
	return b, nil
}

func (m *memBlobs) Put(ctx context.Context, b blob.Blob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[b.ID] = b
	return nil
}

func (m *memBlobs) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.blobs, id)
	return nil
}

// recordingAnchor records scroll announcements.
type recordingAnchor struct {
	mu    sync.Mutex
	calls map[string]int
	jump  model.MessageID
}

func newRecordingAnchor() *recordingAnchor {
	return &recordingAnchor{calls: make(map[string]int)}
}

func (a *recordingAnchor) record(name string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls[name]++
}

func (a *recordingAnchor) count(name string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls[name]
}

func (a *recordingAnchor) CapturePrepend() { a.record("prepend") }
func (a *recordingAnchor) ContentGrew() { a.record("grew") }
func (a *recordingAnchor) PinBottom() { a.record("pin") }
func (a *recordingAnchor) OnScroll() { a.record("scroll") }
func (a *recordingAnchor) StreamEnded() { a.record("ended") }
func (a *recordingAnchor) JumpTo(id model.MessageID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls["jump"]++
	a.jump = id
}

// history builds alternating user/assistant rows with ids from..to.
func history(from, to int64) []model.Message {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	var out []model.Message
	for id := from; id <= to; id++ {
		role := model.RoleUser
		if id%2 == 0 {
			role = model.RoleAssistant
		}
		out = append(out, model.Message{
			ID:        model.ID(id),
			Role:      role,
			Content:   "message",
			CreatedAt: base.Add(time.Duration(id) * time.Minute),
		})
	}
	return out
}
