// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package conversation

import (
	"sync"

	"github.com/chuli1122/chuli-home-sub001/internal/model"
	"github.com/chuli1122/chuli-home-sub001/internal/stream"
)

// EventKind identifies what changed in the transcript.
type EventKind int

const (
	EventMounted EventKind = iota
	EventPrepended
	EventAppended
	EventChunk
	EventStreamFinished
	EventRemoved
	EventEdited
	EventJumped
	EventReconciled
	EventError
)

// String returns the event name.
func (k EventKind) String() string {
	switch k {
	case EventMounted:
		return "mounted"
	case EventPrepended:
		return "prepended"
	case EventAppended:
		return "appended"
	case EventChunk:
		return "chunk"
	case EventStreamFinished:
		return "stream_finished"
	case EventRemoved:
		return "removed"
	case EventEdited:
		return "edited"
	case EventJumped:
		return "jumped"
	case EventReconciled:
		return "reconciled"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event describes one transcript change.
type Event struct {
	Kind EventKind

	// ID is the affected row: the stream target, the removed or edited
	// row, or the jump target.
	ID model.MessageID

	// Count is the number of rows merged by a fetch.
	Count int

	// HasMore is the cursor flag after a fetch.
	HasMore bool

	// State is the terminal state of a finished stream.
	State stream.State

	// Parts lists the rows a finished reply was split into.
	Parts []model.MessageID

	Err error
}

// hub fans events out to subscribers.
type hub struct {
	mu   sync.RWMutex
	next int
	subs map[int]func(Event)
}

func (h *hub) subscribe(fn func(Event)) func() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs == nil {
		h.subs = make(map[int]func(Event))
	}
	id := h.next
	h.next++
	h.subs[id] = fn
	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.subs, id)
	}
}

func (h *hub) emit(ev Event) {
	h.mu.RLock()
	subs := make([]func(Event), 0, len(h.subs))
	for _, fn := range h.subs {
		subs = append(subs, fn)
	}
	h.mu.RUnlock()

	for _, fn := range subs {
		fn(ev)
	}
}
