// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/chuli1122/chuli-home-sub001/internal/conversation"
	"github.com/chuli1122/chuli-home-sub001/internal/transcript"
)

// eventMsg carries a conversation event into the program.
type eventMsg struct {
	Event conversation.Event
}

// opDoneMsg reports the end of a conversation operation run as a command.
type opDoneMsg struct {
	Op  string
	Err error
}

// olderLoadedMsg reports the end of a scroll-triggered older page fetch.
type olderLoadedMsg struct {
	Loaded bool
	Err    error
}

// attachedMsg reports a file stored in the blob store for the next message.
type attachedMsg struct {
	Attachment transcript.Attachment
}

// frameMsg drives swipe animations and the bottom-pinning loop.
type frameMsg time.Time

const frameInterval = time.Second / 30

func frameCmd() tea.Cmd {
	return tea.Tick(frameInterval, func(t time.Time) tea.Msg {
		return frameMsg(t)
	})
}

// =============================================================================
// EVENT BRIDGE
// =============================================================================

// eventBridge forwards conversation events, which fire on background
// goroutines, to the program one at a time.
type eventBridge struct {
	ch          chan conversation.Event
	done        chan struct{}
	once        sync.Once
	unsubscribe func()
}

func newEventBridge(conv *conversation.Conversation) *eventBridge {
	b := &eventBridge{
		ch:   make(chan conversation.Event, 64),
		done: make(chan struct{}),
	}
	b.unsubscribe = conv.Subscribe(b.push)
	return b
}

// push blocks until the program takes the event or the bridge stops, so a
// finished stream is never dropped.
func (b *eventBridge) push(ev conversation.Event) {
	select {
	case b.ch <- ev:
	case <-b.done:
	}
}

// wait returns a command that delivers the next event.
func (b *eventBridge) wait() tea.Cmd {
	return func() tea.Msg {
		select {
		case ev := <-b.ch:
			return eventMsg{Event: ev}
		case <-b.done:
			return nil
		}
	}
}

func (b *eventBridge) stop() {
	b.once.Do(func() {
		close(b.done)
		b.unsubscribe()
	})
}
