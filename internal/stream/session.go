// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/chuli1122/chuli-home-sub001/internal/model"
	"github.com/chuli1122/chuli-home-sub001/internal/transcript"
)

// DefaultFallbackText is written to the placeholder when a stream fails
// before any content arrived.
const DefaultFallbackText = "(no reply received, please send again)"

// =============================================================================
// INTERFACES
// =============================================================================

// Streamer opens a streaming request and calls onChunk for every content
// fragment, in arrival order, on a single goroutine. It returns nil when the
// stream completed and an error when it failed or ctx was cancelled.
type Streamer interface {
	Stream(ctx context.Context, sessionID string, payload model.Payload, onChunk func(text string)) error
}

// Patcher applies updates to transcript rows. Patching an absent id is a no-op.
type Patcher interface {
	Patch(id model.MessageID, update func(*model.Message)) bool
}

// =============================================================================
// STATE
// =============================================================================

// State is the lifecycle state of a session.
type State int

const (
	StatePending State = iota
	StateStreaming
	StateCompleted
	StateFailed
	StateAborted
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateStreaming:
		return "streaming"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Terminal reports whether the state is final.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateAborted
}

// Options configures sessions started by a Controller.
type Options struct {
	// FallbackText replaces an empty buffer on failure.
	FallbackText string

	// Cleanup post-processes the buffer on completion.
	// Defaults to transcript.CleanupReply.
	Cleanup func(string) string

	// OnChunk runs after each applied chunk, outside the session lock.
	OnChunk func(*Session)

	// OnFinish runs once the session reaches a terminal state.
	OnFinish func(*Session)

	Logger *zap.Logger
}

func (o Options) withDefaults() Options {
	if o.FallbackText == "" {
		o.FallbackText = DefaultFallbackText
	}
	if o.Cleanup == nil {
		o.Cleanup = transcript.CleanupReply
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

// =============================================================================
// SESSION
// =============================================================================

// Session is one in-flight generation targeting a placeholder row.
type Session struct {
	mu sync.Mutex

	requestID string
	sessionID string
	target    model.MessageID
	payload   model.Payload

	buffer strings.Builder
	state  State
	err    error
	chunks int

	startedAt    time.Time
	firstChunkAt time.Time
	finishedAt   time.Time

	patcher Patcher
	opts    Options
	cancel  context.CancelFunc
	done    chan struct{}
}

// RequestID returns the unique id of this generation.
func (s *Session) RequestID() string { return s.requestID }

// SessionID returns the chat session the stream belongs to.
func (s *Session) SessionID() string { return s.sessionID }

// TargetID returns the placeholder row the stream patches.
func (s *Session) TargetID() model.MessageID { return s.target }

// Payload returns the outgoing payload.
func (s *Session) Payload() model.Payload { return s.payload }

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Buffer returns the accumulated raw content.
func (s *Session) Buffer() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buffer.String()
}

// Err returns the transport error of a failed session.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Chunks returns the number of applied chunks.
func (s *Session) Chunks() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chunks
}

// TTFT returns the time to first chunk, or zero if none arrived.
func (s *Session) TTFT() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.firstChunkAt.IsZero() {
		return 0
	}
	return s.firstChunkAt.Sub(s.startedAt)
}

// Duration returns the total run time of a finished session.
func (s *Session) Duration() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finishedAt.IsZero() {
		return time.Since(s.startedAt)
	}
	return s.finishedAt.Sub(s.startedAt)
}

// Done is closed once the session reaches a terminal state, its final patch
// has been applied and OnFinish has returned.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Wait blocks until the session is done or ctx ends.
func (s *Session) Wait(ctx context.Context) error {
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Abort cancels the request. No chunk is applied after Abort returns.
// It returns false if the session had already finished.
func (s *Session) Abort() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Terminal() {
		return false
	}
	s.state = StateAborted
	s.cancel()
	return true
}

// applyChunk appends text and patches the target with the whole buffer.
// The state check and the patch happen under the session lock so an abort
// cannot slip between them.
func (s *Session) applyChunk(text string) {
	if text == "" {
		return
	}

	s.mu.Lock()
	if s.state.Terminal() {
		s.mu.Unlock()
		return
	}
	if s.state == StatePending {
		s.state = StateStreaming
		s.firstChunkAt = time.Now()
	}
	s.buffer.WriteString(text)
	s.chunks++
	content := s.buffer.String()
	s.patcher.Patch(s.target, func(m *model.Message) {
		m.Content = content
	})
	s.mu.Unlock()

	if s.opts.OnChunk != nil {
		s.opts.OnChunk(s)
	}
}

// finish moves the session to its terminal state and applies the final patch.
func (s *Session) finish(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw := s.buffer.String()
	var final string

	switch {
	case s.state == StateAborted:
		final = raw
		if strings.TrimSpace(final) == "" {
			final = s.opts.FallbackText
		}
		s.opts.Logger.Info("stream aborted",
			zap.String("request_id", s.requestID),
			zap.Int("chunks", s.chunks))

	case err == nil:
		s.state = StateCompleted
		final = s.opts.Cleanup(raw)

	default:
		s.state = StateFailed
		s.err = err
		final = raw
		if strings.TrimSpace(final) == "" {
			final = s.opts.FallbackText
		}
		level := s.opts.Logger.Warn
		if errors.Is(err, context.Canceled) {
			level = s.opts.Logger.Info
		}
		level("stream failed",
			zap.String("request_id", s.requestID),
			zap.Stringer("target", s.target),
			zap.Int("partial_bytes", len(raw)),
			zap.Error(err))
	}

	s.finishedAt = time.Now()
	s.patcher.Patch(s.target, func(m *model.Message) {
		m.Content = final
	})
}
