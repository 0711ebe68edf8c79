// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/chuli1122/chuli-home-sub001/internal/model"
)

// ErrSessionActive is returned when a stream is started while another one
// is still in flight on the same transcript.
var ErrSessionActive = errors.New("a stream session is already active")

// Controller runs at most one Session at a time for a transcript.
type Controller struct {
	mu       sync.Mutex
	active   *Session
	streamer Streamer
	patcher  Patcher
	opts     Options
	log      *zap.Logger
}

// NewController creates a controller patching rows through patcher.
func NewController(streamer Streamer, patcher Patcher, opts Options) *Controller {
	opts = opts.withDefaults()
	return &Controller{
		streamer: streamer,
		patcher:  patcher,
		opts:     opts,
		log:      opts.Logger.Named("stream"),
	}
}

// Start opens a stream that fills the target row. It returns
// ErrSessionActive, and creates nothing, while another session is running.
func (c *Controller) Start(ctx context.Context, sessionID string, target model.MessageID, payload model.Payload) (*Session, error) {
	c.mu.Lock()
	if c.active != nil && !c.active.State().Terminal() {
		active := c.active
		c.mu.Unlock()
		c.log.Warn("ignoring stream start while another session is active",
			zap.String("active_request", active.RequestID()),
			zap.Stringer("target", target))
		return nil, ErrSessionActive
	}

	runCtx, cancel := context.WithCancel(ctx)
	opts := c.opts
	opts.Logger = c.log
	s := &Session{
		requestID: uuid.NewString(),
		sessionID: sessionID,
		target:    target,
		payload:   payload,
		state:     StatePending,
		startedAt: time.Now(),
		patcher:   c.patcher,
		opts:      opts,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	c.active = s
	c.mu.Unlock()

	c.log.Debug("stream started",
		zap.String("request_id", s.requestID),
		zap.Stringer("target", target),
		zap.Bool("multimodal", payload.IsMultimodal()))

	go c.run(runCtx, s)
	return s, nil
}

func (c *Controller) run(ctx context.Context, s *Session) {
	err := c.streamer.Stream(ctx, s.sessionID, s.payload, s.applyChunk)
	s.finish(err)
	s.cancel()

	c.mu.Lock()
	if c.active == s {
		c.active = nil
	}
	c.mu.Unlock()

	if c.opts.OnFinish != nil {
		c.opts.OnFinish(s)
	}
	close(s.done)
}

// Active returns the running session, if any.
func (c *Controller) Active() (*Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil || c.active.State().Terminal() {
		return nil, false
	}
	return c.active, true
}

// Streaming reports whether a session is running.
func (c *Controller) Streaming() bool {
	_, ok := c.Active()
	return ok
}

// Abort aborts the running session and reports whether there was one.
func (c *Controller) Abort() bool {
	s, ok := c.Active()
	if !ok {
		return false
	}
	return s.Abort()
}
