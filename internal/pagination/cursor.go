// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package pagination tracks the backward-paging cursor of a transcript.
//
// The cursor remembers the oldest loaded id and the server's has-more flag,
// and guarantees that at most one backward fetch is in flight: calls made
// while a fetch is outstanding are dropped, not queued.
package pagination

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"

	"github.com/chuli1122/chuli-home-sub001/internal/model"
)

// Fetcher loads one page of history.
type Fetcher interface {
	FetchMessages(ctx context.Context, sessionID string, opts model.FetchOptions) (model.Page, error)
}

// Config controls page size and the near-top trigger.
type Config struct {
	// PageSize is the number of rows requested per page.
	PageSize int

	// NearTopThreshold is the absolute scroll distance from the top within
	// which an older page is requested.
	NearTopThreshold int
}

// DefaultConfig returns default paging settings.
func DefaultConfig() Config {
	return Config{
		PageSize:         30,
		NearTopThreshold: 50,
	}
}

// State is a snapshot of the cursor.
type State struct {
	OldestLoadedID model.MessageID
	HasMore        bool
	Loading        bool
}

// Cursor coordinates backward fetches for one session.
type Cursor struct {
	mu sync.Mutex

	fetcher   Fetcher
	sessionID string
	cfg       Config
	search    string
	log       *zap.Logger

	oldest  model.MessageID
	hasMore bool
	loading bool

	// gen changes whenever the window is reset so that a fetch started
	// against the old window cannot move the cursor of the new one.
	gen uint64
}

// New creates a cursor for sessionID.
func New(fetcher Fetcher, sessionID string, cfg Config, log *zap.Logger) *Cursor {
	def := DefaultConfig()
	if cfg.PageSize <= 0 {
		cfg.PageSize = def.PageSize
	}
	if cfg.NearTopThreshold < 0 {
		cfg.NearTopThreshold = 0
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Cursor{
		fetcher:   fetcher,
		sessionID: sessionID,
		cfg:       cfg,
		log:       log.Named("pagination"),
	}
}

// SetSearch sets the search filter applied to every fetch. The window must be
// reloaded with LoadInitial afterwards.
func (c *Cursor) SetSearch(query string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.search = norm.NFC.String(strings.TrimSpace(query))
}

// Search returns the active search filter.
func (c *Cursor) Search() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.search
}

// LoadInitial fetches the newest page and resets the cursor to it.
func (c *Cursor) LoadInitial(ctx context.Context) (model.Page, error) {
	c.mu.Lock()
	opts := model.FetchOptions{Limit: c.cfg.PageSize, Search: c.search}
	c.mu.Unlock()

	page, err := c.fetcher.FetchMessages(ctx, c.sessionID, opts)
	if err != nil {
		return model.Page{}, fmt.Errorf("initial fetch: %w", err)
	}
	page.Normalize()
	c.Reset(page)
	return page, nil
}

// Reset adopts page as the whole loaded window, as after a mount or a jump.
func (c *Cursor) Reset(page model.Page) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.gen++
	c.oldest, _ = page.Oldest()
	c.hasMore = page.HasMore
}

// LoadOlder fetches the page before the oldest loaded id.
// The returned bool is false when the call was dropped: another fetch is in
// flight, the server reported no more history, nothing is loaded yet, or the
// window was reset while the fetch was running.
func (c *Cursor) LoadOlder(ctx context.Context) (model.Page, bool, error) {
	c.mu.Lock()
	if c.loading || !c.hasMore || c.oldest.IsZero() {
		c.mu.Unlock()
		return model.Page{}, false, nil
	}
	c.loading = true
	before := c.oldest
	gen := c.gen
	opts := model.FetchOptions{Limit: c.cfg.PageSize, BeforeID: &before, Search: c.search}
	c.mu.Unlock()

	page, err := c.fetcher.FetchMessages(ctx, c.sessionID, opts)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.loading = false

	if err != nil {
		return model.Page{}, false, fmt.Errorf("fetch before %s: %w", before, err)
	}
	if gen != c.gen {
		c.log.Debug("discarding page fetched for a replaced window", zap.Stringer("before", before))
		return model.Page{}, false, nil
	}

	page.Normalize()
	if oldest, ok := page.Oldest(); ok && oldest.Less(c.oldest) {
		c.oldest = oldest
	}
	if page.HasMore && len(page.Messages) == 0 {
		c.log.Warn("server reported more history but returned an empty page", zap.Stringer("before", before))
	}
	c.hasMore = page.HasMore
	return page, true, nil
}

// ShouldLoad reports whether a scroll position within the near-top threshold
// should trigger LoadOlder.
func (c *Cursor) ShouldLoad(scrollTop int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.loading && c.hasMore && !c.oldest.IsZero() && scrollTop <= c.cfg.NearTopThreshold
}

// State returns a snapshot of the cursor.
func (c *Cursor) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return State{OldestLoadedID: c.oldest, HasMore: c.hasMore, Loading: c.loading}
}

// OldestLoadedID returns the cursor boundary.
func (c *Cursor) OldestLoadedID() model.MessageID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.oldest
}

// HasMore reports whether older history remains on the server.
func (c *Cursor) HasMore() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hasMore
}

// Loading reports whether a backward fetch is in flight.
func (c *Cursor) Loading() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loading
}

// SessionID returns the session the cursor pages through.
func (c *Cursor) SessionID() string {
	return c.sessionID
}

// PageSize returns the configured page size.
func (c *Cursor) PageSize() int {
	return c.cfg.PageSize
}
