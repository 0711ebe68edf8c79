// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package scroll keeps the transcript viewport steady across mutations.
//
// Three strategies cover the three classes of mutation:
//
//   - Prepend: an older page was inserted above; keep the visible rows in place.
//   - Follow: content grew at the bottom; stay pinned while the user is there.
//   - Jump: the window was replaced around a target; centre it and flash a locator.
//
// Callers announce the mutation before or after applying it, then call
// AfterLayout once the new rows have been measured. Exactly one strategy is
// applied per layout pass; a jump outranks a prepend, which outranks follow.
package scroll

import (
	"sync"
	"time"

	"github.com/chuli1122/chuli-home-sub001/internal/model"
)

// Viewport is the scroll container. Units are whatever the container
// measures in: pixels in a browser, lines in a terminal.
type Viewport interface {
	ScrollHeight() int
	ScrollTop() int
	ClientHeight() int
	SetScrollTop(top int)
}

// Layout reports where a row was laid out.
type Layout interface {
	RowBounds(id model.MessageID) (top, height int, ok bool)
}

// Strategy identifies an anchor strategy.
type Strategy int

const (
	StrategyNone Strategy = iota
	StrategyFollow
	StrategyPrepend
	StrategyJump
)

// String returns the strategy name.
func (s Strategy) String() string {
	switch s {
	case StrategyFollow:
		return "follow-bottom"
	case StrategyPrepend:
		return "prepend-older"
	case StrategyJump:
		return "jump-to-message"
	default:
		return "none"
	}
}

// Config holds the anchor thresholds.
type Config struct {
	// NearBottomThreshold is the distance from the bottom within which the
	// user counts as following.
	NearBottomThreshold int

	// FollowBudget bounds the bottom-pinning loop started by PinBottom.
	FollowBudget time.Duration

	// LocatorDuration is how long the jump locator stays visible.
	LocatorDuration time.Duration

	// Now is the clock; nil uses time.Now.
	Now func() time.Time
}

// DefaultConfig returns the default thresholds.
func DefaultConfig() Config {
	return Config{
		NearBottomThreshold: 80,
		FollowBudget:        1500 * time.Millisecond,
		LocatorDuration:     2 * time.Second,
	}
}

// Anchor applies scroll strategies to a viewport. Thread-safe.
type Anchor struct {
	mu     sync.Mutex
	vp     Viewport
	layout Layout
	cfg    Config

	pending Strategy

	prependHeight int
	prependTop    int

	jumpTarget model.MessageID

	following   bool
	followUntil time.Time

	locatorID    model.MessageID
	locatorUntil time.Time
}

// NewAnchor creates an anchor. A new anchor follows the bottom.
func NewAnchor(vp Viewport, layout Layout, cfg Config) *Anchor {
	def := DefaultConfig()
	if cfg.NearBottomThreshold < 0 {
		cfg.NearBottomThreshold = def.NearBottomThreshold
	}
	if cfg.FollowBudget <= 0 {
		cfg.FollowBudget = def.FollowBudget
	}
	if cfg.LocatorDuration <= 0 {
		cfg.LocatorDuration = def.LocatorDuration
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Anchor{vp: vp, layout: layout, cfg: cfg, following: true}
}

// SetConfig replaces the thresholds, keeping the clock.
func (a *Anchor) SetConfig(cfg Config) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if cfg.Now == nil {
		cfg.Now = a.cfg.Now
	}
	if cfg.FollowBudget <= 0 {
		cfg.FollowBudget = a.cfg.FollowBudget
	}
	if cfg.LocatorDuration <= 0 {
		cfg.LocatorDuration = a.cfg.LocatorDuration
	}
	a.cfg = cfg
}

// request records s unless a higher-priority strategy is already pending.
// Caller must hold the lock.
func (a *Anchor) request(s Strategy) {
	if s > a.pending {
		a.pending = s
	}
}

// =============================================================================
// MUTATION ANNOUNCEMENTS
// =============================================================================

// CapturePrepend records the scroll geometry before older rows are inserted.
func (a *Anchor) CapturePrepend() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.prependHeight = a.vp.ScrollHeight()
	a.prependTop = a.vp.ScrollTop()
	a.request(StrategyPrepend)
}

// ContentGrew announces growth at the bottom (stream chunk, optimistic append).
func (a *Anchor) ContentGrew() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.following {
		a.request(StrategyFollow)
	}
}

// PinBottom starts following the bottom and keeps re-pinning on every layout
// pass for the follow budget, to absorb late layout changes after a mount or
// a send.
func (a *Anchor) PinBottom() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.following = true
	a.followUntil = a.cfg.Now().Add(a.cfg.FollowBudget)
	a.request(StrategyFollow)
}

// JumpTo announces that the window was replaced around target.
func (a *Anchor) JumpTo(target model.MessageID) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.jumpTarget = target
	a.following = false
	a.followUntil = time.Time{}
	a.request(StrategyJump)
}

// OnScroll records a user scroll. Moving away from the bottom suspends follow
// and cancels the pin loop; returning to the bottom resumes it.
func (a *Anchor) OnScroll() {
	a.mu.Lock()
	defer a.mu.Unlock()

	near := a.nearBottom()
	if !near {
		a.followUntil = time.Time{}
	}
	a.following = near
}

// StreamEnded re-evaluates follow from the current position once a stream
// finishes.
func (a *Anchor) StreamEnded() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.following = a.nearBottom()
}

// nearBottom reports whether the viewport is within the threshold of the
// bottom. Caller must hold the lock.
func (a *Anchor) nearBottom() bool {
	distance := a.vp.ScrollHeight() - a.vp.ClientHeight() - a.vp.ScrollTop()
	return distance <= a.cfg.NearBottomThreshold
}

// =============================================================================
// LAYOUT PASS
// =============================================================================

// AfterLayout applies the pending strategy. Call it from the post-layout
// callback, once newly inserted rows have been measured. It returns the
// strategy that was applied.
func (a *Anchor) AfterLayout() Strategy {
	a.mu.Lock()
	defer a.mu.Unlock()

	applied := a.pending
	a.pending = StrategyNone

	switch applied {
	case StrategyPrepend:
		delta := a.vp.ScrollHeight() - a.prependHeight
		a.vp.SetScrollTop(a.prependTop + delta)

	case StrategyJump:
		top, height, ok := a.layout.RowBounds(a.jumpTarget)
		if !ok {
			return StrategyNone
		}
		center := top + height/2 - a.vp.ClientHeight()/2
		a.vp.SetScrollTop(clamp(center, 0, a.maxTop()))
		a.locatorID = a.jumpTarget
		a.locatorUntil = a.cfg.Now().Add(a.cfg.LocatorDuration)

	case StrategyFollow:
		a.vp.SetScrollTop(a.maxTop())

	case StrategyNone:
		if a.following && a.cfg.Now().Before(a.followUntil) {
			a.vp.SetScrollTop(a.maxTop())
			return StrategyFollow
		}
	}
	return applied
}

// maxTop is the largest valid scroll offset. Caller must hold the lock.
func (a *Anchor) maxTop() int {
	return max(0, a.vp.ScrollHeight()-a.vp.ClientHeight())
}

// =============================================================================
// QUERIES
// =============================================================================

// Following reports whether the anchor follows the bottom.
func (a *Anchor) Following() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.following
}

// FollowActive reports whether the bottom-pinning loop is still running.
func (a *Anchor) FollowActive() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.following && a.cfg.Now().Before(a.followUntil)
}

// Locator returns the row to highlight after a jump while the locator lasts.
func (a *Anchor) Locator() (model.MessageID, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.locatorID.IsZero() || !a.cfg.Now().Before(a.locatorUntil) {
		return model.MessageID{}, false
	}
	return a.locatorID, true
}

// Pending returns the strategy waiting for the next layout pass.
func (a *Anchor) Pending() Strategy {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.pending
}

// Animating reports whether a timed effect (pin loop or locator) is running
// and the caller should keep scheduling layout passes.
func (a *Anchor) Animating() bool {
	if a.FollowActive() {
		return true
	}
	_, ok := a.Locator()
	return ok
}

func clamp(v, lo, hi int) int {
	return min(max(v, lo), hi)
}
