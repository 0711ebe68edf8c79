// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package scroll

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chuli1122/chuli-home-sub001/internal/model"
)

type fakeViewport struct {
	height, top, client int
}

func (v *fakeViewport) ScrollHeight() int { return v.height }
func (v *fakeViewport) ScrollTop() int    { return v.top }
func (v *fakeViewport) ClientHeight() int { return v.client }
func (v *fakeViewport) SetScrollTop(top int) {
	v.top = min(max(top, 0), max(0, v.height-v.client))
}

type fakeLayout map[model.MessageID][2]int

func (l fakeLayout) RowBounds(id model.MessageID) (int, int, bool) {
	b, ok := l[id]
	return b[0], b[1], ok
}

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestAnchor(vp *fakeViewport, layout Layout) (*Anchor, *fakeClock) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	cfg := DefaultConfig()
	cfg.Now = clock.Now
	return NewAnchor(vp, layout, cfg), clock
}

// =============================================================================
// PREPEND TESTS
// =============================================================================

func TestPrependRestoresOffset(t *testing.T) {
	vp := &fakeViewport{height: 1000, top: 50, client: 400}
	a, _ := newTestAnchor(vp, fakeLayout{})

	a.CapturePrepend()
	vp.height += 200
	applied := a.AfterLayout()

	assert.Equal(t, StrategyPrepend, applied)
	assert.Equal(t, 250, vp.top)
}

func TestPrependAppliedOncePerCapture(t *testing.T) {
	vp := &fakeViewport{height: 1000, top: 50, client: 400}
	a, _ := newTestAnchor(vp, fakeLayout{})
	a.OnScroll()

	a.CapturePrepend()
	vp.height += 100
	a.AfterLayout()
	assert.Equal(t, 150, vp.top)

	assert.Equal(t, StrategyNone, a.AfterLayout())
	assert.Equal(t, 150, vp.top)
}

// =============================================================================
// FOLLOW TESTS
// =============================================================================

func TestFollowBottomWhileNear(t *testing.T) {
	vp := &fakeViewport{height: 1000, top: 600, client: 400}
	a, _ := newTestAnchor(vp, fakeLayout{})
	a.OnScroll()
	require.True(t, a.Following())

	vp.height = 1100
	a.ContentGrew()
	assert.Equal(t, StrategyFollow, a.AfterLayout())
	assert.Equal(t, 700, vp.top)
}

func TestFollowSuspendedWhenScrolledAway(t *testing.T) {
	vp := &fakeViewport{height: 1000, top: 600, client: 400}
	a, _ := newTestAnchor(vp, fakeLayout{})

	vp.top = 200
	a.OnScroll()
	assert.False(t, a.Following())

	vp.height = 1100
	a.ContentGrew()
	assert.Equal(t, StrategyNone, a.AfterLayout())
	assert.Equal(t, 200, vp.top)

	// Stream ends while still away: follow stays off.
	a.StreamEnded()
	assert.False(t, a.Following())

	// Returning to the bottom resumes follow.
	vp.top = 690
	a.OnScroll()
	assert.True(t, a.Following())
}

func TestPinLoopSelfTerminates(t *testing.T) {
	vp := &fakeViewport{height: 1000, top: 0, client: 400}
	a, clock := newTestAnchor(vp, fakeLayout{})

	a.PinBottom()
	assert.Equal(t, StrategyFollow, a.AfterLayout())
	assert.Equal(t, 600, vp.top)

	// Late layout growth inside the budget is absorbed without a new request.
	clock.Advance(time.Second)
	vp.height = 1300
	assert.Equal(t, StrategyFollow, a.AfterLayout())
	assert.Equal(t, 900, vp.top)
	assert.True(t, a.Animating())

	clock.Advance(600 * time.Millisecond)
	vp.height = 1500
	assert.Equal(t, StrategyNone, a.AfterLayout())
	assert.Equal(t, 900, vp.top)
	assert.False(t, a.FollowActive())
	assert.True(t, a.Following(), "following itself continues past the loop budget")
}

func TestScrollAwayCancelsPinLoop(t *testing.T) {
	vp := &fakeViewport{height: 1000, top: 0, client: 400}
	a, _ := newTestAnchor(vp, fakeLayout{})
	a.PinBottom()
	a.AfterLayout()

	vp.top = 100
	a.OnScroll()
	vp.height = 1200
	assert.Equal(t, StrategyNone, a.AfterLayout())
	assert.Equal(t, 100, vp.top)
}

// =============================================================================
// JUMP TESTS
// =============================================================================

func TestJumpCentersTargetAndFlashesLocator(t *testing.T) {
	target := model.ID(77)
	vp := &fakeViewport{height: 2000, top: 1600, client: 400}
	a, clock := newTestAnchor(vp, fakeLayout{target: {900, 100}})

	a.JumpTo(target)
	assert.Equal(t, StrategyJump, a.AfterLayout())
	assert.Equal(t, 750, vp.top, "row centre 950 minus half the viewport")
	assert.False(t, a.Following())

	id, ok := a.Locator()
	require.True(t, ok)
	assert.Equal(t, target, id)

	clock.Advance(1999 * time.Millisecond)
	_, ok = a.Locator()
	assert.True(t, ok)

	clock.Advance(time.Millisecond)
	_, ok = a.Locator()
	assert.False(t, ok)
}

func TestJumpClampsNearEdges(t *testing.T) {
	target := model.ID(1)
	vp := &fakeViewport{height: 2000, top: 1600, client: 400}
	a, _ := newTestAnchor(vp, fakeLayout{target: {0, 40}})

	a.JumpTo(target)
	a.AfterLayout()
	assert.Equal(t, 0, vp.top)
}

func TestJumpUnknownRowAppliesNothing(t *testing.T) {
	vp := &fakeViewport{height: 2000, top: 300, client: 400}
	a, _ := newTestAnchor(vp, fakeLayout{})

	a.JumpTo(model.ID(5))
	assert.Equal(t, StrategyNone, a.AfterLayout())
	assert.Equal(t, 300, vp.top)
}

// =============================================================================
// EXCLUSIVITY TESTS
// =============================================================================

func TestOneStrategyPerPass(t *testing.T) {
	vp := &fakeViewport{height: 1000, top: 600, client: 400}
	a, _ := newTestAnchor(vp, fakeLayout{})
	a.OnScroll()

	a.ContentGrew()
	a.CapturePrepend()
	assert.Equal(t, StrategyPrepend, a.Pending(), "prepend outranks follow")

	vp.height = 1200
	assert.Equal(t, StrategyPrepend, a.AfterLayout())
	assert.Equal(t, 800, vp.top)
	assert.Equal(t, StrategyNone, a.Pending())

	target := model.ID(3)
	a.layout = fakeLayout{target: {500, 20}}
	a.CapturePrepend()
	a.JumpTo(target)
	a.ContentGrew()
	assert.Equal(t, StrategyJump, a.Pending(), "jump outranks prepend and follow")
}
