// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package gesture

import (
	"math"
	"sync"
)

// =============================================================================
// CONFIG
// =============================================================================

// Config parameterizes a swipe row.
type Config struct {
	// ActionWidth is the width of the revealed action; the row opens to -ActionWidth.
	ActionWidth float64

	// SnapThreshold is the release distance beyond which the row commits open.
	// Zero means half of ActionWidth.
	SnapThreshold float64

	// AxisLockDistance is how far the pointer moves before the axis is decided.
	AxisLockDistance float64

	// Spring parameters for the snap animation.
	FPS       int
	Frequency float64
	Damping   float64
}

// DefaultConfig returns the default row geometry.
func DefaultConfig() Config {
	return Config{
		ActionWidth:      80,
		SnapThreshold:    40,
		AxisLockDistance: 5,
		FPS:              60,
		Frequency:        8.0,
		Damping:          1.0,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.ActionWidth <= 0 {
		c.ActionWidth = def.ActionWidth
	}
	if c.SnapThreshold <= 0 {
		c.SnapThreshold = c.ActionWidth / 2
	}
	if c.AxisLockDistance <= 0 {
		c.AxisLockDistance = def.AxisLockDistance
	}
	if c.FPS <= 0 {
		c.FPS = def.FPS
	}
	if c.Frequency <= 0 {
		c.Frequency = def.Frequency
	}
	if c.Damping <= 0 {
		c.Damping = def.Damping
	}
	return c
}

// =============================================================================
// STATE
// =============================================================================

// Phase is the recognizer state of a row.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseUndecided
	PhaseHorizontal
	PhaseVertical
)

// String returns the phase name.
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseUndecided:
		return "undecided"
	case PhaseHorizontal:
		return "horizontal"
	case PhaseVertical:
		return "vertical"
	default:
		return "unknown"
	}
}

// GestureState is the per-gesture tracking data. It is reset on release.
type GestureState struct {
	AxisLocked    bool
	IsHorizontal  bool
	BaseOffset    float64
	CurrentOffset float64
}

// =============================================================================
// CONTROLLER
// =============================================================================

// Controller recognizes swipe gestures on one row.
// Thread-safe. Callbacks run without the controller lock held.
type Controller struct {
	mu sync.Mutex

	cfg   Config
	phase Phase
	state GestureState

	downX, downY float64

	anim Animation
	open bool

	onDelete func()
	onOpen   func()
}

// NewController creates a row controller. onDelete may be nil.
func NewController(cfg Config, onDelete func()) *Controller {
	cfg = cfg.withDefaults()
	return &Controller{
		cfg:      cfg,
		anim:     newAnimation(cfg, 0, 0),
		onDelete: onDelete,
	}
}

// PointerDown starts a gesture at (x, y).
func (c *Controller) PointerDown(x, y float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	offset := c.anim.Position()
	c.anim = newAnimation(c.cfg, offset, offset)
	c.phase = PhaseUndecided
	c.downX, c.downY = x, y
	c.state = GestureState{BaseOffset: offset, CurrentOffset: offset}
}

// PointerMove feeds a pointer position. It returns true when the move was
// consumed by the row, in which case the caller must not scroll.
func (c *Controller) PointerMove(x, y float64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	dx, dy := x-c.downX, y-c.downY

	switch c.phase {
	case PhaseUndecided:
		if math.Max(math.Abs(dx), math.Abs(dy)) < c.cfg.AxisLockDistance {
			return false
		}
		c.state.AxisLocked = true
		if math.Abs(dx) > math.Abs(dy) {
			c.phase = PhaseHorizontal
			c.state.IsHorizontal = true
			c.track(dx)
			return true
		}
		c.phase = PhaseVertical
		return false

	case PhaseHorizontal:
		c.track(dx)
		return true

	default:
		return false
	}
}

// track moves the row with the pointer. Caller must hold the lock.
func (c *Controller) track(dx float64) {
	offset := clamp(c.state.BaseOffset+dx, -c.cfg.ActionWidth, 0)
	c.state.CurrentOffset = offset
	c.anim = newAnimation(c.cfg, offset, offset)
}

// PointerUp ends the gesture and returns the snap animation.
// A horizontal drag past SnapThreshold commits to fully open; anything
// shorter returns to closed.
func (c *Controller) PointerUp() Animation {
	c.mu.Lock()

	phase := c.phase
	c.phase = PhaseIdle
	current := c.state.CurrentOffset
	c.state = GestureState{}

	if phase != PhaseHorizontal {
		anim := c.anim
		c.mu.Unlock()
		return anim
	}

	target := 0.0
	if math.Abs(current) > c.cfg.SnapThreshold {
		target = -c.cfg.ActionWidth
	}
	wasOpen := c.open
	c.open = target != 0
	c.anim = newAnimation(c.cfg, current, target)
	anim := c.anim
	onOpen := c.onOpen
	opened := c.open && !wasOpen
	c.mu.Unlock()

	if opened && onOpen != nil {
		onOpen()
	}
	return anim
}

// TapAction handles a tap on the revealed action. OnDelete fires only when
// the row is fully open; the return value reports whether it fired.
func (c *Controller) TapAction() bool {
	c.mu.Lock()
	fire := c.open && c.phase == PhaseIdle && c.anim.Done()
	onDelete := c.onDelete
	c.mu.Unlock()

	if fire && onDelete != nil {
		onDelete()
	}
	return fire
}

// Close animates the row back to closed.
func (c *Controller) Close() Animation {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.open = false
	c.anim = newAnimation(c.cfg, c.anim.Position(), 0)
	return c.anim
}

// Tick advances the snap animation one frame and returns the offset.
func (c *Controller) Tick() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.anim.Step()
}

// Settle finishes the snap animation immediately.
func (c *Controller) Settle() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.anim.Settle()
}

// Animating reports whether a snap animation is still running.
func (c *Controller) Animating() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.anim.Done()
}

// Offset returns the current row offset.
func (c *Controller) Offset() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase == PhaseHorizontal {
		return c.state.CurrentOffset
	}
	return c.anim.Position()
}

// IsOpen reports whether the row is committed open.
func (c *Controller) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

// Phase returns the recognizer phase.
func (c *Controller) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// State returns a copy of the current gesture state.
func (c *Controller) State() GestureState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Config returns the effective configuration.
func (c *Controller) Config() Config {
	return c.cfg
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}
