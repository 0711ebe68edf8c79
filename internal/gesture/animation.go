// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package gesture

import (
	"math"

	"github.com/charmbracelet/harmonica"
)

// settleEpsilon is the distance and velocity below which a spring is at rest.
const settleEpsilon = 0.5

// Animation eases a row from one offset to another.
// The zero value is a settled animation at offset 0.
type Animation struct {
	From   float64
	Target float64

	spring harmonica.Spring
	pos    float64
	vel    float64
	done   bool
}

func newAnimation(cfg Config, from, target float64) Animation {
	a := Animation{
		From:   from,
		Target: target,
		spring: harmonica.NewSpring(harmonica.FPS(cfg.FPS), cfg.Frequency, cfg.Damping),
		pos:    from,
	}
	a.done = math.Abs(from-target) < settleEpsilon
	if a.done {
		a.pos = target
	}
	return a
}

// Step advances the animation one frame and returns the new offset.
func (a *Animation) Step() float64 {
	if a.done {
		return a.pos
	}
	a.pos, a.vel = a.spring.Update(a.pos, a.vel, a.Target)
	if math.Abs(a.pos-a.Target) < settleEpsilon && math.Abs(a.vel) < settleEpsilon {
		a.pos = a.Target
		a.vel = 0
		a.done = true
	}
	return a.pos
}

// Settle jumps to the target.
func (a *Animation) Settle() {
	a.pos = a.Target
	a.vel = 0
	a.done = true
}

// Position returns the current offset.
func (a *Animation) Position() float64 {
	return a.pos
}

// Done reports whether the animation has reached its target.
func (a *Animation) Done() bool {
	return a.done
}
