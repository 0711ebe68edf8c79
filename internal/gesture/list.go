// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package gesture

import "sync"

// List owns the row controllers of one list and keeps at most one row open:
// opening a row closes the previously open one.
type List struct {
	mu       sync.Mutex
	cfg      Config
	rows     map[string]*Controller
	open     string
	onDelete func(key string)
}

// NewList creates a list. onDelete receives the key of the row whose action
// was tapped.
func NewList(cfg Config, onDelete func(key string)) *List {
	return &List{
		cfg:      cfg.withDefaults(),
		rows:     make(map[string]*Controller),
		onDelete: onDelete,
	}
}

// Row returns the controller for key, creating it on first use.
func (l *List) Row(key string) *Controller {
	l.mu.Lock()
	defer l.mu.Unlock()

	if c, ok := l.rows[key]; ok {
		return c
	}
	c := NewController(l.cfg, func() {
		if l.onDelete != nil {
			l.onDelete(key)
		}
	})
	c.onOpen = func() { l.opened(key) }
	l.rows[key] = c
	return c
}

// Lookup returns the controller for key if it exists.
func (l *List) Lookup(key string) (*Controller, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	c, ok := l.rows[key]
	return c, ok
}

func (l *List) opened(key string) {
	l.mu.Lock()
	prev := l.open
	l.open = key
	var prevCtrl *Controller
	if prev != "" && prev != key {
		prevCtrl = l.rows[prev]
	}
	l.mu.Unlock()

	if prevCtrl != nil {
		prevCtrl.Close()
	}
}

// OpenRow returns the key of the open row.
func (l *List) OpenRow() (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.open == "" {
		return "", false
	}
	if c, ok := l.rows[l.open]; !ok || !c.IsOpen() {
		return "", false
	}
	return l.open, true
}

// CloseAll closes every open row.
func (l *List) CloseAll() {
	l.mu.Lock()
	rows := make([]*Controller, 0, len(l.rows))
	for _, c := range l.rows {
		rows = append(rows, c)
	}
	l.open = ""
	l.mu.Unlock()

	for _, c := range rows {
		if c.IsOpen() {
			c.Close()
		}
	}
}

// Remove forgets the controller for key.
func (l *List) Remove(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.rows, key)
	if l.open == key {
		l.open = ""
	}
}

// Tick advances every running animation one frame and reports whether any
// row is still animating.
func (l *List) Tick() bool {
	l.mu.Lock()
	rows := make([]*Controller, 0, len(l.rows))
	for _, c := range l.rows {
		rows = append(rows, c)
	}
	l.mu.Unlock()

	animating := false
	for _, c := range rows {
		if c.Animating() {
			c.Tick()
			if c.Animating() {
				animating = true
			}
		}
	}
	return animating
}
