// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
)

// MaxPart is the highest sibling index a split message can carry.
const MaxPart = 99

// =============================================================================
// MESSAGE ID
// =============================================================================

// MessageID is the numeric identity of a transcript row.
//
// Seq is the server-assigned integer id, or a wall-clock derived synthetic id
// for optimistic rows. Part is the fractional sibling index given to the rows
// produced by a multi-part split; the first part keeps Part 0 so it shares the
// parent's id. IDs are non-negative and order as the decimal number Seq.PP.
type MessageID struct {
	Seq  int64
	Part uint8
}

// ID returns the unsplit id for a server sequence number.
func ID(seq int64) MessageID {
	return MessageID{Seq: seq}
}

// IsZero reports whether the id is unset.
func (id MessageID) IsZero() bool {
	return id.Seq == 0 && id.Part == 0
}

// Less reports whether id orders before other.
func (id MessageID) Less(other MessageID) bool {
	if id.Seq != other.Seq {
		return id.Seq < other.Seq
	}
	return id.Part < other.Part
}

// Compare returns -1, 0 or 1. It is suitable for slices.SortFunc.
func (id MessageID) Compare(other MessageID) int {
	switch {
	case id.Less(other):
		return -1
	case other.Less(id):
		return 1
	default:
		return 0
	}
}

// Sibling returns the id of the n-th part split from this id's parent.
func (id MessageID) Sibling(n int) MessageID {
	if n < 0 {
		n = 0
	}
	if n > MaxPart {
		n = MaxPart
	}
	return MessageID{Seq: id.Seq, Part: uint8(n)}
}

// String formats the id as its decimal value ("42" or "42.03").
func (id MessageID) String() string {
	if id.Part == 0 {
		return strconv.FormatInt(id.Seq, 10)
	}
	return fmt.Sprintf("%d.%02d", id.Seq, id.Part)
}

// ParseID parses the decimal form produced by String.
func ParseID(s string) (MessageID, error) {
	s = strings.TrimSpace(s)
	whole, frac, hasFrac := strings.Cut(s, ".")
	if strings.HasPrefix(whole, "-") {
		return MessageID{}, fmt.Errorf("invalid message id %q: negative", s)
	}
	seq, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return MessageID{}, fmt.Errorf("invalid message id %q: %w", s, err)
	}
	id := MessageID{Seq: seq}
	if !hasFrac {
		return id, nil
	}
	frac = strings.TrimRight(frac, "0")
	if frac == "" {
		return id, nil
	}
	if len(frac) == 1 {
		frac += "0"
	}
	if len(frac) > 2 {
		return MessageID{}, fmt.Errorf("invalid message id %q: fractional part too long", s)
	}
	part, err := strconv.ParseUint(frac, 10, 8)
	if err != nil || part > MaxPart {
		return MessageID{}, fmt.Errorf("invalid message id %q: bad fractional part", s)
	}
	id.Part = uint8(part)
	return id, nil
}

// MarshalJSON encodes the id as a JSON number.
func (id MessageID) MarshalJSON() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalJSON accepts a JSON number or a quoted decimal string.
func (id *MessageID) UnmarshalJSON(data []byte) error {
	data = bytes.Trim(data, `"`)
	if len(data) == 0 || string(data) == "null" {
		*id = MessageID{}
		return nil
	}
	parsed, err := ParseID(string(data))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// =============================================================================
// ID GENERATOR
// =============================================================================

// IDGenerator hands out synthetic ids for optimistic rows.
// Ids are wall-clock milliseconds, bumped so they strictly increase even when
// several rows are created within the same millisecond. Safe for concurrent use.
type IDGenerator struct {
	mu   sync.Mutex
	now  func() time.Time
	last int64
}

// NewIDGenerator creates a generator. A nil clock uses time.Now.
func NewIDGenerator(now func() time.Time) *IDGenerator {
	if now == nil {
		now = time.Now
	}
	return &IDGenerator{now: now}
}

// Next returns a fresh synthetic id.
func (g *IDGenerator) Next() MessageID {
	g.mu.Lock()
	defer g.mu.Unlock()

	seq := g.now().UnixMilli()
	if seq <= g.last {
		seq = g.last + 1
	}
	g.last = seq
	return MessageID{Seq: seq}
}

// Observe records an id seen elsewhere so later synthetic ids sort after it.
func (g *IDGenerator) Observe(id MessageID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if id.Seq > g.last {
		g.last = id.Seq
	}
}
