// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package telemetry

import (
	"sync"
	"time"
)

// =============================================================================
// STREAM STATS
// =============================================================================

// StreamRecord describes one finished reply stream.
type StreamRecord struct {
	SessionID string
	Outcome   string
	Chunks    int
	Chars     int
	TTFT      time.Duration // zero when no chunk arrived
	Duration  time.Duration
	At        time.Time
}

// Summary aggregates the records of one session.
type Summary struct {
	Streams   int
	Completed int
	Failed    int
	Aborted   int
	Chunks    int
	Chars     int
	AvgTTFT   time.Duration
	Last      time.Time
}

// StreamStats keeps a running Summary per session.
type StreamStats struct {
	mu       sync.RWMutex
	sessions map[string]*tally
}

type tally struct {
	Summary
	ttftTotal time.Duration
	ttftCount int
}

// NewStreamStats creates an empty tracker.
func NewStreamStats() *StreamStats {
	return &StreamStats{sessions: make(map[string]*tally)}
}

// Record adds r to its session's summary.
func (s *StreamStats) Record(r StreamRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.sessions[r.SessionID]
	if !ok {
		t = &tally{}
		s.sessions[r.SessionID] = t
	}

	t.Streams++
	switch r.Outcome {
	case "completed":
		t.Completed++
	case "failed":
		t.Failed++
	case "aborted":
		t.Aborted++
	}
	t.Chunks += r.Chunks
	t.Chars += r.Chars
	if r.TTFT > 0 {
		t.ttftTotal += r.TTFT
		t.ttftCount++
		t.AvgTTFT = t.ttftTotal / time.Duration(t.ttftCount)
	}
	if r.At.After(t.Last) {
		t.Last = r.At
	}
}

// Summary returns the summary for sessionID; the zero Summary if none.
func (s *StreamStats) Summary(sessionID string) Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if t, ok := s.sessions[sessionID]; ok {
		return t.Summary
	}
	return Summary{}
}
