// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"strings"
	"time"
)

// EmptySentinel is the content the backend stores for assistant rows that
// produced no visible text (tool-call intermediates).
const EmptySentinel = "EMPTY"

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the sender of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// DisplayName returns a human-readable name for the role.
func (r Role) DisplayName() string {
	switch r {
	case RoleUser:
		return "You"
	case RoleAssistant:
		return "Assistant"
	case RoleSystem:
		return "System"
	default:
		return string(r)
	}
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// Message is a single transcript row.
type Message struct {
	// Identity
	ID        MessageID `json:"id"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`

	// Content, possibly still accumulating while a stream targets this row.
	Content string `json:"content"`

	// Pending marks an optimistic row the server has not confirmed yet.
	Pending bool `json:"-"`

	// Version is the server revision; higher wins when a row is re-fetched.
	Version uint64 `json:"version,omitempty"`
}

// NewPendingMessage creates an optimistic row stamped with the current time.
func NewPendingMessage(id MessageID, role Role, content string) Message {
	return Message{
		ID:        id,
		Role:      role,
		Content:   content,
		CreatedAt: time.Now(),
		Pending:   true,
	}
}

// IsEmpty reports whether an assistant row has nothing to show yet.
// Such rows are hidden from rendering but stay in the transcript, since a
// later patch may still fill them in.
func (m Message) IsEmpty() bool {
	if m.Role != RoleAssistant {
		return false
	}
	trimmed := strings.TrimSpace(m.Content)
	return trimmed == "" || trimmed == EmptySentinel
}

// IsUser reports whether the row was sent by the user.
func (m Message) IsUser() bool {
	return m.Role == RoleUser
}

// IsAssistant reports whether the row came from the assistant.
func (m Message) IsAssistant() bool {
	return m.Role == RoleAssistant
}

// Day returns the local calendar day the row was created on.
func (m Message) Day() time.Time {
	t := m.CreatedAt.Local()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// TimeString returns a formatted time string for display.
func (m Message) TimeString() string {
	return m.CreatedAt.Local().Format("15:04")
}
