// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/chuli1122/chuli-home-sub001/internal/telemetry"
	"github.com/chuli1122/chuli-home-sub001/internal/util"
)

// View renders the screen.
// Layout: header (1) + transcript (viewport) + attachments (1) + input (3) + status (1).
func (m Model) View() string {
	if !m.ready {
		return "loading..."
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		m.renderHeader(),
		m.viewport.View(),
		m.renderAttachments(),
		m.theme.Input.Width(max(1, m.width-2)).Render(m.input.View()),
		m.renderStatusBar(),
	)
}

func (m Model) renderHeader() string {
	parts := []string{"chuli", m.conv.SessionID()}
	if q := m.conv.Cursor().Search(); q != "" {
		parts = append(parts, "search: "+q)
	}
	parts = append(parts, fmt.Sprintf("%d messages", m.conv.Store().Len()))
	if !m.anchor.Following() {
		parts = append(parts, "scrolled")
	}
	text := util.TruncateWidth(strings.Join(parts, " · "), max(1, m.width-2))
	return m.theme.Header.Width(m.width).Render(text)
}

func (m Model) renderAttachments() string {
	if len(m.attachments) == 0 {
		return ""
	}
	names := make([]string, len(m.attachments))
	for i, a := range m.attachments {
		names[i] = a.Name
	}
	return m.theme.Hint.Render(util.TruncateWidth("attached: "+strings.Join(names, ", "), m.width))
}

func (m Model) renderStatusBar() string {
	width := max(1, m.width-2)

	var left string
	switch {
	case m.confirm.active:
		left = m.theme.Confirm.Render(fmt.Sprintf("Delete message #%s? (y/n)", m.confirm.id))
		return m.theme.StatusBar.Width(m.width).Render(left)
	case m.err != nil:
		left = m.theme.Error.Render(util.TruncateWidth(m.err.Error(), width))
		return m.theme.StatusBar.Width(m.width).Render(left)
	case m.status != "":
		left = util.TruncateWidth(m.status, width)
	default:
		var hints []string
		for _, b := range m.keys.ShortHelp() {
			hints = append(hints, b.Help().Key+" "+b.Help().Desc)
		}
		left = util.TruncateWidth(strings.Join(hints, " · "), width)
	}

	if s, ok := m.conv.ActiveStream(); ok {
		right := fmt.Sprintf("%s streaming %d chars", m.spinner.View(), len([]rune(s.Buffer())))
		if gap := width - util.StringWidth(left) - lipgloss.Width(right); gap > 0 {
			left += strings.Repeat(" ", gap) + right
		}
	}
	return m.theme.StatusBar.Width(m.width).Render(left)
}

// FormatSummary renders stream statistics on one line.
func FormatSummary(s telemetry.Summary) string {
	if s.Streams == 0 {
		return "no replies streamed yet"
	}
	out := fmt.Sprintf("%d replies (%d completed, %d failed, %d aborted) · %d chunks · %d chars",
		s.Streams, s.Completed, s.Failed, s.Aborted, s.Chunks, s.Chars)
	if s.AvgTTFT > 0 {
		out += " · avg first chunk " + s.AvgTTFT.Round(time.Millisecond).String()
	}
	return out
}
