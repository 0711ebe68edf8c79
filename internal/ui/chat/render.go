// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"math"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/chuli1122/chuli-home-sub001/internal/model"
	"github.com/chuli1122/chuli-home-sub001/internal/transcript"
	"github.com/chuli1122/chuli-home-sub001/internal/ui/styles"
	"github.com/chuli1122/chuli-home-sub001/internal/util"
)

// =============================================================================
// TRANSCRIPT RENDERING
// =============================================================================

// renderOptions is everything a layout pass depends on besides the rows.
type renderOptions struct {
	Width          int
	Now            time.Time
	Compact        bool
	ShowTimestamps bool

	Locator   model.MessageID
	Selected  model.MessageID
	Streaming model.MessageID
	Spinner   string

	LoadingOlder bool
	HasMore      bool

	// Offset returns the swipe offset of a row in cells (<= 0). Nil means
	// no row is swiped.
	Offset func(key string) float64
}

// transcriptView is the result of a layout pass.
type transcriptView struct {
	Content string
	Rows    []rowSpan
	Lines   int
}

// renderTranscript lays out msgs, grouped by day, and records where each row
// landed.
func renderTranscript(t *styles.Theme, md *markdown, msgs []model.Message, o renderOptions) transcriptView {
	width := max(o.Width, 20)
	var lines []string
	var rows []rowSpan

	switch {
	case o.LoadingOlder:
		lines = append(lines, t.LoadingOlder.Width(width).Render("loading older messages..."))
	case len(msgs) == 0:
		lines = append(lines, t.Hint.Width(width).Align(lipgloss.Center).Render("No messages yet. Type below to start."))
	case !o.HasMore:
		lines = append(lines, t.Hint.Width(width).Align(lipgloss.Center).Render("beginning of conversation"))
	default:
		lines = append(lines, "")
	}

	for _, group := range transcript.GroupByDay(msgs) {
		lines = append(lines, t.DayDivider.Width(width).Render("── "+group.Label(o.Now)+" ──"))
		for _, m := range group.Messages {
			var offset float64
			if o.Offset != nil {
				offset = o.Offset(m.ID.String())
			}
			block := renderRow(t, md, m, o, width, offset)
			rows = append(rows, rowSpan{ID: m.ID, Top: len(lines), Height: len(block)})
			lines = append(lines, block...)
			if !o.Compact {
				lines = append(lines, "")
			}
		}
	}

	return transcriptView{
		Content: strings.Join(lines, "\n"),
		Rows:    rows,
		Lines:   len(lines),
	}
}

// renderRow renders one row as lines. A swiped row is drawn without colour,
// shifted left, with the delete action filling the space it uncovered.
func renderRow(t *styles.Theme, md *markdown, m model.Message, o renderOptions, width int, offset float64) []string {
	shift := int(math.Round(-offset))
	if shift > 0 {
		return swipedRow(t, m, o, width, shift)
	}

	bodyWidth := width - 3
	text := transcript.DisplayText(m)
	var body string
	if m.IsAssistant() && md != nil {
		body = md.render(text, bodyWidth, m.ID != o.Streaming)
	} else {
		body = lipgloss.NewStyle().Width(bodyWidth).Render(text)
	}

	content := body
	if !o.Compact {
		content = rowHeader(t, m, o) + "\n" + body
	}

	style := t.RowStyle(m.Role)
	if m.ID == o.Selected {
		style = style.Inherit(t.Selected)
	}
	return strings.Split(style.Render(content), "\n")
}

// rowHeader renders the label line above a row's body.
func rowHeader(t *styles.Theme, m model.Message, o renderOptions) string {
	var parts []string
	if m.ID == o.Locator {
		parts = append(parts, t.Locator.Render(" > "))
	}
	parts = append(parts, t.RoleLabel.Foreground(styles.RoleColor(m.Role)).Render(m.Role.DisplayName()))
	if o.ShowTimestamps {
		parts = append(parts, t.Timestamp.Render(m.TimeString()))
	}
	parts = append(parts, t.Timestamp.Render("#"+m.ID.String()))
	switch {
	case m.ID == o.Streaming:
		parts = append(parts, o.Spinner)
	case m.Pending && m.IsUser():
		parts = append(parts, t.Pending.Render("sending..."))
	}
	return strings.Join(parts, " ")
}

// swipedRow renders the plain-text row moved shift cells to the left.
func swipedRow(t *styles.Theme, m model.Message, o renderOptions, width, shift int) []string {
	shift = min(shift, width)
	text := lipgloss.NewStyle().Width(width - 2).Render(transcript.DisplayText(m))
	var plain []string
	if !o.Compact {
		plain = append(plain, m.Role.DisplayName()+" #"+m.ID.String())
	}
	plain = append(plain, strings.Split(text, "\n")...)

	visible := width - shift
	out := make([]string, len(plain))
	for i, line := range plain {
		moved := util.PadRight(util.SliceWidth("│ "+line, shift, visible), visible)
		label := ""
		if i == 0 {
			label = util.TruncateWidth("Delete", shift)
		}
		out[i] = moved + t.DeleteAction.Width(shift).Render(label)
	}
	return out
}
