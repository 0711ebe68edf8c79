// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/chuli1122/chuli-home-sub001/internal/model"
	"github.com/chuli1122/chuli-home-sub001/internal/transcript"
	"github.com/chuli1122/chuli-home-sub001/internal/ui/styles"
	"github.com/chuli1122/chuli-home-sub001/internal/util"
)

// lineStyles are the styles of plain (non-TUI) output, bound to one writer
// so piped output carries no escape codes.
type lineStyles struct {
	Divider lipgloss.Style
	Meta    lipgloss.Style
	Error   lipgloss.Style
	Notice  lipgloss.Style
	roles   map[model.Role]lipgloss.Style
}

func newLineStyles(w io.Writer) lineStyles {
	r := lipgloss.NewRenderer(w)
	r.SetColorProfile(colorProfile(w))

	roles := make(map[model.Role]lipgloss.Style)
	for _, role := range []model.Role{model.RoleUser, model.RoleAssistant, model.RoleSystem} {
		roles[role] = r.NewStyle().Bold(true).Foreground(styles.RoleColor(role))
	}
	return lineStyles{
		Divider: r.NewStyle().Foreground(styles.TextSecondary),
		Meta:    r.NewStyle().Foreground(styles.TextMuted),
		Error:   r.NewStyle().Bold(true).Foreground(styles.Rose),
		Notice:  r.NewStyle().Foreground(styles.Amber),
		roles:   roles,
	}
}

// Role returns the label style for role.
func (s lineStyles) Role(role model.Role) lipgloss.Style {
	if st, ok := s.roles[role]; ok {
		return st
	}
	return s.Meta
}

// printTranscript writes msgs grouped by day. Long rows are cut to width
// when preview is set.
func printTranscript(w io.Writer, st lineStyles, msgs []model.Message, width int, preview bool, now time.Time) {
	for _, group := range transcript.GroupByDay(msgs) {
		fmt.Fprintln(w, st.Divider.Render("── "+group.Label(now)+" ──"))
		for _, m := range group.Messages {
			printRow(w, st, m, width, preview)
		}
	}
}

// printRow writes one row as "#id hh:mm Role: text".
func printRow(w io.Writer, st lineStyles, m model.Message, width int, preview bool) {
	meta := fmt.Sprintf("#%s %s", m.ID, m.TimeString())
	label := m.Role.DisplayName() + ":"
	text := transcript.DisplayText(m)

	if preview {
		room := width - util.StringWidth(meta) - util.StringWidth(label) - 2
		text = util.Preview(text, max(room, 10))
	} else if strings.Contains(text, "\n") {
		text = "\n  " + strings.ReplaceAll(text, "\n", "\n  ")
	}
	fmt.Fprintf(w, "%s %s %s\n", st.Meta.Render(meta), st.Role(m.Role).Render(label), text)
}
