// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/chuli1122/chuli-home-sub001/internal/model"
)

// Theme holds the styled components of the chat screen.
// It detects the terminal's color capability and adjusts accordingly.
type Theme struct {
	IsDark       bool
	ColorProfile termenv.Profile

	Width  int
	Height int

	// Transcript rows
	UserRow      lipgloss.Style
	AssistantRow lipgloss.Style
	SystemRow    lipgloss.Style
	RoleLabel    lipgloss.Style
	Timestamp    lipgloss.Style
	Pending      lipgloss.Style
	Locator      lipgloss.Style
	Selected     lipgloss.Style
	DayDivider   lipgloss.Style
	LoadingOlder lipgloss.Style

	// Swipe action revealed behind an open row
	DeleteAction lipgloss.Style

	// Chrome
	Header    lipgloss.Style
	StatusBar lipgloss.Style
	Input     lipgloss.Style
	Error     lipgloss.Style
	Hint      lipgloss.Style
	Confirm   lipgloss.Style
}

// NewTheme creates a theme for the current terminal.
func NewTheme() *Theme {
	return NewThemeWithProfile(termenv.ColorProfile(), termenv.HasDarkBackground())
}

// NewThemeWithProfile creates a theme for an explicit color profile. Used
// by tests and by line mode when stdout is not a terminal.
func NewThemeWithProfile(profile termenv.Profile, dark bool) *Theme {
	lipgloss.SetColorProfile(profile)
	lipgloss.SetHasDarkBackground(dark)

	t := &Theme{IsDark: dark, ColorProfile: profile}
	t.initStyles()
	return t
}

func (t *Theme) initStyles() {
	row := lipgloss.NewStyle().
		BorderStyle(lipgloss.NormalBorder()).
		BorderLeft(true).
		PaddingLeft(1)

	t.UserRow = row.
		Foreground(UserFg).
		BorderForeground(UserBorder)

	t.AssistantRow = row.
		Foreground(AssistantFg).
		BorderForeground(AssistantBorder)

	t.SystemRow = row.
		Foreground(SystemFg).
		BorderForeground(SystemBorder).
		Italic(true)

	t.RoleLabel = lipgloss.NewStyle().Bold(true)
	t.Timestamp = lipgloss.NewStyle().Foreground(TextMuted)
	t.Pending = lipgloss.NewStyle().Foreground(TextMuted).Italic(true)

	t.Locator = lipgloss.NewStyle().
		Background(Amber).
		Foreground(TextInverse).
		Bold(true)

	t.Selected = lipgloss.NewStyle().Background(SurfaceBright)

	t.DayDivider = lipgloss.NewStyle().
		Foreground(TextSecondary).
		Align(lipgloss.Center)

	t.LoadingOlder = lipgloss.NewStyle().
		Foreground(TextMuted).
		Italic(true).
		Align(lipgloss.Center)

	t.DeleteAction = lipgloss.NewStyle().
		Background(RoseDeep).
		Foreground(TextInverse).
		Bold(true).
		Align(lipgloss.Center)

	t.Header = lipgloss.NewStyle().
		Bold(true).
		Foreground(Cyan).
		Background(SurfaceDim).
		Padding(0, 1)

	t.StatusBar = lipgloss.NewStyle().
		Foreground(TextSecondary).
		Background(SurfaceDim).
		Padding(0, 1)

	t.Input = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(Overlay).
		Padding(0, 1)

	t.Error = lipgloss.NewStyle().Foreground(Rose).Bold(true)
	t.Hint = lipgloss.NewStyle().Foreground(TextMuted)
	t.Confirm = lipgloss.NewStyle().Foreground(Rose).Bold(true)
}

// SetSize records the terminal size.
func (t *Theme) SetSize(width, height int) {
	t.Width = width
	t.Height = height
}

// RowStyle returns the row style for role.
func (t *Theme) RowStyle(role model.Role) lipgloss.Style {
	switch role {
	case model.RoleUser:
		return t.UserRow
	case model.RoleSystem:
		return t.SystemRow
	default:
		return t.AssistantRow
	}
}

// RoleColor returns the accent color for role.
func RoleColor(role model.Role) lipgloss.AdaptiveColor {
	switch role {
	case model.RoleUser:
		return Cyan
	case model.RoleSystem:
		return Amber
	default:
		return Purple
	}
}
