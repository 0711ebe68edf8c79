// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"errors"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/chuli1122/chuli-home-sub001/internal/ui/chat"
	"github.com/chuli1122/chuli-home-sub001/internal/ui/styles"
)

// ErrNoTerminal is returned when the TUI is started without a terminal.
var ErrNoTerminal = errors.New("the transcript view needs a terminal; use 'chuli chat' or 'chuli history'")

func runTUI(cmd *cobra.Command, flags *rootFlags) error {
	if !IsTTY() {
		return ErrNoTerminal
	}

	a, err := newApp(cmd.Context(), flags, appOptions{tui: true})
	if err != nil {
		return err
	}
	defer a.close()

	m := chat.New(chat.Options{
		Conversation:   a.conv,
		Anchor:         a.anchor,
		Surface:        a.surface,
		Blobs:          a.blobs,
		Preferences:    a.prefs,
		Stats:          a.stats,
		Theme:          styles.NewTheme(),
		Gesture:        gestureConfig(a.cfg),
		Markdown:       a.cfg.UI.Markdown,
		ShowTimestamps: a.cfg.UI.ShowTimestamps,
		Logger:         a.log,
	})

	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("transcript view failed: %w", err)
	}
	return nil
}
