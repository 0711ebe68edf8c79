// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chuli1122/chuli-home-sub001/internal/model"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		input string
		want  Command
	}{
		{"/jump 42", Command{Name: "jump", ID: model.ID(42)}},
		{"/delete 7.02", Command{Name: "delete", ID: model.MessageID{Seq: 7, Part: 2}}},
		{"/edit 3 fixed text here", Command{Name: "edit", ID: model.ID(3), Arg: "fixed text here"}},
		{"/regen", Command{Name: "regen"}},
		{"/regen 12", Command{Name: "regen", ID: model.ID(12)}},
		{"/search  café ", Command{Name: "search", Arg: "café"}},
		{"/search", Command{Name: "search"}},
		{"/attach ./a.png", Command{Name: "attach", Arg: "./a.png"}},
		{"/mode compact", Command{Name: "mode", Arg: "compact"}},
		{"/STATS", Command{Name: "stats"}},
		{"/q", Command{Name: "quit"}},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseCommand(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseCommandErrors(t *testing.T) {
	_, err := ParseCommand("/nope")
	assert.ErrorIs(t, err, ErrUnknownCommand)

	for _, input := range []string{"/jump", "/jump abc", "/edit 3", "/edit", "/delete", "/attach", "/mode wide"} {
		_, err := ParseCommand(input)
		assert.Error(t, err, input)
	}
}

func TestIsCommand(t *testing.T) {
	assert.True(t, IsCommand("  /jump 1"))
	assert.False(t, IsCommand("hello /jump"))
}
