// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"errors"
	"fmt"
	"strings"

	"github.com/chuli1122/chuli-home-sub001/internal/model"
	"github.com/chuli1122/chuli-home-sub001/internal/session"
)

// ErrUnknownCommand is returned for a slash command that does not exist.
var ErrUnknownCommand = errors.New("unknown command")

// Command is a parsed slash command.
type Command struct {
	Name string
	ID   model.MessageID
	Arg  string
}

var usages = map[string]string{
	"jump":   "/jump <id>",
	"search": "/search [query]",
	"edit":   "/edit <id> <text>",
	"regen":  "/regen [id]",
	"delete": "/delete <id>",
	"attach": "/attach <path>",
	"mode":   "/mode chat|compact",
	"stats":  "/stats",
	"help":   "/help",
	"quit":   "/quit",
}

// HelpText lists every command on one line.
func HelpText() string {
	return "/jump <id> · /search [q] · /edit <id> <text> · /regen [id] · /delete <id> · /attach <path> · /mode chat|compact · /stats · /quit"
}

func usageError(name string) error {
	return fmt.Errorf("usage: %s", usages[name])
}

// IsCommand reports whether input is a slash command.
func IsCommand(input string) bool {
	return strings.HasPrefix(strings.TrimSpace(input), "/")
}

// ParseCommand parses a slash command line.
func ParseCommand(input string) (Command, error) {
	line := strings.TrimSpace(input)
	line = strings.TrimPrefix(line, "/")
	name, rest, _ := strings.Cut(line, " ")
	name = strings.ToLower(name)
	rest = strings.TrimSpace(rest)

	cmd := Command{Name: name}
	switch name {
	case "jump", "delete":
		if rest == "" {
			return cmd, usageError(name)
		}
		id, err := model.ParseID(rest)
		if err != nil {
			return cmd, err
		}
		cmd.ID = id

	case "edit":
		idText, text, _ := strings.Cut(rest, " ")
		text = strings.TrimSpace(text)
		if idText == "" || text == "" {
			return cmd, usageError(name)
		}
		id, err := model.ParseID(idText)
		if err != nil {
			return cmd, err
		}
		cmd.ID = id
		cmd.Arg = text

	case "regen":
		if rest != "" {
			id, err := model.ParseID(rest)
			if err != nil {
				return cmd, err
			}
			cmd.ID = id
		}

	case "search":
		cmd.Arg = rest

	case "attach":
		if rest == "" {
			return cmd, usageError(name)
		}
		cmd.Arg = rest

	case "mode":
		if rest != session.ModeChat && rest != session.ModeCompact {
			return cmd, usageError(name)
		}
		cmd.Arg = rest

	case "stats", "help", "quit":

	case "q", "exit":
		cmd.Name = "quit"

	default:
		return cmd, fmt.Errorf("%w: /%s", ErrUnknownCommand, name)
	}
	return cmd, nil
}
