// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"strings"

	"github.com/charmbracelet/glamour"
)

// maxRenderCache bounds the markdown cache; it is dropped wholesale when full.
const maxRenderCache = 512

// markdown renders assistant rows with glamour, caching by content.
type markdown struct {
	style    string
	width    int
	renderer *glamour.TermRenderer
	cache    map[string]string
}

func newMarkdown(dark bool) *markdown {
	style := "light"
	if dark {
		style = "dark"
	}
	return &markdown{style: style, cache: make(map[string]string)}
}

// render returns text rendered for width. Errors fall back to the raw text.
// Rows still being streamed pass cache=false since their content changes
// on every chunk.
func (md *markdown) render(text string, width int, cache bool) string {
	if width < 10 {
		return text
	}
	if width != md.width || md.renderer == nil {
		r, err := glamour.NewTermRenderer(
			glamour.WithStandardStyle(md.style),
			glamour.WithWordWrap(width),
		)
		if err != nil {
			return text
		}
		md.renderer = r
		md.width = width
		md.cache = make(map[string]string)
	}

	if out, ok := md.cache[text]; ok {
		return out
	}
	out, err := md.renderer.Render(text)
	if err != nil {
		return text
	}
	out = strings.Trim(out, "\n")
	if cache {
		if len(md.cache) >= maxRenderCache {
			md.cache = make(map[string]string)
		}
		md.cache[text] = out
	}
	return out
}
