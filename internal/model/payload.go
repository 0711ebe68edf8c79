// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"slices"
	"strings"
)

// =============================================================================
// OUTGOING PAYLOAD
// =============================================================================

// PartType identifies the kind of a multimodal part.
type PartType string

const (
	PartText     PartType = "text"
	PartImageURL PartType = "image_url"
	PartFile     PartType = "file"
)

// ImageURL holds an image reference, usually a data: URL.
type ImageURL struct {
	URL string `json:"url"`
}

// FilePart holds an inline file attachment.
type FilePart struct {
	Filename string `json:"filename"`
	FileData string `json:"file_data"`
}

// Part is one element of a structured multimodal payload.
type Part struct {
	Type     PartType  `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
	File     *FilePart `json:"file,omitempty"`
}

// TextPart builds a text part.
func TextPart(text string) Part {
	return Part{Type: PartText, Text: text}
}

// ImagePart builds an image part from a URL.
func ImagePart(url string) Part {
	return Part{Type: PartImageURL, ImageURL: &ImageURL{URL: url}}
}

// FileAttachmentPart builds a file part.
func FileAttachmentPart(name, data string) Part {
	return Part{Type: PartFile, File: &FilePart{Filename: name, FileData: data}}
}

// Payload is the body of a streaming request.
// When Parts is non-empty it is sent as a structured multimodal message;
// otherwise Text is sent as plain text.
type Payload struct {
	Text  string `json:"text,omitempty"`
	Parts []Part `json:"parts,omitempty"`

	// Regenerate asks the backend to reply again to the last user message
	// instead of storing a new one.
	Regenerate bool `json:"regenerate,omitempty"`
}

// IsMultimodal reports whether the payload carries structured parts.
func (p Payload) IsMultimodal() bool {
	return len(p.Parts) > 0
}

// PlainText returns the text of the payload, joining text parts when needed.
func (p Payload) PlainText() string {
	if !p.IsMultimodal() {
		return p.Text
	}
	var texts []string
	for _, part := range p.Parts {
		if part.Type == PartText && part.Text != "" {
			texts = append(texts, part.Text)
		}
	}
	return strings.Join(texts, "\n")
}

// =============================================================================
// PAGES
// =============================================================================

// FetchOptions selects one page of history.
type FetchOptions struct {
	Limit    int
	BeforeID *MessageID
	Search   string
}

// Page is one page of history as returned by the backend.
// HasMore is the server's explicit flag; it is never derived from the page size.
type Page struct {
	Messages []Message `json:"messages"`
	HasMore  bool      `json:"has_more"`
}

// Normalize sorts the page ascending by id, accepting either server order.
func (p *Page) Normalize() {
	slices.SortStableFunc(p.Messages, func(a, b Message) int {
		return a.ID.Compare(b.ID)
	})
}

// Oldest returns the smallest id on the page.
func (p Page) Oldest() (MessageID, bool) {
	if len(p.Messages) == 0 {
		return MessageID{}, false
	}
	oldest := p.Messages[0].ID
	for _, m := range p.Messages[1:] {
		if m.ID.Less(oldest) {
			oldest = m.ID
		}
	}
	return oldest, true
}
