// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package transcript

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/chuli1122/chuli-home-sub001/internal/model"
)

// =============================================================================
// IN-BAND TEXT PROTOCOL
// =============================================================================

// PartDelimiter separates the parts of a multi-part assistant reply.
const PartDelimiter = "[[next]]"

var (
	// usedMarkerRe matches inline used-count markers such as [[used:3]] or
	// [[used:12,40]]. They are meaningful to the backend only.
	usedMarkerRe = regexp.MustCompile(`\[\[used:[^\]]*\]\]`)

	// attachmentRe matches [[image:<blob-id>]] and [[file:<blob-id>|<name>]].
	attachmentRe = regexp.MustCompile(`\[\[(image|file):([^\]|]+)(?:\|([^\]]*))?\]\]`)

	blankRunRe = regexp.MustCompile(`\n{3,}`)
)

// StripUsedMarkers removes used-count markers from text.
func StripUsedMarkers(text string) string {
	if !strings.Contains(text, "[[used:") {
		return text
	}
	return usedMarkerRe.ReplaceAllString(text, "")
}

// CleanupReply is the completion pass applied to a finished stream buffer.
func CleanupReply(text string) string {
	text = StripUsedMarkers(text)
	text = blankRunRe.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// AttachmentKind is the kind of blob an inline marker refers to.
type AttachmentKind string

const (
	AttachmentImage AttachmentKind = "image"
	AttachmentFile  AttachmentKind = "file"
)

// Attachment is a blob reference embedded in user text.
type Attachment struct {
	Kind   AttachmentKind
	BlobID string
	Name   string
}

// Marker returns the inline marker text for the attachment.
func (a Attachment) Marker() string {
	if a.Kind == AttachmentFile {
		return fmt.Sprintf("[[file:%s|%s]]", a.BlobID, a.Name)
	}
	return fmt.Sprintf("[[image:%s]]", a.BlobID)
}

// ParseAttachments extracts attachment markers from text and returns the
// text with the markers removed.
func ParseAttachments(text string) (string, []Attachment) {
	matches := attachmentRe.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return text, nil
	}
	attachments := make([]Attachment, 0, len(matches))
	for _, m := range matches {
		attachments = append(attachments, Attachment{
			Kind:   AttachmentKind(m[1]),
			BlobID: strings.TrimSpace(m[2]),
			Name:   m[3],
		})
	}
	stripped := strings.TrimSpace(attachmentRe.ReplaceAllString(text, ""))
	return stripped, attachments
}

// WithAttachments appends attachment markers to user text.
func WithAttachments(text string, attachments []Attachment) string {
	if len(attachments) == 0 {
		return text
	}
	var b strings.Builder
	b.WriteString(text)
	for _, a := range attachments {
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(a.Marker())
	}
	return b.String()
}

// DisplayText returns the text shown for a row: used-count markers removed
// and attachment markers replaced by short labels.
func DisplayText(m model.Message) string {
	text := StripUsedMarkers(m.Content)
	return attachmentRe.ReplaceAllStringFunc(text, func(s string) string {
		sub := attachmentRe.FindStringSubmatch(s)
		if sub[1] == string(AttachmentFile) && sub[3] != "" {
			return "[file: " + sub[3] + "]"
		}
		return "[" + sub[1] + "]"
	})
}

// =============================================================================
// MULTI-PART SPLIT
// =============================================================================

// SplitMultiPart expands an assistant reply containing PartDelimiter into
// sibling rows. The first part keeps the parent's id; later parts get
// increasing fractional ids under the same integer part, so the siblings sort
// together in their original order. Used-count markers are stripped from every
// part and blank parts are dropped.
//
// The function is pure and idempotent: a message without a delimiter, or one
// that is already a split sibling, is returned unchanged as a single row.
func SplitMultiPart(m model.Message) []model.Message {
	if m.Role != model.RoleAssistant || m.ID.Part != 0 || !strings.Contains(m.Content, PartDelimiter) {
		return []model.Message{m}
	}

	var texts []string
	for _, raw := range strings.Split(m.Content, PartDelimiter) {
		text := strings.TrimSpace(StripUsedMarkers(raw))
		if text != "" {
			texts = append(texts, text)
		}
	}
	if len(texts) == 0 {
		m.Content = ""
		return []model.Message{m}
	}
	if len(texts) > model.MaxPart+1 {
		tail := strings.Join(texts[model.MaxPart:], "\n\n")
		texts = append(texts[:model.MaxPart], tail)
	}

	parts := make([]model.Message, len(texts))
	for i, text := range texts {
		part := m
		part.ID = m.ID.Sibling(i)
		part.Content = text
		parts[i] = part
	}
	return parts
}
