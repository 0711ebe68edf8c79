// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package blob

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"time"
)

// ErrNotFound is returned when no blob exists for an id.
var ErrNotFound = errors.New("blob not found")

// Blob is a stored attachment.
type Blob struct {
	ID        string
	MIME      string
	Name      string
	Data      []byte
	CreatedAt time.Time
}

// Store is a key-value blob store keyed by opaque string ids.
type Store interface {
	Get(ctx context.Context, id string) (Blob, error)
	Put(ctx context.Context, b Blob) error
	Delete(ctx context.Context, id string) error
}

// DetectMIME fills in the content type when it is missing.
func (b *Blob) DetectMIME() {
	if b.MIME == "" && len(b.Data) > 0 {
		b.MIME = http.DetectContentType(b.Data)
	}
}

// DataURL encodes the blob as a data: URL.
func (b Blob) DataURL() string {
	mime := b.MIME
	if mime == "" {
		mime = "application/octet-stream"
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(b.Data)
}

// Base64 returns the blob content base64 encoded.
func (b Blob) Base64() string {
	return base64.StdEncoding.EncodeToString(b.Data)
}
