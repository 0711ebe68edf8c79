// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/chuli1122/chuli-home-sub001/internal/blob"
	"github.com/chuli1122/chuli-home-sub001/internal/transcript"
)

// ErrNoBlobStore is returned when attaching without a blob store.
var ErrNoBlobStore = errors.New("attachments need a blob store")

// StoreAttachment reads the file at path into blobs under a fresh id and
// returns the reference to embed in the next message. Images get an image
// marker, everything else a file marker carrying the name.
func StoreAttachment(ctx context.Context, blobs blob.Store, path string, now time.Time) (transcript.Attachment, error) {
	if blobs == nil {
		return transcript.Attachment{}, ErrNoBlobStore
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return transcript.Attachment{}, fmt.Errorf("failed to read attachment: %w", err)
	}

	b := blob.Blob{
		ID:        uuid.NewString(),
		Name:      filepath.Base(path),
		Data:      data,
		CreatedAt: now,
	}
	b.DetectMIME()
	if err := blobs.Put(ctx, b); err != nil {
		return transcript.Attachment{}, fmt.Errorf("failed to store attachment: %w", err)
	}

	att := transcript.Attachment{Kind: transcript.AttachmentFile, BlobID: b.ID, Name: b.Name}
	if strings.HasPrefix(b.MIME, "image/") {
		att.Kind = transcript.AttachmentImage
	}
	return att, nil
}
