// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/chuli1122/chuli-home-sub001/internal/util"
)

const documentExt = ".json"

// =============================================================================
// DOCUMENT STORE
// =============================================================================

// DocumentStore persists JSON documents by key.
type DocumentStore struct {
	// BaseDir is the directory holding the documents.
	// Default: ~/.chuli/state/
	BaseDir string
}

// NewDocumentStore creates a store under ~/.chuli/state.
func NewDocumentStore() (*DocumentStore, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	return NewDocumentStoreWithDir(filepath.Join(homeDir, ".chuli", "state"))
}

// NewDocumentStoreWithDir creates a store with a custom directory.
func NewDocumentStoreWithDir(baseDir string) (*DocumentStore, error) {
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, err
	}
	return &DocumentStore{BaseDir: baseDir}, nil
}

// Save marshals v and writes it under key.
func (s *DocumentStore) Save(key string, v any) error {
	path, err := s.filePath(key)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode document %q: %w", key, err)
	}
	// RELIABILITY: Atomic write with fsync prevents data loss on crash
	if err := util.AtomicWriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write document %q: %w", key, err)
	}
	return nil
}

// Load reads the document under key into v.
// It returns ErrDocumentNotFound when no document exists.
func (s *DocumentStore) Load(key string, v any) error {
	path, err := s.filePath(key)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return ErrDocumentNotFound
		}
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return &DocumentError{Message: "corrupt document", Key: key, Err: err}
	}
	return nil
}

// Exists reports whether a document exists under key.
func (s *DocumentStore) Exists(key string) bool {
	path, err := s.filePath(key)
	if err != nil {
		return false
	}
	_, err = os.Stat(path)
	return err == nil
}

// Delete removes the document under key.
func (s *DocumentStore) Delete(key string) error {
	path, err := s.filePath(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return ErrDocumentNotFound
		}
		return err
	}
	return nil
}

// List returns the keys of all stored documents, sorted.
func (s *DocumentStore) List() ([]string, error) {
	entries, err := os.ReadDir(s.BaseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var keys []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, documentExt) {
			continue
		}
		keys = append(keys, strings.TrimSuffix(name, documentExt))
	}
	sort.Strings(keys)
	return keys, nil
}

// filePath maps a key to its file. Keys are restricted to a safe alphabet so
// they cannot escape the base directory.
func (s *DocumentStore) filePath(key string) (string, error) {
	if !validKey(key) {
		return "", &DocumentError{Message: "invalid document key", Key: key}
	}
	return filepath.Join(s.BaseDir, key+documentExt), nil
}

func validKey(key string) bool {
	if key == "" || len(key) > 128 {
		return false
	}
	for _, r := range key {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '-' || r == '_' || r == '.':
		default:
			return false
		}
	}
	return !strings.HasPrefix(key, ".")
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrDocumentNotFound is returned when a document doesn't exist.
// Use errors.Is(err, ErrDocumentNotFound) to check for this error.
var ErrDocumentNotFound = &DocumentError{Message: "document not found"}

// DocumentError represents a document-related error.
// It can be compared using errors.Is, which matches on Message.
type DocumentError struct {
	Message string
	Key     string
	Err     error
}

// Error implements the error interface.
func (e *DocumentError) Error() string {
	var b strings.Builder
	b.WriteString(e.Message)
	if e.Key != "" {
		fmt.Fprintf(&b, " %q", e.Key)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the underlying error.
func (e *DocumentError) Unwrap() error {
	return e.Err
}

// Is reports whether target is a DocumentError with the same message.
func (e *DocumentError) Is(target error) bool {
	var t *DocumentError
	if !errors.As(target, &t) {
		return false
	}
	return e.Message == t.Message
}
