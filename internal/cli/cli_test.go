// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chuli1122/chuli-home-sub001/internal/config"
	"github.com/chuli1122/chuli-home-sub001/internal/model"
)

// historyServer serves a fixed newest page and records query strings.
type historyServer struct {
	mu      sync.Mutex
	queries []string
	hasMore bool
}

func (h *historyServer) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/sessions/s-1/messages", r.URL.Path)
		h.mu.Lock()
		h.queries = append(h.queries, r.URL.RawQuery)
		more := h.hasMore
		h.mu.Unlock()

		fmt.Fprintf(w, `{"messages":[
			{"id":2,"role":"assistant","content":"hi there","created_at":"2025-01-02T10:01:00Z"},
			{"id":1,"role":"user","content":"hello","created_at":"2025-01-02T10:00:00Z"}
		],"has_more":%t}`, more)
	}
}

// writeTestConfig points a config file at srv and a temporary data dir.
func writeTestConfig(t *testing.T, baseURL string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	body := fmt.Sprintf("[server]\nbase_url = %q\nrate_limit = 0\n\n[storage]\ndata_dir = %q\n",
		baseURL, filepath.Join(dir, "data"))
	require.NoError(t, os.WriteFile(path, []byte(body), 0600))
	return path
}

func runRoot(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := NewRootCommand()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

// =============================================================================
// COMMAND TESTS
// =============================================================================

func TestHistoryCommand(t *testing.T) {
	hs := &historyServer{}
	srv := httptest.NewServer(hs.handler(t))
	defer srv.Close()

	cfgPath := writeTestConfig(t, srv.URL)
	out, err := runRoot(t, "history", "--config", cfgPath, "--session", "s-1", "--full", "--search", "hel")
	require.NoError(t, err)

	assert.Contains(t, out, "You: hello")
	assert.Contains(t, out, "Assistant: hi there")
	assert.Less(t, strings.Index(out, "hello"), strings.Index(out, "hi there"))
	assert.NotContains(t, out, "older messages available")

	require.NotEmpty(t, hs.queries)
	assert.Contains(t, hs.queries[0], "search=hel")
}

func TestHistoryCommandHasMore(t *testing.T) {
	hs := &historyServer{hasMore: true}
	srv := httptest.NewServer(hs.handler(t))
	defer srv.Close()

	cfgPath := writeTestConfig(t, srv.URL)
	out, err := runRoot(t, "history", "--config", cfgPath, "--session", "s-1")
	require.NoError(t, err)
	assert.Contains(t, out, "older messages available, use --pages 2")
}

func TestHistoryCommandServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	cfgPath := writeTestConfig(t, srv.URL)
	_, err := runRoot(t, "history", "--config", cfgPath, "--session", "s-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load history")
}

func TestVersionCommand(t *testing.T) {
	out, err := runRoot(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "chuli "+Version)
	assert.Contains(t, out, "commit:")
}

// =============================================================================
// HELPER TESTS
// =============================================================================

func TestLoadConfigFlagOverrides(t *testing.T) {
	path := writeTestConfig(t, "http://example.test")
	cfg, got, err := loadConfig(&rootFlags{configPath: path, session: "s-9", logLevel: "debug", verbose: true})
	require.NoError(t, err)

	assert.Equal(t, path, got)
	assert.Equal(t, "s-9", cfg.Session.ID)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.True(t, cfg.Log.Console)
	assert.Equal(t, "http://example.test", cfg.Server.BaseURL)
}

func TestGestureConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Gesture.ActionWidth = 12
	cfg.Gesture.SnapFraction = 0.25
	cfg.Gesture.AxisLock = 3

	g := gestureConfig(cfg)
	assert.Equal(t, 12.0, g.ActionWidth)
	assert.Equal(t, 3.0, g.SnapThreshold)
	assert.Equal(t, 3.0, g.AxisLockDistance)
}

func TestAnchorConfig(t *testing.T) {
	cfg := config.Default()
	a := anchorConfig(cfg)
	assert.Equal(t, cfg.Scroll.NearBottomLines, a.NearBottomThreshold)
	assert.Equal(t, 1500*time.Millisecond, a.FollowBudget)
	assert.Equal(t, 2*time.Second, a.LocatorDuration)
}

func TestDisplayReply(t *testing.T) {
	assert.Equal(t, "one\n\ntwo", displayReply("one[[next]]two"))
	assert.Equal(t, "plain", displayReply("plain"))
}

func TestPrintRow(t *testing.T) {
	var buf bytes.Buffer
	st := newLineStyles(&buf)
	m := model.Message{
		ID:        model.ID(7),
		Role:      model.RoleUser,
		Content:   strings.Repeat("word ", 40),
		CreatedAt: time.Date(2025, 1, 2, 10, 0, 0, 0, time.UTC),
	}

	printRow(&buf, st, m, 60, true)
	line := strings.TrimRight(buf.String(), "\n")
	assert.True(t, strings.HasPrefix(line, "#7 "))
	assert.Contains(t, line, "You:")
	assert.NotContains(t, line, "\n")
	assert.Less(t, len(line), len(m.Content))
}

func TestTerminalWidthNonTerminal(t *testing.T) {
	assert.Equal(t, DefaultTerminalWidth, terminalWidth(&bytes.Buffer{}))
}
