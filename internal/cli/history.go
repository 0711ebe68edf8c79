// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

type historyFlags struct {
	pages  int
	search string
	full   bool
}

func newHistoryCommand(root *rootFlags) *cobra.Command {
	flags := &historyFlags{}
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print the newest pages of a session's history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(cmd, root, flags)
		},
	}
	cmd.Flags().IntVarP(&flags.pages, "pages", "n", 1, "number of pages to load, newest first")
	cmd.Flags().StringVar(&flags.search, "search", "", "only show messages matching this query")
	cmd.Flags().BoolVar(&flags.full, "full", false, "print full messages instead of one-line previews")
	return cmd
}

func runHistory(cmd *cobra.Command, root *rootFlags, flags *historyFlags) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, root, appOptions{console: true})
	if err != nil {
		return err
	}
	defer a.close()

	sessionID := a.conv.SessionID()
	prefs := a.prefs.Get(sessionID)

	if err := a.conv.SetSearch(ctx, flags.search); err != nil {
		return fmt.Errorf("failed to load history: %w", err)
	}
	for i := 1; i < flags.pages && a.conv.Cursor().HasMore(); i++ {
		if _, err := a.conv.LoadOlder(ctx); err != nil {
			return fmt.Errorf("failed to load older history: %w", err)
		}
	}

	out := cmd.OutOrStdout()
	st := newLineStyles(out)
	msgs := a.conv.Visible()
	if len(msgs) == 0 {
		fmt.Fprintln(out, st.Meta.Render("no messages"))
		return nil
	}

	if a.conv.Cursor().HasMore() {
		fmt.Fprintln(out, st.Meta.Render(fmt.Sprintf("(older messages available, use --pages %d)", flags.pages+1)))
	}
	printTranscript(out, st, msgs, terminalWidth(out), !flags.full, time.Now())

	if a.prefs.Unread(sessionID, msgs[len(msgs)-1].CreatedAt) && !prefs.LastReadAt.IsZero() {
		fmt.Fprintln(out, st.Notice.Render("new messages since "+prefs.LastReadAt.Local().Format("Jan 2 15:04")))
	}
	return nil
}
