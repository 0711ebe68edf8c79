// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/peterh/liner"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/chuli1122/chuli-home-sub001/internal/conversation"
	"github.com/chuli1122/chuli-home-sub001/internal/model"
	"github.com/chuli1122/chuli-home-sub001/internal/session"
	"github.com/chuli1122/chuli-home-sub001/internal/stream"
	"github.com/chuli1122/chuli-home-sub001/internal/transcript"
	"github.com/chuli1122/chuli-home-sub001/internal/ui/chat"
	"github.com/chuli1122/chuli-home-sub001/internal/util"
)

func newChatCommand(root *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Chat in line mode",
		Long: `Chat in line mode: replies are printed as they stream, Ctrl+C stops a
reply, and the same slash commands as the transcript view are available.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, root, appOptions{console: true})
			if err != nil {
				return err
			}
			defer a.close()

			lm := newLineMode(a, cmd.OutOrStdout())
			return lm.run(ctx)
		},
	}
}

// =============================================================================
// LINE MODE
// =============================================================================

// lineMode is the REPL behind `chuli chat`.
type lineMode struct {
	conv  *conversation.Conversation
	a     *app
	out   io.Writer
	st    lineStyles
	width int
	log   *zap.Logger

	line        *liner.State
	historyFile string

	attachments []transcript.Attachment

	// printed is the cleaned reply text already written for the active
	// stream.
	mu      sync.Mutex
	printed string
	started bool
}

func newLineMode(a *app, out io.Writer) *lineMode {
	lm := &lineMode{
		conv:  a.conv,
		a:     a,
		out:   out,
		st:    newLineStyles(out),
		width: terminalWidth(out),
		log:   a.log.Named("chat"),
	}
	if dir, err := a.cfg.DataDir(); err == nil {
		lm.historyFile = filepath.Join(dir, "chat_history")
	}
	return lm
}

func (lm *lineMode) run(ctx context.Context) error {
	unsubscribe := lm.conv.Subscribe(lm.onEvent)
	defer unsubscribe()

	if err := lm.conv.Mount(ctx); err != nil {
		return fmt.Errorf("failed to load session %s: %w", lm.conv.SessionID(), err)
	}
	printTranscript(lm.out, lm.st, lm.conv.Visible(), lm.width, false, time.Now())
	fmt.Fprintln(lm.out, lm.st.Meta.Render("session "+lm.conv.SessionID()+" · /help for commands · Ctrl+D to leave"))

	lm.line = liner.NewLiner()
	lm.line.SetCtrlCAborts(true)
	lm.loadHistory()
	defer func() {
		lm.saveHistory()
		lm.line.Close()
		lm.markRead()
	}()

	for {
		input, err := lm.line.Prompt("chuli> ")
		if err != nil {
			// Ctrl+C at the prompt, Ctrl+D, or a closed stdin.
			fmt.Fprintln(lm.out)
			return nil
		}
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		lm.line.AppendHistory(input)

		if chat.IsCommand(input) {
			quit, err := lm.command(ctx, input)
			if err != nil {
				lm.printError(err)
			}
			if quit {
				return nil
			}
			continue
		}

		s, err := lm.conv.Send(ctx, input, lm.attachments)
		lm.attachments = nil
		if err != nil {
			lm.printError(err)
			continue
		}
		lm.await(s)
	}
}

// await blocks until s finishes. Ctrl+C stops the reply instead of the
// program.
func (lm *lineMode) await(s *stream.Session) {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)
	defer signal.Stop(sig)

	select {
	case <-s.Done():
	case <-sig:
		lm.conv.Abort()
		<-s.Done()
	}
}

// =============================================================================
// EVENTS
// =============================================================================

// onEvent prints streamed text as it arrives. Runs on conversation
// goroutines.
func (lm *lineMode) onEvent(ev conversation.Event) {
	switch ev.Kind {
	case conversation.EventChunk:
		s, ok := lm.conv.ActiveStream()
		if !ok {
			return
		}
		lm.printDelta(displayReply(s.Buffer()))

	case conversation.EventStreamFinished:
		lm.finishReply(ev)

	case conversation.EventError:
		lm.printError(ev.Err)
	}
}

func (lm *lineMode) printDelta(text string) {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	if !lm.started {
		fmt.Fprint(lm.out, lm.st.Role(model.RoleAssistant).Render("Assistant:")+" ")
		lm.started = true
	}
	if !strings.HasPrefix(text, lm.printed) {
		return
	}
	fmt.Fprint(lm.out, text[len(lm.printed):])
	lm.printed = text
}

func (lm *lineMode) finishReply(ev conversation.Event) {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	if !lm.started {
		// Nothing streamed: show what the row ended up holding.
		if m, ok := lm.conv.Store().Get(ev.ID); ok && !m.IsEmpty() {
			fmt.Fprint(lm.out, lm.st.Role(model.RoleAssistant).Render("Assistant:")+" "+transcript.DisplayText(m))
		}
	}
	fmt.Fprintln(lm.out)

	switch ev.State {
	case stream.StateAborted:
		fmt.Fprintln(lm.out, lm.st.Notice.Render("[stopped]"))
	case stream.StateFailed:
		msg := "[reply failed]"
		if ev.Err != nil {
			msg = "[reply failed: " + ev.Err.Error() + "]"
		}
		fmt.Fprintln(lm.out, lm.st.Error.Render(msg))
	}
	lm.printed = ""
	lm.started = false
}

// displayReply cleans a partial reply for printing: used-count markers go,
// and part delimiters become paragraph breaks.
func displayReply(buffer string) string {
	text := transcript.StripUsedMarkers(buffer)
	return strings.ReplaceAll(text, transcript.PartDelimiter, "\n\n")
}

// =============================================================================
// COMMANDS
// =============================================================================

// command runs a slash command and reports whether to leave.
func (lm *lineMode) command(ctx context.Context, input string) (bool, error) {
	cmd, err := chat.ParseCommand(input)
	if err != nil {
		return false, err
	}

	switch cmd.Name {
	case "quit":
		return true, nil

	case "help":
		fmt.Fprintln(lm.out, chat.HelpText())

	case "jump":
		if err := lm.conv.JumpTo(ctx, cmd.ID); err != nil {
			return false, err
		}
		lm.printAround(cmd.ID, 2)

	case "search":
		if err := lm.conv.SetSearch(ctx, cmd.Arg); err != nil {
			return false, err
		}
		printTranscript(lm.out, lm.st, lm.conv.Visible(), lm.width, true, time.Now())

	case "edit":
		if err := lm.conv.Edit(ctx, cmd.ID, cmd.Arg); err != nil {
			return false, err
		}
		fmt.Fprintln(lm.out, lm.st.Meta.Render("edited #"+cmd.ID.String()))

	case "regen":
		id := cmd.ID
		if id.IsZero() {
			last, ok := lm.conv.Store().LastAssistant()
			if !ok {
				return false, conversation.ErrNotAssistant
			}
			id = last.ID
		}
		s, err := lm.conv.Regenerate(ctx, id)
		if err != nil {
			return false, err
		}
		lm.await(s)

	case "delete":
		m, ok := lm.conv.Store().Get(cmd.ID)
		if !ok {
			return false, conversation.ErrUnknownMessage
		}
		answer, err := lm.line.Prompt(fmt.Sprintf("delete #%s %q? [y/N] ", m.ID, previewOf(m)))
		if err != nil || !strings.EqualFold(strings.TrimSpace(answer), "y") {
			fmt.Fprintln(lm.out, lm.st.Meta.Render("kept"))
			return false, nil
		}
		if err := lm.conv.Delete(ctx, cmd.ID); err != nil {
			return false, err
		}
		fmt.Fprintln(lm.out, lm.st.Meta.Render("deleted #"+cmd.ID.String()))

	case "attach":
		att, err := chat.StoreAttachment(ctx, lm.a.blobs, cmd.Arg, time.Now())
		if err != nil {
			return false, err
		}
		lm.attachments = append(lm.attachments, att)
		fmt.Fprintln(lm.out, lm.st.Meta.Render("attached "+att.Name+" to the next message"))

	case "mode":
		lm.a.prefs.SetMode(lm.conv.SessionID(), cmd.Arg)
		if cmd.Arg == session.ModeCompact {
			fmt.Fprintln(lm.out, lm.st.Meta.Render("compact mode applies to the transcript view"))
		}

	case "stats":
		fmt.Fprintln(lm.out, chat.FormatSummary(lm.a.stats.Summary(lm.conv.SessionID())))
	}
	return false, nil
}

// printAround prints target and up to n rows on each side of it.
func (lm *lineMode) printAround(target model.MessageID, n int) {
	msgs := lm.conv.Visible()
	idx := -1
	for i, m := range msgs {
		if m.ID == target {
			idx = i
			break
		}
	}
	if idx < 0 {
		lm.printError(conversation.ErrUnknownMessage)
		return
	}
	lo, hi := max(0, idx-n), min(len(msgs), idx+n+1)
	printTranscript(lm.out, lm.st, msgs[lo:hi], lm.width, false, time.Now())
}

func previewOf(m model.Message) string {
	return util.Preview(transcript.DisplayText(m), 40)
}

// =============================================================================
// HELPERS
// =============================================================================

func (lm *lineMode) printError(err error) {
	if err == nil || errors.Is(err, context.Canceled) {
		return
	}
	lm.log.Debug("command failed", zap.Error(err))
	fmt.Fprintln(lm.out, lm.st.Error.Render("[Error]")+" "+err.Error())
}

func (lm *lineMode) markRead() {
	msgs := lm.conv.Visible()
	if len(msgs) == 0 {
		return
	}
	lm.a.prefs.MarkRead(lm.conv.SessionID(), msgs[len(msgs)-1].CreatedAt)
}

func (lm *lineMode) loadHistory() {
	if lm.historyFile == "" {
		return
	}
	if f, err := os.Open(lm.historyFile); err == nil {
		_, _ = lm.line.ReadHistory(f)
		f.Close()
	}
}

func (lm *lineMode) saveHistory() {
	if lm.historyFile == "" {
		return
	}
	f, err := os.OpenFile(lm.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		lm.log.Debug("saving input history failed", zap.Error(err))
		return
	}
	defer f.Close()
	_, _ = lm.line.WriteHistory(f)
}
