// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/chuli1122/chuli-home-sub001/internal/blob"
	"github.com/chuli1122/chuli-home-sub001/internal/conversation"
	"github.com/chuli1122/chuli-home-sub001/internal/gesture"
	"github.com/chuli1122/chuli-home-sub001/internal/model"
	"github.com/chuli1122/chuli-home-sub001/internal/scroll"
	"github.com/chuli1122/chuli-home-sub001/internal/session"
	"github.com/chuli1122/chuli-home-sub001/internal/stream"
	"github.com/chuli1122/chuli-home-sub001/internal/telemetry"
	"github.com/chuli1122/chuli-home-sub001/internal/transcript"
	"github.com/chuli1122/chuli-home-sub001/internal/ui/styles"
)

// Screen layout: header, viewport, attachment line, input box (3 lines with
// border), status bar.
const (
	headerHeight   = 1
	reservedHeight = headerHeight + 1 + 3 + 1
)

// Options configures the transcript screen.
type Options struct {
	Conversation *conversation.Conversation

	// Anchor and Surface must be the pair the conversation was created with.
	Anchor  *scroll.Anchor
	Surface *Surface

	Blobs       blob.Store
	Preferences *session.Store
	Stats       *telemetry.StreamStats
	Theme       *styles.Theme
	Gesture     gesture.Config

	Markdown       bool
	ShowTimestamps bool

	Logger *zap.Logger
	Now    func() time.Time
}

// prompt is the pending delete confirmation. It is shared by pointer so the
// gesture list's delete callback can raise it.
type prompt struct {
	id     model.MessageID
	active bool
}

func (p *prompt) ask(id model.MessageID) {
	p.id = id
	p.active = true
}

func (p *prompt) clear() {
	*p = prompt{}
}

// Model is the Bubble Tea model of the transcript screen.
type Model struct {
	conv     *conversation.Conversation
	anchor   *scroll.Anchor
	surface  *Surface
	blobs    blob.Store
	prefs    *session.Store
	stats    *telemetry.StreamStats
	theme    *styles.Theme
	keys     KeyMap
	gestures *gesture.List
	md       *markdown
	events   *eventBridge
	log      *zap.Logger
	now      func() time.Time
	ctx      context.Context

	viewport viewport.Model
	input    textinput.Model
	spinner  spinner.Model

	width  int
	height int
	ready  bool

	mode           string
	showTimestamps bool

	attachments []transcript.Attachment
	selected    model.MessageID
	confirm     *prompt

	dragging bool
	dragKey  string

	loadingOlder bool
	ticking      bool

	status string
	err    error
}

// New creates the screen. The conversation is mounted by Init.
func New(opts Options) Model {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Theme == nil {
		opts.Theme = styles.NewTheme()
	}
	if opts.Surface == nil {
		opts.Surface = NewSurface()
	}
	if opts.Anchor == nil {
		opts.Anchor = scroll.NewAnchor(opts.Surface, opts.Surface, scroll.Config{})
	}
	if opts.Preferences == nil {
		opts.Preferences = session.NewPreferences(nil)
	}
	if opts.Stats == nil {
		opts.Stats = telemetry.NewStreamStats()
	}

	input := textinput.New()
	input.Placeholder = "Message (/help for commands)"
	input.Prompt = "> "
	input.CharLimit = 0
	input.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	vp := viewport.New(80, 20)
	vp.MouseWheelEnabled = false

	confirm := &prompt{}
	gestures := gesture.NewList(opts.Gesture, func(key string) {
		if id, err := model.ParseID(key); err == nil {
			confirm.ask(id)
		}
	})

	var md *markdown
	if opts.Markdown {
		md = newMarkdown(opts.Theme.IsDark)
	}

	prefs := opts.Preferences.Get(opts.Conversation.SessionID())
	input.SetValue(prefs.Draft)

	return Model{
		conv:           opts.Conversation,
		anchor:         opts.Anchor,
		surface:        opts.Surface,
		blobs:          opts.Blobs,
		prefs:          opts.Preferences,
		stats:          opts.Stats,
		theme:          opts.Theme,
		keys:           DefaultKeyMap(),
		gestures:       gestures,
		md:             md,
		events:         newEventBridge(opts.Conversation),
		log:            opts.Logger.Named("tui"),
		now:            opts.Now,
		ctx:            context.Background(),
		viewport:       vp,
		input:          input,
		spinner:        sp,
		mode:           prefs.Mode,
		showTimestamps: opts.ShowTimestamps,
		confirm:        confirm,
	}
}

// Init mounts the conversation and starts the event pump.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		textinput.Blink,
		m.spinner.Tick,
		m.events.wait(),
		m.runOp("mount", m.conv.Mount),
	)
}

// runOp runs a conversation operation as a command.
func (m Model) runOp(op string, fn func(ctx context.Context) error) tea.Cmd {
	ctx := m.ctx
	return func() tea.Msg {
		return opDoneMsg{Op: op, Err: fn(ctx)}
	}
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		return m.handleResize(msg)

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.MouseMsg:
		return m.handleMouse(msg)

	case eventMsg:
		return m.handleEvent(msg.Event)

	case opDoneMsg:
		return m.handleOpDone(msg)

	case olderLoadedMsg:
		m.loadingOlder = false
		if msg.Err != nil {
			m.err = msg.Err
		}
		m.refresh()
		return m, nil

	case attachedMsg:
		m.attachments = append(m.attachments, msg.Attachment)
		m.status = "attached " + msg.Attachment.Name
		return m, nil

	case frameMsg:
		return m.handleFrame()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		if m.conv.Streaming() {
			m.refresh()
		}
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// =============================================================================
// HANDLERS
// =============================================================================

func (m Model) handleResize(msg tea.WindowSizeMsg) (tea.Model, tea.Cmd) {
	m.width = msg.Width
	m.height = msg.Height
	m.theme.SetSize(msg.Width, msg.Height)

	m.viewport.Width = msg.Width
	m.viewport.Height = max(1, msg.Height-reservedHeight)
	m.input.Width = max(10, msg.Width-8)
	m.surface.setClient(m.viewport.Height)
	m.ready = true

	m.refresh()
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.confirm.active {
		id := m.confirm.id
		m.confirm.clear()
		m.gestures.CloseAll()
		if msg.String() == "y" || msg.String() == "Y" {
			cmd := tea.Batch(m.runDelete(id), m.ensureTick())
			return m, cmd
		}
		m.status = "delete cancelled"
		cmd := m.ensureTick()
		return m, cmd
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		if msg.String() == "ctrl+c" && m.conv.Streaming() {
			m.conv.Abort()
			return m, nil
		}
		return m.quit()

	case key.Matches(msg, m.keys.Cancel):
		switch {
		case m.conv.Streaming():
			m.conv.Abort()
		case m.err != nil || m.status != "":
			m.err = nil
			m.status = ""
		default:
			m.selected = model.MessageID{}
			m.gestures.CloseAll()
			m.refresh()
			cmd := m.ensureTick()
			return m, cmd
		}
		return m, nil

	case key.Matches(msg, m.keys.Submit):
		return m.submit()

	case key.Matches(msg, m.keys.Up):
		m.viewport.LineUp(1)
		cmd := m.userScrolled()
		return m, cmd

	case key.Matches(msg, m.keys.Down):
		m.viewport.LineDown(1)
		cmd := m.userScrolled()
		return m, cmd

	case key.Matches(msg, m.keys.PageUp):
		m.viewport.HalfViewUp()
		cmd := m.userScrolled()
		return m, cmd

	case key.Matches(msg, m.keys.PageDown):
		m.viewport.HalfViewDown()
		cmd := m.userScrolled()
		return m, cmd

	case key.Matches(msg, m.keys.Bottom):
		m.anchor.PinBottom()
		m.refresh()
		cmd := m.ensureTick()
		return m, cmd

	case key.Matches(msg, m.keys.Prev):
		m.moveSelection(-1)
		return m, nil

	case key.Matches(msg, m.keys.Next):
		m.moveSelection(1)
		return m, nil

	case key.Matches(msg, m.keys.Delete):
		if !m.selected.IsZero() {
			m.confirm.ask(m.selected)
		}
		return m, nil

	case key.Matches(msg, m.keys.Regen):
		return m.regenerate(m.selected)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) handleEvent(ev conversation.Event) (tea.Model, tea.Cmd) {
	cmds := []tea.Cmd{m.events.wait()}

	switch ev.Kind {
	case conversation.EventError:
		m.err = ev.Err
	case conversation.EventRemoved:
		m.gestures.Remove(ev.ID.String())
		if m.selected == ev.ID {
			m.selected = model.MessageID{}
		}
	case conversation.EventStreamFinished:
		if ev.State == stream.StateFailed && ev.Err != nil {
			m.err = ev.Err
		}
		m.markRead()
	case conversation.EventMounted, conversation.EventJumped:
		m.markRead()
	}

	m.refresh()
	cmds = append(cmds, m.ensureTick())
	return m, tea.Batch(cmds...)
}

func (m Model) handleOpDone(msg opDoneMsg) (tea.Model, tea.Cmd) {
	switch {
	case msg.Err == nil:
		if msg.Op == "delete" || msg.Op == "edit" {
			m.status = msg.Op + " saved"
		}
	case errors.Is(msg.Err, context.Canceled):
	case errors.Is(msg.Err, conversation.ErrEmptyMessage):
	case errors.Is(msg.Err, stream.ErrSessionActive):
		m.err = errors.New("a reply is still streaming, press Esc to stop it")
	default:
		m.log.Debug("operation failed", zap.String("op", msg.Op), zap.Error(msg.Err))
		m.err = msg.Err
	}
	m.refresh()
	cmd := m.ensureTick()
	return m, cmd
}

func (m Model) handleFrame() (tea.Model, tea.Cmd) {
	m.ticking = false
	m.gestures.Tick()
	m.refresh()
	cmd := m.ensureTick()
	return m, cmd
}

// ensureTick starts the frame loop when something is animating.
func (m *Model) ensureTick() tea.Cmd {
	if m.ticking || !m.animating() {
		return nil
	}
	m.ticking = true
	return frameCmd()
}

func (m *Model) animating() bool {
	if m.anchor.Animating() || m.conv.Streaming() {
		return true
	}
	if key, ok := m.gestures.OpenRow(); ok {
		if c, ok := m.gestures.Lookup(key); ok && c.Animating() {
			return true
		}
	}
	for _, msg := range m.conv.Visible() {
		if c, ok := m.gestures.Lookup(msg.ID.String()); ok && c.Animating() {
			return true
		}
	}
	return false
}

// =============================================================================
// MOUSE
// =============================================================================

func (m Model) handleMouse(msg tea.MouseMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.MouseWheelUp:
		m.viewport.LineUp(3)
		cmd := m.userScrolled()
		return m, cmd

	case tea.MouseWheelDown:
		m.viewport.LineDown(3)
		cmd := m.userScrolled()
		return m, cmd

	case tea.MouseLeft:
		return m.pointerDown(msg.X, msg.Y)

	case tea.MouseMotion:
		if !m.dragging {
			return m, nil
		}
		ctrl := m.gestures.Row(m.dragKey)
		if ctrl.PointerMove(float64(msg.X), float64(msg.Y)) {
			m.refresh()
		}
		return m, nil

	case tea.MouseRelease:
		if !m.dragging {
			return m, nil
		}
		m.dragging = false
		m.gestures.Row(m.dragKey).PointerUp()
		m.refresh()
		cmd := m.ensureTick()
		return m, cmd
	}
	return m, nil
}

// pointerDown starts a swipe on the row under the pointer, or taps the
// delete action of an open row.
func (m Model) pointerDown(x, y int) (tea.Model, tea.Cmd) {
	if y < headerHeight || y >= headerHeight+m.viewport.Height {
		return m, nil
	}
	id, ok := m.surface.RowAt(y - headerHeight + m.viewport.YOffset)
	if !ok {
		m.gestures.CloseAll()
		cmd := m.ensureTick()
		return m, cmd
	}
	rowKey := id.String()
	ctrl := m.gestures.Row(rowKey)

	actionWidth := int(ctrl.Config().ActionWidth)
	if ctrl.IsOpen() && x >= m.width-actionWidth {
		ctrl.TapAction()
		return m, nil
	}
	if open, ok := m.gestures.OpenRow(); ok && open != rowKey {
		m.gestures.CloseAll()
	}

	ctrl.PointerDown(float64(x), float64(y))
	m.dragging = true
	m.dragKey = rowKey
	m.selected = id
	m.refresh()
	cmd := m.ensureTick()
	return m, cmd
}

// =============================================================================
// SCROLLING
// =============================================================================

// userScrolled records a scroll the user made and asks for older history
// when the view reached the top.
func (m *Model) userScrolled() tea.Cmd {
	top := m.viewport.YOffset
	m.surface.syncTop(top)
	m.anchor.OnScroll()

	if m.loadingOlder || !m.conv.Cursor().ShouldLoad(top) {
		return nil
	}
	m.loadingOlder = true
	m.refresh()

	conv, ctx := m.conv, m.ctx
	return func() tea.Msg {
		loaded, err := conv.OnScroll(ctx, top)
		return olderLoadedMsg{Loaded: loaded, Err: err}
	}
}

// refresh renders the transcript and runs the anchor's layout pass.
func (m *Model) refresh() {
	if !m.ready {
		return
	}
	msgs := m.conv.Visible()

	var streaming model.MessageID
	if s, ok := m.conv.ActiveStream(); ok {
		streaming = s.TargetID()
	}
	locator, _ := m.anchor.Locator()

	view := renderTranscript(m.theme, m.md, msgs, renderOptions{
		Width:          m.viewport.Width,
		Now:            m.now(),
		Compact:        m.mode == session.ModeCompact,
		ShowTimestamps: m.showTimestamps,
		Locator:        locator,
		Selected:       m.selected,
		Streaming:      streaming,
		Spinner:        m.spinner.View(),
		LoadingOlder:   m.loadingOlder,
		HasMore:        m.conv.Cursor().HasMore(),
		Offset:         m.rowOffset,
	})

	m.surface.setLayout(view.Rows, view.Lines)
	m.surface.setClient(m.viewport.Height)
	m.viewport.SetContent(view.Content)
	m.surface.syncTop(m.viewport.YOffset)

	if m.anchor.AfterLayout() != scroll.StrategyNone {
		m.viewport.SetYOffset(m.surface.ScrollTop())
	}
}

func (m *Model) rowOffset(rowKey string) float64 {
	c, ok := m.gestures.Lookup(rowKey)
	if !ok {
		return 0
	}
	return c.Offset()
}

func (m *Model) moveSelection(delta int) {
	msgs := m.conv.Visible()
	if len(msgs) == 0 {
		return
	}
	idx := len(msgs)
	for i, msg := range msgs {
		if msg.ID == m.selected {
			idx = i
			break
		}
	}
	idx = min(max(idx+delta, 0), len(msgs)-1)
	m.selected = msgs[idx].ID
	m.anchor.JumpTo(m.selected)
	m.refresh()
}

// =============================================================================
// ACTIONS
// =============================================================================

func (m Model) submit() (tea.Model, tea.Cmd) {
	value := m.input.Value()
	if IsCommand(value) {
		m.input.Reset()
		cmd, err := ParseCommand(value)
		if err != nil {
			m.err = err
			return m, nil
		}
		return m.runCommand(cmd)
	}

	attachments := m.attachments
	if strings.TrimSpace(value) == "" && len(attachments) == 0 {
		return m, nil
	}
	m.input.Reset()
	m.attachments = nil
	m.err = nil
	m.status = ""

	conv := m.conv
	return m, m.runOp("send", func(ctx context.Context) error {
		_, err := conv.Send(ctx, value, attachments)
		return err
	})
}

func (m Model) runCommand(cmd Command) (tea.Model, tea.Cmd) {
	m.err = nil
	m.status = ""
	conv := m.conv

	switch cmd.Name {
	case "jump":
		return m, m.runOp("jump", func(ctx context.Context) error {
			return conv.JumpTo(ctx, cmd.ID)
		})

	case "search":
		if cmd.Arg == "" {
			m.status = "search cleared"
		} else {
			m.status = "search: " + cmd.Arg
		}
		return m, m.runOp("search", func(ctx context.Context) error {
			return conv.SetSearch(ctx, cmd.Arg)
		})

	case "edit":
		return m, m.runOp("edit", func(ctx context.Context) error {
			return conv.Edit(ctx, cmd.ID, cmd.Arg)
		})

	case "regen":
		return m.regenerate(cmd.ID)

	case "delete":
		if _, ok := conv.Store().Get(cmd.ID); !ok {
			m.err = conversation.ErrUnknownMessage
			return m, nil
		}
		m.confirm.ask(cmd.ID)
		return m, nil

	case "attach":
		return m, m.attach(cmd.Arg)

	case "mode":
		m.mode = cmd.Arg
		m.prefs.SetMode(conv.SessionID(), cmd.Arg)
		m.refresh()
		return m, nil

	case "stats":
		m.status = FormatSummary(m.stats.Summary(conv.SessionID()))
		return m, nil

	case "help":
		m.status = HelpText()
		return m, nil

	case "quit":
		return m.quit()
	}
	return m, nil
}

// regenerate regenerates id, or the newest assistant reply when id is zero.
func (m Model) regenerate(id model.MessageID) (tea.Model, tea.Cmd) {
	if id.IsZero() {
		last, ok := m.conv.Store().LastAssistant()
		if !ok {
			m.err = conversation.ErrNotAssistant
			return m, nil
		}
		id = last.ID
	}
	conv := m.conv
	return m, m.runOp("regenerate", func(ctx context.Context) error {
		_, err := conv.Regenerate(ctx, id)
		return err
	})
}

func (m Model) runDelete(id model.MessageID) tea.Cmd {
	conv := m.conv
	return m.runOp("delete", func(ctx context.Context) error {
		return conv.Delete(ctx, id)
	})
}

// attach stores the file at path as a blob for the next message.
func (m Model) attach(path string) tea.Cmd {
	blobs, now, ctx := m.blobs, m.now, m.ctx
	return func() tea.Msg {
		att, err := StoreAttachment(ctx, blobs, path, now())
		if err != nil {
			return opDoneMsg{Op: "attach", Err: err}
		}
		return attachedMsg{Attachment: att}
	}
}

// markRead records the newest visible row as read.
func (m *Model) markRead() {
	msgs := m.conv.Visible()
	if len(msgs) == 0 {
		return
	}
	m.prefs.MarkRead(m.conv.SessionID(), msgs[len(msgs)-1].CreatedAt)
}

// quit saves the draft and read position and stops the program.
func (m Model) quit() (tea.Model, tea.Cmd) {
	m.markRead()
	m.prefs.SetDraft(m.conv.SessionID(), m.input.Value())
	if err := m.prefs.Flush(); err != nil {
		m.log.Warn("saving preferences failed", zap.Error(err))
	}
	m.events.stop()
	return m, tea.Quit
}
