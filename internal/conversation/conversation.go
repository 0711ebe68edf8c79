// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/chuli1122/chuli-home-sub001/internal/blob"
	"github.com/chuli1122/chuli-home-sub001/internal/model"
	"github.com/chuli1122/chuli-home-sub001/internal/pagination"
	"github.com/chuli1122/chuli-home-sub001/internal/stream"
	"github.com/chuli1122/chuli-home-sub001/internal/telemetry"
	"github.com/chuli1122/chuli-home-sub001/internal/transcript"
)

// remoteTimeout bounds fire-and-forget backend calls.
const remoteTimeout = 30 * time.Second

var (
	// ErrNoUserMessage is returned by Regenerate when no user message
	// precedes the reply.
	ErrNoUserMessage = errors.New("no user message precedes the reply")

	// ErrNotAssistant is returned by Regenerate for a row that is not an
	// assistant reply.
	ErrNotAssistant = errors.New("message is not an assistant reply")

	// ErrUnknownMessage is returned for ids that are not in the transcript
	// or, for JumpTo, not on the server.
	ErrUnknownMessage = errors.New("unknown message")

	// ErrEmptyMessage is returned by Send for blank input without attachments.
	ErrEmptyMessage = errors.New("message is empty")
)

// =============================================================================
// COLLABORATORS
// =============================================================================

// Mutator applies remote changes to stored messages.
type Mutator interface {
	DeleteMessage(ctx context.Context, sessionID string, id model.MessageID) error
	EditMessage(ctx context.Context, sessionID string, id model.MessageID, content string) error
}

// Backend is everything the conversation needs from the server.
type Backend interface {
	pagination.Fetcher
	stream.Streamer
	Mutator
}

// Anchor receives scroll announcements. *scroll.Anchor implements it.
type Anchor interface {
	CapturePrepend()
	ContentGrew()
	PinBottom()
	JumpTo(target model.MessageID)
	OnScroll()
	StreamEnded()
}

type nopAnchor struct{}

func (nopAnchor) CapturePrepend() {}
func (nopAnchor) ContentGrew() {}
func (nopAnchor) PinBottom() {}
func (nopAnchor) JumpTo(model.MessageID) {}
func (nopAnchor) OnScroll() {}
func (nopAnchor) StreamEnded() {}

// Options configures a Conversation.
type Options struct {
	SessionID string
	Paging    pagination.Config

	// Reconcile refetches the newest page after each completed reply so
	// optimistic rows are replaced by their server ids.
	Reconcile bool

	FallbackText string

	Blobs   blob.Store // optional
	Anchor  Anchor     // optional
	Metrics *telemetry.Metrics
	Stats   *telemetry.StreamStats
	Logger  *zap.Logger
	Now     func() time.Time
}

// =============================================================================
// CONVERSATION
// =============================================================================

// Conversation coordinates one session's transcript.
type Conversation struct {
	sessionID string
	backend   Backend
	blobs     blob.Store
	anchor    Anchor
	metrics   *telemetry.Metrics
	stats     *telemetry.StreamStats
	reconcile bool
	now       func() time.Time
	log       *zap.Logger

	store   *transcript.Store
	cursor  *pagination.Cursor
	streams *stream.Controller
	ids     *model.IDGenerator
	events  hub

	// sendMu serialises the multi-step operations that create rows and
	// start a stream, so the single-session check and the rows agree.
	sendMu sync.Mutex

	lastMu sync.Mutex
	last   *stream.Session

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a conversation for opts.SessionID. Call Mount to load it.
func New(backend Backend, opts Options) *Conversation {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Anchor == nil {
		opts.Anchor = nopAnchor{}
	}
	log := opts.Logger.Named("conversation").With(zap.String("session", opts.SessionID))

	ctx, cancel := context.WithCancel(context.Background())
	c := &Conversation{
		sessionID: opts.SessionID,
		backend:   backend,
		blobs:     opts.Blobs,
		anchor:    opts.Anchor,
		metrics:   opts.Metrics,
		stats:     opts.Stats,
		reconcile: opts.Reconcile,
		now:       opts.Now,
		log:       log,
		store:     transcript.NewStore(opts.Logger),
		ids:       model.NewIDGenerator(opts.Now),
		ctx:       ctx,
		cancel:    cancel,
	}
	c.cursor = pagination.New(backend, opts.SessionID, opts.Paging, opts.Logger)
	c.streams = stream.NewController(backend, c.store, stream.Options{
		FallbackText: opts.FallbackText,
		OnChunk:      c.onChunk,
		OnFinish:     c.onFinish,
		Logger:       opts.Logger,
	})
	return c
}

// SessionID returns the session this conversation shows.
func (c *Conversation) SessionID() string { return c.sessionID }

// Store returns the transcript store.
func (c *Conversation) Store() *transcript.Store { return c.store }

// Cursor returns the pagination cursor.
func (c *Conversation) Cursor() *pagination.Cursor { return c.cursor }

// Visible returns the rows to render.
func (c *Conversation) Visible() []model.Message { return c.store.Visible() }

// Streaming reports whether a reply is in flight.
func (c *Conversation) Streaming() bool { return c.streams.Streaming() }

// ActiveStream returns the in-flight session, if any.
func (c *Conversation) ActiveStream() (*stream.Session, bool) { return c.streams.Active() }

// Abort stops the in-flight reply and reports whether there was one.
func (c *Conversation) Abort() bool { return c.streams.Abort() }

// Subscribe registers fn for every Event and returns a function that
// removes it. fn may run on any goroutine.
func (c *Conversation) Subscribe(fn func(Event)) func() {
	return c.events.subscribe(fn)
}

// Wait blocks until background work (remote deletes, reconcile fetches and
// the active stream) has finished.
func (c *Conversation) Wait() {
	c.lastMu.Lock()
	s := c.last
	c.lastMu.Unlock()
	if s != nil {
		<-s.Done()
	}
	c.wg.Wait()
}

// Close aborts the active reply, stops background work and waits for it.
func (c *Conversation) Close() {
	c.streams.Abort()
	c.cancel()
	c.Wait()
}

func (c *Conversation) emit(ev Event) { c.events.emit(ev) }

func (c *Conversation) background(fn func(ctx context.Context)) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ctx, cancel := context.WithTimeout(c.ctx, remoteTimeout)
		defer cancel()
		fn(ctx)
	}()
}

// expand applies the multi-part split to fetched rows.
func expand(msgs []model.Message) []model.Message {
	out := make([]model.Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, transcript.SplitMultiPart(m)...)
	}
	return out
}

func (c *Conversation) observe(msgs []model.Message) {
	for _, m := range msgs {
		c.ids.Observe(m.ID)
	}
}

// =============================================================================
// HISTORY
// =============================================================================

// Mount loads the newest page, replaces the window and pins the bottom.
// An active reply is aborted first.
func (c *Conversation) Mount(ctx context.Context) error {
	if s, ok := c.streams.Active(); ok {
		s.Abort()
		<-s.Done()
	}

	page, err := c.cursor.LoadInitial(ctx)
	if err != nil {
		c.metrics.FetchFailed()
		c.log.Warn("initial fetch failed", zap.Error(err))
		c.emit(Event{Kind: EventError, Err: err})
		return err
	}

	rows := expand(page.Messages)
	c.store.Replace(rows)
	c.observe(rows)
	c.metrics.PageLoaded()
	c.anchor.PinBottom()

	c.log.Debug("mounted", zap.Int("rows", len(rows)), zap.Bool("has_more", page.HasMore))
	c.emit(Event{Kind: EventMounted, Count: len(rows), HasMore: page.HasMore})
	return nil
}

// SetSearch changes the history filter and remounts.
func (c *Conversation) SetSearch(ctx context.Context, query string) error {
	c.cursor.SetSearch(query)
	return c.Mount(ctx)
}

// LoadOlder fetches and prepends the page before the oldest loaded row. It
// returns false when the call was dropped by the cursor guard.
func (c *Conversation) LoadOlder(ctx context.Context) (bool, error) {
	page, ok, err := c.cursor.LoadOlder(ctx)
	if err != nil {
		c.metrics.FetchFailed()
		c.log.Warn("older page fetch failed", zap.Error(err))
		c.emit(Event{Kind: EventError, Err: err})
		return false, err
	}
	if !ok {
		return false, nil
	}

	rows := expand(page.Messages)
	c.anchor.CapturePrepend()
	n := c.store.PrependPage(rows)
	c.metrics.PageLoaded()

	c.emit(Event{Kind: EventPrepended, Count: n, HasMore: page.HasMore})
	return true, nil
}

// OnScroll records a user scroll at offset top and loads older history when
// top is within the near-top threshold.
func (c *Conversation) OnScroll(ctx context.Context, top int) (bool, error) {
	c.anchor.OnScroll()
	if !c.cursor.ShouldLoad(top) {
		return false, nil
	}
	return c.LoadOlder(ctx)
}

// JumpTo shows target. A loaded row is only re-centred; otherwise the page
// ending at target replaces the window and the cursor restarts from it.
func (c *Conversation) JumpTo(ctx context.Context, target model.MessageID) error {
	if _, ok := c.store.Get(target); ok {
		c.anchor.JumpTo(target)
		c.emit(Event{Kind: EventJumped, ID: target})
		return nil
	}
	if c.streams.Streaming() {
		return stream.ErrSessionActive
	}

	before := model.MessageID{Seq: target.Seq + 1}
	page, err := c.backend.FetchMessages(ctx, c.sessionID, model.FetchOptions{
		Limit:    c.cursor.PageSize(),
		BeforeID: &before,
		Search:   c.cursor.Search(),
	})
	if err != nil {
		c.metrics.FetchFailed()
		err = fmt.Errorf("jump to %s: %w", target, err)
		c.log.Warn("jump fetch failed", zap.Error(err))
		c.emit(Event{Kind: EventError, ID: target, Err: err})
		return err
	}
	page.Normalize()

	rows := expand(page.Messages)
	found := false
	for _, m := range rows {
		if m.ID == target {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("jump to %s: %w", target, ErrUnknownMessage)
	}

	c.store.Replace(rows)
	c.cursor.Reset(page)
	c.observe(rows)
	c.metrics.PageLoaded()
	c.anchor.JumpTo(target)

	c.emit(Event{Kind: EventJumped, ID: target, Count: len(rows), HasMore: page.HasMore})
	return nil
}

// =============================================================================
// SENDING
// =============================================================================

// Send appends an optimistic user row and a placeholder reply, then streams
// the reply into the placeholder. Attachments are embedded in the user row
// as markers and sent as structured parts.
func (c *Conversation) Send(ctx context.Context, text string, attachments []transcript.Attachment) (*stream.Session, error) {
	text = strings.TrimSpace(text)
	if text == "" && len(attachments) == 0 {
		return nil, ErrEmptyMessage
	}

	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if c.streams.Streaming() {
		return nil, stream.ErrSessionActive
	}

	payload := model.Payload{Text: text}
	if len(attachments) > 0 {
		parts, missing := c.buildParts(ctx, text, attachments)
		if missing > 0 {
			c.log.Warn("sending without missing attachments", zap.Int("missing", missing))
		}
		if missing < len(attachments) {
			payload = model.Payload{Parts: parts}
		}
	}

	user := model.NewPendingMessage(c.ids.Next(), model.RoleUser, transcript.WithAttachments(text, attachments))
	user.CreatedAt = c.now()
	c.store.AppendLocal(user)

	s, err := c.startReply(payload)
	if err != nil {
		c.store.Remove(user.ID)
		return nil, err
	}
	return s, nil
}

// startReply appends the placeholder row and starts the stream.
// Caller must hold sendMu.
func (c *Conversation) startReply(payload model.Payload) (*stream.Session, error) {
	placeholder := model.NewPendingMessage(c.ids.Next(), model.RoleAssistant, "")
	placeholder.CreatedAt = c.now()
	c.store.AppendLocal(placeholder)

	// lastMu is held across Start so onFinish of a fast reply sees it as
	// the latest session.
	c.lastMu.Lock()
	s, err := c.streams.Start(c.ctx, c.sessionID, placeholder.ID, payload)
	if err != nil {
		c.lastMu.Unlock()
		c.store.Remove(placeholder.ID)
		return nil, err
	}
	c.last = s
	c.lastMu.Unlock()

	c.anchor.PinBottom()
	c.emit(Event{Kind: EventAppended, ID: placeholder.ID})
	return s, nil
}

// buildParts resolves attachments into structured parts. It returns the
// parts and how many blobs could not be loaded.
func (c *Conversation) buildParts(ctx context.Context, text string, attachments []transcript.Attachment) ([]model.Part, int) {
	var parts []model.Part
	if text != "" {
		parts = append(parts, model.TextPart(text))
	}
	missing := 0
	for _, a := range attachments {
		if c.blobs == nil {
			missing++
			continue
		}
		b, err := c.blobs.Get(ctx, a.BlobID)
		if err != nil {
			if !errors.Is(err, blob.ErrNotFound) {
				c.log.Warn("blob lookup failed", zap.String("blob", a.BlobID), zap.Error(err))
			}
			missing++
			continue
		}
		switch a.Kind {
		case transcript.AttachmentFile:
			name := a.Name
			if name == "" {
				name = b.Name
			}
			parts = append(parts, model.FileAttachmentPart(name, b.DataURL()))
		default:
			parts = append(parts, model.ImagePart(b.DataURL()))
		}
	}
	return parts, missing
}

// Regenerate replaces an assistant reply with a fresh one. The reply (and
// any siblings it was split into) is deleted locally and remotely. When the
// preceding user message references attachments that can all be loaded and
// its remote delete succeeds, it is re-sent as a new structured message;
// otherwise the backend is asked to reply again to its stored copy as plain
// text.
func (c *Conversation) Regenerate(ctx context.Context, assistantID model.MessageID) (*stream.Session, error) {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if c.streams.Streaming() {
		return nil, stream.ErrSessionActive
	}

	reply, ok := c.store.Get(assistantID)
	if !ok {
		return nil, fmt.Errorf("regenerate %s: %w", assistantID, ErrUnknownMessage)
	}
	if !reply.IsAssistant() {
		return nil, fmt.Errorf("regenerate %s: %w", assistantID, ErrNotAssistant)
	}
	user, ok := c.store.PrecedingUser(assistantID)
	if !ok {
		return nil, ErrNoUserMessage
	}

	c.removeLocal(reply.ID)

	text, attachments := transcript.ParseAttachments(user.Content)
	payload := model.Payload{Text: text, Regenerate: true}
	kind := "text"

	if len(attachments) > 0 {
		parts, missing := c.buildParts(ctx, text, attachments)
		switch {
		case missing > 0:
			c.log.Info("regenerating as plain text: attachments missing",
				zap.Stringer("user", user.ID), zap.Int("missing", missing))
		case !c.deleteRemoteNow(ctx, user):
			c.log.Info("regenerating as plain text: user message delete failed",
				zap.Stringer("user", user.ID))
		default:
			c.store.Remove(user.ID)
			c.emit(Event{Kind: EventRemoved, ID: user.ID})

			resent := model.NewPendingMessage(c.ids.Next(), model.RoleUser, user.Content)
			resent.CreatedAt = c.now()
			c.store.AppendLocal(resent)

			payload = model.Payload{Parts: parts}
			kind = "multimodal"
		}
	}

	s, err := c.startReply(payload)
	if err != nil {
		return nil, err
	}
	c.metrics.Regenerated(kind)
	return s, nil
}

// deleteRemoteNow deletes m on the backend synchronously. Rows that only
// exist locally count as deleted.
func (c *Conversation) deleteRemoteNow(ctx context.Context, m model.Message) bool {
	if m.Pending {
		return true
	}
	if err := c.backend.DeleteMessage(ctx, c.sessionID, m.ID); err != nil {
		c.log.Warn("remote delete failed", zap.Stringer("id", m.ID), zap.Error(err))
		return false
	}
	return true
}

// =============================================================================
// MUTATIONS
// =============================================================================

// Delete removes a row locally and deletes it on the backend in the
// background. Remote failures are logged and never rolled back. A reply
// still streaming into the row keeps running; its patches become no-ops.
// Deleting one part of a split reply removes every part, since the server
// stores them as one message.
func (c *Conversation) Delete(ctx context.Context, id model.MessageID) error {
	if _, ok := c.store.Get(id); !ok {
		return fmt.Errorf("delete %s: %w", id, ErrUnknownMessage)
	}
	c.removeLocal(id)
	return nil
}

// siblings returns the rows sharing id's server message, in order. A row
// that was never split is its own only sibling.
func (c *Conversation) siblings(id model.MessageID) []model.Message {
	var out []model.Message
	for _, m := range c.store.Messages() {
		if m.ID.Seq == id.Seq {
			out = append(out, m)
		}
	}
	return out
}

// removeLocal removes the rows of id's server message and schedules one
// remote delete of the parent id.
func (c *Conversation) removeLocal(id model.MessageID) {
	removed, pending := false, false
	for _, m := range c.siblings(id) {
		if !c.store.Remove(m.ID) {
			continue
		}
		removed = true
		pending = pending || m.Pending
		c.emit(Event{Kind: EventRemoved, ID: m.ID})
	}
	if !removed {
		return
	}
	c.metrics.Deleted()

	if pending {
		return
	}
	parent := model.ID(id.Seq)
	c.background(func(ctx context.Context) {
		if err := c.backend.DeleteMessage(ctx, c.sessionID, parent); err != nil {
			c.log.Warn("remote delete failed", zap.Stringer("id", parent), zap.Error(err))
		}
	})
}

// Edit replaces a row's content locally, then on the backend. The local
// change stays even when the remote edit fails; that error is returned.
// Editing one part of a split reply sends the parent the parts joined
// back together.
func (c *Conversation) Edit(ctx context.Context, id model.MessageID, content string) error {
	var pending bool
	ok := c.store.Patch(id, func(m *model.Message) {
		m.Content = content
		pending = m.Pending
	})
	if !ok {
		return fmt.Errorf("edit %s: %w", id, ErrUnknownMessage)
	}
	c.metrics.Edited()
	c.emit(Event{Kind: EventEdited, ID: id})

	if pending {
		return nil
	}

	parts := c.siblings(id)
	texts := make([]string, 0, len(parts))
	for _, m := range parts {
		texts = append(texts, m.Content)
	}
	parent := model.ID(id.Seq)
	if err := c.backend.EditMessage(ctx, c.sessionID, parent, strings.Join(texts, transcript.PartDelimiter)); err != nil {
		c.log.Warn("remote edit failed", zap.Stringer("id", parent), zap.Error(err))
		return fmt.Errorf("edit %s: %w", id, err)
	}
	return nil
}

// =============================================================================
// STREAM CALLBACKS
// =============================================================================

func (c *Conversation) onChunk(s *stream.Session) {
	c.anchor.ContentGrew()
	c.emit(Event{Kind: EventChunk, ID: s.TargetID()})
}

func (c *Conversation) onFinish(s *stream.Session) {
	state := s.State()
	c.metrics.StreamFinished(state.String(), s.Chunks(), s.Duration())
	if c.stats != nil {
		c.stats.Record(telemetry.StreamRecord{
			SessionID: c.sessionID,
			Outcome:   state.String(),
			Chunks:    s.Chunks(),
			Chars:     len(s.Buffer()),
			TTFT:      s.TTFT(),
			Duration:  s.Duration(),
			At:        c.now(),
		})
	}

	var parts []model.MessageID
	if state == stream.StateCompleted {
		parts = c.store.ApplySplit(s.TargetID())
	}

	// An aborted run can finish after the next reply started; it must not
	// end that reply's bottom follow.
	c.lastMu.Lock()
	latest := c.last == s
	c.lastMu.Unlock()
	if latest {
		c.anchor.StreamEnded()
	}
	c.anchor.ContentGrew()
	c.emit(Event{Kind: EventStreamFinished, ID: s.TargetID(), State: state, Parts: parts, Err: s.Err()})

	if state == stream.StateCompleted && c.reconcile {
		c.background(c.reconcileNewest)
	}
}

// reconcileNewest replaces optimistic rows with their confirmed server
// copies. It is skipped when a new reply started in the meantime, since its
// rows are still pending.
func (c *Conversation) reconcileNewest(ctx context.Context) {
	page, err := c.backend.FetchMessages(ctx, c.sessionID, model.FetchOptions{
		Limit:  c.cursor.PageSize(),
		Search: c.cursor.Search(),
	})
	if err != nil {
		c.metrics.FetchFailed()
		c.log.Warn("reconcile fetch failed", zap.Error(err))
		return
	}
	page.Normalize()
	rows := expand(page.Messages)

	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.streams.Streaming() {
		c.log.Debug("skipping reconcile while a reply is streaming")
		return
	}
	n := c.store.Reconcile(rows)
	c.observe(rows)
	c.anchor.ContentGrew()
	c.emit(Event{Kind: EventReconciled, Count: n})
}
