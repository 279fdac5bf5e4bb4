// Package canvas is the interactive annotation engine: it turns pointer, click
// and keyboard events into committed annotations over a captured image.
//
// A Canvas is driven from a single event loop. Its methods are safe to call from
// other goroutines (the share server reads from it), but events are expected to
// arrive in order from one host.
package canvas

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"strings"
	"sync"
	"time"

	"screenspec/internal/history"
	"screenspec/internal/render"
	"screenspec/internal/state"
	"screenspec/internal/storage"
	"screenspec/internal/surface"
)

var (
	// ErrNotReady is returned while the base image is still decoding or failed
	// to decode.
	ErrNotReady = errors.New("canvas: image not ready")
	// ErrNoGateway is returned by saves on a canvas opened without persistence.
	ErrNoGateway = errors.New("canvas: no persistence gateway")
)

// Mode is the interaction state.
type Mode int

const (
	Idle Mode = iota
	ToolSelected
	Dragging
	TextPending
)

func (m Mode) String() string {
	switch m {
	case Idle:
		return "idle"
	case ToolSelected:
		return "tool-selected"
	case Dragging:
		return "dragging"
	case TextPending:
		return "text-pending"
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// State describes where the canvas is in its interaction cycle. Anchor is set
// while Dragging and TextPending.
type State struct {
	Mode   Mode
	Tool   state.Tool
	Anchor state.Point
}

// Cursor is the pointer hint for the host.
type Cursor string

const (
	CursorDefault   Cursor = "default"
	CursorText      Cursor = "text"
	CursorCrosshair Cursor = "crosshair"
)

// Shortcut is a host-level keyboard command.
type Shortcut int

const (
	ShortcutUndo Shortcut = iota + 1
	ShortcutSave
	ShortcutCancel
)

// Prompter asks the user for the text of a label placed at a point. It returns
// false when the user cancelled.
type Prompter interface {
	PromptText(at state.Point) (string, bool)
}

// PrompterFunc adapts a function to Prompter.
type PrompterFunc func(at state.Point) (string, bool)

func (f PrompterFunc) PromptText(at state.Point) (string, bool) { return f(at) }

type gesture struct {
	tool   state.Tool
	anchor state.Point
	end    state.Point
	style  state.Style
	before *image.RGBA
}

// Canvas owns the annotation store, the rendered working image and the
// snapshot history of one screen.
type Canvas struct {
	src      surface.Source
	gateway  storage.Gateway
	screenID string
	logger   *slog.Logger
	prompter Prompter
	emitter  *state.Emitter
	now      func() time.Time
	metrics  *Metrics
	renderer *render.Renderer
	onSaved  func(error)

	// emitMu keeps op delivery in commit order across goroutines.
	emitMu   sync.Mutex
	mu       sync.Mutex
	base     *surface.Surface
	working  *image.RGBA
	err      error
	store    *state.Store
	history  *history.Ring
	tool     state.Tool
	style    state.Style
	mode     Mode
	gesture  *gesture
	pending  state.Point
	queued   []state.Annotation
	hasQueue bool
	// queueClean marks the queued list as what the gateway already holds.
	queueClean bool
	meta       storage.Metadata
	gen        uint64
	savedGen   uint64
	outbox     []state.Op

	saver *saver
}

// Option configures a Canvas.
type Option func(*Canvas)

// WithGateway enables Save through gw for the given screen.
func WithGateway(gw storage.Gateway, screenID string) Option {
	return func(c *Canvas) {
		c.gateway = gw
		c.screenID = screenID
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Canvas) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithPrompter makes Click ask for label text synchronously. Without one, Click
// leaves the canvas in TextPending until PlaceText or CancelText.
func WithPrompter(p Prompter) Option {
	return func(c *Canvas) { c.prompter = p }
}

func WithHistoryCapacity(n int) Option {
	return func(c *Canvas) { c.history = history.New(n) }
}

// WithDefaults sets the initial tool and style.
func WithDefaults(tool state.Tool, style state.Style) Option {
	return func(c *Canvas) {
		c.tool = tool
		if style.Color != "" {
			c.style.Color = style.Color
		}
		if style.StrokeSize > 0 {
			c.style.StrokeSize = style.StrokeSize
		}
	}
}

// WithClock sets the source of annotation timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Canvas) {
		if now != nil {
			c.now = now
		}
	}
}

// WithEmitter publishes every committed change through e. Ops reach
// subscribers in commit order; a subscriber must not edit the canvas.
func WithEmitter(e *state.Emitter) Option {
	return func(c *Canvas) { c.emitter = e }
}

// WithSaveHook registers fn to run on the save worker after each save attempt.
func WithSaveHook(fn func(error)) Option {
	return func(c *Canvas) { c.onSaved = fn }
}

// New creates a canvas over src. The canvas ignores edits until src is ready.
func New(src surface.Source, opts ...Option) *Canvas {
	c := &Canvas{
		src:     src,
		logger:  slog.Default(),
		now:     time.Now,
		metrics: NewMetrics(),
		store:   state.NewStore(),
		history: history.New(history.DefaultCapacity),
		tool:    state.ToolText,
		style:   state.Style{Color: state.MustColor("#ff0000"), StrokeSize: state.DefaultStrokeSize},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.renderer = render.New(c.logger)
	c.saver = newSaver(c)
	return c
}

// Open loads screenID from gw and returns a canvas editing it. The base image
// decodes in the background.
func Open(ctx context.Context, gw storage.Gateway, screenID string, opts ...Option) (*Canvas, error) {
	screen, err := gw.Load(ctx, screenID)
	if err != nil {
		return nil, fmt.Errorf("open screen %s: %w", screenID, err)
	}
	src := surface.Load(context.WithoutCancel(ctx), screen.Base())
	c := New(src, append([]Option{WithGateway(gw, screenID)}, opts...)...)
	if err := c.LoadAnnotations(screen.Annotations); err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.meta = screen.Metadata
	c.savedGen = c.gen
	c.queueClean = c.hasQueue
	c.mu.Unlock()
	return c, nil
}

// locked runs fn under the canvas lock and publishes queued ops after
// releasing it, so listeners may read the canvas.
func (c *Canvas) locked(fn func()) {
	c.emitMu.Lock()
	defer c.emitMu.Unlock()
	c.mu.Lock()
	fn()
	ops := c.outbox
	c.outbox = nil
	c.mu.Unlock()
	for _, op := range ops {
		c.emitter.Emit(op)
	}
}

func (c *Canvas) publish(op state.Op) {
	if c.emitter == nil {
		return
	}
	op.ScreenID = c.screenID
	op.At = c.now()
	c.outbox = append(c.outbox, op)
}

// readyLocked reports whether the base image is available, finishing
// initialization the first time it is.
func (c *Canvas) readyLocked() bool {
	if c.working != nil {
		return true
	}
	if c.err != nil {
		return false
	}
	select {
	case <-c.src.Ready():
	default:
		return false
	}
	s, err := c.src.Result()
	if err == nil && s == nil {
		err = surface.ErrCorrupt
	}
	if err != nil {
		c.err = fmt.Errorf("load image: %w", err)
		c.logger.Error("canvas: image failed to load", "screen", c.screenID, "error", err)
		return false
	}
	c.base = s
	c.working = s.Clone()
	c.mode = ToolSelected
	if c.hasQueue {
		clean := c.queueClean && c.gen == c.savedGen
		c.replaceLocked(c.queued)
		c.queued, c.hasQueue, c.queueClean = nil, false, false
		if clean {
			c.savedGen = c.gen
		}
	}
	c.logger.Debug("canvas: ready", "screen", c.screenID, "width", s.Width, "height", s.Height)
	return true
}

// Ready is closed once the base image finished decoding.
func (c *Canvas) Ready() <-chan struct{} { return c.src.Ready() }

// WaitReady blocks until the base image is decoded and returns the load error,
// if any.
func (c *Canvas) WaitReady(ctx context.Context) error {
	select {
	case <-c.src.Ready():
	case <-ctx.Done():
		return ctx.Err()
	}
	var err error
	c.locked(func() {
		c.readyLocked()
		err = c.err
	})
	return err
}

// Err returns the load error that blocks the canvas, or nil.
func (c *Canvas) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.readyLocked()
	return c.err
}

// State returns the current interaction state.
func (c *Canvas) State() State {
	var st State
	c.locked(func() {
		st = State{Mode: Idle, Tool: c.tool}
		if !c.readyLocked() {
			return
		}
		st.Mode = c.mode
		switch c.mode {
		case Dragging:
			st.Anchor = c.gesture.anchor
		case TextPending:
			st.Anchor = c.pending
		}
	})
	return st
}

// Cursor returns the pointer hint for the current tool.
func (c *Canvas) Cursor() Cursor {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case !c.readyLocked():
		return CursorDefault
	case c.tool == state.ToolText:
		return CursorText
	default:
		return CursorCrosshair
	}
}

// Style returns the style applied to the next annotation.
func (c *Canvas) Style() state.Style {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.style
}

// SelectTool switches tools. A drag in progress is cancelled first.
func (c *Canvas) SelectTool(tool state.Tool) {
	c.locked(func() {
		if c.readyLocked() {
			c.abortLocked()
		}
		c.tool = tool
	})
}

// SetColor sets the color of the next annotation.
func (c *Canvas) SetColor(hex string) error {
	col, err := state.ParseColor(hex)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.style.Color = col
	c.mu.Unlock()
	return nil
}

// SetStrokeSize sets the stroke size of the next annotation.
func (c *Canvas) SetStrokeSize(n int) error {
	if n < 1 {
		return fmt.Errorf("%w: stroke size %d", state.ErrInvalidGeometry, n)
	}
	c.mu.Lock()
	c.style.StrokeSize = n
	c.mu.Unlock()
	return nil
}

func checkPoint(p state.Point) error {
	if !p.Finite() {
		return fmt.Errorf("%w: point %v", state.ErrInvalidGeometry, p)
	}
	return nil
}

// PointerDown starts a shape gesture at p. It is a no-op for the text tool.
func (c *Canvas) PointerDown(p state.Point) error {
	if err := checkPoint(p); err != nil {
		return err
	}
	var err error
	c.locked(func() {
		if !c.readyLocked() {
			err = ErrNotReady
			return
		}
		if c.tool == state.ToolText || c.mode != ToolSelected {
			return
		}
		before := cloneRGBA(c.working)
		c.history.Push(history.Snapshot{Pixels: before, Count: c.store.Len()})
		c.gesture = &gesture{tool: c.tool, anchor: p, end: p, style: c.style, before: before}
		c.mode = Dragging
	})
	return err
}

// PointerMove redraws the preview of the shape being dragged.
func (c *Canvas) PointerMove(p state.Point) error {
	if err := checkPoint(p); err != nil {
		return err
	}
	var err error
	c.locked(func() {
		if !c.readyLocked() {
			err = ErrNotReady
			return
		}
		if c.mode != Dragging {
			return
		}
		g := c.gesture
		g.end = p
		copy(c.working.Pix, g.before.Pix)
		preview := state.NewShape(g.tool, g.anchor, g.end, g.style, c.now())
		if derr := c.renderer.Draw(c.working, preview, render.PreviewOpacity); derr != nil {
			c.logger.Warn("canvas: preview not drawn", "error", derr)
		}
	})
	return err
}

// PointerUp commits the dragged shape ending at p.
func (c *Canvas) PointerUp(p state.Point) error {
	if err := checkPoint(p); err != nil {
		return err
	}
	var err error
	c.locked(func() {
		if !c.readyLocked() {
			err = ErrNotReady
			return
		}
		if c.mode != Dragging {
			return
		}
		g := c.gesture
		a := state.NewShape(g.tool, g.anchor, p, g.style, c.now())
		copy(c.working.Pix, g.before.Pix)
		c.gesture = nil
		c.mode = ToolSelected
		err = c.commitLocked(a)
	})
	return err
}

// Click places a text label at p when the text tool is active. With a Prompter
// the text is requested immediately; otherwise the canvas waits in TextPending.
// Empty or cancelled text creates nothing.
func (c *Canvas) Click(p state.Point) error {
	if err := checkPoint(p); err != nil {
		return err
	}
	var err error
	var ask bool
	c.locked(func() {
		if !c.readyLocked() {
			err = ErrNotReady
			return
		}
		if c.tool != state.ToolText || c.mode != ToolSelected {
			return
		}
		c.mode = TextPending
		c.pending = p
		ask = c.prompter != nil
	})
	if err != nil || !ask {
		return err
	}
	text, ok := c.prompter.PromptText(p)
	if !ok {
		c.CancelText()
		return nil
	}
	return c.PlaceText(text)
}

// PlaceText completes a pending text label.
func (c *Canvas) PlaceText(text string) error {
	var err error
	c.locked(func() {
		if !c.readyLocked() {
			err = ErrNotReady
			return
		}
		if c.mode != TextPending {
			return
		}
		c.mode = ToolSelected
		if strings.TrimSpace(text) == "" {
			return
		}
		err = c.commitLocked(state.Text{
			X:          c.pending.X,
			Y:          c.pending.Y,
			Text:       text,
			Color:      c.style.Color,
			StrokeSize: c.style.StrokeSize,
			CreatedAt:  c.now(),
		})
	})
	return err
}

// CancelText abandons a pending text label.
func (c *Canvas) CancelText() {
	c.locked(func() {
		if c.mode == TextPending {
			c.mode = ToolSelected
		}
	})
}

// Cancel aborts the gesture in progress and restores the image from before it
// started. It reports whether anything was aborted.
func (c *Canvas) Cancel() bool {
	var ok bool
	c.locked(func() {
		if c.readyLocked() {
			ok = c.abortLocked()
		}
	})
	return ok
}

func (c *Canvas) abortLocked() bool {
	switch c.mode {
	case Dragging:
		g := c.gesture
		copy(c.working.Pix, g.before.Pix)
		if top, ok := c.history.Peek(); ok && top.Pixels == g.before {
			c.history.Pop()
		}
		c.gesture = nil
		c.mode = ToolSelected
		c.metrics.RecordCancel()
		return true
	case TextPending:
		c.mode = ToolSelected
		return true
	}
	return false
}

func (c *Canvas) commitLocked(a state.Annotation) error {
	if err := c.store.Append(a); err != nil {
		return err
	}
	if err := c.renderer.Draw(c.working, a, 1); err != nil {
		c.logger.Warn("canvas: committed annotation not drawn", "kind", a.Kind(), "error", err)
	}
	c.gen++
	c.metrics.RecordCommit(a.Kind().String())
	c.publish(state.Op{Type: state.OpAppend, Annotation: a})
	return nil
}

// Undo removes the most recent annotation and reports whether there was one.
// A gesture in progress is cancelled first.
func (c *Canvas) Undo() bool {
	var ok bool
	c.locked(func() {
		if !c.readyLocked() {
			return
		}
		c.abortLocked()
		if _, ok = c.store.RemoveLast(); !ok {
			return
		}
		n := c.store.Len()
		c.history.DiscardAbove(n)
		switch px, hit := c.history.Lookup(n); {
		case n == 0:
			copy(c.working.Pix, c.base.Pixels.Pix)
			c.history.Clear()
		case hit:
			copy(c.working.Pix, px.Pix)
		default:
			c.replayLocked()
		}
		c.gen++
		c.metrics.RecordUndo()
		c.publish(state.Op{Type: state.OpUndo})
	})
	return ok
}

// LoadAnnotations replaces every annotation and redraws from the base image.
// Before the image is ready the list is kept and applied once it is.
// Annotations with missing or non-finite geometry are logged and dropped.
func (c *Canvas) LoadAnnotations(list []state.Annotation) error {
	list = c.usable(list)
	c.locked(func() {
		if !c.readyLocked() {
			c.queued = append([]state.Annotation(nil), list...)
			c.hasQueue = true
			return
		}
		c.replaceLocked(list)
	})
	return nil
}

func (c *Canvas) usable(list []state.Annotation) []state.Annotation {
	out := make([]state.Annotation, 0, len(list))
	for i, a := range list {
		if a == nil || !a.Finite() {
			c.logger.Warn("canvas: dropping malformed annotation", "screen", c.screenID, "index", i, "error", state.ErrInvalidGeometry)
			continue
		}
		out = append(out, a)
	}
	return out
}

func (c *Canvas) replaceLocked(list []state.Annotation) {
	c.abortLocked()
	c.store.ReplaceAll(list)
	c.history.Clear()
	c.replayLocked()
	c.gen++
	c.publish(state.Op{Type: state.OpReplace, Annotations: c.store.ToArray()})
}

func (c *Canvas) replayLocked() {
	start := time.Now()
	copy(c.working.Pix, c.base.Pixels.Pix)
	c.renderer.DrawAll(c.working, c.store.ToArray())
	c.metrics.ObserveReplay(time.Since(start))
}

// Annotations returns the committed annotations in order.
func (c *Canvas) Annotations() []state.Annotation {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.readyLocked() && c.hasQueue {
		return append([]state.Annotation(nil), c.queued...)
	}
	return c.store.ToArray()
}

// Len returns the number of committed annotations, or of the queued ones
// while the image is still loading.
func (c *Canvas) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.readyLocked() && c.hasQueue {
		return len(c.queued)
	}
	return c.store.Len()
}

// View returns a copy of what the host should display, including the preview of
// a shape being dragged. It is nil until the image is ready.
func (c *Canvas) View() *image.RGBA {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.readyLocked() {
		return nil
	}
	return cloneRGBA(c.working)
}

// Size returns the image dimensions, or zero before the image is ready.
func (c *Canvas) Size() (w, h int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.readyLocked() {
		return 0, 0
	}
	return c.base.Width, c.base.Height
}

// ExportRenderedImage returns the base image with every committed annotation
// drawn on it. A preview in progress is not included.
func (c *Canvas) ExportRenderedImage() (*image.RGBA, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.readyLocked() {
		return nil, ErrNotReady
	}
	return cloneRGBA(c.committedLocked()), nil
}

func (c *Canvas) committedLocked() *image.RGBA {
	if c.gesture != nil {
		return c.gesture.before
	}
	return c.working
}

// SetMetadata replaces the screen metadata written by the next save.
func (c *Canvas) SetMetadata(m storage.Metadata) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.meta = m
	c.gen++
}

func (c *Canvas) Metadata() storage.Metadata {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.meta
}

// Dirty reports whether there are changes not yet saved successfully.
func (c *Canvas) Dirty() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen != c.savedGen
}

// HandleShortcut runs a keyboard command and reports whether it did anything.
// Saves run in the background; their result goes to the save hook.
func (c *Canvas) HandleShortcut(s Shortcut) bool {
	switch s {
	case ShortcutUndo:
		return c.Undo()
	case ShortcutCancel:
		return c.Cancel()
	case ShortcutSave:
		if c.gateway == nil {
			return false
		}
		c.SaveAsync(context.Background())
		return true
	}
	return false
}

// Close stops the save worker after the queued saves finished.
func (c *Canvas) Close() error {
	c.saver.close()
	return nil
}

func cloneRGBA(src *image.RGBA) *image.RGBA {
	out := image.NewRGBA(src.Rect)
	copy(out.Pix, src.Pix)
	return out
}
