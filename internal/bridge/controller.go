// Package bridge synchronizes a problem form living inside a sandboxed surface
// with the course backend. A Controller owns the render state of one bridge
// instance; its Listener attaches to the loaded form and its Dispatcher turns
// form events into debounced save and submit calls.
package bridge

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/problem-bridge/internal/backend"
	"github.com/stemsi/problem-bridge/internal/debounce"
	"github.com/stemsi/problem-bridge/internal/form"
	"github.com/stemsi/problem-bridge/internal/model"
	"github.com/stemsi/problem-bridge/internal/surface"
)

// MinHeightPx is the smallest height the surface is displayed at.
const MinHeightPx = 350

// Backend is the subset of the course backend the bridge calls.
type Backend interface {
	Render(ctx context.Context, problemID int, p backend.RenderParams) (string, error)
	SaveState(ctx context.Context, gradeID int, state form.Snapshot) (model.SaveResult, error)
	Submit(ctx context.Context, problemID int, entries form.Entries) (model.SubmitResult, error)
}

// Page is the surrounding page. Calls are made without the controller's lock
// held and may arrive out of order; BridgeSnapshot.Version orders them.
type Page interface {
	StateChanged(s model.BridgeSnapshot)
	GradeChanged(g model.StudentGrade)
}

// Config tunes a Controller. Zero values fall back to defaults.
type Config struct {
	FormID     string
	SaveWait   time.Duration
	SubmitWait time.Duration
	MinHeight  int
	Clock      debounce.Clock
	// Go runs backend calls issued by the dispatcher. Defaults to a new goroutine.
	Go       func(func())
	Activity ActivitySink
	// SessionID and UserID tag journaled activity.
	SessionID uuid.UUID
	UserID    int
	Logger    zerolog.Logger
}

func (c *Config) defaults() {
	if c.FormID == "" {
		c.FormID = DefaultFormID
	}
	if c.SaveWait <= 0 {
		c.SaveWait = DefaultSaveWait
	}
	if c.SubmitWait <= 0 {
		c.SubmitWait = DefaultSubmitWait
	}
	if c.MinHeight <= 0 {
		c.MinHeight = MinHeightPx
	}
	if c.Clock == nil {
		c.Clock = debounce.System
	}
	if c.Go == nil {
		c.Go = func(f func()) { go f() }
	}
}

// Controller owns the render state and submission context of one bridge
// instance. All state changes go through it.
type Controller struct {
	cfg        Config
	backend    Backend
	surface    surface.Surface
	page       Page
	listener   *Listener
	dispatcher *Dispatcher
	activity   *activityLog
	log        zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	// showMu orders Show calls; a render older than the last shown one is dropped.
	showMu sync.Mutex
	shown  uint64

	mu            sync.Mutex
	epoch         uint64
	rev           uint64
	sc            model.SubmissionContext
	active        bool
	phase         model.Phase
	state         model.RenderSurfaceState
	lastSaved     *time.Time
	lastSubmitted *time.Time
	version       uint64
}

var _ host = (*Controller)(nil)

// New wires a Controller to its surface. ctx bounds every backend call; Close
// cancels it.
func New(ctx context.Context, b Backend, s surface.Surface, p Page, cfg Config) *Controller {
	cfg.defaults()
	ctx, cancel := context.WithCancel(ctx)
	log := cfg.Logger.With().Str("component", "bridge").Logger()

	c := &Controller{
		cfg:     cfg,
		backend: b,
		surface: s,
		page:    p,
		log:     log,
		ctx:     ctx,
		cancel:  cancel,
		phase:   model.PhaseIdle,
	}
	c.activity = &activityLog{
		ctx:       ctx,
		sink:      cfg.Activity,
		sessionID: cfg.SessionID,
		userID:    cfg.UserID,
		clock:     cfg.Clock,
		log:       log,
	}
	c.listener = NewListener(cfg.FormID, log)
	c.dispatcher = newDispatcher(ctx, b, c, cfg, c.activity, log)

	s.OnLoad(c.SurfaceLoaded)
	return c
}

// SetContext makes sc the active submission context and loads its problem.
// Pending saves and submits of the previous context are cancelled. It blocks
// until the render fetch resolves and returns ErrSuperseded when another
// context took over meanwhile; that result is discarded.
func (c *Controller) SetContext(sc model.SubmissionContext) error {
	c.mu.Lock()
	c.listener.Detach()
	c.epoch++
	epoch := c.epoch
	c.dispatcher.Reset()
	c.rev++
	rev := c.rev
	if !c.active || c.sc.ProblemID != sc.ProblemID {
		c.lastSaved = nil
		c.lastSubmitted = nil
	}
	c.sc = sc
	c.active = true
	c.phase = model.PhaseLoading
	c.state = model.RenderSurfaceState{IsLoading: true, HeightPx: c.state.HeightPx}
	snap := c.publishLocked()
	c.mu.Unlock()

	c.page.StateChanged(snap)
	c.show(rev, "")

	log := c.log.With().Int("problem_id", sc.ProblemID).Uint64("epoch", epoch).Logger()
	log.Debug().Bool("readonly", sc.Readonly).Msg("Loading problem")

	html, err := c.backend.Render(c.ctx, sc.ProblemID, backend.ParamsFor(sc))

	c.mu.Lock()
	if epoch != c.epoch {
		c.mu.Unlock()
		log.Debug().Msg("Discarding stale render response")
		return ErrSuperseded
	}
	if err != nil {
		berr := newError(KindLoadFailure, err)
		c.phase = model.PhaseError
		c.state.IsLoading = false
		c.state.ErrorMessage = berr.UserMessage()
		snap = c.publishLocked()
		c.mu.Unlock()

		log.Warn().Err(err).Msg("Failed to load problem")
		c.activity.record(model.Activity{
			ProblemID: sc.ProblemID,
			GradeID:   sc.GradeID,
			Kind:      model.ActivityLoad,
			ErrorKind: string(KindLoadFailure),
		})
		c.page.StateChanged(snap)
		return berr
	}

	c.rev++
	rev = c.rev
	c.phase = model.PhaseReady
	c.state.HTMLContent = html
	snap = c.publishLocked()
	c.mu.Unlock()

	c.activity.record(model.Activity{
		ProblemID: sc.ProblemID,
		GradeID:   sc.GradeID,
		Kind:      model.ActivityLoad,
		OK:        true,
	})
	c.page.StateChanged(snap)
	c.show(rev, html)
	return nil
}

// SurfaceLoaded is called by the surface once the document shown under rev
// has loaded. Loads of superseded or blank content are ignored.
func (c *Controller) SurfaceLoaded(rev uint64, doc surface.Document) {
	c.mu.Lock()
	if rev != c.rev || c.state.HTMLContent == "" {
		c.mu.Unlock()
		c.log.Debug().Uint64("rev", rev).Msg("Ignoring surface load")
		return
	}

	if c.sc.Readonly {
		c.listener.Detach()
	} else {
		c.listener.Attach(doc, c.epoch, c.sc, c.dispatcher)
	}
	c.state.IsLoading = false
	if c.phase == model.PhaseLoading {
		c.phase = model.PhaseReady
	}
	c.measureLocked(doc.ContentHeight())
	snap := c.publishLocked()
	c.mu.Unlock()

	if ts, ok := doc.(surface.Typesetter); ok {
		ts.OnTypesetDone(func() {
			c.log.Debug().Msg("Typesetting finished, re-measuring surface")
			c.Resized(rev, doc.ContentHeight())
		})
	}
	c.page.StateChanged(snap)
}

// Resized records a new content height for the document shown under rev.
func (c *Controller) Resized(rev uint64, heightPx int) {
	c.mu.Lock()
	if rev != c.rev {
		c.mu.Unlock()
		return
	}
	before := c.state.HeightPx
	c.measureLocked(heightPx)
	if c.state.HeightPx == before {
		c.mu.Unlock()
		return
	}
	snap := c.publishLocked()
	c.mu.Unlock()

	c.page.StateChanged(snap)
}

// Snapshot returns the current state.
func (c *Controller) Snapshot() model.BridgeSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewLocked()
}

// Context returns the active submission context.
func (c *Controller) Context() (model.SubmissionContext, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sc, c.active
}

// Attached returns the form target currently observed, or nil.
func (c *Controller) Attached() *Target {
	return c.listener.Attached()
}

// Dispatcher exposes the dispatcher for inspection.
func (c *Controller) Dispatcher() *Dispatcher { return c.dispatcher }

// Close cancels pending debounces and in-flight backend calls.
func (c *Controller) Close() {
	c.dispatcher.Reset()
	c.listener.Detach()
	c.cancel()
}

// show hands html to the surface unless a newer revision was already shown.
func (c *Controller) show(rev uint64, html string) {
	c.showMu.Lock()
	defer c.showMu.Unlock()
	if rev < c.shown {
		c.log.Debug().Uint64("rev", rev).Uint64("shown", c.shown).Msg("Dropping superseded render")
		return
	}
	c.shown = rev
	c.surface.Show(rev, html)
}

func (c *Controller) current(epoch uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return epoch == c.epoch
}

func (c *Controller) saved(epoch uint64, res model.SaveResult) {
	if res.UpdatesCount <= 0 {
		return
	}

	c.mu.Lock()
	if epoch != c.epoch {
		c.mu.Unlock()
		return
	}
	now := c.cfg.Clock.Now()
	c.lastSaved = &now
	c.state.ErrorMessage = ""
	snap := c.publishLocked()
	c.mu.Unlock()

	c.page.StateChanged(snap)
}

func (c *Controller) submitted(epoch uint64, res model.SubmitResult) {
	c.mu.Lock()
	if epoch != c.epoch {
		c.mu.Unlock()
		c.log.Debug().Msg("Discarding submit response for a previous context")
		return
	}
	now := c.cfg.Clock.Now()
	c.lastSubmitted = &now
	c.state.ErrorMessage = ""
	c.state.HTMLContent = res.RenderedHTML
	c.listener.Detach()
	c.dispatcher.CancelSave()
	c.rev++
	rev := c.rev
	if res.RenderedHTML != "" {
		c.phase = model.PhaseLoading
	}
	snap := c.publishLocked()
	c.mu.Unlock()

	c.page.StateChanged(snap)
	c.page.GradeChanged(res.StudentGrade)
	c.show(rev, res.RenderedHTML)
}

func (c *Controller) failed(epoch uint64, err *Error) {
	c.mu.Lock()
	if epoch != c.epoch {
		c.mu.Unlock()
		return
	}
	c.state.ErrorMessage = err.UserMessage()
	snap := c.publishLocked()
	c.mu.Unlock()

	c.page.StateChanged(snap)
}

func (c *Controller) measureLocked(heightPx int) {
	if heightPx <= 0 {
		c.log.Debug().Msg("Surface did not report a valid height")
		return
	}
	if heightPx < c.cfg.MinHeight {
		heightPx = c.cfg.MinHeight
	}
	c.state.HeightPx = heightPx
}

// publishLocked records a state change and returns the snapshot to deliver.
func (c *Controller) publishLocked() model.BridgeSnapshot {
	c.version++
	return c.viewLocked()
}

func (c *Controller) viewLocked() model.BridgeSnapshot {
	s := model.BridgeSnapshot{
		Version: c.version,
		Phase:   c.phase,
		Surface: c.state,
	}
	if c.active {
		s.ProblemID = c.sc.ProblemID
	}
	if c.lastSaved != nil {
		t := *c.lastSaved
		s.LastSavedAt = &t
	}
	if c.lastSubmitted != nil {
		t := *c.lastSubmitted
		s.LastSubmittedAt = &t
	}
	return s
}

// IsSuperseded reports whether err only means a newer context took over.
func IsSuperseded(err error) bool {
	return errors.Is(err, ErrSuperseded)
}
