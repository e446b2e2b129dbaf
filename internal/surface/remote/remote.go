// Package remote is a surface living in a browser on the other end of a
// WebSocket. The server sends renders; the browser reports loads, resizes,
// typesetting and form events back, each tagged with the revision it belongs to.
//
// The browser runs the renderer's submitAction hook itself before it reports
// form entries, so documents of this surface never expose surface.Preparer.
package remote

import (
	"errors"
	"sync"

	"github.com/rs/zerolog"
	"github.com/stemsi/problem-bridge/internal/form"
	"github.com/stemsi/problem-bridge/internal/surface"
)

var (
	ErrStaleRevision = errors.New("event belongs to a superseded render")
	ErrUnknownForm   = errors.New("form not found in loaded document")
)

// RenderFunc delivers a render to the browser.
type RenderFunc func(rev uint64, html string) error

// FormState is a form as last reported by the browser.
type FormState struct {
	ID      string
	Action  string
	Entries form.Entries
}

// Surface mirrors the browser's sandboxed document.
type Surface struct {
	render RenderFunc
	log    zerolog.Logger

	mu     sync.Mutex
	onLoad surface.LoadFunc
	rev    uint64
	doc    *Document
}

var _ surface.Surface = (*Surface)(nil)

// New creates a Surface delivering renders through render.
func New(render RenderFunc, log zerolog.Logger) *Surface {
	return &Surface{render: render, log: log.With().Str("component", "remote_surface").Logger()}
}

// OnLoad registers the load callback.
func (s *Surface) OnLoad(fn surface.LoadFunc) {
	s.mu.Lock()
	s.onLoad = fn
	s.mu.Unlock()
}

// Show sends html to the browser. The previous document stops accepting events.
func (s *Surface) Show(rev uint64, html string) {
	s.mu.Lock()
	s.rev = rev
	s.doc = nil
	s.mu.Unlock()

	if err := s.render(rev, html); err != nil {
		s.log.Warn().Err(err).Uint64("rev", rev).Msg("Failed to deliver render")
	}
}

// HandleLoaded records the document the browser loaded under rev and reports
// it to the load callback.
func (s *Surface) HandleLoaded(rev uint64, height int, forms []FormState, typeset bool) error {
	doc := &Document{height: height, forms: make(map[string]*Form, len(forms))}
	for _, fs := range forms {
		doc.forms[fs.ID] = &Form{id: fs.ID, action: fs.Action, entries: fs.Entries, handlers: map[int]func(surface.Event){}}
	}

	s.mu.Lock()
	if rev != s.rev {
		s.mu.Unlock()
		return ErrStaleRevision
	}
	s.doc = doc
	fn := s.onLoad
	s.mu.Unlock()

	if fn == nil {
		return nil
	}
	var ts surface.Typesetter
	if typeset {
		ts = typesetter{doc}
	}
	fn(rev, surface.Compose(doc, nil, ts))
	return nil
}

// HandleResize updates the content height of the current document.
func (s *Surface) HandleResize(rev uint64, height int) error {
	doc, err := s.current(rev)
	if err != nil {
		return err
	}
	doc.setHeight(height)
	return nil
}

// HandleTypesetDone updates the height and completes the typesetting pass.
func (s *Surface) HandleTypesetDone(rev uint64, height int) error {
	doc, err := s.current(rev)
	if err != nil {
		return err
	}
	doc.setHeight(height)
	doc.completeTypeset()
	return nil
}

// HandleInput records the form's entries and dispatches an input event.
func (s *Surface) HandleInput(rev uint64, formID string, entries form.Entries) error {
	f, err := s.form(rev, formID)
	if err != nil {
		return err
	}
	f.update(entries, nil)
	f.dispatch(surface.EventInput)
	return nil
}

// HandleSubmit records the entries and the activated control, then dispatches
// a submit event. activated is nil when no control carried the marker.
func (s *Surface) HandleSubmit(rev uint64, formID string, entries form.Entries, activated *form.Control) error {
	f, err := s.form(rev, formID)
	if err != nil {
		return err
	}
	f.update(entries, activated)
	f.dispatch(surface.EventSubmit)
	return nil
}

func (s *Surface) current(rev uint64) (*Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rev != s.rev || s.doc == nil {
		return nil, ErrStaleRevision
	}
	return s.doc, nil
}

func (s *Surface) form(rev uint64, id string) (*Form, error) {
	doc, err := s.current(rev)
	if err != nil {
		return nil, err
	}
	f, ok := doc.forms[id]
	if !ok {
		return nil, ErrUnknownForm
	}
	return f, nil
}
