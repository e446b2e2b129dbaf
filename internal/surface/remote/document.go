package remote

import (
	"sync"

	"github.com/stemsi/problem-bridge/internal/form"
	"github.com/stemsi/problem-bridge/internal/surface"
)

// Document is the server-side view of a loaded browser document.
type Document struct {
	forms map[string]*Form

	mu       sync.Mutex
	height   int
	typesets []func()
}

var _ surface.Document = (*Document)(nil)

// Form implements surface.Document.
func (d *Document) Form(id string) (surface.Form, bool) {
	f, ok := d.forms[id]
	if !ok {
		return nil, false
	}
	return f, true
}

// ContentHeight implements surface.Document.
func (d *Document) ContentHeight() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.height
}

func (d *Document) setHeight(px int) {
	d.mu.Lock()
	d.height = px
	d.mu.Unlock()
}

func (d *Document) completeTypeset() {
	d.mu.Lock()
	fns := d.typesets
	d.typesets = nil
	d.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

type typesetter struct{ d *Document }

func (t typesetter) OnTypesetDone(fn func()) {
	t.d.mu.Lock()
	t.d.typesets = append(t.d.typesets, fn)
	t.d.mu.Unlock()
}

// Form is a browser form as last reported.
type Form struct {
	id     string
	action string

	mu        sync.Mutex
	entries   form.Entries
	activated *form.Control
	handlers  map[int]func(surface.Event)
	nextID    int
}

var _ surface.Form = (*Form)(nil)

func (f *Form) ID() string     { return f.id }
func (f *Form) Action() string { return f.action }

// Entries returns the encoding reported with the latest event.
func (f *Form) Entries() form.Entries {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(form.Entries, len(f.entries))
	copy(out, f.entries)
	return out
}

// Activated returns the control the browser found carrying the marker.
func (f *Form) Activated() (form.Control, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.activated == nil {
		return form.Control{}, false
	}
	return *f.activated, true
}

// Observe implements surface.Form.
func (f *Form) Observe(handler func(surface.Event)) func() {
	f.mu.Lock()
	id := f.nextID
	f.nextID++
	f.handlers[id] = handler
	f.mu.Unlock()

	return func() {
		f.mu.Lock()
		delete(f.handlers, id)
		f.mu.Unlock()
	}
}

func (f *Form) update(entries form.Entries, activated *form.Control) {
	f.mu.Lock()
	f.entries = entries
	f.activated = activated
	f.mu.Unlock()
}

func (f *Form) dispatch(kind surface.EventKind) {
	f.mu.Lock()
	handlers := make([]func(surface.Event), 0, len(f.handlers))
	for _, h := range f.handlers {
		handlers = append(handlers, h)
	}
	f.mu.Unlock()

	for _, h := range handlers {
		h(surface.Event{Kind: kind})
	}
}
