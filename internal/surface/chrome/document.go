package chrome

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/go-rod/rod"
	"github.com/rs/zerolog"
	"github.com/stemsi/problem-bridge/internal/form"
	"github.com/stemsi/problem-bridge/internal/surface"
)

// Document is the instrumented document of the tab. Reads go to the live page.
type Document struct {
	page    *rod.Page
	marker  string
	log     zerolog.Logger
	prepare bool
	typeset bool

	mu       sync.Mutex
	forms    map[string]*Form
	typesets []func()
}

var _ surface.Document = (*Document)(nil)

func (d *Document) withCapabilities() surface.Document {
	var p surface.Preparer
	if d.prepare {
		p = preparer{d}
	}
	var ts surface.Typesetter
	if d.typeset {
		ts = typesetter{d}
	}
	return surface.Compose(d, p, ts)
}

// Form implements surface.Document.
func (d *Document) Form(id string) (surface.Form, bool) {
	d.mu.Lock()
	if f, ok := d.forms[id]; ok {
		d.mu.Unlock()
		return f, true
	}
	d.mu.Unlock()

	res, err := d.page.Eval(actionJS, id)
	if err != nil {
		d.log.Debug().Err(err).Str("form_id", id).Msg("Form lookup failed")
		return nil, false
	}
	if res.Value.Nil() {
		return nil, false
	}

	f := &Form{doc: d, id: id, action: res.Value.Str(), handlers: map[int]func(surface.Event){}}
	d.mu.Lock()
	d.forms[id] = f
	d.mu.Unlock()
	return f, true
}

// ContentHeight implements surface.Document.
func (d *Document) ContentHeight() int {
	res, err := d.page.Eval(heightJS)
	if err != nil {
		d.log.Debug().Err(err).Msg("Height measure failed")
		return 0
	}
	return res.Value.Int()
}

func (d *Document) dispatch(formID string, kind surface.EventKind) {
	d.mu.Lock()
	f, ok := d.forms[formID]
	d.mu.Unlock()
	if ok {
		f.dispatch(kind)
	}
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

type preparer struct{ d *Document }

// PrepareSubmit runs the renderer's submitAction hook in the page.
func (p preparer) PrepareSubmit(ctx context.Context) error {
	_, err := p.d.page.Context(ctx).Eval(prepareJS)
	return err
}

type typesetter struct{ d *Document }

func (t typesetter) OnTypesetDone(fn func()) {
	t.d.mu.Lock()
	t.d.typesets = append(t.d.typesets, fn)
	t.d.mu.Unlock()
}

// Form is a form of the live page.
type Form struct {
	doc    *Document
	id     string
	action string

	mu       sync.Mutex
	handlers map[int]func(surface.Event)
	nextID   int
}

var _ surface.Form = (*Form)(nil)

func (f *Form) ID() string     { return f.id }
func (f *Form) Action() string { return f.action }

// Entries harvests the form through FormData.
func (f *Form) Entries() form.Entries {
	res, err := f.doc.page.Eval(entriesJS, f.id)
	if err != nil {
		f.doc.log.Warn().Err(err).Str("form_id", f.id).Msg("Failed to read form data")
		return nil
	}
	var entries form.Entries
	if err := json.Unmarshal([]byte(res.Value.Str()), &entries); err != nil {
		f.doc.log.Warn().Err(err).Str("form_id", f.id).Msg("Failed to decode form data")
		return nil
	}
	return entries
}

// Activated returns the control carrying the marker class.
func (f *Form) Activated() (form.Control, bool) {
	res, err := f.doc.page.Eval(activatedJS, f.id, f.doc.marker)
	if err != nil || res.Value.Str() == "" {
		return form.Control{}, false
	}
	var c form.Control
	if err := json.Unmarshal([]byte(res.Value.Str()), &c); err != nil {
		return form.Control{}, false
	}
	return c, true
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
