// Package surface describes the sandboxed document a problem is rendered into
// and the contract the bridge relies on inside it.
//
// A surface shows renderer HTML and reports back, asynchronously, once the
// document has finished loading. The loaded Document exposes the renderer form
// by id. Inside that form the renderer (or the host script) tags the submit
// control activated last with a marker class before the submit event fires;
// Form.Activated resolves the control through that marker only.
//
// Documents may additionally implement Preparer and Typesetter. Callers check
// for them with type assertions.
package surface

import (
	"context"

	"github.com/stemsi/problem-bridge/internal/form"
)

// EventKind distinguishes form events.
type EventKind string

const (
	EventInput  EventKind = "input"
	EventSubmit EventKind = "submit"
)

// Event is a form event observed inside the surface.
type Event struct {
	Kind EventKind
}

// Form is the renderer form inside a loaded document.
type Form interface {
	ID() string
	// Action is the form's action attribute; empty when absent.
	Action() string
	// Entries returns the current form encoding.
	Entries() form.Entries
	// Activated returns the control carrying the marker class.
	Activated() (form.Control, bool)
	// Observe registers handler for input and submit events. The returned
	// function detaches it.
	Observe(handler func(Event)) (detach func())
}

// Document is a loaded surface document.
type Document interface {
	// Form finds a form by element id.
	Form(id string) (Form, bool)
	// ContentHeight is the document body's scroll height in pixels; 0 when unknown.
	ContentHeight() int
}

// Preparer is implemented by documents whose renderer ships a preparation hook
// that must run before form data is harvested.
type Preparer interface {
	PrepareSubmit(ctx context.Context) error
}

// Typesetter is implemented by documents running an asynchronous math
// typesetting pass. fn is called once when it completes.
type Typesetter interface {
	OnTypesetDone(fn func())
}

// LoadFunc receives a loaded document together with the revision it was shown under.
type LoadFunc func(rev uint64, doc Document)

// Surface hosts documents. Show replaces the content and must eventually call
// the registered LoadFunc with the same revision, unless superseded.
type Surface interface {
	Show(rev uint64, html string)
	OnLoad(fn LoadFunc)
}
