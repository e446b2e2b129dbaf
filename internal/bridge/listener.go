package bridge

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
	"github.com/stemsi/problem-bridge/internal/form"
	"github.com/stemsi/problem-bridge/internal/model"
	"github.com/stemsi/problem-bridge/internal/surface"
)

// DefaultFormID is the id of the renderer's problem form.
const DefaultFormID = "problemMainForm"

// Target is an attached problem form, bound to the context epoch it was
// attached under.
type Target struct {
	Epoch   uint64
	Context model.SubmissionContext

	doc  surface.Document
	form surface.Form
}

// Form returns the attached form.
func (t *Target) Form() surface.Form { return t.form }

func (t *Target) prepare(ctx context.Context) error {
	if p, ok := t.doc.(surface.Preparer); ok {
		return p.PrepareSubmit(ctx)
	}
	return nil
}

// Snapshot runs the document's preparation hook, if any, and harvests the form.
func (t *Target) Snapshot(ctx context.Context) (form.Snapshot, error) {
	if err := t.prepare(ctx); err != nil {
		return form.Snapshot{}, err
	}
	return t.form.Entries().Snapshot(), nil
}

// SubmitEntries prepares the form and returns its encoding with the activated
// control's pair set.
func (t *Target) SubmitEntries(ctx context.Context, activated form.Control) (form.Entries, error) {
	if err := t.prepare(ctx); err != nil {
		return nil, err
	}
	return t.form.Entries().Set(activated.Name, activated.Value), nil
}

// Handler receives the events of an attached form. activated is nil when no
// control carries the marker.
type Handler interface {
	Input(t *Target)
	Submit(t *Target, activated *form.Control)
}

// Listener attaches a Handler to the problem form of a loaded document. At
// most one form is observed at a time.
type Listener struct {
	formID string
	log    zerolog.Logger

	mu     sync.Mutex
	target *Target
	detach func()
}

// NewListener creates a Listener for the form with the given id.
func NewListener(formID string, log zerolog.Logger) *Listener {
	if formID == "" {
		formID = DefaultFormID
	}
	return &Listener{formID: formID, log: log}
}

// Attach observes the problem form in doc. It returns false when the form is
// absent, which is expected while the surface is blank.
func (l *Listener) Attach(doc surface.Document, epoch uint64, sc model.SubmissionContext, h Handler) bool {
	l.Detach()

	f, ok := doc.Form(l.formID)
	if !ok {
		l.log.Debug().
			Str("kind", string(KindAttachmentMiss)).
			Str("form_id", l.formID).
			Int("problem_id", sc.ProblemID).
			Msg("Problem form not found in surface")
		return false
	}

	t := &Target{Epoch: epoch, Context: sc, doc: doc, form: f}
	detach := f.Observe(func(e surface.Event) {
		switch e.Kind {
		case surface.EventInput:
			h.Input(t)
		case surface.EventSubmit:
			var activated *form.Control
			if c, ok := f.Activated(); ok {
				activated = &c
			}
			h.Submit(t, activated)
		}
	})

	l.mu.Lock()
	l.target = t
	l.detach = detach
	l.mu.Unlock()
	return true
}

// Detach stops observing the current form, if any.
func (l *Listener) Detach() {
	l.mu.Lock()
	detach := l.detach
	l.detach = nil
	l.target = nil
	l.mu.Unlock()

	if detach != nil {
		detach()
	}
}

// Attached returns the current target, or nil.
func (l *Listener) Attached() *Target {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.target
}
