package htmldoc

import (
	"fmt"
	"strings"
	"sync"

	"github.com/stemsi/problem-bridge/internal/form"
	"github.com/stemsi/problem-bridge/internal/surface"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Form is a parsed form whose controls can be edited and clicked.
type Form struct {
	doc      *Document
	node     *html.Node
	id       string
	action   string
	controls []*control

	mu       sync.Mutex
	nextID   int
	handlers map[int]func(surface.Event)
}

var _ surface.Form = (*Form)(nil)

type control struct {
	node     *html.Node
	tag      atom.Atom
	typ      string
	name     string
	value    string
	checked  bool
	disabled bool
	multiple bool
	options  []*option
}

type option struct {
	value    string
	label    string
	selected bool
	disabled bool
}

// FieldInfo describes a named control for listing.
type FieldInfo struct {
	Name    string
	Type    string
	Value   string
	Options []string
}

func newForm(d *Document, n *html.Node) *Form {
	f := &Form{doc: d, node: n, handlers: make(map[int]func(surface.Event))}
	f.id, _ = attr(n, "id")
	f.action, _ = attr(n, "action")

	walk(n, func(c *html.Node) bool {
		if c.Type != html.ElementNode || c == n {
			return true
		}
		switch c.DataAtom {
		case atom.Input, atom.Button, atom.Textarea, atom.Select:
			f.controls = append(f.controls, parseControl(c))
			return c.DataAtom != atom.Select
		}
		return true
	})
	return f
}

func parseControl(n *html.Node) *control {
	c := &control{node: n, tag: n.DataAtom}
	c.name, _ = attr(n, "name")
	_, c.disabled = attr(n, "disabled")

	switch n.DataAtom {
	case atom.Input:
		c.typ = "text"
		if t, ok := attr(n, "type"); ok && t != "" {
			c.typ = strings.ToLower(t)
		}
		c.value, _ = attr(n, "value")
		if c.typ == "checkbox" || c.typ == "radio" {
			if _, ok := attr(n, "value"); !ok {
				c.value = "on"
			}
			_, c.checked = attr(n, "checked")
		}
	case atom.Button:
		c.typ = "submit"
		if t, ok := attr(n, "type"); ok && t != "" {
			c.typ = strings.ToLower(t)
		}
		c.value, _ = attr(n, "value")
	case atom.Textarea:
		c.typ = "textarea"
		c.value = strings.TrimPrefix(textContent(n), "\n")
	case atom.Select:
		c.typ = "select"
		_, c.multiple = attr(n, "multiple")
		walk(n, func(o *html.Node) bool {
			if o.Type == html.ElementNode && o.DataAtom == atom.Option {
				label := strings.TrimSpace(textContent(o))
				opt := &option{label: label}
				if v, ok := attr(o, "value"); ok {
					opt.value = v
				} else {
					opt.value = label
				}
				_, opt.selected = attr(o, "selected")
				_, opt.disabled = attr(o, "disabled")
				c.options = append(c.options, opt)
				return false
			}
			return true
		})
	}
	return c
}

func (c *control) submitter() bool {
	switch c.typ {
	case "submit", "image":
		return true
	}
	return false
}

// ID implements surface.Form.
func (f *Form) ID() string { return f.id }

// Action implements surface.Form.
func (f *Form) Action() string { return f.action }

// Entries implements surface.Form, following the browser's form-data rules:
// disabled and unnamed controls are skipped, unchecked boxes contribute
// nothing and buttons only contribute when they are the submitter.
func (f *Form) Entries() form.Entries {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out form.Entries
	for _, c := range f.controls {
		if c.disabled || c.name == "" {
			continue
		}
		switch c.typ {
		case "submit", "image", "button", "reset", "file":
			continue
		case "checkbox", "radio":
			if c.checked {
				out = append(out, form.Entry{Name: c.name, Value: c.value})
			}
		case "select":
			selected := false
			for _, o := range c.options {
				if o.selected && !o.disabled {
					out = append(out, form.Entry{Name: c.name, Value: o.value})
					selected = true
				}
			}
			if !selected && !c.multiple {
				for _, o := range c.options {
					if !o.disabled {
						out = append(out, form.Entry{Name: c.name, Value: o.value})
						break
					}
				}
			}
		default:
			out = append(out, form.Entry{Name: c.name, Value: c.value})
		}
	}
	return out
}

// Activated implements surface.Form.
func (f *Form) Activated() (form.Control, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, c := range f.controls {
		if c.submitter() && hasClass(c.node, f.doc.opts.Marker) {
			return form.Control{Name: c.name, Value: c.value}, true
		}
	}
	return form.Control{}, false
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

// Observed reports how many handlers are attached.
func (f *Form) Observed() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.handlers)
}

func (f *Form) dispatch(kind surface.EventKind) {
	f.mu.Lock()
	hs := make([]func(surface.Event), 0, len(f.handlers))
	for i := 0; i < f.nextID; i++ {
		if h, ok := f.handlers[i]; ok {
			hs = append(hs, h)
		}
	}
	f.mu.Unlock()

	for _, h := range hs {
		h(surface.Event{Kind: kind})
	}
}

// Fields lists the named, enabled, non-button controls.
func (f *Form) Fields() []FieldInfo {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []FieldInfo
	for _, c := range f.controls {
		if c.name == "" || c.disabled {
			continue
		}
		fi := FieldInfo{Name: c.name, Type: c.typ, Value: c.value}
		for _, o := range c.options {
			fi.Options = append(fi.Options, o.value)
		}
		out = append(out, fi)
	}
	return out
}

// SubmitControls lists the named submit buttons.
func (f *Form) SubmitControls() []form.Control {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []form.Control
	for _, c := range f.controls {
		if c.submitter() && c.name != "" && !c.disabled {
			out = append(out, form.Control{Name: c.name, Value: c.value})
		}
	}
	return out
}

// SetValue sets a text-like control or textarea, or selects a single option,
// then fires an input event.
func (f *Form) SetValue(name, value string) error {
	f.mu.Lock()
	c := f.find(name, func(c *control) bool {
		switch c.typ {
		case "checkbox", "radio", "submit", "image", "button", "reset", "file":
			return false
		}
		return true
	})
	if c == nil {
		f.mu.Unlock()
		return fmt.Errorf("htmldoc: no editable field %q", name)
	}
	if c.typ == "select" {
		found := false
		for _, o := range c.options {
			o.selected = o.value == value
			found = found || o.selected
		}
		if !found {
			f.mu.Unlock()
			return fmt.Errorf("htmldoc: %q has no option %q", name, value)
		}
	} else {
		c.value = value
	}
	f.mu.Unlock()

	f.dispatch(surface.EventInput)
	return nil
}

// Check toggles the checkbox or radio called name with the given value, then
// fires an input event. Checking a radio unchecks its group.
func (f *Form) Check(name, value string, on bool) error {
	f.mu.Lock()
	c := f.find(name, func(c *control) bool {
		return (c.typ == "checkbox" || c.typ == "radio") && c.value == value
	})
	if c == nil {
		f.mu.Unlock()
		return fmt.Errorf("htmldoc: no checkbox or radio %q=%q", name, value)
	}
	if c.typ == "radio" && on {
		for _, other := range f.controls {
			if other.typ == "radio" && other.name == name {
				other.checked = false
			}
		}
	}
	c.checked = on
	f.mu.Unlock()

	f.dispatch(surface.EventInput)
	return nil
}

// Select sets the selected options of a select control, then fires an input event.
func (f *Form) Select(name string, values ...string) error {
	f.mu.Lock()
	c := f.find(name, func(c *control) bool { return c.typ == "select" })
	if c == nil {
		f.mu.Unlock()
		return fmt.Errorf("htmldoc: no select %q", name)
	}
	if !c.multiple && len(values) > 1 {
		f.mu.Unlock()
		return fmt.Errorf("htmldoc: %q takes a single value", name)
	}
	want := make(map[string]bool, len(values))
	for _, v := range values {
		want[v] = true
	}
	for _, o := range c.options {
		o.selected = want[o.value]
	}
	f.mu.Unlock()

	f.dispatch(surface.EventInput)
	return nil
}

// Click activates the submit control called name: it moves the marker class
// onto that control and fires a submit event.
func (f *Form) Click(name string) error {
	f.mu.Lock()
	target := f.find(name, (*control).submitter)
	if target == nil {
		f.mu.Unlock()
		return fmt.Errorf("htmldoc: no submit control %q", name)
	}
	for _, c := range f.controls {
		removeClass(c.node, f.doc.opts.Marker)
	}
	addClass(target.node, f.doc.opts.Marker)
	f.mu.Unlock()

	f.dispatch(surface.EventSubmit)
	return nil
}

// SubmitWithoutMarker fires a submit event with no control marked, as a
// synthetic submit would.
func (f *Form) SubmitWithoutMarker() {
	f.mu.Lock()
	for _, c := range f.controls {
		removeClass(c.node, f.doc.opts.Marker)
	}
	f.mu.Unlock()

	f.dispatch(surface.EventSubmit)
}

// SetHidden assigns a control's value without firing an event. Renderer
// preparation hooks use it.
func (f *Form) SetHidden(name, value string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c := f.find(name, func(*control) bool { return true }); c != nil {
		c.value = value
	}
}

func (f *Form) find(name string, match func(*control) bool) *control {
	for _, c := range f.controls {
		if c.name == name && !c.disabled && match(c) {
			return c
		}
	}
	return nil
}
