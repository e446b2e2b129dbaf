// Package htmldoc is an in-process surface. Renderer HTML is parsed with
// golang.org/x/net/html and its forms can be driven programmatically, which is
// what the CLI and the tests do instead of a browser.
package htmldoc

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/stemsi/problem-bridge/internal/surface"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// DefaultMarker is the marker class the renderer uses for the clicked control.
const DefaultMarker = "btn-clicked"

// Options configure the documents a Surface produces.
type Options struct {
	// Marker is the class tagging the activated submit control.
	Marker string
	// Height is reported as the content height of every loaded document.
	Height int
	// Prepare, when set, is exposed as the document's Preparer capability.
	Prepare func(f *Form) error
	// Typeset exposes a Typesetter capability completed by Document.CompleteTypeset.
	Typeset bool
}

// Surface shows documents synchronously: Show parses and reports the load
// before returning.
type Surface struct {
	mu     sync.Mutex
	opts   Options
	onLoad surface.LoadFunc
	doc    *Document
	rev    uint64
}

var _ surface.Surface = (*Surface)(nil)

// New creates a Surface.
func New(opts Options) *Surface {
	if opts.Marker == "" {
		opts.Marker = DefaultMarker
	}
	return &Surface{opts: opts}
}

// OnLoad registers the load callback.
func (s *Surface) OnLoad(fn surface.LoadFunc) {
	s.mu.Lock()
	s.onLoad = fn
	s.mu.Unlock()
}

// Show parses content and reports it loaded. Unparseable content loads as a
// blank document, which is what a browser would show.
func (s *Surface) Show(rev uint64, content string) {
	doc, err := Parse(content, s.opts)
	if err != nil {
		doc = blank(s.opts)
	}

	s.mu.Lock()
	s.doc = doc
	s.rev = rev
	fn := s.onLoad
	s.mu.Unlock()

	if fn != nil {
		fn(rev, doc.withCapabilities())
	}
}

// Current returns the last shown document and its revision.
func (s *Surface) Current() (*Document, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc, s.rev
}

// Document is a parsed renderer page.
type Document struct {
	mu       sync.Mutex
	root     *html.Node
	opts     Options
	forms    []*Form
	height   int
	typesets []func()
}

var _ surface.Document = (*Document)(nil)

// Parse builds a Document from renderer HTML.
func Parse(content string, opts Options) (*Document, error) {
	root, err := html.Parse(strings.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	if opts.Marker == "" {
		opts.Marker = DefaultMarker
	}

	d := &Document{root: root, opts: opts, height: opts.Height}
	walk(root, func(n *html.Node) bool {
		if n.Type == html.ElementNode && n.DataAtom == atom.Form {
			d.forms = append(d.forms, newForm(d, n))
			return false
		}
		return true
	})
	return d, nil
}

func blank(opts Options) *Document {
	return &Document{opts: opts, height: opts.Height}
}

func (d *Document) withCapabilities() surface.Document {
	var p surface.Preparer
	if d.opts.Prepare != nil {
		p = preparer{d}
	}
	var ts surface.Typesetter
	if d.opts.Typeset {
		ts = typesetter{d}
	}
	return surface.Compose(d, p, ts)
}

// Form implements surface.Document.
func (d *Document) Form(id string) (surface.Form, bool) {
	f := d.HTMLForm(id)
	if f == nil {
		return nil, false
	}
	return f, true
}

// HTMLForm returns the concrete form with the given id, or nil.
func (d *Document) HTMLForm(id string) *Form {
	for _, f := range d.forms {
		if f.id == id {
			return f
		}
	}
	return nil
}

// ContentHeight implements surface.Document.
func (d *Document) ContentHeight() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.height
}

// SetHeight changes the reported content height, as a layout pass would.
func (d *Document) SetHeight(px int) {
	d.mu.Lock()
	d.height = px
	d.mu.Unlock()
}

// Text returns the visible text of the document with whitespace collapsed.
func (d *Document) Text() string {
	if d.root == nil {
		return ""
	}
	var b strings.Builder
	walk(d.root, func(n *html.Node) bool {
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Script, atom.Style, atom.Head:
				return false
			}
		}
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteByte(' ')
		}
		return true
	})
	return strings.Join(strings.Fields(b.String()), " ")
}

// CompleteTypeset runs the callbacks registered through the Typesetter capability.
func (d *Document) CompleteTypeset() {
	d.mu.Lock()
	fns := d.typesets
	d.typesets = nil
	d.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

type preparer struct{ d *Document }

func (p preparer) PrepareSubmit(ctx context.Context) error {
	for _, f := range p.d.forms {
		if err := p.d.opts.Prepare(f); err != nil {
			return err
		}
	}
	return nil
}

type typesetter struct{ d *Document }

func (t typesetter) OnTypesetDone(fn func()) {
	t.d.mu.Lock()
	t.d.typesets = append(t.d.typesets, fn)
	t.d.mu.Unlock()
}

// walk visits n and its descendants depth first. visit returns false to skip children.
func walk(n *html.Node, visit func(*html.Node) bool) {
	if !visit(n) {
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, visit)
	}
}

func attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func setAttr(n *html.Node, key, val string) {
	for i, a := range n.Attr {
		if a.Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

func hasClass(n *html.Node, class string) bool {
	v, _ := attr(n, "class")
	for _, c := range strings.Fields(v) {
		if c == class {
			return true
		}
	}
	return false
}

func removeClass(n *html.Node, class string) {
	v, ok := attr(n, "class")
	if !ok {
		return
	}
	kept := make([]string, 0, 2)
	for _, c := range strings.Fields(v) {
		if c != class {
			kept = append(kept, c)
		}
	}
	setAttr(n, "class", strings.Join(kept, " "))
}

func addClass(n *html.Node, class string) {
	if hasClass(n, class) {
		return
	}
	v, _ := attr(n, "class")
	setAttr(n, "class", strings.TrimSpace(v+" "+class))
}

func textContent(n *html.Node) string {
	var b strings.Builder
	walk(n, func(c *html.Node) bool {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
		}
		return true
	})
	return b.String()
}
