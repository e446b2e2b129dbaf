package htmldoc

import (
	"context"
	"testing"

	"github.com/go-playground/assert/v2"
	"github.com/stemsi/problem-bridge/internal/form"
	"github.com/stemsi/problem-bridge/internal/surface"
)

const problemHTML = `<html><body>
<p>What is 2 + 2?</p>
<form id="problemMainForm" action="/render">
  <input type="text" name="answer" value="">
  <input type="checkbox" name="choice" value="a" checked>
  <input type="checkbox" name="choice" value="b">
  <input type="checkbox" name="choice" value="c">
  <input type="radio" name="unit" value="m">
  <input type="radio" name="unit" value="cm" checked>
  <select name="multi" multiple>
    <option value="x" selected>X</option>
    <option>Y</option>
  </select>
  <select name="single"><option value="one">One</option><option value="two">Two</option></select>
  <textarea name="note">hello</textarea>
  <input type="text" name="locked" value="z" disabled>
  <input type="file" name="upload">
  <input type="hidden" name="sessionJWT" value="jwt">
  <input type="submit" name="previewAnswers" value="Preview">
  <button name="submitAnswer" value="Submit">Submit</button>
</form>
</body></html>`

func mustParse(t *testing.T, opts Options) *Document {
	t.Helper()
	d, err := Parse(problemHTML, opts)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return d
}

func TestEntries_BrowserRules(t *testing.T) {
	f := mustParse(t, Options{}).HTMLForm("problemMainForm")
	if f == nil {
		t.Fatal("form not found")
	}

	want := form.Entries{
		{Name: "answer", Value: ""},
		{Name: "choice", Value: "a"},
		{Name: "unit", Value: "cm"},
		{Name: "multi", Value: "x"},
		{Name: "single", Value: "one"},
		{Name: "note", Value: "hello"},
		{Name: "sessionJWT", Value: "jwt"},
	}
	assert.Equal(t, f.Entries(), want)
	assert.Equal(t, f.Action(), "/render")
	assert.Equal(t, f.ID(), "problemMainForm")
}

func TestSetValueCheckSelect_FireInput(t *testing.T) {
	f := mustParse(t, Options{}).HTMLForm("problemMainForm")

	var events []surface.EventKind
	f.Observe(func(e surface.Event) { events = append(events, e.Kind) })

	assert.Equal(t, f.SetValue("answer", "4"), nil)
	assert.Equal(t, f.Check("choice", "c", true), nil)
	assert.Equal(t, f.Check("unit", "m", true), nil)
	assert.Equal(t, f.Select("multi", "x", "Y"), nil)

	assert.Equal(t, events, []surface.EventKind{
		surface.EventInput, surface.EventInput, surface.EventInput, surface.EventInput,
	})

	snap := f.Entries().Snapshot()
	v, _ := snap.Get("answer")
	assert.Equal(t, v, []string{"4"})
	v, _ = snap.Get("choice")
	assert.Equal(t, v, []string{"a", "c"})
	v, _ = snap.Get("unit")
	assert.Equal(t, v, []string{"m"})
	v, _ = snap.Get("multi")
	assert.Equal(t, v, []string{"x", "Y"})
}

func TestSetValue_Errors(t *testing.T) {
	f := mustParse(t, Options{}).HTMLForm("problemMainForm")

	assert.NotEqual(t, f.SetValue("missing", "1"), nil)
	assert.NotEqual(t, f.SetValue("locked", "1"), nil)
	assert.NotEqual(t, f.SetValue("single", "three"), nil)
	assert.NotEqual(t, f.Select("single", "one", "two"), nil)
	assert.NotEqual(t, f.Click("answer"), nil)
}

func TestClick_MovesMarkerAndFiresSubmit(t *testing.T) {
	f := mustParse(t, Options{}).HTMLForm("problemMainForm")

	var kinds []surface.EventKind
	var activated form.Control
	f.Observe(func(e surface.Event) {
		kinds = append(kinds, e.Kind)
		activated, _ = f.Activated()
	})

	_, ok := f.Activated()
	assert.Equal(t, ok, false)

	assert.Equal(t, f.Click("previewAnswers"), nil)
	assert.Equal(t, activated, form.Control{Name: "previewAnswers", Value: "Preview"})

	assert.Equal(t, f.Click("submitAnswer"), nil)
	assert.Equal(t, activated, form.Control{Name: "submitAnswer", Value: "Submit"})
	assert.Equal(t, kinds, []surface.EventKind{surface.EventSubmit, surface.EventSubmit})

	f.SubmitWithoutMarker()
	_, ok = f.Activated()
	assert.Equal(t, ok, false)
}

func TestClick_CustomMarker(t *testing.T) {
	f := mustParse(t, Options{Marker: "pressed"}).HTMLForm("problemMainForm")
	assert.Equal(t, f.Click("submitAnswer"), nil)

	c, ok := f.Activated()
	assert.Equal(t, ok, true)
	assert.Equal(t, c.Name, "submitAnswer")
}

func TestObserve_Detach(t *testing.T) {
	f := mustParse(t, Options{}).HTMLForm("problemMainForm")

	calls := 0
	detach := f.Observe(func(surface.Event) { calls++ })
	assert.Equal(t, f.Observed(), 1)

	_ = f.SetValue("answer", "1")
	detach()
	_ = f.SetValue("answer", "2")

	assert.Equal(t, calls, 1)
	assert.Equal(t, f.Observed(), 0)
}

func TestFieldsAndSubmitControls(t *testing.T) {
	f := mustParse(t, Options{}).HTMLForm("problemMainForm")

	names := []string{}
	for _, fi := range f.Fields() {
		names = append(names, fi.Name)
	}
	assert.Equal(t, names[0], "answer")
	assert.Equal(t, f.SubmitControls(), []form.Control{
		{Name: "previewAnswers", Value: "Preview"},
		{Name: "submitAnswer", Value: "Submit"},
	})
}

func TestSurface_ShowReportsLoad(t *testing.T) {
	s := New(Options{Height: 420})

	var gotRev uint64
	var gotDoc surface.Document
	s.OnLoad(func(rev uint64, doc surface.Document) {
		gotRev, gotDoc = rev, doc
	})

	s.Show(3, problemHTML)

	assert.Equal(t, gotRev, uint64(3))
	assert.Equal(t, gotDoc.ContentHeight(), 420)
	_, ok := gotDoc.Form("problemMainForm")
	assert.Equal(t, ok, true)
	_, ok = gotDoc.Form("other")
	assert.Equal(t, ok, false)

	_, isPreparer := gotDoc.(surface.Preparer)
	_, isTypesetter := gotDoc.(surface.Typesetter)
	assert.Equal(t, isPreparer, false)
	assert.Equal(t, isTypesetter, false)

	cur, rev := s.Current()
	assert.Equal(t, rev, uint64(3))
	assert.Equal(t, cur.Text(), "What is 2 + 2? X Y One Two hello Submit")
}

func TestSurface_Capabilities(t *testing.T) {
	prepared := 0
	s := New(Options{
		Typeset: true,
		Prepare: func(f *Form) error {
			prepared++
			f.SetHidden("answer", "prepared")
			return nil
		},
	})

	var doc surface.Document
	s.OnLoad(func(_ uint64, d surface.Document) { doc = d })
	s.Show(1, problemHTML)

	p, ok := doc.(surface.Preparer)
	assert.Equal(t, ok, true)
	assert.Equal(t, p.PrepareSubmit(context.Background()), nil)
	assert.Equal(t, prepared, 1)

	f, _ := doc.Form("problemMainForm")
	v, _ := f.Entries().Snapshot().Get("answer")
	assert.Equal(t, v, []string{"prepared"})

	ts, ok := doc.(surface.Typesetter)
	assert.Equal(t, ok, true)
	done := 0
	ts.OnTypesetDone(func() { done++ })

	cur, _ := s.Current()
	cur.CompleteTypeset()
	cur.CompleteTypeset()
	assert.Equal(t, done, 1)
}

func TestSurface_BlankContent(t *testing.T) {
	s := New(Options{})
	var doc surface.Document
	s.OnLoad(func(_ uint64, d surface.Document) { doc = d })

	s.Show(1, "")

	_, ok := doc.Form("problemMainForm")
	assert.Equal(t, ok, false)
}
