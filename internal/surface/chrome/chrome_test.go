package chrome

import (
	"context"
	"os"
	"testing"

	"github.com/go-playground/assert/v2"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/rs/zerolog"
	"github.com/stemsi/problem-bridge/internal/form"
	"github.com/stemsi/problem-bridge/internal/surface"
)

// These tests drive a real browser. Set BRIDGE_CHROME_TESTS=1 with Chrome
// installed to run them.
func launchOrSkip(t *testing.T) *Surface {
	t.Helper()
	if os.Getenv("BRIDGE_CHROME_TESTS") == "" {
		t.Skip("BRIDGE_CHROME_TESTS not set")
	}
	if _, ok := launcher.LookPath(); !ok {
		t.Skip("no browser found")
	}
	s, err := Launch(context.Background(), Options{FormID: "problemMainForm", Marker: "btn-clicked", Logger: zerolog.Nop()})
	if err != nil {
		t.Fatalf("launch: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

const page = `<html><body>
<form id="problemMainForm" action="/submit">
  <input name="answer" value="4">
  <input type="checkbox" name="opt" value="a" checked>
  <input type="submit" name="submitAnswers" value="Submit" class="btn-clicked">
</form>
<script>window.submitAction = () => { document.querySelector('[name=answer]').value = '5'; };</script>
</body></html>`

func TestChromeSurface_LoadAndHarvest(t *testing.T) {
	s := launchOrSkip(t)

	loaded := make(chan surface.Document, 1)
	s.OnLoad(func(rev uint64, doc surface.Document) {
		if rev == 7 {
			loaded <- doc
		}
	})
	s.Show(7, page)
	doc := <-loaded

	assert.NotEqual(t, doc.ContentHeight(), 0)

	f, ok := doc.Form("problemMainForm")
	assert.Equal(t, ok, true)
	assert.Equal(t, f.Action(), "/submit")
	assert.Equal(t, f.Entries(), form.Entries{{Name: "answer", Value: "4"}, {Name: "opt", Value: "a"}})

	ctl, ok := f.Activated()
	assert.Equal(t, ok, true)
	assert.Equal(t, ctl, form.Control{Name: "submitAnswers", Value: "Submit"})

	p, ok := doc.(surface.Preparer)
	assert.Equal(t, ok, true)
	assert.Equal(t, p.PrepareSubmit(context.Background()), nil)
	assert.Equal(t, f.Entries()[0], form.Entry{Name: "answer", Value: "5"})

	_, ok = doc.Form("missing")
	assert.Equal(t, ok, false)
}
