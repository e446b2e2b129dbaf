package form

import (
	"encoding/json"
	"testing"

	"github.com/go-playground/assert/v2"
)

func TestSnapshot_ScalarAndSequence(t *testing.T) {
	entries := Entries{
		{Name: "answer", Value: "4"},
		{Name: "choice", Value: "a"},
		{Name: "choice", Value: "c"},
		{Name: "note", Value: ""},
	}

	s := entries.Snapshot()
	assert.Equal(t, s.Len(), 3)

	got, ok := s.Get("choice")
	assert.Equal(t, ok, true)
	assert.Equal(t, got, []string{"a", "c"})

	raw, err := json.Marshal(s)
	assert.Equal(t, err, nil)
	assert.Equal(t, string(raw), `{"answer":"4","choice":["a","c"],"note":""}`)
}

func TestSnapshot_UnmarshalKeepsOrder(t *testing.T) {
	var s Snapshot
	err := json.Unmarshal([]byte(`{"z":"1","a":["x","y"],"m":"2"}`), &s)
	assert.Equal(t, err, nil)

	names := make([]string, 0, s.Len())
	for _, f := range s.Fields() {
		names = append(names, f.Name)
	}
	assert.Equal(t, names, []string{"z", "a", "m"})

	v, _ := s.Get("a")
	assert.Equal(t, v, []string{"x", "y"})
}

func TestSnapshot_UnmarshalRejectsNonObject(t *testing.T) {
	var s Snapshot
	assert.NotEqual(t, json.Unmarshal([]byte(`["a"]`), &s), nil)
	assert.NotEqual(t, json.Unmarshal([]byte(`{"a":1}`), &s), nil)
}

func TestEntries_Set(t *testing.T) {
	entries := Entries{
		{Name: "AnSwEr0001", Value: "4"},
		{Name: "submitAnswers", Value: "old"},
		{Name: "submitAnswers", Value: "older"},
	}

	got := entries.Set("submitAnswers", "Submit")
	assert.Equal(t, got, Entries{
		{Name: "AnSwEr0001", Value: "4"},
		{Name: "submitAnswers", Value: "Submit"},
	})
	// Receiver untouched.
	assert.Equal(t, len(entries), 3)

	got = entries.Set("previewAnswers", "Preview")
	assert.Equal(t, got[len(got)-1], Entry{Name: "previewAnswers", Value: "Preview"})
}

func TestNewSnapshot(t *testing.T) {
	s := NewSnapshot("answer", "4")
	raw, _ := json.Marshal(s)
	assert.Equal(t, string(raw), `{"answer":"4"}`)

	raw, _ = json.Marshal(Snapshot{})
	assert.Equal(t, string(raw), `{}`)
}
