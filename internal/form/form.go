// Package form models the data a renderer form hands to the bridge: the ordered
// form encoding (what FormData iterates over) and the snapshot derived from it.
package form

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Entry is one name/value pair of a form encoding.
type Entry struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Entries is a form encoding in document order. A name may repeat.
type Entries []Entry

// Control is a submit control identified by its name and value.
type Control struct {
	Name  string `json:"name" validate:"required"`
	Value string `json:"value"`
}

// Set replaces the first entry called name, drops any later duplicates and
// appends the pair if the name is absent. The receiver is not modified.
func (e Entries) Set(name, value string) Entries {
	out := make(Entries, 0, len(e)+1)
	replaced := false
	for _, en := range e {
		if en.Name != name {
			out = append(out, en)
			continue
		}
		if !replaced {
			out = append(out, Entry{Name: name, Value: value})
			replaced = true
		}
	}
	if !replaced {
		out = append(out, Entry{Name: name, Value: value})
	}
	return out
}

// Snapshot folds the encoding into a FormSnapshot.
func (e Entries) Snapshot() Snapshot {
	var s Snapshot
	for _, en := range e {
		s.add(en.Name, en.Value)
	}
	return s
}

// Field is one snapshot field. Values has a single element for a scalar field.
type Field struct {
	Name   string
	Values []string
}

// Multi reports whether the field was seen more than once.
func (f Field) Multi() bool { return len(f.Values) > 1 }

// Snapshot is a point-in-time extraction of a form. Field order follows first
// appearance; repeated names keep every value in order.
type Snapshot struct {
	fields []Field
	index  map[string]int
}

// NewSnapshot builds a snapshot from alternating name/value arguments.
func NewSnapshot(pairs ...string) Snapshot {
	if len(pairs)%2 != 0 {
		panic("form: NewSnapshot needs name/value pairs")
	}
	var s Snapshot
	for i := 0; i < len(pairs); i += 2 {
		s.add(pairs[i], pairs[i+1])
	}
	return s
}

func (s *Snapshot) add(name, value string) {
	if s.index == nil {
		s.index = make(map[string]int)
	}
	if i, ok := s.index[name]; ok {
		s.fields[i].Values = append(s.fields[i].Values, value)
		return
	}
	s.index[name] = len(s.fields)
	s.fields = append(s.fields, Field{Name: name, Values: []string{value}})
}

// Len returns the number of distinct field names.
func (s Snapshot) Len() int { return len(s.fields) }

// Fields returns the fields in order. The slice must not be modified.
func (s Snapshot) Fields() []Field { return s.fields }

// Get returns every value recorded for name.
func (s Snapshot) Get(name string) ([]string, bool) {
	i, ok := s.index[name]
	if !ok {
		return nil, false
	}
	return s.fields[i].Values, true
}

// MarshalJSON writes an object whose keys keep form order. Scalar fields are
// strings, repeated fields are arrays.
func (s Snapshot) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range s.fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(f.Name)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')

		var val []byte
		if f.Multi() {
			val, err = json.Marshal(f.Values)
		} else {
			val, err = json.Marshal(f.Values[0])
		}
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads the object form written by MarshalJSON, keeping key order.
func (s *Snapshot) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("form: snapshot must be a JSON object")
	}

	*s = Snapshot{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		name := tok.(string)

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return err
		}
		var one string
		if err := json.Unmarshal(raw, &one); err == nil {
			s.add(name, one)
			continue
		}
		var many []string
		if err := json.Unmarshal(raw, &many); err != nil {
			return fmt.Errorf("form: field %q: %w", name, err)
		}
		for _, v := range many {
			s.add(name, v)
		}
	}
	_, err = dec.Token()
	return err
}
