package backend

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-playground/assert/v2"
	"github.com/stemsi/problem-bridge/internal/form"
)

func TestRender_QueryAndEnvelope(t *testing.T) {
	var gotPath, gotQuery, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		gotAuth = r.Header.Get("Authorization")
		_, _ = io.WriteString(w, `{"data":{"rendererData":{"renderedHTML":"<form id=\"problemMainForm\"></form>"}}}`)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, Token: "tok"})
	wb := 7
	ro := false
	html, err := c.Render(context.Background(), 42, RenderParams{WorkbookID: &wb, Readonly: &ro})

	assert.Equal(t, err, nil)
	assert.Equal(t, html, `<form id="problemMainForm"></form>`)
	assert.Equal(t, gotPath, "/courses/question/42")
	assert.Equal(t, gotQuery, "readonly=false&workbookId=7")
	assert.Equal(t, gotAuth, "Bearer tok")
}

func TestRender_OmitsUnsetParams(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		_, _ = io.WriteString(w, `{"data":{"rendererData":{"renderedHTML":""}}}`)
	}))
	defer srv.Close()

	_, err := New(Config{BaseURL: srv.URL}).Render(context.Background(), 1, RenderParams{})
	assert.Equal(t, err, nil)
	assert.Equal(t, gotQuery, "")
}

func TestRender_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"message":"Question not found"}`)
	}))
	defer srv.Close()

	_, err := New(Config{BaseURL: srv.URL}).Render(context.Background(), 9, RenderParams{})

	var apiErr *APIError
	assert.Equal(t, errors.As(err, &apiErr), true)
	assert.Equal(t, apiErr.Status, http.StatusNotFound)
	assert.Equal(t, apiErr.Message, "Question not found")
}

func TestSaveState_Body(t *testing.T) {
	var body map[string]json.RawMessage
	var method, path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method, path = r.Method, r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&body)
		_, _ = io.WriteString(w, `{"data":{"updatesCount":1}}`)
	}))
	defer srv.Close()

	res, err := New(Config{BaseURL: srv.URL}).SaveState(context.Background(), 5, form.NewSnapshot("answer", "4"))

	assert.Equal(t, err, nil)
	assert.Equal(t, res.UpdatesCount, 1)
	assert.Equal(t, method, http.MethodPut)
	assert.Equal(t, path, "/courses/question/grade/5")
	assert.Equal(t, string(body["currentProblemState"]), `{"answer":"4"}`)
}

func TestSubmit_MultipartFields(t *testing.T) {
	var fields map[string][]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		fields = r.MultipartForm.Value
		_, _ = io.WriteString(w, `{"data":{"rendererData":{"renderedHTML":"<form>NEW</form>"},"studentGrade":{"id":3,"numAttempts":2,"bestScore":1}}}`)
	}))
	defer srv.Close()

	entries := form.Entries{{Name: "answer", Value: "4"}, {Name: "submitAnswer", Value: "Submit"}}
	res, err := New(Config{BaseURL: srv.URL}).Submit(context.Background(), 42, entries)

	assert.Equal(t, err, nil)
	assert.Equal(t, res.RenderedHTML, "<form>NEW</form>")
	assert.Equal(t, res.StudentGrade.NumAttempts, 2)
	assert.Equal(t, *res.StudentGrade.ID, 3)
	assert.Equal(t, fields["answer"], []string{"4"})
	assert.Equal(t, fields["submitAnswer"], []string{"Submit"})
}

func TestDo_MissingData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"message":"ok"}`)
	}))
	defer srv.Close()

	_, err := New(Config{BaseURL: srv.URL}).SaveState(context.Background(), 1, form.Snapshot{})
	assert.NotEqual(t, err, nil)
}
