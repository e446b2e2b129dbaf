package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/assert/v2"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stemsi/problem-bridge/internal/backend"
	"github.com/stemsi/problem-bridge/internal/bridge"
	"github.com/stemsi/problem-bridge/internal/config"
	"github.com/stemsi/problem-bridge/internal/form"
	"github.com/stemsi/problem-bridge/internal/middleware"
	"github.com/stemsi/problem-bridge/internal/model"
	"github.com/stemsi/problem-bridge/internal/service"
)

const problemHTML = `<form id="problemMainForm" action="/submit"><input name="answer"><input type="submit" name="submitAnswers" value="Submit"></form>`

type stubBackend struct {
	mu     sync.Mutex
	token  string
	saves  []form.Snapshot
	submit []form.Entries
}

func (b *stubBackend) Render(_ context.Context, problemID int, _ backend.RenderParams) (string, error) {
	return problemHTML, nil
}

func (b *stubBackend) SaveState(_ context.Context, _ int, state form.Snapshot) (model.SaveResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.saves = append(b.saves, state)
	return model.SaveResult{UpdatesCount: 1}, nil
}

func (b *stubBackend) Submit(_ context.Context, _ int, entries form.Entries) (model.SubmitResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.submit = append(b.submit, entries)
	return model.SubmitResult{
		RenderedHTML: "<p>graded</p>",
		StudentGrade: model.StudentGrade{NumAttempts: len(b.submit), BestScore: 1},
	}, nil
}

type stubSessions struct {
	mu       sync.Mutex
	full     bool
	open     map[uuid.UUID]bool
	released int
}

func (s *stubSessions) Acquire(_ context.Context, _ int, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.full {
		return service.ErrTooManySessions
	}
	s.open[id] = true
	return nil
}

func (s *stubSessions) Release(_ int, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.open, id)
	s.released++
	return nil
}

func (s *stubSessions) releasedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.released
}

type stubGrades struct {
	mu        sync.Mutex
	published []int
}

func (g *stubGrades) Publish(_ context.Context, _ int, problemID int, _ model.StudentGrade) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.published = append(g.published, problemID)
	return nil
}

type bridgeEnv struct {
	srv      *httptest.Server
	backend  *stubBackend
	sessions *stubSessions
	grades   *stubGrades
}

func newBridgeEnv(t *testing.T) *bridgeEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	env := &bridgeEnv{
		backend:  &stubBackend{},
		sessions: &stubSessions{open: map[uuid.UUID]bool{}},
		grades:   &stubGrades{},
	}
	cfg := &config.Config{
		ProblemFormID:      bridge.DefaultFormID,
		ClickedMarkerClass: "btn-clicked",
		SaveDebounce:       20 * time.Millisecond,
		SubmitDebounce:     time.Second,
	}
	h := NewBridgeHandler(cfg, func(token string) bridge.Backend {
		env.backend.mu.Lock()
		env.backend.token = token
		env.backend.mu.Unlock()
		return env.backend
	}, env.sessions, env.grades, nil, zerolog.Nop())

	r := gin.New()
	r.GET("/ws", func(c *gin.Context) {
		c.Set(middleware.ContextKeyClaims, &service.Claims{UserID: 7, Raw: "user-token"})
	}, h.BridgeStream)

	env.srv = httptest.NewServer(r)
	t.Cleanup(env.srv.Close)
	return env
}

func (e *bridgeEnv) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(e.srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

type wsEvent map[string]interface{}

func send(t *testing.T, conn *websocket.Conn, v interface{}) {
	t.Helper()
	if err := conn.WriteJSON(v); err != nil {
		t.Fatalf("write: %v", err)
	}
}

// readUntil reads events until match returns true.
func readUntil(t *testing.T, conn *websocket.Conn, match func(wsEvent) bool) wsEvent {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		var ev wsEvent
		if err := conn.ReadJSON(&ev); err != nil {
			t.Fatalf("read: %v", err)
		}
		if match(ev) {
			return ev
		}
	}
}

func isEvent(name string) func(wsEvent) bool {
	return func(ev wsEvent) bool { return ev["event"] == name }
}

func renderWithHTML(ev wsEvent) bool {
	return ev["event"] == "render" && ev["html"] != ""
}

func TestBridgeStream_LoadSaveSubmit(t *testing.T) {
	env := newBridgeEnv(t)
	conn := env.dial(t)

	ready := readUntil(t, conn, isEvent("ready"))
	assert.Equal(t, ready["form_id"], bridge.DefaultFormID)
	assert.Equal(t, ready["marker_class"], "btn-clicked")

	send(t, conn, wsEvent{"action": "context", "context": wsEvent{"problem_id": 3, "grade_id": 9}})

	render := readUntil(t, conn, renderWithHTML)
	assert.Equal(t, render["html"], problemHTML)
	rev := render["rev"]

	send(t, conn, wsEvent{
		"action": "loaded",
		"rev":    rev,
		"height": 120,
		"forms":  []wsEvent{{"id": bridge.DefaultFormID, "action": "/submit"}},
	})
	state := readUntil(t, conn, isEvent("state"))
	surf := state["state"].(map[string]interface{})["surface"].(map[string]interface{})
	assert.Equal(t, surf["is_loading"], false)
	assert.Equal(t, surf["height_px"], float64(bridge.MinHeightPx))

	send(t, conn, wsEvent{
		"action":  "input",
		"rev":     rev,
		"form_id": bridge.DefaultFormID,
		"entries": []wsEvent{{"name": "answer", "value": "4"}},
	})
	readUntil(t, conn, func(ev wsEvent) bool {
		if ev["event"] != "state" {
			return false
		}
		_, ok := ev["state"].(map[string]interface{})["last_saved_at"]
		return ok
	})

	send(t, conn, wsEvent{
		"action":    "submit",
		"rev":       rev,
		"form_id":   bridge.DefaultFormID,
		"entries":   []wsEvent{{"name": "answer", "value": "4"}},
		"activated": wsEvent{"name": "submitAnswers", "value": "Submit"},
	})
	grade := readUntil(t, conn, isEvent("grade"))
	assert.Equal(t, grade["grade"].(map[string]interface{})["numAttempts"], float64(1))

	after := readUntil(t, conn, renderWithHTML)
	assert.Equal(t, after["html"], "<p>graded</p>")

	env.backend.mu.Lock()
	assert.Equal(t, env.backend.token, "user-token")
	assert.Equal(t, len(env.backend.saves), 1)
	assert.Equal(t, env.backend.submit[0], form.Entries{
		{Name: "answer", Value: "4"},
		{Name: "submitAnswers", Value: "Submit"},
	})
	env.backend.mu.Unlock()

	env.grades.mu.Lock()
	assert.Equal(t, env.grades.published, []int{3})
	env.grades.mu.Unlock()
}

func TestBridgeStream_ProtocolErrors(t *testing.T) {
	env := newBridgeEnv(t)
	conn := env.dial(t)
	readUntil(t, conn, isEvent("ready"))

	send(t, conn, wsEvent{"action": "dance"})
	ev := readUntil(t, conn, isEvent("error"))
	assert.Equal(t, ev["code"], "UNKNOWN_ACTION")

	conn.WriteMessage(websocket.TextMessage, []byte("{not json"))
	ev = readUntil(t, conn, isEvent("error"))
	assert.Equal(t, ev["code"], "INVALID_PAYLOAD")

	send(t, conn, wsEvent{"action": "context", "context": wsEvent{"problem_id": 0}})
	ev = readUntil(t, conn, isEvent("error"))
	assert.Equal(t, ev["code"], "VALIDATION_ERROR")
	_, hasField := ev["fields"].(map[string]interface{})["problem_id"]
	assert.Equal(t, hasField, true)

	send(t, conn, wsEvent{"action": "submit", "rev": 1, "form_id": "f"})
	ev = readUntil(t, conn, isEvent("error"))
	assert.Equal(t, ev["code"], "NO_CONTEXT")

	send(t, conn, wsEvent{"action": "ping"})
	readUntil(t, conn, isEvent("pong"))
}

func TestBridgeStream_ReleasesSessionOnClose(t *testing.T) {
	env := newBridgeEnv(t)
	conn := env.dial(t)
	readUntil(t, conn, isEvent("ready"))
	conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for env.sessions.releasedCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	assert.Equal(t, env.sessions.releasedCount(), 1)
}

func TestBridgeStream_TooManySessions(t *testing.T) {
	env := newBridgeEnv(t)
	env.sessions.full = true

	resp, err := http.Get(env.srv.URL + "/ws")
	assert.Equal(t, err, nil)
	defer resp.Body.Close()
	assert.Equal(t, resp.StatusCode, http.StatusTooManyRequests)

	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	json.NewDecoder(resp.Body).Decode(&body)
	assert.Equal(t, body.Error.Code, "TOO_MANY_SESSIONS")
}
