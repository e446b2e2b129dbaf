package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/assert/v2"
	"github.com/rs/zerolog"
	"github.com/stemsi/problem-bridge/internal/database"
	"github.com/stemsi/problem-bridge/internal/middleware"
	"github.com/stemsi/problem-bridge/internal/model"
	"github.com/stemsi/problem-bridge/internal/service"
)

type stubActivity struct {
	err       error
	gotUser   int
	gotLimit  int
	gotProbID int
}

func (s *stubActivity) ForProblem(_ context.Context, userID, problemID, limit int) (*model.ProblemActivity, error) {
	s.gotUser, s.gotProbID, s.gotLimit = userID, problemID, limit
	if s.err != nil {
		return nil, s.err
	}
	saved := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	return &model.ProblemActivity{
		ProblemID:   problemID,
		LastSavedAt: &saved,
		Entries:     []model.Activity{{ProblemID: problemID, Kind: model.ActivitySave, OK: true}},
	}, nil
}

func newProblemRouter(reader ActivityReader) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewProblemHandler(reader, nil, zerolog.Nop())
	r := gin.New()
	r.GET("/problems/:problem_id/activity", func(c *gin.Context) {
		c.Set(middleware.ContextKeyClaims, &service.Claims{UserID: 11})
	}, h.Activity)
	return r
}

func get(r http.Handler, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestProblemHandler_Activity(t *testing.T) {
	reader := &stubActivity{}
	w := get(newProblemRouter(reader), "/problems/42/activity?limit=5")

	assert.Equal(t, w.Code, http.StatusOK)
	assert.Equal(t, reader.gotUser, 11)
	assert.Equal(t, reader.gotProbID, 42)
	assert.Equal(t, reader.gotLimit, 5)

	var body struct {
		Data model.ProblemActivity `json:"data"`
	}
	assert.Equal(t, json.Unmarshal(w.Body.Bytes(), &body), nil)
	assert.Equal(t, body.Data.ProblemID, 42)
	assert.Equal(t, len(body.Data.Entries), 1)
	assert.Equal(t, body.Data.LastSubmittedAt == nil, true)
}

func TestProblemHandler_ActivityErrors(t *testing.T) {
	assert.Equal(t, get(newProblemRouter(&stubActivity{}), "/problems/abc/activity").Code, http.StatusBadRequest)
	assert.Equal(t, get(newProblemRouter(&stubActivity{}), "/problems/0/activity").Code, http.StatusBadRequest)
	assert.Equal(t, get(newProblemRouter(&stubActivity{}), "/problems/1/activity?limit=x").Code, http.StatusBadRequest)

	failing := &stubActivity{err: errors.New("db down")}
	assert.Equal(t, get(newProblemRouter(failing), "/problems/1/activity").Code, http.StatusInternalServerError)
}

func TestSystemHandler_Health(t *testing.T) {
	gin.SetMode(gin.TestMode)

	healthy := NewSystemHandler(nil, map[string]database.Pinger{
		"postgres": func(context.Context) error { return nil },
	}, zerolog.Nop())
	r := gin.New()
	r.GET("/health", healthy.Health)
	assert.Equal(t, get(r, "/health").Code, http.StatusOK)

	degraded := NewSystemHandler(nil, map[string]database.Pinger{
		"postgres": func(context.Context) error { return nil },
		"redis":    func(context.Context) error { return errors.New("connection refused") },
	}, zerolog.Nop())
	r = gin.New()
	r.GET("/health", degraded.Health)
	w := get(r, "/health")
	assert.Equal(t, w.Code, http.StatusServiceUnavailable)

	var body struct {
		Data healthReport `json:"data"`
	}
	json.Unmarshal(w.Body.Bytes(), &body)
	assert.Equal(t, body.Data.Status, "degraded")
	assert.Equal(t, body.Data.Services["redis"], "connection refused")
	assert.Equal(t, body.Data.Services["postgres"], "ok")
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, formatDuration(65*time.Second), "1m 5s")
	assert.Equal(t, formatDuration(2*time.Hour+3*time.Minute), "2h 3m 0s")
	assert.Equal(t, formatDuration(49*time.Hour), "2d 1h 0m 0s")
}
