package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/problem-bridge/internal/middleware"
	"github.com/stemsi/problem-bridge/internal/model"
	"github.com/stemsi/problem-bridge/internal/response"
	"github.com/stemsi/problem-bridge/internal/service"
)

const keepAliveInterval = 30 * time.Second

// ActivityReader lists a user's journaled bridge activity.
type ActivityReader interface {
	ForProblem(ctx context.Context, userID, problemID, limit int) (*model.ProblemActivity, error)
}

// ProblemHandler serves per-problem reads for the surrounding page.
type ProblemHandler struct {
	activity ActivityReader
	grades   *service.GradeNotifier
	log      zerolog.Logger
}

func NewProblemHandler(activity ActivityReader, grades *service.GradeNotifier, log zerolog.Logger) *ProblemHandler {
	return &ProblemHandler{
		activity: activity,
		grades:   grades,
		log:      log.With().Str("component", "problem_handler").Logger(),
	}
}

func problemIDParam(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("problem_id"))
	if err != nil || id <= 0 {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return 0, false
	}
	return id, true
}

// Activity godoc
// GET /api/v1/problems/:problem_id/activity?limit=20
// Returns the last successful save/submit times and recent journal entries.
func (h *ProblemHandler) Activity(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	problemID, ok := problemIDParam(c)
	if !ok {
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation,
				map[string]string{"limit": "limit must be a number"})
			return
		}
		limit = n
	}

	pa, err := h.activity.ForProblem(c.Request.Context(), claims.UserID, problemID, limit)
	if err != nil {
		h.log.Error().Err(err).Int("problem_id", problemID).Msg("Failed to read activity")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	response.Success(c, http.StatusOK, pa)
}

// GradeStream godoc
// GET /api/v1/problems/:problem_id/grades/stream
// SSE stream of grade updates published by any of the user's bridge sessions.
func (h *ProblemHandler) GradeStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	problemID, ok := problemIDParam(c)
	if !ok {
		return
	}

	reqCtx := c.Request.Context()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	pubsub := h.grades.Subscribe(reqCtx, claims.UserID, problemID)
	defer pubsub.Close()
	ch := pubsub.Channel()

	keepAliveTicker := time.NewTicker(keepAliveInterval)
	defer keepAliveTicker.Stop()

	log := h.log.With().Int("user_id", claims.UserID).Int("problem_id", problemID).Logger()
	log.Debug().Msg("Grade stream attached")

	pingPayload, _ := json.Marshal(map[string]string{"type": "ping"})

	for {
		select {
		case <-reqCtx.Done():
			log.Debug().Msg("Grade stream detached")
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			// Payload is already the JSON grade event.
			writeSSE(c, []byte(msg.Payload))
		case <-keepAliveTicker.C:
			writeSSE(c, pingPayload)
		}
	}
}
