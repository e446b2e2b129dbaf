package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stemsi/problem-bridge/internal/bridge"
	"github.com/stemsi/problem-bridge/internal/config"
	"github.com/stemsi/problem-bridge/internal/middleware"
	"github.com/stemsi/problem-bridge/internal/model"
	"github.com/stemsi/problem-bridge/internal/response"
	"github.com/stemsi/problem-bridge/internal/service"
	"github.com/stemsi/problem-bridge/internal/surface/remote"
	"github.com/stemsi/problem-bridge/internal/validator"
	ws "github.com/stemsi/problem-bridge/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// BackendFactory returns a backend client acting with the user's token.
type BackendFactory func(token string) bridge.Backend

// SessionRegistry caps concurrently open bridge sockets.
type SessionRegistry interface {
	Acquire(ctx context.Context, userID int, sessionID uuid.UUID) error
	Release(userID int, sessionID uuid.UUID) error
}

// GradePublisher fans submitted grades out to other pages.
type GradePublisher interface {
	Publish(ctx context.Context, userID, problemID int, g model.StudentGrade) error
}

// BridgeHandler runs one bridge controller per WebSocket. The browser hosts the
// sandboxed surface; the controller, listener and dispatcher live here.
type BridgeHandler struct {
	cfg      *config.Config
	backends BackendFactory
	sessions SessionRegistry
	grades   GradePublisher
	activity bridge.ActivitySink
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

// NewBridgeHandler creates a new BridgeHandler. grades and activity may be nil.
func NewBridgeHandler(
	cfg *config.Config,
	backends BackendFactory,
	sessions SessionRegistry,
	grades GradePublisher,
	activity bridge.ActivitySink,
	log zerolog.Logger,
) *BridgeHandler {
	return &BridgeHandler{
		cfg:      cfg,
		backends: backends,
		sessions: sessions,
		grades:   grades,
		activity: activity,
		log:      log.With().Str("component", "bridge_handler").Logger(),
		upgrader: buildUpgrader(cfg.AllowedOrigins),
	}
}

// BridgeStream godoc
// WS /ws/v1/bridge
// Upgrades to WebSocket and drives one embedded problem.
func (h *BridgeHandler) BridgeStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	sessionID := uuid.New()
	if err := h.sessions.Acquire(c.Request.Context(), claims.UserID, sessionID); err != nil {
		if errors.Is(err, service.ErrTooManySessions) {
			response.Fail(c, http.StatusTooManyRequests, response.ErrTooManySessions)
			return
		}
		h.log.Error().Err(err).Int("user_id", claims.UserID).Msg("Failed to register bridge session")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	defer func() {
		if err := h.sessions.Release(claims.UserID, sessionID); err != nil {
			h.log.Warn().Err(err).Str("session_id", sessionID.String()).Msg("Failed to release bridge session")
		}
	}()

	raw, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	conn := ws.NewConn(raw)
	defer conn.Close()

	wsLog := h.log.With().
		Int("user_id", claims.UserID).
		Str("session_id", sessionID.String()).
		Logger()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := &session{
		conn: conn,
		log:  wsLog,
		ctx:  ctx,
	}
	s.surface = remote.New(func(rev uint64, html string) error {
		return conn.WriteTyped(ws.RenderResponse{Event: ws.EventRender, Rev: rev, HTML: html})
	}, wsLog)
	s.page = &wsPage{session: s, grades: h.grades, userID: claims.UserID}
	s.ctrl = bridge.New(ctx, h.backends(claims.Raw), s.surface, s.page, bridge.Config{
		FormID:     h.cfg.ProblemFormID,
		SaveWait:   h.cfg.SaveDebounce,
		SubmitWait: h.cfg.SubmitDebounce,
		Activity:   h.activity,
		SessionID:  sessionID,
		UserID:     claims.UserID,
		Logger:     wsLog,
	})
	defer s.ctrl.Close()

	wsLog.Info().Msg("Bridge session opened")

	conn.WriteTyped(ws.ReadyResponse{
		Event:       ws.EventReady,
		SessionID:   sessionID.String(),
		FormID:      h.cfg.ProblemFormID,
		MarkerClass: h.cfg.ClickedMarkerClass,
	})

	for {
		data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			break
		}
		s.handle(data)
	}

	wsLog.Info().Msg("Bridge session closed")
}

// session is the per-socket state of BridgeStream.
type session struct {
	conn    *ws.Conn
	surface *remote.Surface
	ctrl    *bridge.Controller
	page    *wsPage
	log     zerolog.Logger
	ctx     context.Context
}

func (s *session) handle(data []byte) {
	action, err := ws.Peek(data)
	if err != nil {
		s.fail(response.ErrInvalidPayload, nil)
		return
	}

	switch action {
	case ws.ActionContext:
		var req ws.ContextRequest
		if !s.decode(data, &req) {
			return
		}
		go func(sc model.SubmissionContext) {
			err := s.ctrl.SetContext(sc)
			if err != nil && !bridge.IsSuperseded(err) {
				s.log.Debug().Err(err).Int("problem_id", sc.ProblemID).Msg("Context load ended with an error")
			}
		}(req.Context)

	case ws.ActionLoaded:
		var req ws.LoadedRequest
		if !s.decode(data, &req) {
			return
		}
		forms := make([]remote.FormState, 0, len(req.Forms))
		for _, f := range req.Forms {
			forms = append(forms, remote.FormState{ID: f.ID, Action: f.Action, Entries: f.Entries})
		}
		s.accepted(s.surface.HandleLoaded(req.Rev, req.Height, forms, req.Typeset))

	case ws.ActionResize:
		var req ws.ResizeRequest
		if !s.decode(data, &req) {
			return
		}
		if s.accepted(s.surface.HandleResize(req.Rev, req.Height)) {
			s.ctrl.Resized(req.Rev, req.Height)
		}

	case ws.ActionTypesetDone:
		var req ws.ResizeRequest
		if !s.decode(data, &req) {
			return
		}
		s.accepted(s.surface.HandleTypesetDone(req.Rev, req.Height))

	case ws.ActionInput:
		var req ws.FormEventRequest
		if !s.decode(data, &req) {
			return
		}
		s.accepted(s.surface.HandleInput(req.Rev, req.FormID, req.Entries))

	case ws.ActionSubmit:
		var req ws.FormEventRequest
		if !s.decode(data, &req) {
			return
		}
		if _, ok := s.ctrl.Context(); !ok {
			s.fail(response.ErrNoContext, nil)
			return
		}
		s.accepted(s.surface.HandleSubmit(req.Rev, req.FormID, req.Entries, req.Activated))

	case ws.ActionPing:
		s.conn.WriteTyped(ws.PongResponse{Event: ws.EventPong})

	default:
		s.log.Warn().Str("action", string(action)).Msg("Unknown action")
		s.fail(response.ErrUnknownAction, nil)
	}
}

// decode parses and validates a message, answering with an error event on failure.
func (s *session) decode(data []byte, dst interface{}) bool {
	if err := json.Unmarshal(data, dst); err != nil {
		s.fail(response.ErrInvalidPayload, nil)
		return false
	}
	if fields := validator.Struct(dst); fields != nil {
		s.fail(response.ErrValidation, fields)
		return false
	}
	return true
}

// accepted reports whether err is nil. Events for superseded renders are
// expected while the browser catches up and are only logged.
func (s *session) accepted(err error) bool {
	switch {
	case err == nil:
		return true
	case errors.Is(err, remote.ErrStaleRevision):
		s.log.Debug().Msg("Dropping event for a superseded render")
	case errors.Is(err, remote.ErrUnknownForm):
		s.log.Debug().Msg("Dropping event for an unknown form")
	default:
		s.log.Warn().Err(err).Msg("Surface event rejected")
	}
	return false
}

func (s *session) fail(code response.ErrCode, fields map[string]string) {
	err := s.conn.WriteTyped(ws.ErrorResponse{
		Event:  ws.EventError,
		Code:   string(code),
		Error:  response.GetMessage(code),
		Fields: fields,
	})
	if err != nil {
		s.log.Debug().Err(err).Msg("Failed to send error event")
	}
}

// wsPage forwards controller updates to the browser and publishes grades.
type wsPage struct {
	*session
	grades GradePublisher
	userID int
}

var _ bridge.Page = (*wsPage)(nil)

func (p *wsPage) StateChanged(snap model.BridgeSnapshot) {
	if err := p.conn.WriteTyped(ws.StateResponse{Event: ws.EventState, State: snap}); err != nil {
		p.log.Debug().Err(err).Uint64("version", snap.Version).Msg("Failed to send state")
	}
}

func (p *wsPage) GradeChanged(g model.StudentGrade) {
	if err := p.conn.WriteTyped(ws.GradeResponse{Event: ws.EventGrade, Grade: g}); err != nil {
		p.log.Debug().Err(err).Msg("Failed to send grade")
	}
	if p.grades == nil {
		return
	}
	sc, ok := p.ctrl.Context()
	if !ok {
		return
	}
	if err := p.grades.Publish(p.ctx, p.userID, sc.ProblemID, g); err != nil {
		p.log.Warn().Err(err).Int("problem_id", sc.ProblemID).Msg("Failed to publish grade")
	}
}
