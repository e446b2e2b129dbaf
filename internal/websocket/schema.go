package websocket

import (
	"github.com/stemsi/problem-bridge/internal/form"
	"github.com/stemsi/problem-bridge/internal/model"
)

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	// ActionContext selects the problem to render.
	ActionContext Action = "context"
	// ActionLoaded reports that the document shown under Rev finished loading.
	ActionLoaded Action = "loaded"
	ActionResize Action = "resize"
	// ActionTypesetDone reports that math typesetting finished.
	ActionTypesetDone Action = "typeset_done"
	ActionInput       Action = "input"
	ActionSubmit      Action = "submit"
	ActionPing        Action = "ping"
)

// RequestEnvelope is used to peek at the action before full parsing.
type RequestEnvelope struct {
	Action Action `json:"action"`
}

// ContextRequest replaces the submission context.
type ContextRequest struct {
	Action  Action                  `json:"action"`
	Context model.SubmissionContext `json:"context"`
}

// FormInfo describes a form found in the loaded document.
type FormInfo struct {
	ID      string       `json:"id" validate:"required,max=256"`
	Action  string       `json:"action" validate:"max=2048"`
	Entries form.Entries `json:"entries"`
}

// LoadedRequest is sent once the surface finished loading a render.
type LoadedRequest struct {
	Action  Action     `json:"action"`
	Rev     uint64     `json:"rev" validate:"required"`
	Height  int        `json:"height" validate:"min=0"`
	Forms   []FormInfo `json:"forms" validate:"dive"`
	Typeset bool       `json:"typeset"`
}

// ResizeRequest carries a new content height. Also used for typeset_done.
type ResizeRequest struct {
	Action Action `json:"action"`
	Rev    uint64 `json:"rev" validate:"required"`
	Height int    `json:"height" validate:"min=0"`
}

// FormEventRequest reports an input or submit event. Entries is the form
// encoding harvested after the renderer's submitAction hook ran. Activated is
// the control carrying the clicked marker, if any.
type FormEventRequest struct {
	Action    Action        `json:"action"`
	Rev       uint64        `json:"rev" validate:"required"`
	FormID    string        `json:"form_id" validate:"required,max=256"`
	Entries   form.Entries  `json:"entries"`
	Activated *form.Control `json:"activated,omitempty"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	// EventReady is the first message of a session.
	EventReady Event = "ready"
	// EventRender asks the client to load HTML into the sandboxed surface.
	EventRender Event = "render"
	EventState  Event = "state"
	EventGrade  Event = "grade"
	EventError  Event = "error"
	EventPong   Event = "pong"
)

// ReadyResponse tells the browser how to instrument the renderer form.
type ReadyResponse struct {
	Event       Event  `json:"event"`
	SessionID   string `json:"session_id"`
	FormID      string `json:"form_id"`
	MarkerClass string `json:"marker_class"`
}

type RenderResponse struct {
	Event Event  `json:"event"`
	Rev   uint64 `json:"rev"`
	HTML  string `json:"html"`
}

type StateResponse struct {
	Event Event                `json:"event"`
	State model.BridgeSnapshot `json:"state"`
}

type GradeResponse struct {
	Event Event              `json:"event"`
	Grade model.StudentGrade `json:"grade"`
}

type ErrorResponse struct {
	Event  Event             `json:"event"`
	Code   string            `json:"code,omitempty"`
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
