package model

import (
	"time"

	"github.com/google/uuid"
)

// ActivityKind enumerates journaled bridge operations.
type ActivityKind string

const (
	ActivitySave   ActivityKind = "SAVE"
	ActivitySubmit ActivityKind = "SUBMIT"
	ActivityLoad   ActivityKind = "LOAD"
)

// Activity is one journaled outcome of a load, save or submit.
type Activity struct {
	ID           int64        `json:"id,omitempty"`
	SessionID    uuid.UUID    `json:"session_id"`
	UserID       int          `json:"user_id"`
	ProblemID    int          `json:"problem_id"`
	GradeID      *int         `json:"grade_id,omitempty"`
	Kind         ActivityKind `json:"kind"`
	OK           bool         `json:"ok"`
	UpdatesCount *int         `json:"updates_count,omitempty"`
	ErrorKind    string       `json:"error_kind,omitempty"`
	OccurredAt   time.Time    `json:"occurred_at"`
}

// ProblemActivity summarizes a user's recent activity on one problem.
type ProblemActivity struct {
	ProblemID       int        `json:"problem_id"`
	LastSavedAt     *time.Time `json:"last_saved_at,omitempty"`
	LastSubmittedAt *time.Time `json:"last_submitted_at,omitempty"`
	Entries         []Activity `json:"entries"`
}
