package model

import (
	"encoding/json"
	"time"
)

// SubmissionContext identifies what one bridge instance is rendering. It is
// immutable for a rendering cycle; a new value triggers a full reload.
type SubmissionContext struct {
	ProblemID                    int     `json:"problem_id" validate:"required,min=1"`
	GradeID                      *int    `json:"grade_id,omitempty" validate:"omitempty,min=1"`
	WorkbookID                   *int    `json:"workbook_id,omitempty" validate:"omitempty,min=1"`
	Readonly                     bool    `json:"readonly"`
	StudentTopicAssessmentInfoID *int    `json:"student_topic_assessment_info_id,omitempty" validate:"omitempty,min=1"`
	PreviewPath                  *string `json:"preview_path,omitempty" validate:"omitempty,max=1024"`
	PreviewSeed                  *int    `json:"preview_seed,omitempty"`
}

// RenderSurfaceState is what the host shows around the sandboxed surface.
type RenderSurfaceState struct {
	HTMLContent  string `json:"html_content"`
	IsLoading    bool   `json:"is_loading"`
	ErrorMessage string `json:"error_message,omitempty"`
	HeightPx     int    `json:"height_px"`
}

// Phase enumerates bridge states.
type Phase string

const (
	PhaseIdle    Phase = "IDLE"
	PhaseLoading Phase = "LOADING"
	PhaseReady   Phase = "READY"
	PhaseError   Phase = "ERROR"
)

// StudentGrade is the grade summary the backend returns after a submission.
type StudentGrade struct {
	ID                  *int            `json:"id,omitempty"`
	OverallBestScore    float64         `json:"overallBestScore"`
	EffectiveScore      float64         `json:"effectiveScore"`
	BestScore           float64         `json:"bestScore"`
	NumAttempts         int             `json:"numAttempts"`
	NumLegalAttempts    int             `json:"numLegalAttempts"`
	Locked              bool            `json:"locked"`
	CurrentProblemState json.RawMessage `json:"currentProblemState,omitempty"`
}

// SaveResult reports whether a checkpoint changed anything. Zero is a no-op, not an error.
type SaveResult struct {
	UpdatesCount int `json:"updatesCount"`
}

// SubmitResult carries the re-rendered problem and the updated grade.
type SubmitResult struct {
	RenderedHTML string
	StudentGrade StudentGrade
}

// BridgeSnapshot is the state the surrounding page renders. Version grows with
// every change so consumers can drop out-of-order deliveries.
type BridgeSnapshot struct {
	Version         uint64             `json:"version"`
	Phase           Phase              `json:"phase"`
	ProblemID       int                `json:"problem_id,omitempty"`
	Surface         RenderSurfaceState `json:"surface"`
	LastSavedAt     *time.Time         `json:"last_saved_at,omitempty"`
	LastSubmittedAt *time.Time         `json:"last_submitted_at,omitempty"`
}
