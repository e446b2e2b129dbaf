package bridge

import (
	"errors"
	"fmt"

	"github.com/stemsi/problem-bridge/internal/backend"
)

// Kind classifies bridge failures.
type Kind string

const (
	// KindLoadFailure: the render fetch failed. The surface stays blank until
	// the next context change.
	KindLoadFailure Kind = "LOAD_FAILURE"
	// KindSaveFailure: a checkpoint failed. State is untouched.
	KindSaveFailure Kind = "SAVE_FAILURE"
	// KindSubmitFailure: a submission failed. The rendered problem is kept.
	KindSubmitFailure Kind = "SUBMIT_FAILURE"
	// KindAttachmentMiss: the surface has no problem form. Logged only.
	KindAttachmentMiss Kind = "ATTACHMENT_MISS"
	// KindMalformedSubmitTarget: a submit fired without an activated control
	// or a form action.
	KindMalformedSubmitTarget Kind = "MALFORMED_SUBMIT_TARGET"
	// KindInternal is a consistency violation such as a save without a grade.
	KindInternal Kind = "INTERNAL"
)

// GenericMessage is shown for failures whose detail is not meant for users.
const GenericMessage = "An error occurred"

var (
	ErrSuperseded         = errors.New("bridge: superseded by a newer context")
	ErrNoContext          = errors.New("bridge: no submission context")
	ErrNoGrade            = errors.New("bridge: no grade id for save")
	ErrNoActivatedControl = errors.New("bridge: no activated submit control")
	ErrNoAction           = errors.New("bridge: form has no action")
)

// Error is a classified bridge failure.
type Error struct {
	Kind Kind
	Err  error
}

func newError(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// UserMessage is the text put in front of the user. Backend messages pass
// through; everything else is summarized.
func (e *Error) UserMessage() string {
	switch e.Kind {
	case KindMalformedSubmitTarget, KindInternal, KindAttachmentMiss:
		return GenericMessage
	}

	var apiErr *backend.APIError
	if errors.As(e.Err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}

	switch e.Kind {
	case KindLoadFailure:
		return "Failed to load the problem"
	case KindSaveFailure:
		return "Failed to save your answer"
	case KindSubmitFailure:
		return "Failed to submit your answer"
	}
	return GenericMessage
}

// KindOf returns the Kind of err, or KindInternal when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
