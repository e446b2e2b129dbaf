package response

import "github.com/stemsi/problem-bridge/internal/bridge"

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrTokenRequired ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid  ErrCode = "TOKEN_INVALID"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"
	ErrUnknownAction  ErrCode = "UNKNOWN_ACTION"

	// ─── Bridge ────────────────────────────────────────────────────────
	ErrNoContext             ErrCode = "NO_CONTEXT"
	ErrLoadFailed            ErrCode = "LOAD_FAILED"
	ErrSaveFailed            ErrCode = "SAVE_FAILED"
	ErrSubmitFailed          ErrCode = "SUBMIT_FAILED"
	ErrMalformedSubmitTarget ErrCode = "MALFORMED_SUBMIT_TARGET"
	ErrTooManySessions       ErrCode = "TOO_MANY_SESSIONS"
	ErrRateLimitExceeded     ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound ErrCode = "NOT_FOUND"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	// ─── Authentication ────────────────────────────────────────────────
	case ErrTokenRequired:
		return "Authentication token is required."
	case ErrTokenInvalid:
		return "Authentication token is invalid."

	// ─── Validation ────────────────────────────────────────────────────
	case ErrValidation:
		return "Validation failed. Please check your input."
	case ErrInvalidID:
		return "Invalid ID format."
	case ErrInvalidPayload:
		return "Invalid request payload."
	case ErrUnknownAction:
		return "Unknown action."

	// ─── Bridge ────────────────────────────────────────────────────────
	case ErrNoContext:
		return "No problem is loaded yet."
	case ErrLoadFailed:
		return "Failed to load the problem."
	case ErrSaveFailed:
		return "Failed to save your answer."
	case ErrSubmitFailed:
		return "Failed to submit your answer."
	case ErrMalformedSubmitTarget:
		return bridge.GenericMessage + "."
	case ErrTooManySessions:
		return "Too many open problem sessions. Close one and try again."
	case ErrRateLimitExceeded:
		return "Too many requests. Please slow down."

	// ─── Resources ─────────────────────────────────────────────────────
	case ErrNotFound:
		return "Resource not found."

	// ─── Server ────────────────────────────────────────────────────────
	case ErrInternal:
		return "Internal server error."
	default:
		return "An unexpected error occurred."
	}
}

// CodeForKind maps a bridge failure kind onto an API error code.
func CodeForKind(kind bridge.Kind) ErrCode {
	switch kind {
	case bridge.KindLoadFailure:
		return ErrLoadFailed
	case bridge.KindSaveFailure:
		return ErrSaveFailed
	case bridge.KindSubmitFailure:
		return ErrSubmitFailed
	case bridge.KindMalformedSubmitTarget:
		return ErrMalformedSubmitTarget
	}
	return ErrInternal
}
