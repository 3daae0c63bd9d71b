// Package apperr defines the error taxonomy shared by the quiz engine and its transports.
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")

	// ErrStale is returned when a conditional write lost a race. Callers refresh and retry.
	ErrStale = errors.New("stale state, refresh and retry")

	ErrInvalidResponse           = errors.New("invalid response")
	ErrUnsupportedQuestionType   = errors.New("unsupported question type")
	ErrInvalidQuestionDefinition = errors.New("invalid question definition")

	// ErrGraderNotRegistered means a known question type has no grader wired in.
	ErrGraderNotRegistered = errors.New("grader not registered")
)

var (
	ErrAttemptCompleted = fmt.Errorf("%w: attempt already completed", ErrConflict)
	ErrOutOfOrder       = fmt.Errorf("%w: question is not the current question", ErrConflict)
	ErrNoHearts         = fmt.Errorf("%w: no hearts left", ErrConflict)
	ErrAlreadyPassed    = fmt.Errorf("%w: lesson quiz already passed", ErrConflict)
	ErrLessonLocked     = fmt.Errorf("%w: lesson sections are not complete", ErrConflict)
)

// Reason returns a stable, machine readable reason for err.
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrStale):
		return "STALE"
	case errors.Is(err, ErrAttemptCompleted):
		return "ATTEMPT_COMPLETED"
	case errors.Is(err, ErrOutOfOrder):
		return "OUT_OF_ORDER"
	case errors.Is(err, ErrNoHearts):
		return "NO_HEARTS"
	case errors.Is(err, ErrAlreadyPassed):
		return "ALREADY_PASSED"
	case errors.Is(err, ErrLessonLocked):
		return "LESSON_LOCKED"
	case errors.Is(err, ErrConflict):
		return "CONFLICT"
	case errors.Is(err, ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, ErrUnauthorized):
		return "UNAUTHORIZED"
	case errors.Is(err, ErrInvalidResponse):
		return "INVALID_RESPONSE"
	case errors.Is(err, ErrUnsupportedQuestionType):
		return "UNSUPPORTED_QUESTION_TYPE"
	case errors.Is(err, ErrInvalidQuestionDefinition):
		return "INVALID_QUESTION_DEFINITION"
	default:
		return "INTERNAL"
	}
}

// IsClientError reports whether err was caused by caller input rather than server state.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidResponse) || errors.Is(err, ErrUnsupportedQuestionType)
}
