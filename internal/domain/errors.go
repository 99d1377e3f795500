package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyQuiz is returned when a session is requested for a quiz with no questions.
	ErrEmptyQuiz = errors.New("quiz has no questions")
	// ErrSessionNotFound is returned when a quiz session has not been initialized or expired.
	ErrSessionNotFound = errors.New("quiz session not found")
	// ErrQuizNotFound indicates the saved quiz could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrUnauthorized is returned when a caller has no usable bearer token.
	ErrUnauthorized = errors.New("authentication required")
	// ErrSaveFailed wraps persistence collaborator failures; session state is unchanged.
	ErrSaveFailed = errors.New("quiz could not be saved")
	// ErrValidation matches every *ValidationError via errors.Is.
	ErrValidation = errors.New("validation failed")
)

// ValidationKind classifies a ValidationError.
type ValidationKind string

const (
	KindOutOfRange    ValidationKind = "out_of_range"
	KindMissing       ValidationKind = "missing"
	KindDuplicate     ValidationKind = "duplicate"
	KindOptionCount   ValidationKind = "option_count"
	KindCorrectOption ValidationKind = "correct_option"
	KindInconsistent  ValidationKind = "inconsistent"
)

// ValidationError reports rejected input without touching session state.
type ValidationError struct {
	Kind    ValidationKind
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.Field, e.Kind, e.Message)
}

// Is lets callers match any validation error with ErrValidation.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// NewValidationError builds a ValidationError with a formatted message.
func NewValidationError(kind ValidationKind, field, format string, args ...any) *ValidationError {
	return &ValidationError{Kind: kind, Field: field, Message: fmt.Sprintf(format, args...)}
}
