// Package apperr holds the user-facing error taxonomy shared by the services.
package apperr

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidCredentials       = errors.New("invalid credentials")
	ErrDuplicateEmail           = errors.New("email already registered")
	ErrDuplicateRollNo          = errors.New("roll number already registered")
	ErrIneligibleCohort         = errors.New("only 3rd year, 5th semester students can register")
	ErrDuplicateSubmissionToday = errors.New("you have already submitted an application today")
	ErrNotAuthenticated         = errors.New("user not authenticated")
	ErrForbidden                = errors.New("insufficient permissions")
)

// FieldError describes one rejected input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError reports input that failed validation before reaching the store.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", f.Field, f.Message))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Kind names the taxonomy entry of err, or "Internal" when it is not one of ours.
func Kind(err error) string {
	var verr *ValidationError
	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return "InvalidCredentials"
	case errors.Is(err, ErrDuplicateEmail):
		return "DuplicateEmail"
	case errors.Is(err, ErrDuplicateRollNo):
		return "DuplicateRollNo"
	case errors.Is(err, ErrIneligibleCohort):
		return "IneligibleCohort"
	case errors.Is(err, ErrDuplicateSubmissionToday):
		return "DuplicateSubmissionToday"
	case errors.Is(err, ErrNotAuthenticated):
		return "NotAuthenticated"
	case errors.Is(err, ErrForbidden):
		return "Forbidden"
	case errors.As(err, &verr):
		return "Validation"
	default:
		return "Internal"
	}
}
