package domain

import (
	"errors"
	"strings"
)

var (
	// ErrMemberNotFound is returned when a member id does not resolve.
	ErrMemberNotFound = errors.New("member not found")
	// ErrEmailTaken is returned when another member already uses the email.
	ErrEmailTaken = errors.New("email already registered")
	// ErrUnknownMember is returned when a workout references a member that does not exist.
	ErrUnknownMember = errors.New("member_id does not reference an existing member")
)

// FieldError describes a single invalid input field.
type FieldError struct {
	Field string `json:"field"`
	Error string `json:"error"`
}

// ValidationError collects field-level problems with a write request.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed"
	}
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+" "+f.Error)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) add(field, msg string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Error: msg})
}

func (e *ValidationError) orNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}
