package entity

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrSlugExists is returned when attempting to create a URL with a slug that already exists.
	ErrSlugExists = errors.New("slug exists")
	// ErrURLNotFound is returned when a URL with the specified slug cannot be found.
	ErrURLNotFound = errors.New("url not found")
	// ErrSlugGenerationExhausted is returned when no free slug was generated within the attempt limit.
	ErrSlugGenerationExhausted = errors.New("slug generation attempts exhausted")
	// ErrInvalidInput is wrapped by every ValidationError.
	ErrInvalidInput = errors.New("invalid input")
)

// ValidationError describes a rejected input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

// ValidationErrors collects every rejected field of an input.
type ValidationErrors []*ValidationError

func (e ValidationErrors) Error() string {
	msgs := make([]string, len(e))
	for i, ve := range e {
		msgs[i] = ve.Error()
	}
	return strings.Join(msgs, "; ")
}

func (e ValidationErrors) Unwrap() []error {
	errs := make([]error, len(e))
	for i, ve := range e {
		errs[i] = ve
	}
	return errs
}
