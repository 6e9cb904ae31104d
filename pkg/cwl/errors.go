package cwl

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidDocument indicates the workflow document is malformed or fails schema validation.
	ErrInvalidDocument = errors.New("invalid workflow document")

	// ErrDuplicateOutput indicates two steps declare the same File output id.
	ErrDuplicateOutput = errors.New("duplicate file output id")

	// ErrDuplicateEntityName indicates two outputs statically produce files with the same name.
	ErrDuplicateEntityName = errors.New("duplicate entity name")

	// ErrUnresolvablePlaceholder indicates a placeholder input references something that does not exist.
	ErrUnresolvablePlaceholder = errors.New("unresolvable placeholder")

	// ErrUnsupportedSource indicates a step input wiring expression this package cannot interpret.
	ErrUnsupportedSource = errors.New("unsupported input source")

	// ErrNotFound is returned by a Resolver when a referenced entity or resource does not exist.
	ErrNotFound = errors.New("reference not found")
)

// PlaceholderError wraps placeholder resolution failures with the input they belong to.
type PlaceholderError struct {
	InputID   string // Workflow input carrying the placeholder
	Reference string // Entity ID or platform URL
	Err       error
}

func (e *PlaceholderError) Error() string {
	return fmt.Sprintf("input %s: placeholder %q: %v", e.InputID, e.Reference, e.Err)
}

func (e *PlaceholderError) Unwrap() error {
	return e.Err
}
