// Package provenance reconstructs the provenance graph of a finished execution
// from its remote artifacts and renders it as a PROV document.
package provenance

import (
	"errors"

	"github.com/dukex/provtrack/pkg/persistence"
)

var (
	// ErrExecutionNotFound is returned when the execution does not exist or belongs to another group.
	ErrExecutionNotFound = persistence.ErrExecutionNotFound

	// ErrAlreadyCaptured is returned when provenance was already captured for the execution.
	ErrAlreadyCaptured = persistence.ErrAlreadyCaptured

	// ErrExecutionNotFinished is returned when capture is requested before the execution finished.
	ErrExecutionNotFinished = errors.New("execution has not finished")

	// ErrResolution indicates an artifact, mapping entry or input could not be resolved.
	// Capture writes nothing when it occurs.
	ErrResolution = errors.New("provenance resolution failed")

	// ErrMalformedMapping indicates a mapping table line that is not "<name>,<entity>".
	ErrMalformedMapping = errors.New("malformed mapping line")

	// ErrMappingCollision indicates two mapping lines share a key or an entity name.
	ErrMappingCollision = errors.New("mapping collision")

	// ErrNameCollision indicates two entities could not be given distinct names.
	ErrNameCollision = errors.New("entity name collision")

	// ErrIncompleteGraph indicates a provenance aggregate that cannot be rendered.
	ErrIncompleteGraph = errors.New("incomplete provenance graph")
)

// IsResolutionError checks if capture failed because something could not be resolved.
func IsResolutionError(err error) bool {
	return errors.Is(err, ErrResolution)
}
