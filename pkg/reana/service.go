// Package reana talks to a REANA-compatible remote execution service.
package reana

import (
	"context"
	"time"

	"github.com/dukex/provtrack/pkg/models"
)

// Handle identifies a submitted remote workflow.
type Handle struct {
	ID   string
	Name string
}

// Run describes a started remote workflow.
type Run struct {
	ID        string
	Name      string
	RunNumber int
	Status    models.ExecutionStatus
}

// Status is one observation of a remote workflow.
type Status struct {
	Status      models.ExecutionStatus
	CurrentStep string
	RawStatus   string
}

// Artifact is one file in a remote workflow workspace.
type Artifact struct {
	Name         string
	Size         string
	LastModified *time.Time
}

// ExecutionService is the remote execution service the rest of the system depends on.
type ExecutionService interface {
	Submit(ctx context.Context, name string, spec []byte, parameters map[string]any) (*Handle, error)
	Start(ctx context.Context, id string) (*Run, error)
	Status(ctx context.Context, id string) (*Status, error)
	ListArtifacts(ctx context.Context, id string) ([]Artifact, error)
	Download(ctx context.Context, id, name string) ([]byte, error)
	Upload(ctx context.Context, id, name string, content []byte) error
	Delete(ctx context.Context, id string) error
}

// TranslateStatus maps a remote status string onto the execution lifecycle.
// Unknown values return an empty status.
func TranslateStatus(remote string) models.ExecutionStatus {
	switch remote {
	case "created", "queued", "pending":
		return models.ExecutionStatusQueued
	case "running":
		return models.ExecutionStatusRunning
	case "finished":
		return models.ExecutionStatusFinished
	case "failed", "stopped", "deleted":
		return models.ExecutionStatusFailed
	default:
		return ""
	}
}
