package web

import "github.com/dukex/provtrack/pkg/models"

// Envelope is the body of every API response.
type Envelope struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	Data      any    `json:"data"`
	ErrorCode string `json:"error_code,omitempty"`
}

// SubmitExecutionRequest represents the request body for running a registered specification.
type SubmitExecutionRequest struct {
	SpecID string `json:"spec_id" validate:"required"`
}

// RegisterSpecRequest represents the request body for registering a workflow specification.
type RegisterSpecRequest struct {
	Name    string            `json:"name"    validate:"required,min=1,excludesall=:/"`
	Version string            `json:"version" validate:"required,excludesall=:/"`
	Content string            `json:"content" validate:"required"`
	Inputs  map[string]string `json:"inputs"`
}

func (r RegisterSpecRequest) spec() *models.WorkflowSpec {
	return &models.WorkflowSpec{
		Name:    r.Name,
		Version: r.Version,
		Content: r.Content,
		Inputs:  r.Inputs,
	}
}
