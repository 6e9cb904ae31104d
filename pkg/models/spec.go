package models

import "time"

// WorkflowSpec is a registered workflow specification together with its default inputs.
type WorkflowSpec struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"       validate:"required,min=1"`
	Version   string            `json:"version"    validate:"required"`
	Content   string            `json:"content"    validate:"required"`
	Inputs    map[string]string `json:"inputs,omitempty"`
	Username  string            `json:"username"`
	Group     string            `json:"group"`
	CreatedAt time.Time         `json:"created_at"`
}

// RemoteName is the workflow name used when submitting the spec for execution.
func (s *WorkflowSpec) RemoteName() string {
	return s.Name + ":" + s.Version
}
