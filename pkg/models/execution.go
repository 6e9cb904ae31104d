// Package models defines the domain models for workflow executions and their provenance.
package models

import "time"

// ExecutionStatus represents the lifecycle state of a remote execution.
type ExecutionStatus string

const (
	ExecutionStatusQueued   ExecutionStatus = "queued"
	ExecutionStatusRunning  ExecutionStatus = "running"
	ExecutionStatusFinished ExecutionStatus = "finished"
	ExecutionStatusFailed   ExecutionStatus = "failed"
)

// IsTerminal reports whether no further transitions can follow the status.
func (s ExecutionStatus) IsTerminal() bool {
	return s == ExecutionStatusFinished || s == ExecutionStatusFailed
}

// IsValid reports whether the status is one of the known execution states.
func (s ExecutionStatus) IsValid() bool {
	switch s {
	case ExecutionStatusQueued, ExecutionStatusRunning, ExecutionStatusFinished, ExecutionStatusFailed:
		return true
	default:
		return false
	}
}

// StepStatus represents the state of a single observed step.
type StepStatus string

const (
	StepStatusRunning  StepStatus = "running"
	StepStatusFinished StepStatus = "finished"
	StepStatusFailed   StepStatus = "failed"
)

// Execution is one remote run of one registered workflow specification.
type Execution struct {
	ID         string          `json:"id"`
	SpecID     string          `json:"spec_id"`
	RemoteID   string          `json:"remote_id"`
	RemoteName string          `json:"remote_name"`
	RunNumber  int             `json:"run_number"`
	StartTime  time.Time       `json:"start_time"`
	EndTime    *time.Time      `json:"end_time,omitempty"`
	Status     ExecutionStatus `json:"status"`
	Username   string          `json:"username"`
	Group      string          `json:"group"`
}

// DisplayName is the "<name>:<run>" label the execution service uses for a run.
func (e *Execution) DisplayName() string {
	return e.RemoteName + ":" + itoa(e.RunNumber)
}

// ExecutionStep is one step observed while monitoring an execution.
type ExecutionStep struct {
	ID          string     `json:"id"`
	ExecutionID string     `json:"execution_id"`
	Name        string     `json:"name"`
	Status      StepStatus `json:"status"`
	StartTime   time.Time  `json:"start_time"`
	EndTime     *time.Time `json:"end_time,omitempty"`
}

// IsOpen reports whether the step has not been closed yet.
func (s *ExecutionStep) IsOpen() bool {
	return s.EndTime == nil
}
