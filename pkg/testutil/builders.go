// Package testutil provides test data builders for executions and provenance.
package testutil

import (
	"time"

	"github.com/dukex/provtrack/pkg/models"
	"github.com/google/uuid"
)

// StartTime is the start time of every built execution.
var StartTime = time.Date(2025, 3, 4, 10, 0, 0, 0, time.UTC)

// CreateTestExecution creates a queued execution of group "lab" that can be overridden.
func CreateTestExecution(overrides ...func(*models.Execution)) *models.Execution {
	execution := &models.Execution{
		ID:         "exec-1",
		SpecID:     "spec-1",
		RemoteID:   "remote-1",
		RemoteName: "two-step",
		RunNumber:  1,
		StartTime:  StartTime,
		Status:     models.ExecutionStatusQueued,
		Username:   "alice",
		Group:      "lab",
	}

	for _, override := range overrides {
		override(execution)
	}

	return execution
}

// WithID sets the execution and remote IDs.
func WithID(id, remoteID string) func(*models.Execution) {
	return func(e *models.Execution) {
		e.ID = id
		e.RemoteID = remoteID
	}
}

// WithStatus sets the status. Terminal statuses also get an end time.
func WithStatus(status models.ExecutionStatus) func(*models.Execution) {
	return func(e *models.Execution) {
		e.Status = status

		if status.IsTerminal() {
			end := e.StartTime.Add(time.Minute)
			e.EndTime = &end
		}
	}
}

// WithGroup sets the owning user and group.
func WithGroup(username, group string) func(*models.Execution) {
	return func(e *models.Execution) {
		e.Username = username
		e.Group = group
	}
}

// CreateTestProvenance creates the smallest complete graph for a finished
// execution: the workflow, one output and both agents.
func CreateTestProvenance(execution *models.Execution) *models.Provenance {
	end := execution.StartTime.Add(time.Minute)
	if execution.EndTime != nil {
		end = *execution.EndTime
	}

	outputID := uuid.NewString()

	return &models.Provenance{
		Execution: execution,
		Entities: []*models.Entity{
			{ID: uuid.NewString(), ExecutionID: execution.ID, Type: models.EntityTypeWorkflow, Path: "workflow.json", Name: "workflow"},
			{ID: outputID, ExecutionID: execution.ID, Type: models.EntityTypeFinalResult, Path: "outputs/out.txt", Name: "out.txt"},
		},
		Activities: []*models.Activity{{
			ID:          uuid.NewString(),
			ExecutionID: execution.ID,
			Type:        models.ActivityTypeWorkflowExecution,
			Name:        execution.DisplayName(),
			StartTime:   execution.StartTime,
			EndTime:     end,
			Used:        []string{},
			Generated:   []string{outputID},
		}},
		Agents: []*models.Agent{
			{ID: uuid.NewString(), ExecutionID: execution.ID, Type: models.AgentTypePerson, Name: execution.Username},
			{ID: uuid.NewString(), ExecutionID: execution.ID, Type: models.AgentTypeSoftware, Name: "software executing experiments"},
		},
	}
}
