package models

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const requiredTag = "required"

// Execution Model Tests

func TestExecutionStatus_Terminal(t *testing.T) {
	tests := []struct {
		status   ExecutionStatus
		terminal bool
		valid    bool
	}{
		{status: ExecutionStatusQueued, terminal: false, valid: true},
		{status: ExecutionStatusRunning, terminal: false, valid: true},
		{status: ExecutionStatusFinished, terminal: true, valid: true},
		{status: ExecutionStatusFailed, terminal: true, valid: true},
		{status: "stopped", terminal: false, valid: false},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.terminal, tt.status.IsTerminal())
			assert.Equal(t, tt.valid, tt.status.IsValid())
		})
	}
}

func TestExecution_DisplayName(t *testing.T) {
	execution := &Execution{RemoteName: "two-step", RunNumber: 3}

	assert.Equal(t, "two-step:3", execution.DisplayName())
}

func TestExecution_JSONOmitsOpenEndTime(t *testing.T) {
	data, err := json.Marshal(&Execution{ID: "exec-1", Status: ExecutionStatusRunning})
	require.NoError(t, err)

	assert.NotContains(t, string(data), "end_time")
}

func TestExecutionStep_IsOpen(t *testing.T) {
	step := &ExecutionStep{Name: "stepA", Status: StepStatusRunning, StartTime: time.Now()}
	assert.True(t, step.IsOpen())

	end := step.StartTime.Add(time.Second)
	step.EndTime = &end
	assert.False(t, step.IsOpen())
}

// Identity Tests

func TestIdentity_Owns(t *testing.T) {
	identity := Identity{Username: "alice", Group: "lab"}

	assert.True(t, identity.Owns(&Execution{Group: "lab"}))
	assert.False(t, identity.Owns(&Execution{Group: "other"}))
	assert.False(t, identity.Owns(nil))
}

func TestIdentity_Validation_MissingGroup(t *testing.T) {
	err := validator.New().Struct(Identity{Username: "alice"})
	require.Error(t, err)

	validationErrors := func() validator.ValidationErrors {
		var target validator.ValidationErrors

		_ = errors.As(err, &target)

		return target
	}()
	found := false

	for _, fieldErr := range validationErrors {
		if fieldErr.Field() == "Group" && fieldErr.Tag() == requiredTag {
			found = true
		}
	}

	assert.True(t, found, "expected required error on Group")
}

// Spec Tests

func TestWorkflowSpec_RemoteName(t *testing.T) {
	spec := &WorkflowSpec{Name: "two-step", Version: "1"}

	assert.Equal(t, "two-step:1", spec.RemoteName())
}

// Provenance Tests

func TestProvenance_Lookups(t *testing.T) {
	prov := &Provenance{
		Entities: []*Entity{
			{ID: "e-1", Type: EntityTypeIntermediateResult},
			{ID: "e-wf", Type: EntityTypeWorkflow},
		},
		Activities: []*Activity{
			{ID: "a-1", Type: ActivityTypeStepExecution},
			{ID: "a-wf", Type: ActivityTypeWorkflowExecution},
		},
		Agents: []*Agent{{ID: "p", Type: AgentTypePerson}},
	}

	assert.Equal(t, "e-1", prov.EntityByID("e-1").ID)
	assert.Nil(t, prov.EntityByID("missing"))
	assert.Equal(t, "e-wf", prov.WorkflowEntity().ID)
	assert.Equal(t, "a-wf", prov.WorkflowActivity().ID)
	assert.Equal(t, "p", prov.Agent(AgentTypePerson).ID)
	assert.Nil(t, prov.Agent(AgentTypeSoftware))
}
