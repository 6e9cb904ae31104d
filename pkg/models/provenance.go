package models

import "time"

// EntityType classifies a provenance entity.
type EntityType string

const (
	EntityTypeWorkflow           EntityType = "workflow"
	EntityTypeIntermediateResult EntityType = "intermediate_result"
	EntityTypeFinalResult        EntityType = "final_result"
	EntityTypeExternalInput      EntityType = "external_input"
)

// ActivityType classifies a provenance activity.
type ActivityType string

const (
	ActivityTypeStepExecution     ActivityType = "step_execution"
	ActivityTypeWorkflowExecution ActivityType = "workflow_execution"
)

// AgentType classifies a provenance agent.
type AgentType string

const (
	AgentTypePerson   AgentType = "person"
	AgentTypeSoftware AgentType = "software"
)

// Entity is a file or logical artifact of an execution.
type Entity struct {
	ID           string     `json:"id"`
	ExecutionID  string     `json:"execution_id"`
	Type         EntityType `json:"type"`
	Path         string     `json:"path"`
	Name         string     `json:"name"`
	Size         string     `json:"size,omitempty"`
	LastModified *time.Time `json:"last_modified,omitempty"`
}

// Activity is the execution of one step or of the whole workflow.
// Used and Generated hold entity IDs of the same execution.
type Activity struct {
	ID          string       `json:"id"`
	ExecutionID string       `json:"execution_id"`
	Type        ActivityType `json:"type"`
	Name        string       `json:"name"`
	StartTime   time.Time    `json:"start_time"`
	EndTime     time.Time    `json:"end_time"`
	Used        []string     `json:"used"`
	Generated   []string     `json:"generated"`
}

// Agent is a person or software responsible for an execution.
type Agent struct {
	ID          string    `json:"id"`
	ExecutionID string    `json:"execution_id"`
	Type        AgentType `json:"type"`
	Name        string    `json:"name"`
}

// Provenance is the complete provenance graph captured for one execution.
type Provenance struct {
	Execution  *Execution  `json:"execution"`
	Entities   []*Entity   `json:"entities"`
	Activities []*Activity `json:"activities"`
	Agents     []*Agent    `json:"agents"`
}

// EntityByID returns the entity with the given ID, or nil.
func (p *Provenance) EntityByID(id string) *Entity {
	for _, entity := range p.Entities {
		if entity.ID == id {
			return entity
		}
	}

	return nil
}

// WorkflowEntity returns the entity describing the workflow specification, or nil.
func (p *Provenance) WorkflowEntity() *Entity {
	for _, entity := range p.Entities {
		if entity.Type == EntityTypeWorkflow {
			return entity
		}
	}

	return nil
}

// WorkflowActivity returns the activity spanning the whole run, or nil.
func (p *Provenance) WorkflowActivity() *Activity {
	for _, activity := range p.Activities {
		if activity.Type == ActivityTypeWorkflowExecution {
			return activity
		}
	}

	return nil
}

// Agent returns the first agent of the given type, or nil.
func (p *Provenance) Agent(agentType AgentType) *Agent {
	for _, agent := range p.Agents {
		if agent.Type == agentType {
			return agent
		}
	}

	return nil
}
