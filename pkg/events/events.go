// Package events defines event types and structures for execution lifecycle notifications.
package events

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

// Topic carries every provtrack event.
const Topic = "provtrack.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Execution lifecycle events.
	ExecutionSubmittedEvent    EventType = "execution.submitted"
	ExecutionStepStartedEvent  EventType = "execution.step.started"
	ExecutionStepFinishedEvent EventType = "execution.step.finished"
	ExecutionFinishedEvent     EventType = "execution.finished"

	// Provenance events.
	ProvenanceCapturedEvent EventType = "provenance.captured"
)

type BaseEvent struct {
	ID          string         `json:"id"`
	Type        EventType      `json:"type"`
	Timestamp   time.Time      `json:"timestamp"`
	ExecutionID string         `json:"execution_id"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

func NewBaseEvent(eventType EventType, executionID string) BaseEvent {
	return BaseEvent{
		ID:          uuid.New().String(),
		Type:        eventType,
		Timestamp:   time.Now().UTC(),
		ExecutionID: executionID,
	}
}

// ExecutionSubmitted is published once an execution has been started remotely
// and recorded; whoever receives it starts monitoring.
type ExecutionSubmitted struct {
	BaseEvent

	RemoteID string `json:"remote_id"`
	Group    string `json:"group"`
}

func (e ExecutionSubmitted) GetType() EventType {
	return ExecutionSubmittedEvent
}

type ExecutionStepStarted struct {
	BaseEvent

	StepID   string `json:"step_id"`
	StepName string `json:"step_name"`
}

func (e ExecutionStepStarted) GetType() EventType {
	return ExecutionStepStartedEvent
}

type ExecutionStepFinished struct {
	BaseEvent

	StepID   string `json:"step_id"`
	StepName string `json:"step_name"`
	Status   string `json:"status"`
}

func (e ExecutionStepFinished) GetType() EventType {
	return ExecutionStepFinishedEvent
}

type ExecutionFinished struct {
	BaseEvent

	Status   string        `json:"status"`
	Duration time.Duration `json:"duration"`
}

func (e ExecutionFinished) GetType() EventType {
	return ExecutionFinishedEvent
}

type ProvenanceCaptured struct {
	BaseEvent

	Entities   int `json:"entities"`
	Activities int `json:"activities"`
}

func (e ProvenanceCaptured) GetType() EventType {
	return ProvenanceCapturedEvent
}
