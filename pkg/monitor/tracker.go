// Package monitor follows remote executions until they reach a terminal status,
// recording every observed step.
package monitor

import (
	"time"

	"github.com/dukex/provtrack/pkg/models"
)

type TransitionKind string

const (
	TransitionOpenStep  TransitionKind = "open_step"
	TransitionCloseStep TransitionKind = "close_step"
	TransitionTerminal  TransitionKind = "terminal"
)

// Transition is one change the tracker asks the monitor to persist.
type Transition struct {
	Kind TransitionKind
	// Step is the step name for open and close transitions.
	Step string
	// StepStatus is set on close transitions.
	StepStatus models.StepStatus
	// Status is set on terminal transitions.
	Status models.ExecutionStatus
	At     time.Time
}

// Tracker turns a sequence of status observations into step boundaries.
// It performs no I/O.
type Tracker struct {
	current string
	done    bool
}

func NewTracker() *Tracker {
	return &Tracker{}
}

// ResumeTracker returns a tracker that already has openStep running.
func ResumeTracker(openStep string) *Tracker {
	return &Tracker{current: openStep}
}

// Current returns the name of the open step, or "" when none is open.
func (t *Tracker) Current() string {
	return t.current
}

func (t *Tracker) Done() bool {
	return t.done
}

// Observe records one poll result. A step name different from the open one
// closes the open step and opens the new one at the same instant.
func (t *Tracker) Observe(status models.ExecutionStatus, step string, now time.Time) []Transition {
	if t.done || step == "" || step == t.current {
		return nil
	}

	var transitions []Transition

	if t.current != "" {
		transitions = append(transitions, Transition{
			Kind:       TransitionCloseStep,
			Step:       t.current,
			StepStatus: closingStatus(status),
			At:         now,
		})
	}

	transitions = append(transitions, Transition{
		Kind: TransitionOpenStep,
		Step: step,
		At:   now,
	})

	t.current = step

	return transitions
}

// Finish closes the open step, if any, with the terminal status and ends the run.
// Calling Finish twice yields nothing the second time.
func (t *Tracker) Finish(status models.ExecutionStatus, now time.Time) []Transition {
	if t.done {
		return nil
	}

	var transitions []Transition

	if t.current != "" {
		transitions = append(transitions, Transition{
			Kind:       TransitionCloseStep,
			Step:       t.current,
			StepStatus: closingStatus(status),
			At:         now,
		})
	}

	transitions = append(transitions, Transition{
		Kind:   TransitionTerminal,
		Status: status,
		At:     now,
	})

	t.current = ""
	t.done = true

	return transitions
}

func closingStatus(status models.ExecutionStatus) models.StepStatus {
	if status == models.ExecutionStatusFailed {
		return models.StepStatusFailed
	}

	return models.StepStatusFinished
}
