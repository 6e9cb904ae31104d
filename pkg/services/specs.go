package services

import (
	"context"
	"fmt"
	"time"

	"github.com/dukex/provtrack/pkg/cwl"
	"github.com/dukex/provtrack/pkg/models"
	"github.com/dukex/provtrack/pkg/persistence"
	"github.com/google/uuid"
)

// Specs registers workflow specifications for a group.
type Specs struct {
	persistence persistence.Persistence

	newID func() string
	now   func() time.Time
}

func NewSpecs(persistence persistence.Persistence) *Specs {
	return &Specs{
		persistence: persistence,
		newID:       uuid.NewString,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Register validates the specification content and stores it for the identity's group.
func (s *Specs) Register(ctx context.Context, identity models.Identity, spec *models.WorkflowSpec) (*models.WorkflowSpec, error) {
	if identity.Group == "" {
		return nil, ErrEmptyGroup
	}

	if err := cwl.Validate([]byte(spec.Content)); err != nil {
		return nil, err
	}

	doc, err := cwl.Parse([]byte(spec.Content))
	if err != nil {
		return nil, err
	}

	for id := range spec.Inputs {
		if doc.Input(id) == nil {
			return nil, NewValidationError("Register", "unknown_input", fmt.Sprintf("input %s is not declared by the workflow", id), ErrInvalidRequest)
		}
	}

	// Mapping lines fail on duplicate outputs or entity names; catch that at registration.
	if _, err := cwl.MappingLines(doc); err != nil {
		return nil, err
	}

	registered := *spec
	registered.ID = s.newID()
	registered.Username = identity.Username
	registered.Group = identity.Group
	registered.CreatedAt = s.now()

	if err := s.persistence.SpecRepository().Save(ctx, &registered); err != nil {
		return nil, err
	}

	return &registered, nil
}

// Get returns a specification of the identity's group.
func (s *Specs) Get(ctx context.Context, identity models.Identity, id string) (*models.WorkflowSpec, error) {
	return s.persistence.SpecRepository().GetByID(ctx, id, identity.Group)
}
