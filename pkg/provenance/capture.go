package provenance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/provtrack/pkg/cwl"
	"github.com/dukex/provtrack/pkg/eventbus"
	"github.com/dukex/provtrack/pkg/events"
	"github.com/dukex/provtrack/pkg/models"
	"github.com/dukex/provtrack/pkg/otelhelper"
	"github.com/dukex/provtrack/pkg/persistence"
	"github.com/dukex/provtrack/pkg/reana"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Capturer captures the provenance of finished executions, at most once each.
type Capturer struct {
	persistence persistence.Persistence
	remote      reana.ExecutionService
	publisher   eventbus.EventPublisher
	tracer      trace.Tracer
	logger      *slog.Logger
	layout      Layout
	newID       func() string
}

// NewCapturer creates a capturer. publisher may be nil.
func NewCapturer(
	persistence persistence.Persistence,
	remote reana.ExecutionService,
	publisher eventbus.EventPublisher,
	tracer trace.Tracer,
	logger *slog.Logger,
) *Capturer {
	return &Capturer{
		persistence: persistence,
		remote:      remote,
		publisher:   publisher,
		tracer:      tracer,
		logger:      logger.With("module", "provenance"),
		layout:      DefaultLayout(),
		newID:       uuid.NewString,
	}
}

// WithLayout replaces the workspace layout.
func (c *Capturer) WithLayout(layout Layout) *Capturer {
	c.layout = layout

	return c
}

// Capture reconstructs and stores the provenance of a finished execution owned
// by the identity's group. Nothing is stored unless the whole graph resolves.
func (c *Capturer) Capture(ctx context.Context, identity models.Identity, executionID string) (*models.Provenance, error) {
	ctx, span := otelhelper.StartSpan(ctx, c.tracer, "provenance.capture",
		attribute.String(otelhelper.ExecutionIDKey, executionID),
		attribute.String(otelhelper.GroupKey, identity.Group),
	)
	defer span.End()

	prov, err := c.capture(ctx, identity, executionID)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	otelhelper.SetOK(span)

	return prov, nil
}

func (c *Capturer) capture(ctx context.Context, identity models.Identity, executionID string) (*models.Provenance, error) {
	execution, err := c.checkPreconditions(ctx, identity, executionID)
	if err != nil {
		return nil, err
	}

	logger := c.logger.With("execution_id", execution.ID, "remote_id", execution.RemoteID)

	src, err := c.collect(ctx, identity, execution)
	if err != nil {
		return nil, err
	}

	prov, err := Assemble(*src, c.layout, c.newID)
	if err != nil {
		if !errors.Is(err, ErrResolution) {
			err = fmt.Errorf("%w: %w", ErrResolution, err)
		}

		logger.WarnContext(ctx, "provenance could not be resolved", "error", err)

		return nil, err
	}

	err = c.persistence.ProvenanceRepository().SaveProvenance(ctx, prov)
	if err != nil {
		return nil, fmt.Errorf("failed to save provenance: %w", err)
	}

	logger.InfoContext(ctx, "provenance captured",
		"entities", len(prov.Entities),
		"activities", len(prov.Activities),
	)

	c.publish(ctx, prov)

	return prov, nil
}

func (c *Capturer) checkPreconditions(ctx context.Context, identity models.Identity, executionID string) (*models.Execution, error) {
	execution, err := c.persistence.ExecutionRepository().GetByIDForGroup(ctx, executionID, identity.Group)
	if err != nil {
		return nil, err
	}

	if execution.Status != models.ExecutionStatusFinished {
		return nil, fmt.Errorf("%w: execution %s is %s", ErrExecutionNotFinished, execution.ID, execution.Status)
	}

	captured, err := c.persistence.ProvenanceRepository().Exists(ctx, execution.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing provenance: %w", err)
	}

	if captured {
		return nil, fmt.Errorf("%w: execution %s", ErrAlreadyCaptured, execution.ID)
	}

	return execution, nil
}

// collect gathers the stored records and the remote artifacts of an execution.
func (c *Capturer) collect(ctx context.Context, identity models.Identity, execution *models.Execution) (*Source, error) {
	spec, err := c.persistence.SpecRepository().GetByID(ctx, execution.SpecID, execution.Group)
	if err != nil {
		if persistence.IsSpecNotFound(err) {
			return nil, fmt.Errorf("%w: %w", ErrResolution, err)
		}

		return nil, fmt.Errorf("failed to load workflow specification: %w", err)
	}

	doc, err := cwl.Parse([]byte(spec.Content))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrResolution, err)
	}

	steps, err := c.persistence.ExecutionRepository().Steps(ctx, execution.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load execution steps: %w", err)
	}

	artifacts, err := c.remote.ListArtifacts(ctx, execution.RemoteID)
	if err != nil {
		return nil, fmt.Errorf("failed to list artifacts: %w", err)
	}

	mappingContent, err := c.remote.Download(ctx, execution.RemoteID, c.layout.MappingFile)
	if err != nil {
		if reana.IsNotFound(err) {
			return nil, fmt.Errorf("%w: mapping file %s is missing", ErrResolution, c.layout.MappingFile)
		}

		return nil, fmt.Errorf("failed to download mapping file: %w", err)
	}

	table, err := ParseMappingTable(mappingContent)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrResolution, err)
	}

	inputsContent, err := c.remote.Download(ctx, execution.RemoteID, c.layout.RuntimeInputs)
	if err != nil && !reana.IsNotFound(err) {
		return nil, fmt.Errorf("failed to download runtime inputs: %w", err)
	}

	inputs, err := ParseRuntimeInputs(inputsContent)
	if err != nil {
		return nil, err
	}

	return &Source{
		Execution: execution,
		Identity:  identity,
		Spec:      doc,
		Steps:     steps,
		Artifacts: artifacts,
		Mapping:   table,
		Inputs:    inputs,
	}, nil
}

func (c *Capturer) publish(ctx context.Context, prov *models.Provenance) {
	if c.publisher == nil {
		return
	}

	err := c.publisher.Publish(ctx, prov.Execution.ID, events.ProvenanceCaptured{
		BaseEvent:  events.NewBaseEvent(events.ProvenanceCapturedEvent, prov.Execution.ID),
		Entities:   len(prov.Entities),
		Activities: len(prov.Activities),
	})
	if err != nil {
		c.logger.ErrorContext(ctx, "failed to publish provenance captured event", "execution_id", prov.Execution.ID, "error", err)
	}
}
