package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"time"

	"github.com/dukex/provtrack/pkg/cwl"
	"github.com/dukex/provtrack/pkg/eventbus"
	"github.com/dukex/provtrack/pkg/events"
	"github.com/dukex/provtrack/pkg/models"
	"github.com/dukex/provtrack/pkg/otelhelper"
	"github.com/dukex/provtrack/pkg/persistence"
	"github.com/dukex/provtrack/pkg/platform"
	"github.com/dukex/provtrack/pkg/reana"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	// UploadDir is the workspace directory staged input files are written to.
	UploadDir = "uploads"

	// RuntimeInputsFile is the workspace file recording the parameters a run starts with.
	RuntimeInputsFile = "inputs.json"
)

// PlatformResolver looks up resources on the external data platform.
type PlatformResolver interface {
	Resolve(ctx context.Context, url string) (json.RawMessage, error)
}

// Monitors runs background monitors. monitor.Manager satisfies it.
type Monitors interface {
	Start(ctx context.Context, execution *models.Execution) (bool, error)
	Stop(executionID string) bool
}

// ExecutionDetails is an execution together with its observed steps.
type ExecutionDetails struct {
	Execution *models.Execution       `json:"execution"`
	Steps     []*models.ExecutionStep `json:"steps"`
}

type Executions struct {
	persistence persistence.Persistence
	remote      reana.ExecutionService
	platform    PlatformResolver
	publisher   eventbus.EventPublisher
	monitors    Monitors
	tracer      trace.Tracer
	logger      *slog.Logger

	newID func() string
	now   func() time.Time
}

// NewExecutions creates the execution service. publisher may be nil.
func NewExecutions(
	persistence persistence.Persistence,
	remote reana.ExecutionService,
	platform PlatformResolver,
	publisher eventbus.EventPublisher,
	tracer trace.Tracer,
	logger *slog.Logger,
) *Executions {
	return &Executions{
		persistence: persistence,
		remote:      remote,
		platform:    platform,
		publisher:   publisher,
		tracer:      tracer,
		logger:      logger.With("module", "executions"),
		newID:       uuid.NewString,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// WithMonitors makes Submit start monitoring in this process in addition to
// publishing the submission.
func (s *Executions) WithMonitors(monitors Monitors) *Executions {
	s.monitors = monitors

	return s
}

// Submit preprocesses a registered specification, runs it on the execution
// service and records the new execution. Nothing is submitted when a
// placeholder cannot be resolved; a remote workflow created before a later
// failure is deleted again.
func (s *Executions) Submit(ctx context.Context, identity models.Identity, specID string) (*models.Execution, error) {
	ctx, span := otelhelper.StartSpan(ctx, s.tracer, "executions.submit",
		attribute.String(otelhelper.SpecIDKey, specID),
		attribute.String(otelhelper.GroupKey, identity.Group),
	)
	defer span.End()

	execution, err := s.submit(ctx, identity, specID)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	span.SetAttributes(attribute.String(otelhelper.ExecutionIDKey, execution.ID))
	otelhelper.SetOK(span)

	return execution, nil
}

func (s *Executions) submit(ctx context.Context, identity models.Identity, specID string) (*models.Execution, error) {
	if identity.Group == "" {
		return nil, ErrEmptyGroup
	}

	spec, err := s.persistence.SpecRepository().GetByID(ctx, specID, identity.Group)
	if err != nil {
		return nil, err
	}

	doc, needed, err := s.prepare(ctx, identity, spec)
	if err != nil {
		return nil, err
	}

	content, err := doc.JSON()
	if err != nil {
		return nil, err
	}

	parameters, err := s.parameters(doc, spec, needed)
	if err != nil {
		return nil, err
	}

	logger := s.logger.With("spec_id", spec.ID, "group", identity.Group)

	handle, err := s.remote.Submit(ctx, spec.RemoteName(), content, parameters)
	if err != nil {
		return nil, fmt.Errorf("failed to submit workflow: %w", err)
	}

	logger = logger.With("remote_id", handle.ID)

	execution, err := s.launch(ctx, identity, spec, handle, needed, parameters)
	if err != nil {
		s.discard(ctx, logger, handle.ID)

		return nil, err
	}

	logger.InfoContext(ctx, "execution submitted", "execution_id", execution.ID, "run_number", execution.RunNumber)

	s.dispatch(ctx, execution)

	return execution, nil
}

// prepare validates the specification, injects the mapping step and resolves placeholders.
func (s *Executions) prepare(ctx context.Context, identity models.Identity, spec *models.WorkflowSpec) (*cwl.Document, []cwl.NeededEntity, error) {
	if err := cwl.Validate([]byte(spec.Content)); err != nil {
		return nil, nil, err
	}

	doc, err := cwl.Parse([]byte(spec.Content))
	if err != nil {
		return nil, nil, err
	}

	doc, err = cwl.InjectMappingStep(doc)
	if err != nil {
		return nil, nil, err
	}

	doc, needed, err := cwl.ResolvePlaceholders(ctx, doc, &resolver{
		identity:    identity,
		persistence: s.persistence,
		platform:    s.platform,
	})
	if err != nil {
		return nil, nil, err
	}

	return doc, needed, nil
}

// parameters merges the specification's default inputs with the staged files.
func (s *Executions) parameters(doc *cwl.Document, spec *models.WorkflowSpec, needed []cwl.NeededEntity) (map[string]any, error) {
	parameters := make(map[string]any, len(spec.Inputs)+len(needed))

	for id, value := range spec.Inputs {
		input := doc.Input(id)
		if input == nil {
			return nil, NewValidationError("Submit", "unknown_input", "input "+id+" is not declared by the workflow", ErrInvalidRequest)
		}

		if input.IsFile() {
			parameters[id] = fileParameter(value)

			continue
		}

		parameters[id] = value
	}

	for _, entity := range needed {
		parameters[entity.InputID] = fileParameter(stagedPath(entity))
	}

	return parameters, nil
}

func fileParameter(filePath string) map[string]any {
	return map[string]any{"class": "File", "path": filePath}
}

func stagedPath(entity cwl.NeededEntity) string {
	return path.Join(UploadDir, entity.FileName)
}

// launch stages inputs, starts the remote workflow and records the execution.
func (s *Executions) launch(
	ctx context.Context,
	identity models.Identity,
	spec *models.WorkflowSpec,
	handle *reana.Handle,
	needed []cwl.NeededEntity,
	parameters map[string]any,
) (*models.Execution, error) {
	for _, entity := range needed {
		if err := s.materialize(ctx, handle.ID, entity); err != nil {
			return nil, err
		}
	}

	inputs, err := json.Marshal(map[string]any{"parameters": parameters})
	if err != nil {
		return nil, fmt.Errorf("failed to encode runtime inputs: %w", err)
	}

	if err := s.remote.Upload(ctx, handle.ID, RuntimeInputsFile, inputs); err != nil {
		return nil, fmt.Errorf("failed to upload runtime inputs: %w", err)
	}

	run, err := s.remote.Start(ctx, handle.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to start workflow: %w", err)
	}

	name := run.Name
	if name == "" {
		name = handle.Name
	}

	execution := &models.Execution{
		ID:         s.newID(),
		SpecID:     spec.ID,
		RemoteID:   handle.ID,
		RemoteName: name,
		RunNumber:  run.RunNumber,
		StartTime:  s.now(),
		Status:     models.ExecutionStatusQueued,
		Username:   identity.Username,
		Group:      identity.Group,
	}

	if err := s.persistence.ExecutionRepository().Create(ctx, execution); err != nil {
		return nil, fmt.Errorf("failed to record execution: %w", err)
	}

	return execution, nil
}

// materialize copies one resolved placeholder into the new workspace.
func (s *Executions) materialize(ctx context.Context, remoteID string, entity cwl.NeededEntity) error {
	var content []byte

	switch entity.Kind {
	case cwl.PlaceholderEntity:
		source, err := s.persistence.ExecutionRepository().GetByID(ctx, entity.Entity.ExecutionID)
		if err != nil {
			return fmt.Errorf("failed to load execution of entity %s: %w", entity.Entity.ID, err)
		}

		content, err = s.remote.Download(ctx, source.RemoteID, entity.Entity.Path)
		if err != nil {
			return fmt.Errorf("failed to download entity %s: %w", entity.Entity.ID, err)
		}
	case cwl.PlaceholderPlatform:
		content = entity.Data
	default:
		return fmt.Errorf("%w: unknown placeholder kind %q", ErrInvalidRequest, entity.Kind)
	}

	if err := s.remote.Upload(ctx, remoteID, stagedPath(entity), content); err != nil {
		return fmt.Errorf("failed to stage input %s: %w", entity.InputID, err)
	}

	return nil
}

// discard deletes a remote workflow left behind by a failed submission.
func (s *Executions) discard(ctx context.Context, logger *slog.Logger, remoteID string) {
	if err := s.remote.Delete(context.WithoutCancel(ctx), remoteID); err != nil {
		logger.ErrorContext(ctx, "failed to delete remote workflow after failed submission", "error", err)

		return
	}

	logger.InfoContext(ctx, "deleted remote workflow after failed submission")
}

// dispatch hands the execution to the monitors. Failures are logged; the
// sweeper picks the execution up later.
func (s *Executions) dispatch(ctx context.Context, execution *models.Execution) {
	if s.publisher != nil {
		err := s.publisher.Publish(ctx, execution.ID, events.ExecutionSubmitted{
			BaseEvent: events.NewBaseEvent(events.ExecutionSubmittedEvent, execution.ID),
			RemoteID:  execution.RemoteID,
			Group:     execution.Group,
		})
		if err != nil {
			s.logger.ErrorContext(ctx, "failed to publish execution submitted event", "execution_id", execution.ID, "error", err)
		}
	}

	if s.monitors != nil {
		monitored := *execution
		if _, err := s.monitors.Start(ctx, &monitored); err != nil {
			s.logger.ErrorContext(ctx, "failed to start monitor", "execution_id", execution.ID, "error", err)
		}
	}
}

// Get returns an execution of the identity's group with its steps.
func (s *Executions) Get(ctx context.Context, identity models.Identity, id string) (*ExecutionDetails, error) {
	execution, err := s.persistence.ExecutionRepository().GetByIDForGroup(ctx, id, identity.Group)
	if err != nil {
		return nil, err
	}

	steps, err := s.persistence.ExecutionRepository().Steps(ctx, execution.ID)
	if err != nil {
		return nil, err
	}

	return &ExecutionDetails{Execution: execution, Steps: steps}, nil
}

// List returns the executions of the identity's group, newest first.
func (s *Executions) List(ctx context.Context, identity models.Identity) ([]*models.Execution, error) {
	if identity.Group == "" {
		return nil, ErrEmptyGroup
	}

	return s.persistence.ExecutionRepository().ListByGroup(ctx, identity.Group)
}

// Delete removes the remote workflow and the local record, provenance included.
func (s *Executions) Delete(ctx context.Context, identity models.Identity, id string) error {
	execution, err := s.persistence.ExecutionRepository().GetByIDForGroup(ctx, id, identity.Group)
	if err != nil {
		return err
	}

	if s.monitors != nil {
		s.monitors.Stop(execution.ID)
	}

	err = s.remote.Delete(ctx, execution.RemoteID)
	if err != nil && !reana.IsNotFound(err) {
		return fmt.Errorf("failed to delete remote workflow: %w", err)
	}

	err = s.persistence.ExecutionRepository().Delete(ctx, execution.ID)
	if err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "execution deleted", "execution_id", execution.ID, "remote_id", execution.RemoteID)

	return nil
}

// resolver answers placeholder lookups for one identity. Entities of other
// groups are reported as missing.
type resolver struct {
	identity    models.Identity
	persistence persistence.Persistence
	platform    PlatformResolver
}

func (r *resolver) Entity(ctx context.Context, id string) (*models.Entity, error) {
	entity, err := r.persistence.ProvenanceRepository().EntityByID(ctx, id)
	if err != nil {
		if persistence.IsNotFound(err) {
			return nil, fmt.Errorf("%w: %w", cwl.ErrNotFound, err)
		}

		return nil, err
	}

	_, err = r.persistence.ExecutionRepository().GetByIDForGroup(ctx, entity.ExecutionID, r.identity.Group)
	if err != nil {
		if persistence.IsNotFound(err) {
			return nil, fmt.Errorf("%w: entity %s", cwl.ErrNotFound, id)
		}

		return nil, err
	}

	return entity, nil
}

func (r *resolver) Platform(ctx context.Context, url string) (json.RawMessage, error) {
	if r.platform == nil {
		return nil, fmt.Errorf("%w: no data platform configured", cwl.ErrNotFound)
	}

	data, err := r.platform.Resolve(ctx, url)
	if err != nil {
		if errors.Is(err, platform.ErrNotFound) || errors.Is(err, platform.ErrInvalidURL) {
			return nil, fmt.Errorf("%w: %w", cwl.ErrNotFound, err)
		}

		return nil, err
	}

	return data, nil
}
