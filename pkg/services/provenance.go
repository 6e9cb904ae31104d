package services

import (
	"context"
	"log/slog"

	"github.com/dukex/provtrack/pkg/models"
	"github.com/dukex/provtrack/pkg/otelhelper"
	"github.com/dukex/provtrack/pkg/persistence"
	"github.com/dukex/provtrack/pkg/provenance"
	"github.com/dukex/provtrack/pkg/provenance/dot"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Capturer captures the provenance of one execution. provenance.Capturer satisfies it.
type Capturer interface {
	Capture(ctx context.Context, identity models.Identity, executionID string) (*models.Provenance, error)
}

// Renderer turns a PROV document into a graph artifact. dot.Renderer satisfies it.
type Renderer interface {
	Render(ctx context.Context, doc *provenance.Document, format dot.Format) (*dot.Artifact, error)
}

type Provenance struct {
	persistence persistence.Persistence
	capturer    Capturer
	renderer    Renderer
	tracer      trace.Tracer
	logger      *slog.Logger
}

func NewProvenance(
	persistence persistence.Persistence,
	capturer Capturer,
	renderer Renderer,
	tracer trace.Tracer,
	logger *slog.Logger,
) *Provenance {
	return &Provenance{
		persistence: persistence,
		capturer:    capturer,
		renderer:    renderer,
		tracer:      tracer,
		logger:      logger.With("module", "provenance_service"),
	}
}

// Capture captures the provenance of a finished execution of the identity's group.
func (s *Provenance) Capture(ctx context.Context, identity models.Identity, executionID string) (*models.Provenance, error) {
	if identity.Group == "" {
		return nil, ErrEmptyGroup
	}

	return s.capturer.Capture(ctx, identity, executionID)
}

// Document builds the PROV document of a captured execution.
func (s *Provenance) Document(ctx context.Context, identity models.Identity, executionID string) (*provenance.Document, error) {
	execution, err := s.persistence.ExecutionRepository().GetByIDForGroup(ctx, executionID, identity.Group)
	if err != nil {
		return nil, err
	}

	prov, err := s.persistence.ProvenanceRepository().Load(ctx, execution.ID)
	if err != nil {
		return nil, err
	}

	return provenance.BuildDocument(prov)
}

// Draw renders the provenance graph of a captured execution. The caller must
// Close the artifact once it has been sent.
func (s *Provenance) Draw(ctx context.Context, identity models.Identity, executionID string, format dot.Format) (*dot.Artifact, error) {
	ctx, span := otelhelper.StartSpan(ctx, s.tracer, "provenance.draw",
		attribute.String(otelhelper.ExecutionIDKey, executionID),
		attribute.String(otelhelper.FormatKey, string(format)),
	)
	defer span.End()

	doc, err := s.Document(ctx, identity, executionID)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	artifact, err := s.renderer.Render(ctx, doc, format)
	if err != nil {
		otelhelper.SetError(span, err)
		s.logger.ErrorContext(ctx, "failed to render provenance graph", "execution_id", executionID, "format", format, "error", err)

		return nil, err
	}

	otelhelper.SetOK(span)

	return artifact, nil
}
