// Package web provides HTTP handlers for submissions, executions and provenance.
package web

import (
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/dukex/provtrack/pkg/provenance/dot"
	"github.com/dukex/provtrack/pkg/services"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

type APIHandlers struct {
	executions *services.Executions
	provenance *services.Provenance
	specs      *services.Specs
	health     *services.Health
	validator  *validator.Validate
	logger     *slog.Logger
}

func NewAPIHandlers(
	executions *services.Executions,
	provenance *services.Provenance,
	specs *services.Specs,
	health *services.Health,
	validator *validator.Validate,
	logger *slog.Logger,
) *APIHandlers {
	return &APIHandlers{
		executions: executions,
		provenance: provenance,
		specs:      specs,
		health:     health,
		validator:  validator,
		logger:     logger.With("module", "web"),
	}
}

// Routes registers every authenticated route on router.
func (h *APIHandlers) Routes(router fiber.Router) {
	s := router.Group("/specs")
	s.Post("/", h.RegisterSpec)
	s.Get("/:id", h.GetSpec)

	e := router.Group("/executions")
	e.Get("/", h.ListExecutions)
	e.Post("/", h.SubmitExecution)
	e.Get("/:id", h.GetExecution)
	e.Delete("/:id", h.DeleteExecution)

	p := router.Group("/provenance")
	p.Post("/:id/capture", h.CaptureProvenance)
	p.Get("/:id", h.GetProvenance)
	p.Get("/:id/draw", h.DrawProvenance)
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	check, ok := h.health.HealthCheck(c.Context())

	status := "unhealthy"
	httpStatus := http.StatusInternalServerError

	if ok {
		status = "healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(Envelope{
		Success: ok,
		Message: "provtrack API is " + status,
		Data: fiber.Map{
			"status":    status,
			"checkers":  fiber.Map{"repository": check},
			"timestamp": time.Now().UTC(),
		},
	})
}

func (h *APIHandlers) RegisterSpec(c fiber.Ctx) error {
	identity, ok := IdentityFrom(c)
	if !ok {
		return unauthorized(c, "not authenticated")
	}

	var req RegisterSpecRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	spec, err := h.specs.Register(c.Context(), identity, req.spec())
	if err != nil {
		return handleServiceError(c, err)
	}

	return respond(c, fiber.StatusCreated, "specification registered", spec)
}

func (h *APIHandlers) GetSpec(c fiber.Ctx) error {
	identity, ok := IdentityFrom(c)
	if !ok {
		return unauthorized(c, "not authenticated")
	}

	spec, err := h.specs.Get(c.Context(), identity, c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return respond(c, fiber.StatusOK, "specification found", spec)
}

func (h *APIHandlers) ListExecutions(c fiber.Ctx) error {
	identity, ok := IdentityFrom(c)
	if !ok {
		return unauthorized(c, "not authenticated")
	}

	executions, err := h.executions.List(c.Context(), identity)
	if err != nil {
		return handleServiceError(c, err)
	}

	return respond(c, fiber.StatusOK, "executions listed", executions)
}

func (h *APIHandlers) SubmitExecution(c fiber.Ctx) error {
	identity, ok := IdentityFrom(c)
	if !ok {
		return unauthorized(c, "not authenticated")
	}

	var req SubmitExecutionRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	execution, err := h.executions.Submit(c.Context(), identity, req.SpecID)
	if err != nil {
		h.logger.WarnContext(c.Context(), "submission failed", "spec_id", req.SpecID, "error", err)

		return handleServiceError(c, err)
	}

	return respond(c, fiber.StatusCreated, "execution submitted", execution)
}

func (h *APIHandlers) GetExecution(c fiber.Ctx) error {
	identity, ok := IdentityFrom(c)
	if !ok {
		return unauthorized(c, "not authenticated")
	}

	details, err := h.executions.Get(c.Context(), identity, c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return respond(c, fiber.StatusOK, "execution found", details)
}

func (h *APIHandlers) DeleteExecution(c fiber.Ctx) error {
	identity, ok := IdentityFrom(c)
	if !ok {
		return unauthorized(c, "not authenticated")
	}

	if err := h.executions.Delete(c.Context(), identity, c.Params("id")); err != nil {
		return handleServiceError(c, err)
	}

	return respond(c, fiber.StatusOK, "execution deleted", nil)
}

func (h *APIHandlers) CaptureProvenance(c fiber.Ctx) error {
	identity, ok := IdentityFrom(c)
	if !ok {
		return unauthorized(c, "not authenticated")
	}

	if _, err := h.provenance.Capture(c.Context(), identity, c.Params("id")); err != nil {
		h.logger.WarnContext(c.Context(), "capture failed", "execution_id", c.Params("id"), "error", err)

		return handleServiceError(c, err)
	}

	return respond(c, fiber.StatusCreated, "provenance captured", nil)
}

func (h *APIHandlers) GetProvenance(c fiber.Ctx) error {
	identity, ok := IdentityFrom(c)
	if !ok {
		return unauthorized(c, "not authenticated")
	}

	doc, err := h.provenance.Document(c.Context(), identity, c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return respond(c, fiber.StatusOK, "provenance document", doc)
}

// DrawProvenance answers with the rendered graph. The artifact is read into the
// response and removed before the handler returns, so a disconnecting client
// cannot leave it behind.
func (h *APIHandlers) DrawProvenance(c fiber.Ctx) error {
	identity, ok := IdentityFrom(c)
	if !ok {
		return unauthorized(c, "not authenticated")
	}

	format, err := dot.ParseFormat(c.Query("format"))
	if err != nil {
		return badRequest(c, err.Error())
	}

	artifact, err := h.provenance.Draw(c.Context(), identity, c.Params("id"), format)
	if err != nil {
		return handleServiceError(c, err)
	}

	defer func() {
		if err := artifact.Close(); err != nil {
			h.logger.ErrorContext(c.Context(), "failed to remove drawing", "path", artifact.Path, "error", err)
		}
	}()

	content, err := os.ReadFile(artifact.Path)
	if err != nil {
		h.logger.ErrorContext(c.Context(), "failed to read drawing", "path", artifact.Path, "error", err)

		return failure(c, fiber.StatusInternalServerError, "internal_error", "failed to read drawing")
	}

	c.Set(fiber.HeaderContentType, artifact.ContentType)
	c.Set(fiber.HeaderContentDisposition, `inline; filename="provenance-`+c.Params("id")+`.`+string(artifact.Format)+`"`)

	return c.Status(fiber.StatusOK).Send(content)
}
