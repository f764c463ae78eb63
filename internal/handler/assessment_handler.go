package handler

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/talentforge/talentforge-api/internal/dto"
	"github.com/talentforge/talentforge-api/internal/models"
	"github.com/talentforge/talentforge-api/internal/service"
	"github.com/talentforge/talentforge-api/internal/utils"
	"github.com/talentforge/talentforge-api/pkg/github"
)

// AssessmentHandler exposes assessment lifecycle endpoints.
type AssessmentHandler struct {
	service service.AssessmentService
	logger  zerolog.Logger
}

// NewAssessmentHandler constructs an AssessmentHandler.
func NewAssessmentHandler(svc service.AssessmentService, logger zerolog.Logger) *AssessmentHandler {
	return &AssessmentHandler{
		service: svc,
		logger:  logger.With().Str("component", "assessment_handler").Logger(),
	}
}

// Register wires the assessment routes onto the given router group.
func (h *AssessmentHandler) Register(router fiber.Router) {
	router.Post("/", h.Create)
	router.Get("/", h.List)
	router.Get("/:id", h.Get)
	router.Put("/:id", h.Update)
	router.Post("/:id/publish", h.Publish)
	router.Post("/:id/activate", h.Activate)
	router.Post("/:id/deactivate", h.Deactivate)
}

// Create provisions the template repository and persists the assessment.
func (h *AssessmentHandler) Create(c *fiber.Ctx) error {
	var payload dto.AssessmentCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	userID := userIDFromContext(c)
	if userID == 0 {
		return utils.SendError(c, fiber.StatusUnauthorized, "authentication required")
	}

	assessment, err := h.service.Create(c.UserContext(), userID, payload)
	if err != nil {
		return h.sendError(c, err, "failed to create assessment")
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "assessment created", assessment)
}

// List returns assessments matching the query filter.
func (h *AssessmentHandler) List(c *fiber.Ctx) error {
	var filter dto.AssessmentFilter
	if err := c.QueryParser(&filter); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid query parameters")
	}

	assessments, total, err := h.service.List(c.UserContext(), filter)
	if err != nil {
		return h.sendError(c, err, "failed to list assessments")
	}

	return utils.SendSuccess(c, "assessments retrieved", fiber.Map{
		"assessments": assessments,
		"total":       total,
	})
}

// Get returns a single assessment by id.
func (h *AssessmentHandler) Get(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid assessment id")
	}

	assessment, err := h.service.Get(c.UserContext(), id)
	if err != nil {
		return h.sendError(c, err, "failed to get assessment")
	}

	return utils.SendSuccess(c, "assessment retrieved", assessment)
}

// Update applies a partial update to an assessment.
func (h *AssessmentHandler) Update(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid assessment id")
	}

	var payload dto.AssessmentUpdateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	assessment, err := h.service.Update(c.UserContext(), id, payload)
	if err != nil {
		return h.sendError(c, err, "failed to update assessment")
	}

	return utils.SendSuccess(c, "assessment updated", assessment)
}

// Publish moves a draft assessment into the active state.
func (h *AssessmentHandler) Publish(c *fiber.Ctx) error {
	return h.transition(c, h.service.Publish, "assessment published")
}

// Activate sets the assessment active regardless of prior state.
func (h *AssessmentHandler) Activate(c *fiber.Ctx) error {
	return h.transition(c, h.service.Activate, "assessment activated")
}

// Deactivate sets the assessment inactive regardless of prior state.
func (h *AssessmentHandler) Deactivate(c *fiber.Ctx) error {
	return h.transition(c, h.service.Deactivate, "assessment deactivated")
}

func (h *AssessmentHandler) transition(c *fiber.Ctx, op func(ctx context.Context, id uint) (dto.AssessmentResponse, error), message string) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid assessment id")
	}

	assessment, err := op(c.UserContext(), id)
	if err != nil {
		return h.sendError(c, err, "failed to transition assessment")
	}

	return utils.SendSuccess(c, message, assessment)
}

func (h *AssessmentHandler) sendError(c *fiber.Ctx, err error, fallback string) error {
	logger := requestLogger(h.logger, c)

	var transition *models.IllegalTransitionError
	var hostErr *github.APIError

	switch {
	case isValidationError(err):
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrInvalidDates):
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrAssessmentNotFound), errors.Is(err, service.ErrUserNotFound):
		return utils.SendError(c, fiber.StatusNotFound, err.Error())
	case errors.As(err, &transition):
		return utils.SendError(c, fiber.StatusConflict, transition.Error())
	case errors.As(err, &hostErr):
		logger.Error().Err(err).Msg("vcs host call failed")
		return utils.SendError(c, fiber.StatusBadGateway, "vcs host request failed")
	default:
		logger.Error().Err(err).Msg(fallback)
		return utils.SendError(c, fiber.StatusInternalServerError, fallback)
	}
}
