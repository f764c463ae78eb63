package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/talentforge/talentforge-api/internal/dto"
	"github.com/talentforge/talentforge-api/internal/models"
	"github.com/talentforge/talentforge-api/internal/service"
	"github.com/talentforge/talentforge-api/internal/store"
	"github.com/talentforge/talentforge-api/internal/utils"
	"github.com/talentforge/talentforge-api/pkg/github"
)

// AttemptHandler exposes candidate attempt lifecycle endpoints.
type AttemptHandler struct {
	service service.AttemptService
	logger  zerolog.Logger
}

// NewAttemptHandler constructs an AttemptHandler.
func NewAttemptHandler(svc service.AttemptService, logger zerolog.Logger) *AttemptHandler {
	return &AttemptHandler{
		service: svc,
		logger:  logger.With().Str("component", "attempt_handler").Logger(),
	}
}

// Register wires the recruiter-facing attempt routes onto the given group.
func (h *AttemptHandler) Register(router fiber.Router) {
	router.Post("/invite", h.Invite)
	router.Get("/:id", h.Get)
	router.Get("/:id/overdue", h.Overdue)
	router.Post("/:id/complete", h.Complete)
	router.Post("/:id/evaluate", h.Evaluate)
}

// RegisterCandidate wires the candidate-facing start route. Candidates carry
// no JWT; they authenticate through the ephemeral credential store.
func (h *AttemptHandler) RegisterCandidate(router fiber.Router) {
	router.Post("/start", h.Start)
}

// Invite records an invitation for a candidate on an assessment.
func (h *AttemptHandler) Invite(c *fiber.Ctx) error {
	var payload dto.AttemptInviteRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	attempt, err := h.service.Invite(c.UserContext(), payload)
	if err != nil {
		return h.sendError(c, err, "failed to invite candidate")
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "candidate invited", attempt)
}

// Start provisions the candidate repository and moves the attempt to STARTED.
func (h *AttemptHandler) Start(c *fiber.Ctx) error {
	var payload dto.AttemptStartRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	attempt, err := h.service.Start(c.UserContext(), payload)
	if err != nil {
		return h.sendError(c, err, "failed to start attempt")
	}

	return utils.SendSuccess(c, "attempt started", attempt)
}

// Complete moves a started attempt to COMPLETED.
func (h *AttemptHandler) Complete(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid attempt id")
	}

	attempt, err := h.service.Complete(c.UserContext(), id)
	if err != nil {
		return h.sendError(c, err, "failed to complete attempt")
	}

	return utils.SendSuccess(c, "attempt completed", attempt)
}

// Evaluate records a grading result and moves the attempt to EVALUATED.
func (h *AttemptHandler) Evaluate(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid attempt id")
	}

	var payload dto.AttemptEvaluateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	attempt, err := h.service.Evaluate(c.UserContext(), id, payload)
	if err != nil {
		return h.sendError(c, err, "failed to evaluate attempt")
	}

	return utils.SendSuccess(c, "attempt evaluated", attempt)
}

// Get returns a single attempt by id.
func (h *AttemptHandler) Get(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid attempt id")
	}

	attempt, err := h.service.Get(c.UserContext(), id)
	if err != nil {
		return h.sendError(c, err, "failed to get attempt")
	}

	return utils.SendSuccess(c, "attempt retrieved", attempt)
}

// Overdue reports whether a started attempt has run past its allotted duration.
func (h *AttemptHandler) Overdue(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid attempt id")
	}

	overdue, err := h.service.IsOverdue(c.UserContext(), id)
	if err != nil {
		return h.sendError(c, err, "failed to check attempt")
	}

	return utils.SendSuccess(c, "attempt checked", fiber.Map{"overdue": overdue})
}

// ListByAssessment returns every attempt on an assessment. Registered under
// the assessment group.
func (h *AttemptHandler) ListByAssessment(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid assessment id")
	}

	attempts, err := h.service.ListByAssessment(c.UserContext(), id)
	if err != nil {
		return h.sendError(c, err, "failed to list attempts")
	}

	return utils.SendSuccess(c, "attempts retrieved", attempts)
}

func (h *AttemptHandler) sendError(c *fiber.Ctx, err error, fallback string) error {
	logger := requestLogger(h.logger, c)

	var transition *models.IllegalTransitionError
	var hostErr *github.APIError

	switch {
	case isValidationError(err):
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrAttemptNotFound), errors.Is(err, service.ErrAssessmentNotFound):
		return utils.SendError(c, fiber.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrAttemptExists):
		return utils.SendError(c, fiber.StatusConflict, err.Error())
	case errors.Is(err, service.ErrAssessmentNotActive):
		return utils.SendError(c, fiber.StatusConflict, err.Error())
	case errors.As(err, &transition):
		return utils.SendError(c, fiber.StatusConflict, transition.Error())
	case errors.Is(err, store.ErrCredentialsExpired):
		return utils.SendError(c, fiber.StatusUnauthorized, "candidate credentials expired, re-authorize first")
	case errors.Is(err, service.ErrNoInstallation), errors.Is(err, service.ErrInstallationSuspended):
		logger.Error().Err(err).Msg("installation unavailable")
		return utils.SendError(c, fiber.StatusBadGateway, err.Error())
	case errors.As(err, &hostErr):
		logger.Error().Err(err).Msg("vcs host call failed")
		return utils.SendError(c, fiber.StatusBadGateway, "vcs host request failed")
	default:
		logger.Error().Err(err).Msg(fallback)
		return utils.SendError(c, fiber.StatusInternalServerError, fallback)
	}
}
