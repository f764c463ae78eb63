package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/talentforge/talentforge-api/internal/dto"
	"github.com/talentforge/talentforge-api/internal/service"
	"github.com/talentforge/talentforge-api/internal/utils"
)

// CandidateAuthHandler exposes the candidate OAuth flow endpoints.
type CandidateAuthHandler struct {
	service   service.CandidateAuthService
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewCandidateAuthHandler constructs a CandidateAuthHandler.
func NewCandidateAuthHandler(svc service.CandidateAuthService, validate *validator.Validate, logger zerolog.Logger) *CandidateAuthHandler {
	return &CandidateAuthHandler{
		service:   svc,
		validator: validate,
		logger:    logger.With().Str("component", "candidate_auth_handler").Logger(),
	}
}

// Register wires the candidate OAuth routes onto the given group.
func (h *CandidateAuthHandler) Register(router fiber.Router) {
	router.Post("/install-url", h.InstallURL)
	router.Get("/callback", h.Callback)
}

// InstallURL issues the host authorization URL for a candidate email.
func (h *CandidateAuthHandler) InstallURL(c *fiber.Ctx) error {
	var payload dto.InstallURLRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}
	if err := h.validator.Struct(payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	url, err := h.service.InstallURL(c.UserContext(), payload.Email)
	if err != nil {
		requestLogger(h.logger, c).Error().Err(err).Msg("failed to issue install url")
		return utils.SendError(c, fiber.StatusInternalServerError, "failed to issue install url")
	}

	return utils.SendSuccess(c, "install url issued", dto.InstallURLResponse{URL: url})
}

// Callback completes the OAuth exchange after the host redirects back.
func (h *CandidateAuthHandler) Callback(c *fiber.Ctx) error {
	var payload dto.OAuthCallbackRequest
	if err := c.QueryParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid query parameters")
	}
	if err := h.validator.Struct(payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	if err := h.service.HandleCallback(c.UserContext(), payload.Email, payload.State, payload.Code); err != nil {
		if errors.Is(err, service.ErrInvalidState) {
			return utils.SendError(c, fiber.StatusUnauthorized, "invalid or expired oauth state")
		}
		requestLogger(h.logger, c).Error().Err(err).Msg("oauth callback failed")
		return utils.SendError(c, fiber.StatusInternalServerError, "oauth callback failed")
	}

	return utils.SendSuccess(c, "authorization complete", nil)
}
