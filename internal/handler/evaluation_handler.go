package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/classforge/classforge-api/internal/dto"
	"github.com/classforge/classforge-api/internal/service"
	"github.com/classforge/classforge-api/internal/utils"
)

// EvaluationHandler exposes the evaluation trigger endpoint.
type EvaluationHandler struct {
	service   service.EvaluationService
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewEvaluationHandler constructs the handler.
func NewEvaluationHandler(service service.EvaluationService, validator *validator.Validate, logger zerolog.Logger) *EvaluationHandler {
	return &EvaluationHandler{
		service:   service,
		validator: validator,
		logger:    logger.With().Str("component", "evaluation_handler").Logger(),
	}
}

// Register wires the handler endpoints into the router group.
func (h *EvaluationHandler) Register(router fiber.Router) {
	router.Post("/:submissionId/trigger", h.trigger)
}

func (h *EvaluationHandler) trigger(c *fiber.Ctx) error {
	submissionID, err := parseUintParam(c, "submissionId")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid submission id")
	}

	callerID := userIDFromContext(c)
	if callerID == 0 {
		return utils.SendError(c, fiber.StatusUnauthorized, "unauthorized")
	}

	payload := dto.TriggerEvaluationRequest{
		SubmissionID: submissionID,
		Language:     c.Query("language"),
	}
	if err := h.validator.Struct(payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "language is required")
	}

	response, err := h.service.Trigger(c.Context(), payload.SubmissionID, payload.Language, callerID)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusAccepted, "evaluation accepted", response)
}

func (h *EvaluationHandler) handleError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, service.ErrUnsupportedLanguage):
		return utils.SendError(c, fiber.StatusBadRequest, "language not supported")
	case errors.Is(err, service.ErrNotEvaluable):
		return utils.SendError(c, fiber.StatusBadRequest, "assignment is not evaluable")
	case errors.Is(err, service.ErrMissingSolution):
		return utils.SendError(c, fiber.StatusBadRequest, "submission has no solution file")
	case errors.Is(err, service.ErrNoTestCases):
		return utils.SendError(c, fiber.StatusBadRequest, "assignment has no test cases")
	case errors.Is(err, service.ErrSubmissionNotFound):
		return utils.SendError(c, fiber.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrEvaluationForbidden):
		return utils.SendError(c, fiber.StatusForbidden, "forbidden")
	default:
		requestLogger(h.logger, c).Error().Err(err).Msg("evaluation trigger failed")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}
}
