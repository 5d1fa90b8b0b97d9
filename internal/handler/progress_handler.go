package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/mizuki-lab/shukudai-api/internal/service"
	"github.com/mizuki-lab/shukudai-api/internal/utils"
)

// ProgressHandler exposes progress snapshots and leaderboards.
type ProgressHandler struct {
	service service.ProgressService
	logger  zerolog.Logger
}

// NewProgressHandler builds a progress handler instance.
func NewProgressHandler(service service.ProgressService, logger zerolog.Logger) *ProgressHandler {
	return &ProgressHandler{
		service: service,
		logger:  logger.With().Str("component", "progress_handler").Logger(),
	}
}

// Register attaches the routes. Everyone sees their own snapshot; the
// system-wide, per-user, rollup and leaderboard views are staff only.
func (h *ProgressHandler) Register(authed, staff fiber.Router) {
	authed.Get("/me", h.me)

	staff.Get("", h.system)
	staff.Get("/users/:id", h.forUser)
	staff.Get("/rollups", h.rollups)
	staff.Get("/leaderboard", h.leaderboard)
}

func (h *ProgressHandler) system(c *fiber.Ctx) error {
	snapshot, err := h.service.ForSystem(c.Context())
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "progress retrieved", snapshot)
}

func (h *ProgressHandler) me(c *fiber.Ctx) error {
	snapshot, err := h.service.ForUser(c.Context(), userIDFromContext(c))
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "progress retrieved", snapshot)
}

func (h *ProgressHandler) forUser(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	snapshot, err := h.service.ForUser(c.Context(), id)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "progress retrieved", snapshot)
}

func (h *ProgressHandler) rollups(c *fiber.Ctx) error {
	rollups, err := h.service.ClassRollups(c.Context())
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "class rollups retrieved", rollups)
}

func (h *ProgressHandler) leaderboard(c *fiber.Ctx) error {
	classID, err := parseQueryUint(c, "class_id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	leaderboard, err := h.service.UserAccuracy(c.Context(), classID)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "leaderboard retrieved", leaderboard)
}

func (h *ProgressHandler) handleError(c *fiber.Ctx, err error) error {
	var validationErrors validator.ValidationErrors
	switch {
	case errors.Is(err, service.ErrUserNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "user not found")
	case errors.Is(err, service.ErrClassNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "class not found")
	case errors.As(err, &validationErrors):
		return utils.SendError(c, fiber.StatusBadRequest, validationErrors.Error())
	default:
		h.logger.Error().Err(err).Msg("internal server error")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}
}
